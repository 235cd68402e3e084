package runner_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltio/ramsgen/internal/cache"
	"github.com/voltio/ramsgen/internal/orchestrator"
	"github.com/voltio/ramsgen/internal/runner"
	"github.com/voltio/ramsgen/internal/semcache"
	"github.com/voltio/ramsgen/internal/store"
	"github.com/voltio/ramsgen/pkg/models"
)

// --- mocks ---

type terminalWrite struct {
	Status string
	Result store.JobResult
}

type mockStore struct {
	mu sync.Mutex

	GetJobFunc       func(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetJobStatusFunc func(ctx context.Context, id uuid.UUID) (string, error)
	CompleteJobFunc  func(ctx context.Context, id uuid.UUID, status string, opts ...store.JobResultOption) error

	markProcessingErr error

	progressWrites []int
	terminal       []terminalWrite
}

func (m *mockStore) Ping(context.Context) error                   { return nil }
func (m *mockStore) CreateJob(context.Context, *models.Job) error { return nil }
func (m *mockStore) CancelJob(context.Context, uuid.UUID) error   { return nil }

func (m *mockStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if m.GetJobFunc != nil {
		return m.GetJobFunc(ctx, id)
	}
	return queuedJob(id), nil
}

func (m *mockStore) GetJobStatus(ctx context.Context, id uuid.UUID) (string, error) {
	if m.GetJobStatusFunc != nil {
		return m.GetJobStatusFunc(ctx, id)
	}
	return models.JobStatusProcessing, nil
}

func (m *mockStore) MarkProcessing(ctx context.Context, id uuid.UUID, progress int, step string) error {
	return m.markProcessingErr
}

func (m *mockStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressWrites = append(m.progressWrites, progress)
	return nil
}

func (m *mockStore) CompleteJob(ctx context.Context, id uuid.UUID, status string, opts ...store.JobResultOption) error {
	if m.CompleteJobFunc != nil {
		return m.CompleteJobFunc(ctx, id, status, opts...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminal = append(m.terminal, terminalWrite{Status: status, Result: store.NewJobResult(opts...)})
	return nil
}

func (m *mockStore) SearchCacheEntries(context.Context, []float32, string, string, float64, int) ([]models.CacheCandidate, error) {
	return nil, nil
}

func (m *mockStore) InsertCacheEntry(context.Context, *models.CacheEntry, []float32) error {
	return nil
}

func (m *mockStore) TouchCacheEntry(context.Context, uuid.UUID, time.Time) error { return nil }

func (m *mockStore) terminalWrites() []terminalWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]terminalWrite(nil), m.terminal...)
}

type mockCache struct {
	mu     sync.Mutex
	states []cache.JobState
}

func (m *mockCache) Ping(context.Context) error { return nil }

func (m *mockCache) SetJobState(_ context.Context, _ uuid.UUID, state cache.JobState, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return nil
}

func (m *mockCache) GetJobState(context.Context, uuid.UUID) (cache.JobState, bool, error) {
	return cache.JobState{}, false, nil
}

func (m *mockCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}

type mockSemCache struct {
	LookupFunc func(ctx context.Context, description, scale, workType string) (semcache.Result, error)

	mu     sync.Mutex
	stored int
	done   chan struct{}
}

func (m *mockSemCache) Lookup(ctx context.Context, description, scale, workType string) (semcache.Result, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, description, scale, workType)
	}
	return semcache.Result{}, nil
}

func (m *mockSemCache) Store(ctx context.Context, description, scale, workType string, riskData *models.RiskDocument, methodData *models.MethodDocument) {
	m.mu.Lock()
	m.stored++
	m.mu.Unlock()
	if m.done != nil {
		close(m.done)
	}
}

func (m *mockSemCache) storeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored
}

type mockOrchestrator struct {
	RunFunc func(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome)
}

func (m *mockOrchestrator) Run(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome) {
	return m.RunFunc(ctx, req)
}

// --- helpers ---

func queuedJob(id uuid.UUID) *models.Job {
	return &models.Job{
		ID:          id,
		Description: "Install consumer unit",
		Scale:       "domestic",
		WorkType:    "general",
		ProjectInfo: models.ProjectInfo{ProjectName: "Unit swap"},
		Status:      models.JobStatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
}

func goodRiskData() *models.RawRiskData {
	likelihood, severity := 2, 4
	hazards := []models.RawHazard{
		{ID: "hazard-1", Hazard: "Electric shock", Likelihood: &likelihood, Severity: &severity},
	}
	return &models.RawRiskData{Hazards: &hazards}
}

func goodMethodData() *models.RawMethodData {
	return &models.RawMethodData{
		Steps: []models.RawMethodStep{{StepNumber: 1, Title: "Isolate", Duration: "30 min"}},
		EmergencyContacts: &models.RawEmergencyContacts{
			SiteManager: "J. Brennan", AssemblyPoint: "Main car park",
		},
	}
}

func newRunner(st *mockStore, sc *mockSemCache, orch runner.Orchestrator) *runner.Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return runner.New(st, &mockCache{}, sc, orch, 10*time.Millisecond, logger)
}

func settledOutcomes(risk *models.RawRiskData, riskReason string, method *models.RawMethodData, methodReason string) *mockOrchestrator {
	return &mockOrchestrator{
		RunFunc: func(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome) {
			return orchestrator.RiskOutcome{Data: risk, Reason: riskReason},
				orchestrator.MethodOutcome{Data: method, Reason: methodReason}
		},
	}
}

// --- tests ---

func TestRun_BothAgentsSucceed(t *testing.T) {
	st := &mockStore{}
	sc := &mockSemCache{done: make(chan struct{})}
	r := newRunner(st, sc, settledOutcomes(goodRiskData(), "", goodMethodData(), ""))

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	writes := st.terminalWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, models.JobStatusComplete, writes[0].Status)
	require.NotNil(t, writes[0].Result.RiskData)
	require.NotNil(t, writes[0].Result.MethodData)
	assert.Nil(t, writes[0].Result.ErrorMessage)
	require.NotNil(t, writes[0].Result.Metadata)
	assert.False(t, writes[0].Result.Metadata.CacheHit)

	// Emergency contacts are spliced into the risk document.
	assert.Equal(t, "J. Brennan", writes[0].Result.RiskData.EmergencyContacts.SiteManager)

	select {
	case <-sc.done:
	case <-time.After(time.Second):
		t.Fatal("expected write-through to the semantic cache")
	}
	assert.Equal(t, 1, sc.storeCalls())
}

func TestRun_RiskFailsIsPartial(t *testing.T) {
	st := &mockStore{}
	sc := &mockSemCache{}
	r := newRunner(st, sc, settledOutcomes(nil, "timeout", goodMethodData(), ""))

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	writes := st.terminalWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, models.JobStatusPartial, writes[0].Status)
	assert.Nil(t, writes[0].Result.RiskData)
	assert.NotNil(t, writes[0].Result.MethodData)
	require.NotNil(t, writes[0].Result.ErrorMessage)
	assert.Equal(t, "risk agent: timeout", *writes[0].Result.ErrorMessage)

	// Partial results never populate the cache.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sc.storeCalls())
}

func TestRun_MethodFailsIsPartial(t *testing.T) {
	st := &mockStore{}
	r := newRunner(st, &mockSemCache{}, settledOutcomes(goodRiskData(), "", nil, "agent declined"))

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	writes := st.terminalWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, models.JobStatusPartial, writes[0].Status)
	assert.NotNil(t, writes[0].Result.RiskData)
	require.NotNil(t, writes[0].Result.ErrorMessage)
	assert.Equal(t, "method agent: agent declined", *writes[0].Result.ErrorMessage)
}

func TestRun_BothFail(t *testing.T) {
	st := &mockStore{}
	r := newRunner(st, &mockSemCache{}, settledOutcomes(nil, "timeout", nil, "connection refused"))

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	writes := st.terminalWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, models.JobStatusFailed, writes[0].Status)
	require.NotNil(t, writes[0].Result.ErrorMessage)
	assert.Equal(t, "risk agent: timeout; method agent: connection refused", *writes[0].Result.ErrorMessage)
}

func TestRun_CacheHitShortCircuits(t *testing.T) {
	st := &mockStore{}
	sc := &mockSemCache{
		LookupFunc: func(_ context.Context, _, _, _ string) (semcache.Result, error) {
			return semcache.Result{
				Hit:        true,
				RiskData:   &models.RiskDocument{OverallRiskLevel: "medium"},
				MethodData: &models.MethodDocument{TotalEstimatedTime: "2h"},
				Similarity: 0.94,
				HitCount:   3,
			}, nil
		},
	}
	orch := &mockOrchestrator{
		RunFunc: func(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome) {
			t.Fatal("orchestrator must not run on a cache hit")
			return orchestrator.RiskOutcome{}, orchestrator.MethodOutcome{}
		},
	}
	r := newRunner(st, sc, orch)

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	writes := st.terminalWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, models.JobStatusComplete, writes[0].Status)
	require.NotNil(t, writes[0].Result.Metadata)
	assert.True(t, writes[0].Result.Metadata.CacheHit)
	assert.InDelta(t, 0.94, writes[0].Result.Metadata.Similarity, 0.001)
	assert.Equal(t, 3, writes[0].Result.Metadata.HitCount)
}

func TestRun_CacheLookupErrorFailsOpen(t *testing.T) {
	st := &mockStore{}
	sc := &mockSemCache{
		LookupFunc: func(_ context.Context, _, _, _ string) (semcache.Result, error) {
			return semcache.Result{}, errors.New("embedding service down")
		},
	}
	r := newRunner(st, sc, settledOutcomes(goodRiskData(), "", goodMethodData(), ""))

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	writes := st.terminalWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, models.JobStatusComplete, writes[0].Status)
}

func TestRun_TerminalJobIsNoOp(t *testing.T) {
	st := &mockStore{
		GetJobFunc: func(_ context.Context, id uuid.UUID) (*models.Job, error) {
			job := queuedJob(id)
			job.Status = models.JobStatusComplete
			return job, nil
		},
	}
	orch := &mockOrchestrator{
		RunFunc: func(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome) {
			t.Fatal("orchestrator must not run for a terminal job")
			return orchestrator.RiskOutcome{}, orchestrator.MethodOutcome{}
		},
	}
	r := newRunner(st, &mockSemCache{}, orch)

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, st.terminalWrites())
}

func TestRun_LoadErrorPropagates(t *testing.T) {
	st := &mockStore{
		GetJobFunc: func(context.Context, uuid.UUID) (*models.Job, error) {
			return nil, store.ErrNotFound
		},
	}
	r := newRunner(st, &mockSemCache{}, settledOutcomes(goodRiskData(), "", goodMethodData(), ""))

	err := r.Run(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_CancelledBeforeProcessing(t *testing.T) {
	st := &mockStore{markProcessingErr: store.ErrTerminalState}
	orch := &mockOrchestrator{
		RunFunc: func(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome) {
			t.Fatal("orchestrator must not run after losing the cancel race")
			return orchestrator.RiskOutcome{}, orchestrator.MethodOutcome{}
		},
	}
	r := newRunner(st, &mockSemCache{}, orch)

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, st.terminalWrites())
}

func TestRun_CancelledDuringOrchestrationDiscardsResults(t *testing.T) {
	st := &mockStore{
		GetJobStatusFunc: func(context.Context, uuid.UUID) (string, error) {
			return models.JobStatusCancelled, nil
		},
	}
	// GetJobStatus reports cancelled at the first checkpoint after
	// MarkProcessing, so the run exits without orchestrating.
	orch := &mockOrchestrator{
		RunFunc: func(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome) {
			t.Fatal("orchestrator must not run for a cancelled job")
			return orchestrator.RiskOutcome{}, orchestrator.MethodOutcome{}
		},
	}
	r := newRunner(st, &mockSemCache{}, orch)

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, st.terminalWrites())
}

func TestRun_TransformFailureDemotesSide(t *testing.T) {
	// Risk agent "succeeded" but returned no hazards array, which the
	// transformer rejects; the run degrades to method-only partial.
	st := &mockStore{}
	r := newRunner(st, &mockSemCache{}, settledOutcomes(&models.RawRiskData{}, "", goodMethodData(), ""))

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	writes := st.terminalWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, models.JobStatusPartial, writes[0].Status)
	assert.Nil(t, writes[0].Result.RiskData)
	assert.NotNil(t, writes[0].Result.MethodData)
	require.NotNil(t, writes[0].Result.ErrorMessage)
	assert.Contains(t, *writes[0].Result.ErrorMessage, "hazards array missing")
}

func TestRun_LateTerminalRaceIsNotAnError(t *testing.T) {
	st := &mockStore{
		CompleteJobFunc: func(context.Context, uuid.UUID, string, ...store.JobResultOption) error {
			return store.ErrTerminalState
		},
	}
	r := newRunner(st, &mockSemCache{}, settledOutcomes(goodRiskData(), "", goodMethodData(), ""))

	err := r.Run(context.Background(), uuid.New())
	assert.NoError(t, err)
}

func TestRun_PanicRecoversToFailed(t *testing.T) {
	st := &mockStore{}
	orch := &mockOrchestrator{
		RunFunc: func(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome) {
			panic("agent client bug")
		},
	}
	r := newRunner(st, &mockSemCache{}, orch)

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	writes := st.terminalWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, models.JobStatusFailed, writes[0].Status)
	require.NotNil(t, writes[0].Result.ErrorMessage)
	assert.Contains(t, *writes[0].Result.ErrorMessage, "internal error")
}

func TestRun_HeartbeatsAdvanceWithinBands(t *testing.T) {
	st := &mockStore{}
	orch := &mockOrchestrator{
		RunFunc: func(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome) {
			time.Sleep(80 * time.Millisecond)
			return orchestrator.RiskOutcome{Data: goodRiskData()},
				orchestrator.MethodOutcome{Data: goodMethodData()}
		},
	}
	r := newRunner(st, &mockSemCache{}, orch)

	err := r.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	st.mu.Lock()
	writes := append([]int(nil), st.progressWrites...)
	st.mu.Unlock()

	require.NotEmpty(t, writes, "expected heartbeat writes during a slow orchestration")
	for _, p := range writes {
		assert.GreaterOrEqual(t, p, 15)
		assert.LessOrEqual(t, p, 80)
	}
}

func TestRun_HeartbeatObservesCancellation(t *testing.T) {
	var statusMu sync.Mutex
	status := models.JobStatusProcessing

	st := &mockStore{
		GetJobStatusFunc: func(context.Context, uuid.UUID) (string, error) {
			statusMu.Lock()
			defer statusMu.Unlock()
			return status, nil
		},
	}
	orch := &mockOrchestrator{
		RunFunc: func(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome) {
			// Simulates agents hung until the heartbeat observes the
			// external cancellation and fires the shared cancel.
			<-ctx.Done()
			return orchestrator.RiskOutcome{Reason: "cancelled"},
				orchestrator.MethodOutcome{Reason: "cancelled"}
		},
	}
	r := newRunner(st, &mockSemCache{}, orch)

	go func() {
		time.Sleep(30 * time.Millisecond)
		statusMu.Lock()
		status = models.JobStatusCancelled
		statusMu.Unlock()
	}()

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), uuid.New()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not settle after cancellation")
	}
	assert.Empty(t, st.terminalWrites(), "cancelled runs must not write results")
}
