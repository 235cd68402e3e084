package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltio/ramsgen/internal/agent"
	agentmock "github.com/voltio/ramsgen/internal/agent/mock"
	"github.com/voltio/ramsgen/internal/orchestrator"
	"github.com/voltio/ramsgen/pkg/models"
)

func TestRun_BothSucceed(t *testing.T) {
	o := orchestrator.New(&agentmock.RiskAgent{}, &agentmock.MethodAgent{}, time.Second)

	risk, method := o.Run(context.Background(), models.AgentRequest{})
	assert.True(t, risk.OK())
	assert.True(t, method.OK())
	assert.Empty(t, risk.Reason)
	assert.Empty(t, method.Reason)
	assert.Equal(t, orchestrator.OutcomeComplete, orchestrator.Classify(risk, method))
}

func TestRun_RiskFailsMethodSucceeds(t *testing.T) {
	o := orchestrator.New(
		agentmock.NewFailingRiskAgent(errors.New("model overloaded")),
		&agentmock.MethodAgent{},
		time.Second)

	risk, method := o.Run(context.Background(), models.AgentRequest{})
	assert.False(t, risk.OK())
	assert.Equal(t, "model overloaded", risk.Reason)
	assert.True(t, method.OK())
	assert.Equal(t, orchestrator.OutcomePartial, orchestrator.Classify(risk, method))
}

func TestRun_MethodFailsRiskSucceeds(t *testing.T) {
	o := orchestrator.New(
		&agentmock.RiskAgent{},
		agentmock.NewFailingMethodAgent(errors.New("no steps generated")),
		time.Second)

	risk, method := o.Run(context.Background(), models.AgentRequest{})
	assert.True(t, risk.OK())
	assert.False(t, method.OK())
	assert.Equal(t, "no steps generated", method.Reason)
	assert.Equal(t, orchestrator.OutcomePartial, orchestrator.Classify(risk, method))
}

func TestRun_BothFail(t *testing.T) {
	o := orchestrator.New(
		agentmock.NewFailingRiskAgent(errors.New("risk broke")),
		agentmock.NewFailingMethodAgent(errors.New("method broke")),
		time.Second)

	risk, method := o.Run(context.Background(), models.AgentRequest{})
	assert.False(t, risk.OK())
	assert.False(t, method.OK())
	assert.Equal(t, orchestrator.OutcomeFailed, orchestrator.Classify(risk, method))
}

// One side failing must not cancel the other: partial success depends on the
// slower call being allowed to finish.
func TestRun_SettlesBothIndependently(t *testing.T) {
	slowMethod := &agentmock.MethodAgent{
		GenerateFunc: func(ctx context.Context, _ models.AgentRequest) (*models.RawMethodData, error) {
			select {
			case <-time.After(100 * time.Millisecond):
				return agentmock.DefaultMethodData(), nil
			case <-ctx.Done():
				return nil, agent.ErrAgentUnavailable
			}
		},
	}
	o := orchestrator.New(
		agentmock.NewFailingRiskAgent(errors.New("instant failure")),
		slowMethod,
		time.Second)

	risk, method := o.Run(context.Background(), models.AgentRequest{})
	assert.False(t, risk.OK())
	assert.True(t, method.OK(), "slow method call should settle despite fast risk failure")
}

func TestRun_TimeoutConvertsHungCalls(t *testing.T) {
	o := orchestrator.New(
		agentmock.NewBlockingRiskAgent(),
		agentmock.NewBlockingMethodAgent(),
		50*time.Millisecond)

	start := time.Now()
	risk, method := o.Run(context.Background(), models.AgentRequest{})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "Run must settle soon after the shared timeout")
	assert.False(t, risk.OK())
	assert.False(t, method.OK())
	assert.Equal(t, "timeout", risk.Reason)
	assert.Equal(t, "timeout", method.Reason)
	assert.Equal(t, orchestrator.OutcomeFailed, orchestrator.Classify(risk, method))
}

func TestRun_TimeoutWithOneFastSuccess(t *testing.T) {
	o := orchestrator.New(
		&agentmock.RiskAgent{},
		agentmock.NewBlockingMethodAgent(),
		50*time.Millisecond)

	risk, method := o.Run(context.Background(), models.AgentRequest{})
	assert.True(t, risk.OK())
	assert.False(t, method.OK())
	assert.Equal(t, "timeout", method.Reason)
	assert.Equal(t, orchestrator.OutcomePartial, orchestrator.Classify(risk, method))
}

func TestRun_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	o := orchestrator.New(
		agentmock.NewBlockingRiskAgent(),
		agentmock.NewBlockingMethodAgent(),
		time.Minute)

	risk, method := o.Run(ctx, models.AgentRequest{})
	require.False(t, risk.OK())
	require.False(t, method.OK())
	assert.Equal(t, "cancelled", risk.Reason)
	assert.Equal(t, "cancelled", method.Reason)
}

func TestClassify_Table(t *testing.T) {
	data := agentmock.DefaultRiskData()
	methodData := agentmock.DefaultMethodData()

	tests := []struct {
		name   string
		risk   orchestrator.RiskOutcome
		method orchestrator.MethodOutcome
		want   string
	}{
		{"both ok", orchestrator.RiskOutcome{Data: data}, orchestrator.MethodOutcome{Data: methodData}, orchestrator.OutcomeComplete},
		{"risk only", orchestrator.RiskOutcome{Data: data}, orchestrator.MethodOutcome{Reason: "x"}, orchestrator.OutcomePartial},
		{"method only", orchestrator.RiskOutcome{Reason: "x"}, orchestrator.MethodOutcome{Data: methodData}, orchestrator.OutcomePartial},
		{"both failed", orchestrator.RiskOutcome{Reason: "x"}, orchestrator.MethodOutcome{Reason: "y"}, orchestrator.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orchestrator.Classify(tt.risk, tt.method))
		})
	}
}
