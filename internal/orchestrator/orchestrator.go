// Package orchestrator fans a generation request out to both agents under one
// shared timeout and settles both outcomes independently. One side failing
// never cancels the other; the partial-success path depends on that.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/voltio/ramsgen/pkg/models"
)

// RiskOutcome is the settled result of the risk agent call: data or a reason,
// never both.
type RiskOutcome struct {
	Data   *models.RawRiskData
	Reason string
}

func (o RiskOutcome) OK() bool { return o.Data != nil }

// MethodOutcome is the settled result of the method agent call.
type MethodOutcome struct {
	Data   *models.RawMethodData
	Reason string
}

func (o MethodOutcome) OK() bool { return o.Data != nil }

// Classification of a settled orchestrator run, mapping directly onto the
// job's terminal status.
const (
	OutcomeComplete = models.JobStatusComplete
	OutcomePartial  = models.JobStatusPartial
	OutcomeFailed   = models.JobStatusFailed
)

// Classify maps the two outcomes onto a terminal job status.
func Classify(risk RiskOutcome, method MethodOutcome) string {
	switch {
	case risk.OK() && method.OK():
		return OutcomeComplete
	case risk.OK() || method.OK():
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

// Orchestrator runs both generation agents for a job.
type Orchestrator struct {
	risk    models.RiskAgent
	method  models.MethodAgent
	timeout time.Duration
}

// New creates an Orchestrator. timeout bounds the whole run; a call still in
// flight when it elapses settles as a timeout failure.
func New(risk models.RiskAgent, method models.MethodAgent, timeout time.Duration) *Orchestrator {
	return &Orchestrator{risk: risk, method: method, timeout: timeout}
}

// Run launches both agent calls concurrently and waits for both to settle.
// The returned outcomes are always populated: data on success, a reason
// otherwise. Run itself never returns an error; failures live in the outcomes.
func (o *Orchestrator) Run(ctx context.Context, req models.AgentRequest) (RiskOutcome, MethodOutcome) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	riskCh := make(chan RiskOutcome, 1)
	methodCh := make(chan MethodOutcome, 1)

	go func() {
		data, err := o.risk.GenerateRisk(ctx, req)
		if err != nil {
			riskCh <- RiskOutcome{Reason: reasonFor(ctx, err)}
			return
		}
		riskCh <- RiskOutcome{Data: data}
	}()

	go func() {
		data, err := o.method.GenerateMethod(ctx, req)
		if err != nil {
			methodCh <- MethodOutcome{Reason: reasonFor(ctx, err)}
			return
		}
		methodCh <- MethodOutcome{Data: data}
	}()

	// Both channels are buffered, so each goroutine settles as soon as its
	// call returns regardless of which side is received first.
	risk := <-riskCh
	method := <-methodCh
	return risk, method
}

// reasonFor renders an agent error as a terminal reason string, folding
// context expiry into "timeout" so callers and tests see a stable word.
func reasonFor(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return "cancelled"
	}
	return err.Error()
}
