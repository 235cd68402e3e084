package runner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voltio/ramsgen/pkg/models"
)

// Heartbeat bands. The two tickers run concurrently over disjoint ranges, so
// their interleaved writes stay monotone under the store's GREATEST guard.
const (
	riskBandStart   = 15
	riskBandCap     = 45
	methodBandStart = 45
	methodBandCap   = 80
	bandStep        = 5
)

// startHeartbeats launches the two progress tickers and returns a stop
// function that halts both synchronously. Every tick also polls for external
// cancellation; observing one fires cancelRun, which stops the other ticker
// and aborts any agent call still in flight.
func (r *Runner) startHeartbeats(ctx context.Context, cancelRun context.CancelFunc, jobID uuid.UUID) (stop func()) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.heartbeatBand(ctx, cancelRun, jobID, riskBandStart, riskBandCap, "Identifying hazards and control measures")
	}()
	go func() {
		defer wg.Done()
		r.heartbeatBand(ctx, cancelRun, jobID, methodBandStart, methodBandCap, "Drafting method statement steps")
	}()

	return func() {
		cancelRun()
		wg.Wait()
	}
}

func (r *Runner) heartbeatBand(ctx context.Context, cancelRun context.CancelFunc, jobID uuid.UUID, start, limit int, step string) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	progress := start
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := r.store.GetJobStatus(ctx, jobID)
		if err == nil && status == models.JobStatusCancelled {
			cancelRun()
			return
		}

		// Heartbeats are additive only within the band; the terminal write
		// owns the final value.
		if err := r.store.UpdateProgress(ctx, jobID, progress, step); err != nil {
			r.logger.Debug("heartbeat write failed", "job_id", jobID, "error", err)
		} else {
			r.mirrorState(ctx, jobID, models.JobStatusProcessing, progress, step)
		}

		if progress < limit {
			progress += bandStep
			if progress > limit {
				progress = limit
			}
		}
	}
}
