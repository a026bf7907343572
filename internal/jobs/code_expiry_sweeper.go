// code_expiry_sweeper.go implements the CodeExpirySweeper background job, which
// periodically invalidates authorization codes whose expiration time has passed.
// Validation never depends on the sweep: an expired code is refused at the gate
// regardless. The sweep keeps administrative listings honest and stops the
// valid-code table from accumulating rows that can never be consumed.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/campusface/campusface/internal/telemetry"
)

// CodeInvalidator is the store surface the sweeper needs.
type CodeInvalidator interface {
	InvalidateExpired(ctx context.Context, now time.Time) (int64, error)
}

// CodeExpirySweeper periodically marks expired authorization codes invalid.
type CodeExpirySweeper struct {
	codes    CodeInvalidator
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCodeExpirySweeper creates a sweeper that runs every interval.
func NewCodeExpirySweeper(codes CodeInvalidator, interval time.Duration, logger *slog.Logger) *CodeExpirySweeper {
	return &CodeExpirySweeper{
		codes:    codes,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs immediately so a
// restart does not leave stale codes listed as valid for a full interval.
func (j *CodeExpirySweeper) Start(ctx context.Context) {
	j.logger.Info("starting code expiry sweeper", "interval", j.interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.sweep(ctx)

		for {
			select {
			case <-ticker.C:
				j.sweep(ctx)
			case <-j.stopCh:
				j.logger.Info("code expiry sweeper stopped")
				return
			case <-ctx.Done():
				j.logger.Info("code expiry sweeper context cancelled")
				return
			}
		}
	}()
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (j *CodeExpirySweeper) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *CodeExpirySweeper) sweep(ctx context.Context) {
	swept, err := j.codes.InvalidateExpired(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("code expiry sweep failed", "error", err)
		return
	}
	if swept > 0 {
		telemetry.CodesExpiredSweptTotal.Add(float64(swept))
		j.logger.Info("invalidated expired codes", "count", swept)
	}
}
