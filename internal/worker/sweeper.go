package worker

import (
	"context"
	"time"

	"bip-service/internal/service"
	"bip-service/internal/util"

	"go.uber.org/zap"
)

// SweepRunner runs one reconciliation sweep.
type SweepRunner interface {
	RunOnce(ctx context.Context) (service.SweepStats, error)
}

// SweepWorker runs the reconciliation sweep on a fixed interval.
type SweepWorker struct {
	sweeper  SweepRunner
	interval time.Duration
}

// fallbackInterval replaces non-positive ticker periods, which
// time.NewTicker rejects with a panic.
const fallbackInterval = time.Second

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(sweeper SweepRunner, interval time.Duration) *SweepWorker {
	return &SweepWorker{sweeper: sweeper, interval: positiveInterval(interval)}
}

func positiveInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return fallbackInterval
	}
	return d
}

// Start sweeps every interval until ctx is cancelled.
func (w *SweepWorker) Start(ctx context.Context) error {
	logger := util.GetLogger()
	logger.Info("Starting sweep worker...", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping sweep worker...")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.sweeper.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Reconcile sweep failed", zap.Error(err))
			}
		}
	}
}
