package service

import (
	"context"
	"errors"
	"time"

	"bip-service/internal/models"
	"bip-service/internal/util"

	"go.uber.org/zap"
)

const (
	sweepLockKey   = "reconcile-sweep"
	sweepBatchSize = 500
)

// SweepStats reports what one sweep did.
type SweepStats struct {
	Ran       bool
	Matched   int
	Unmatched int
}

// Sweeper retries reconciliation of recent sales and flags pending bips
// that outlived the reconcile window.
type Sweeper struct {
	repo       SweepRepository
	reconciler *Reconciler
	publisher  EventPublisher
	locker     Locker
	window     time.Duration
	lookback   time.Duration
	lockTTL    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewSweeper creates a new sweeper. lockTTL should exceed one sweep's runtime.
func NewSweeper(
	repo SweepRepository,
	reconciler *Reconciler,
	publisher EventPublisher,
	locker Locker,
	window, lookback, lockTTL time.Duration,
) *Sweeper {
	return &Sweeper{
		repo:       repo,
		reconciler: reconciler,
		publisher:  publisher,
		locker:     locker,
		window:     window,
		lookback:   lookback,
		lockTTL:    lockTTL,
		now:        time.Now,
		logger:     util.GetLogger(),
	}
}

// RunOnce performs one sweep unless another replica holds the sweep lock.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepStats, error) {
	ctx, span := util.StartSpan(ctx, "Sweeper.RunOnce")
	defer span.End()

	var stats SweepStats
	ran, err := s.locker.TryWithLock(ctx, sweepLockKey, s.lockTTL, func(ctx context.Context) error {
		var err error
		stats, err = s.sweep(ctx)
		return err
	})
	stats.Ran = ran
	if err != nil {
		return stats, util.SpanError(span, err)
	}
	return stats, nil
}

func (s *Sweeper) sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.now()
	since := now.Add(-s.lookback)

	sellIDs, err := s.repo.ListUnlinkedSellIDs(ctx, since, sweepBatchSize)
	if err != nil {
		return stats, err
	}
	for _, id := range sellIDs {
		bip, err := s.reconciler.ReconcileSell(ctx, id)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return stats, err
			}
			s.logger.Error("Sweep reconcile failed", zap.Int64("sell_id", id), zap.Error(err))
			continue
		}
		if bip != nil {
			stats.Matched++
		}
	}

	stale, err := s.repo.ListUnnotifiedPendingBips(ctx, since, now.Add(-s.window), sweepBatchSize)
	if err != nil {
		return stats, err
	}
	for i := range stale {
		b := &stale[i]
		changed, err := s.repo.MarkBipNotified(ctx, b.ID, now)
		if err != nil {
			s.logger.Error("Failed to flag unmatched bip", zap.Int64("bip_id", b.ID), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}
		stats.Unmatched++
		util.BipsUnmatchedTotal.Inc()

		event := &models.BipUnmatchedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeBipUnmatched),
			BipID:         b.ID,
			EAN:           b.EAN,
			EventDate:     b.EventDate,
			BipPriceCents: b.BipPriceCents,
			EquipmentID:   b.EquipmentID,
		}
		if err := s.publisher.PublishBipUnmatched(ctx, event); err != nil {
			s.logger.Error("Failed to publish BipUnmatched event", zap.Int64("bip_id", b.ID), zap.Error(err))
		}
	}

	if stats.Matched > 0 || stats.Unmatched > 0 {
		s.logger.Info("Reconcile sweep finished",
			zap.Int("matched", stats.Matched),
			zap.Int("unmatched", stats.Unmatched))
	}
	return stats, nil
}
