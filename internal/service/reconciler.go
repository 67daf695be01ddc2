package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bip-service/internal/models"
	"bip-service/internal/store"
	"bip-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Reconciler matches pending bips with ERP sales
type Reconciler struct {
	repo      SellRepository
	publisher EventPublisher
	window    time.Duration
	logger    *zap.Logger
}

// NewReconciler creates a new reconciler. window bounds how long before a
// sale its scan may have happened.
func NewReconciler(repo SellRepository, publisher EventPublisher, window time.Duration) *Reconciler {
	return &Reconciler{
		repo:      repo,
		publisher: publisher,
		window:    window,
		logger:    util.GetLogger(),
	}
}

// ReconcileSell links an unverified sale to the oldest pending bip of the
// same product and gross price scanned within the window before the sale.
// It returns the matched bip, or nil when nothing matched.
func (r *Reconciler) ReconcileSell(ctx context.Context, sellID int64) (*models.Bip, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.ReconcileSell", attribute.Int64("sell.id", sellID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	var matched *models.Bip
	var sell *models.Sell
	err := r.repo.WithTx(ctx, func(tx store.TxOps) error {
		var err error
		sell, err = tx.LockSell(ctx, sellID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSellNotFound
		}
		if err != nil {
			return err
		}
		if sell.BipID != nil || sell.Status != models.SellStatusNotVerified {
			return nil
		}

		bip, err := tx.FindMatchingPendingBip(ctx, store.MatchCriteria{
			ProductKeys: []string{sell.ProductID},
			PriceCents:  sell.GrossCents(),
			From:        sell.SellDate.Add(-r.window),
			To:          sell.SellDate,
		})
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find matching bip: %w", err)
		}

		if err := tx.LinkSellToBip(ctx, sell.ID, bip.ID); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return nil
			}
			return err
		}
		bip.Status = models.BipStatusVerified
		matched = bip
		return nil
	})
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	if matched != nil {
		r.verified(ctx, sell.ID, matched.ID)
	}
	return matched, nil
}

// ReconcileBip is the inverse direction: it links a pending bip to the
// oldest unverified sale made within the window after the scan.
func (r *Reconciler) ReconcileBip(ctx context.Context, bipID int64) (*models.Sell, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.ReconcileBip", attribute.Int64("bip.id", bipID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	var matched *models.Sell
	err := r.repo.WithTx(ctx, func(tx store.TxOps) error {
		bip, err := tx.LockBip(ctx, bipID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrBipNotFound
		}
		if err != nil {
			return err
		}
		if bip.Status != models.BipStatusPending {
			return nil
		}

		keys := []string{bip.EAN}
		if bip.ProductID != nil && *bip.ProductID != bip.EAN {
			keys = append(keys, *bip.ProductID)
		}

		sell, err := tx.FindMatchingUnlinkedSell(ctx, store.MatchCriteria{
			ProductKeys: keys,
			PriceCents:  bip.BipPriceCents,
			From:        bip.EventDate,
			To:          bip.EventDate.Add(r.window),
		})
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find matching sell: %w", err)
		}

		if err := tx.LinkSellToBip(ctx, sell.ID, bip.ID); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return nil
			}
			return err
		}
		sell.BipID = &bip.ID
		sell.Status = models.SellStatusVerified
		matched = sell
		return nil
	})
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	if matched != nil {
		r.verified(ctx, matched.ID, bipID)
	}
	return matched, nil
}

func (r *Reconciler) verified(ctx context.Context, sellID, bipID int64) {
	util.BipsVerifiedTotal.Inc()
	util.LoggerFromContext(ctx).Info("Bip verified",
		zap.Int64("bip_id", bipID),
		zap.Int64("sell_id", sellID))

	event := &models.BipVerifiedEvent{
		BaseEvent: newBaseEvent(models.EventTypeBipVerified),
		BipID:     bipID,
		SellID:    sellID,
	}
	if err := r.publisher.PublishBipVerified(ctx, event); err != nil {
		r.logger.Error("Failed to publish BipVerified event", zap.Error(err))
	}
}

// CancelSale voids a sale line. A bip verified by that sale returns to
// pending. Unknown coupon lines are ignored.
func (r *Reconciler) CancelSale(ctx context.Context, event *models.SaleCancelledEvent) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.CancelSale",
		attribute.String("sell.coupon", event.NumCupomFiscal))
	defer span.End()

	var released *int64
	err := r.repo.WithTx(ctx, func(tx store.TxOps) error {
		sell, err := tx.LockSellByCoupon(ctx, event.NumCupomFiscal, event.ProductID, event.SellDate)
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("Cancelled sale not found",
				zap.String("num_cupom_fiscal", event.NumCupomFiscal),
				zap.String("product_id", event.ProductID))
			return nil
		}
		if err != nil {
			return err
		}
		if sell.Status == models.SellStatusCancelled {
			return nil
		}

		if err := tx.CancelSell(ctx, sell.ID); err != nil {
			return fmt.Errorf("failed to cancel sell %d: %w", sell.ID, err)
		}

		if sell.BipID == nil {
			return nil
		}
		bip, err := tx.LockBip(ctx, *sell.BipID)
		if err != nil {
			return err
		}
		if bip.Status != models.BipStatusVerified {
			return nil
		}
		bip.Status = models.BipStatusPending
		if err := tx.UpdateBipState(ctx, bip); err != nil {
			return err
		}
		released = &bip.ID
		return nil
	})
	if err != nil {
		return util.SpanError(span, err)
	}

	if released != nil {
		util.LoggerFromContext(ctx).Info("Sale cancelled, bip back to pending",
			zap.String("num_cupom_fiscal", event.NumCupomFiscal),
			zap.Int64("bip_id", *released))
	}
	return nil
}

// HandleBipCreated reconciles a freshly ingested bip against sales that
// arrived before it.
func (r *Reconciler) HandleBipCreated(ctx context.Context, event *models.BipCreatedEvent) error {
	return handleOnce(ctx, r.repo, event.BaseEvent, func() error {
		_, err := r.ReconcileBip(ctx, event.BipID)
		if errors.Is(err, ErrBipNotFound) {
			r.logger.Warn("Bip from event not found", zap.Int64("bip_id", event.BipID))
			return nil
		}
		return err
	})
}

// HandleSaleCancelled applies a SALE_CANCELLED event once.
func (r *Reconciler) HandleSaleCancelled(ctx context.Context, event *models.SaleCancelledEvent) error {
	return handleOnce(ctx, r.repo, event.BaseEvent, func() error {
		return r.CancelSale(ctx, event)
	})
}
