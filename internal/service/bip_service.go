package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bip-service/internal/models"
	"bip-service/internal/store"
	"bip-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// BipService handles bip ingestion and the cancel/reactivate state machine
type BipService struct {
	repo      BipRepository
	idem      IdempotencyStore
	publisher EventPublisher
	storage   ObjectStorage
	loc       *time.Location
	idemTTL   IdempotencyTTLs
	now       func() time.Time
	logger    *zap.Logger
}

// IdempotencyTTLs bounds how long webhook keys live. InFlight covers a
// claimed delivery until its bip is stored; Stored keeps the bip id for
// later retries.
type IdempotencyTTLs struct {
	InFlight time.Duration
	Stored   time.Duration
}

// NewBipService creates a new bip service. storage may be nil, in which
// case attachment operations fail.
func NewBipService(
	repo BipRepository,
	idem IdempotencyStore,
	publisher EventPublisher,
	storage ObjectStorage,
	loc *time.Location,
	idemTTL IdempotencyTTLs,
) *BipService {
	return &BipService{
		repo:      repo,
		idem:      idem,
		publisher: publisher,
		storage:   storage,
		loc:       loc,
		idemTTL:   idemTTL,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// WebhookRequest is a scan pushed by the capture agent.
type WebhookRequest struct {
	Raw                string           `json:"raw"`
	EventDate          *string          `json:"event_date,omitempty"`
	PriceCents         *int64           `json:"price_cents,omitempty"`
	Weight             *decimal.Decimal `json:"weight,omitempty"`
	ProductID          *string          `json:"product_id,omitempty"`
	ProductDescription *string          `json:"product_description,omitempty"`
	EquipmentID        *int64           `json:"equipment_id,omitempty"`
	IdempotencyKey     string           `json:"-"`
}

// WebhookResult is the persisted bip and whether it came from an earlier delivery.
type WebhookResult struct {
	Bip       *models.Bip `json:"data"`
	Duplicate bool        `json:"duplicate"`
}

// IngestWebhook persists a scan as a pending bip. Retries carrying the same
// idempotency key return the bip created by the first delivery.
func (s *BipService) IngestWebhook(ctx context.Context, req *WebhookRequest) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "BipService.IngestWebhook")
	defer span.End()

	raw := strings.TrimSpace(req.Raw)
	if raw == "" {
		util.WebhookFailedTotal.WithLabelValues("empty_raw").Inc()
		return nil, ErrEmptyRaw
	}

	eventDate := s.now()
	if req.EventDate != nil && strings.TrimSpace(*req.EventDate) != "" {
		parsed, err := s.parseEventDate(*req.EventDate)
		if err != nil {
			util.WebhookFailedTotal.WithLabelValues("invalid_event_date").Inc()
			return nil, err
		}
		eventDate = parsed
	}

	key := req.IdempotencyKey
	if key == "" && req.EventDate != nil {
		key = deliveryKey(raw, eventDate)
	}

	if s.idem == nil {
		key = ""
	}
	if key != "" {
		claimed, value, err := s.idem.ClaimIdempotencyKey(ctx, key, s.idemTTL.InFlight)
		switch {
		case err != nil:
			s.logger.Warn("Idempotency store unavailable, ingesting without dedupe", zap.Error(err))
			key = ""
		case !claimed:
			return s.duplicate(ctx, key, value)
		}
	}

	if req.PriceCents != nil && *req.PriceCents < 0 {
		s.release(ctx, key)
		return nil, validationError("invalid_price", "O preço não pode ser negativo")
	}

	price := int64(0)
	productID := req.ProductID
	if code, labelPrice, ok := DecodeLabel(raw); ok {
		price = labelPrice
		if productID == nil {
			productID = &code
		}
	}
	if req.PriceCents != nil {
		price = *req.PriceCents
	}

	bip := &models.Bip{
		EAN:                raw,
		EventDate:          eventDate,
		BipPriceCents:      price,
		ProductID:          productID,
		ProductDescription: req.ProductDescription,
		EquipmentID:        req.EquipmentID,
		Status:             models.BipStatusPending,
	}
	if req.Weight != nil {
		bip.BipWeight = decimal.NewNullDecimal(*req.Weight)
	}

	if err := s.repo.CreateBip(ctx, bip); err != nil {
		s.release(ctx, key)
		util.WebhookFailedTotal.WithLabelValues("db_error").Inc()
		return nil, util.SpanError(span, fmt.Errorf("failed to create bip: %w", err))
	}

	if key != "" {
		if err := s.idem.SetIdempotencyKey(ctx, key, bip.ID, s.idemTTL.Stored); err != nil {
			s.logger.Error("Failed to store idempotency key", zap.Int64("bip_id", bip.ID), zap.Error(err))
		}
	}

	util.BipsIngestedTotal.Inc()
	span.SetAttributes(attribute.Int64("bip.id", bip.ID))
	util.LoggerFromContext(ctx).Info("Bip created",
		zap.Int64("bip_id", bip.ID),
		zap.String("ean", bip.EAN),
		zap.Int64("price_cents", bip.BipPriceCents))

	event := &models.BipCreatedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeBipCreated),
		BipID:         bip.ID,
		EAN:           bip.EAN,
		EventDate:     bip.EventDate,
		BipPriceCents: bip.BipPriceCents,
		ProductID:     bip.ProductID,
	}
	if err := s.publisher.PublishBipCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish BipCreated event", zap.Error(err))
	}

	return &WebhookResult{Bip: bip}, nil
}

func (s *BipService) duplicate(ctx context.Context, key, value string) (*WebhookResult, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, ErrDuplicateInFlight
	}

	bip, err := s.repo.GetBipByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrDuplicateInFlight
	}
	if err != nil {
		return nil, err
	}

	util.WebhookDuplicatesTotal.Inc()
	s.logger.Info("Duplicate webhook delivery detected",
		zap.String("idempotency_key", key),
		zap.Int64("bip_id", bip.ID))
	return &WebhookResult{Bip: bip, Duplicate: true}, nil
}

func (s *BipService) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idem.ReleaseIdempotencyKey(ctx, key); err != nil {
		s.logger.Error("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func (s *BipService) parseEventDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, validationError("invalid_event_date", "event_date inválido: use o formato RFC3339")
}

// deliveryKey derives an idempotency key for deliveries that carry their
// own timestamp.
func deliveryKey(raw string, eventDate time.Time) string {
	sum := sha256.Sum256([]byte(raw + "|" + eventDate.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

// DecodeLabel splits a variable-measure EAN-13 label (prefix 2) into the
// product code in digits 2 to 7 and the price in cents in digits 8 to 12.
func DecodeLabel(ean string) (string, int64, bool) {
	if len(ean) != 13 || ean[0] != '2' {
		return "", 0, false
	}
	for _, r := range ean {
		if r < '0' || r > '9' {
			return "", 0, false
		}
	}
	price, err := strconv.ParseInt(ean[7:12], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return ean[1:7], price, true
}

// CancelRequest is the body of a cancel call.
type CancelRequest struct {
	MotivoCancelamento    string `json:"motivo_cancelamento" binding:"required,motivo"`
	EmployeeResponsavelID *int64 `json:"employee_responsavel_id"`
}

// CascadeResult lists the bips changed by a cascade.
type CascadeResult struct {
	Count int          `json:"count"`
	Bips  []models.Bip `json:"data"`
}

// CancelBip cancels a pending bip together with every other pending bip of
// the same EAN scanned on the same business day. All rows change in one
// transaction or none do.
func (s *BipService) CancelBip(ctx context.Context, bipID int64, req *CancelRequest) (*CascadeResult, error) {
	ctx, span := util.StartSpan(ctx, "BipService.CancelBip",
		attribute.Int64("bip.id", bipID),
		attribute.String("bip.reason", req.MotivoCancelamento))
	defer span.End()

	var cancelled []models.Bip
	err := s.repo.WithTx(ctx, func(tx store.TxOps) error {
		target, err := tx.LockBip(ctx, bipID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrBipNotFound
		}
		if err != nil {
			return err
		}

		if !models.ValidCancellationReason(req.MotivoCancelamento) {
			return ErrInvalidReason
		}
		if models.ReasonRequiresEmployee(req.MotivoCancelamento) && req.EmployeeResponsavelID == nil {
			return ErrEmployeeRequired
		}
		if target.Status != models.BipStatusPending {
			return ErrBipNotPending
		}

		from, to := DayWindow(target.EventDate, s.loc)
		cascade, err := tx.LockBipsByEAN(ctx, target.EAN, models.BipStatusPending, from, to)
		if err != nil {
			return err
		}
		cascade = ensureTarget(cascade, target)

		now := s.now()
		reason := req.MotivoCancelamento
		for i := range cascade {
			b := &cascade[i]
			b.Status = models.BipStatusCancelled
			b.MotivoCancelamento = &reason
			b.EmployeeResponsavelID = req.EmployeeResponsavelID
			b.CancelledAt = &now
			err := tx.UpdateBipState(ctx, b)
			if errors.Is(err, store.ErrUnknownReference) {
				return ErrEmployeeNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to cancel bip %d: %w", b.ID, err)
			}
		}
		cancelled = cascade
		return nil
	})
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	util.BipsCancelledTotal.WithLabelValues(req.MotivoCancelamento).Add(float64(len(cancelled)))
	util.LoggerFromContext(ctx).Info("Bips cancelled",
		zap.Int64("trigger_bip_id", bipID),
		zap.String("reason", req.MotivoCancelamento),
		zap.Int("count", len(cancelled)))

	for i := range cancelled {
		b := &cancelled[i]
		event := &models.BipCancelledEvent{
			BaseEvent:             newBaseEvent(models.EventTypeBipCancelled),
			BipID:                 b.ID,
			EAN:                   b.EAN,
			TriggerBipID:          bipID,
			MotivoCancelamento:    req.MotivoCancelamento,
			EmployeeResponsavelID: b.EmployeeResponsavelID,
		}
		if err := s.publisher.PublishBipCancelled(ctx, event); err != nil {
			s.logger.Error("Failed to publish BipCancelled event", zap.Int64("bip_id", b.ID), zap.Error(err))
		}
	}

	return &CascadeResult{Count: len(cancelled), Bips: cancelled}, nil
}

// ReactivateBip reverses a cancellation for the bip and every cancelled bip
// of the same EAN and business day. Each bip returns to verified when a
// sale references it and to pending otherwise. Bips with a suspect
// identification stay cancelled.
func (s *BipService) ReactivateBip(ctx context.Context, bipID int64) (*CascadeResult, error) {
	ctx, span := util.StartSpan(ctx, "BipService.ReactivateBip", attribute.Int64("bip.id", bipID))
	defer span.End()

	var reactivated []models.Bip
	err := s.repo.WithTx(ctx, func(tx store.TxOps) error {
		target, err := tx.LockBip(ctx, bipID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrBipNotFound
		}
		if err != nil {
			return err
		}
		if target.Status != models.BipStatusCancelled {
			return ErrBipNotCancelled
		}

		from, to := DayWindow(target.EventDate, s.loc)
		cascade, err := tx.LockBipsByEAN(ctx, target.EAN, models.BipStatusCancelled, from, to)
		if err != nil {
			return err
		}
		cascade = ensureTarget(cascade, target)

		cascade, err = withoutIdentified(ctx, tx, cascade, target.ID)
		if err != nil {
			return err
		}

		ids := make([]int64, len(cascade))
		for i := range cascade {
			ids[i] = cascade[i].ID
		}
		linked, err := tx.LinkedBipIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load linked sells: %w", err)
		}

		for i := range cascade {
			b := &cascade[i]
			b.Status = models.BipStatusPending
			if linked[b.ID] {
				b.Status = models.BipStatusVerified
			}
			b.MotivoCancelamento = nil
			b.EmployeeResponsavelID = nil
			b.CancelledAt = nil
			if err := tx.UpdateBipState(ctx, b); err != nil {
				return fmt.Errorf("failed to reactivate bip %d: %w", b.ID, err)
			}
		}
		reactivated = cascade
		return nil
	})
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	util.LoggerFromContext(ctx).Info("Bips reactivated",
		zap.Int64("trigger_bip_id", bipID),
		zap.Int("count", len(reactivated)))

	for i := range reactivated {
		b := &reactivated[i]
		util.BipsReactivatedTotal.WithLabelValues(b.Status).Inc()
		event := &models.BipReactivatedEvent{
			BaseEvent:    newBaseEvent(models.EventTypeBipReactivated),
			BipID:        b.ID,
			TriggerBipID: bipID,
			Status:       b.Status,
		}
		if err := s.publisher.PublishBipReactivated(ctx, event); err != nil {
			s.logger.Error("Failed to publish BipReactivated event", zap.Int64("bip_id", b.ID), zap.Error(err))
		}
	}

	return &CascadeResult{Count: len(reactivated), Bips: reactivated}, nil
}

// withoutIdentified drops bips that carry a suspect identification from a
// reactivation cascade. An identified target fails the whole call.
func withoutIdentified(ctx context.Context, tx store.TxOps, cascade []models.Bip, targetID int64) ([]models.Bip, error) {
	ids := make([]int64, len(cascade))
	for i := range cascade {
		ids[i] = cascade[i].ID
	}
	identified, err := tx.SuspectIdentifiedBipIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load suspect identifications: %w", err)
	}
	if identified[targetID] {
		return nil, ErrBipIdentified
	}

	kept := cascade[:0]
	for _, b := range cascade {
		if !identified[b.ID] {
			kept = append(kept, b)
		}
	}
	return kept, nil
}

// ensureTarget makes sure the locked target row is part of the cascade.
func ensureTarget(cascade []models.Bip, target *models.Bip) []models.Bip {
	for _, b := range cascade {
		if b.ID == target.ID {
			return cascade
		}
	}
	return append([]models.Bip{*target}, cascade...)
}

// GetBip returns one bip with its linked sale, if any.
func (s *BipService) GetBip(ctx context.Context, bipID int64) (*models.BipListItem, error) {
	item, err := s.repo.GetBipListItem(ctx, bipID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBipNotFound
	}
	return item, err
}
