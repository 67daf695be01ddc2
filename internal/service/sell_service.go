package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bip-service/internal/models"
	"bip-service/internal/store"
	"bip-service/internal/util"

	"go.uber.org/zap"
)

// Sale sources
const (
	SaleSourceERP       = "erp"
	SaleSourceSimulated = "simulated"
)

// SellService handles sale ingestion and listing
type SellService struct {
	repo       SellRepository
	reconciler *Reconciler
	loc        *time.Location
	logger     *zap.Logger
}

// NewSellService creates a new sell service
func NewSellService(repo SellRepository, reconciler *Reconciler, loc *time.Location) *SellService {
	return &SellService{
		repo:       repo,
		reconciler: reconciler,
		loc:        loc,
		logger:     util.GetLogger(),
	}
}

// SaleRequest is one ERP sale line.
type SaleRequest struct {
	ProductID          string    `json:"product_id" binding:"required"`
	ProductDescription *string   `json:"product_description"`
	SellDate           time.Time `json:"sell_date" binding:"required"`
	SellValueCents     int64     `json:"sell_value_cents" binding:"min=0"`
	DiscountCents      int64     `json:"discount_cents" binding:"min=0"`
	NumCupomFiscal     string    `json:"num_cupom_fiscal" binding:"required"`
	PointOfSaleCode    *string   `json:"point_of_sale_code"`
}

// IngestSaleResult is the stored sale and the bip it was matched to, if any.
type IngestSaleResult struct {
	Sell     *models.Sell `json:"data"`
	Inserted bool         `json:"inserted"`
	Bip      *models.Bip  `json:"bip,omitempty"`
}

// IngestSale stores a sale line and reconciles it. Redelivered coupon lines
// are returned as stored.
func (s *SellService) IngestSale(ctx context.Context, req *SaleRequest, source string) (*IngestSaleResult, error) {
	ctx, span := util.StartSpan(ctx, "SellService.IngestSale")
	defer span.End()

	productID := strings.TrimSpace(req.ProductID)
	coupon := strings.TrimSpace(req.NumCupomFiscal)
	if productID == "" || coupon == "" {
		return nil, validationError("invalid_sale", "product_id e num_cupom_fiscal são obrigatórios")
	}
	if req.SellDate.IsZero() {
		return nil, validationError("invalid_sale", "sell_date é obrigatório")
	}
	if req.SellValueCents < 0 || req.DiscountCents < 0 {
		return nil, validationError("invalid_sale", "Valores da venda não podem ser negativos")
	}

	sell := &models.Sell{
		ProductID:          productID,
		ProductDescription: req.ProductDescription,
		SellDate:           req.SellDate,
		SellValueCents:     req.SellValueCents,
		DiscountCents:      req.DiscountCents,
		NumCupomFiscal:     coupon,
		PointOfSaleCode:    req.PointOfSaleCode,
		Status:             models.SellStatusNotVerified,
	}

	inserted, err := s.repo.UpsertSell(ctx, sell)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	if inserted {
		util.SellsIngestedTotal.WithLabelValues(source).Inc()
		util.LoggerFromContext(ctx).Info("Sale ingested",
			zap.Int64("sell_id", sell.ID),
			zap.String("num_cupom_fiscal", sell.NumCupomFiscal),
			zap.String("source", source))
	}

	result := &IngestSaleResult{Sell: sell, Inserted: inserted}
	if sell.BipID != nil || sell.Status != models.SellStatusNotVerified {
		return result, nil
	}

	bip, err := s.reconciler.ReconcileSell(ctx, sell.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile sell %d: %w", sell.ID, err)
	}
	if bip != nil {
		sell.BipID = &bip.ID
		sell.Status = models.SellStatusVerified
		result.Bip = bip
	}
	return result, nil
}

// HandleSaleRecorded ingests a SALE_RECORDED event once.
func (s *SellService) HandleSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error {
	return handleOnce(ctx, s.repo, event.BaseEvent, func() error {
		_, err := s.IngestSale(ctx, &SaleRequest{
			ProductID:          event.ProductID,
			ProductDescription: event.ProductDescription,
			SellDate:           event.SellDate,
			SellValueCents:     event.SellValueCents,
			DiscountCents:      event.DiscountCents,
			NumCupomFiscal:     event.NumCupomFiscal,
			PointOfSaleCode:    event.PointOfSaleCode,
		}, SaleSourceERP)
		if IsValidation(err) {
			s.logger.Warn("Dropping invalid sale event", zap.String("event_id", event.EventID), zap.Error(err))
			return nil
		}
		return err
	})
}

// SellListQuery holds the sell listing filters.
type SellListQuery struct {
	Page       int    `form:"page" json:"page"`
	Limit      int    `form:"limit" json:"limit"`
	DateFrom   string `form:"date_from" json:"date_from"`
	DateTo     string `form:"date_to" json:"date_to"`
	Status     string `form:"status" json:"status,omitempty"`
	Product    string `form:"product" json:"product,omitempty"`
	SectorID   *int64 `form:"sector_id" json:"sector_id,omitempty"`
	EmployeeID *int64 `form:"employee_id" json:"employee_id,omitempty"`
}

// SellListResult is one listing page plus metrics over the whole filtered set.
type SellListResult struct {
	Data       []models.SellListItem `json:"data"`
	Pagination Pagination            `json:"pagination"`
	Metrics    *models.SellMetrics   `json:"metrics"`
	Filters    SellListQuery         `json:"filters"`
}

// ListSells returns one page of sells matching q.
func (s *SellService) ListSells(ctx context.Context, q *SellListQuery) (*SellListResult, error) {
	ctx, span := util.StartSpan(ctx, "SellService.ListSells")
	defer span.End()

	from, to, err := ParseDateRange(q.DateFrom, q.DateTo, s.loc)
	if err != nil {
		return nil, err
	}
	if q.Status != "" && !models.ValidSellStatus(q.Status) {
		return nil, validationError("invalid_status",
			"Status inválido. Use: verified, not_verified ou cancelled")
	}
	product, err := searchTerm(q.Product)
	if err != nil {
		return nil, err
	}

	q.Page, q.Limit = normalizePage(q.Page, q.Limit)
	filter := store.SellFilter{
		From:       from,
		To:         to,
		Status:     q.Status,
		Product:    product,
		SectorID:   q.SectorID,
		EmployeeID: q.EmployeeID,
		Limit:      q.Limit,
		Offset:     offset(q.Page, q.Limit),
	}

	items, total, err := s.repo.ListSells(ctx, filter)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	metrics, err := s.repo.SellMetrics(ctx, filter)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	return &SellListResult{
		Data:       items,
		Pagination: NewPagination(q.Page, q.Limit, total),
		Metrics:    metrics,
		Filters:    *q,
	}, nil
}
