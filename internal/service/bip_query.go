package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"bip-service/internal/models"
	"bip-service/internal/store"
	"bip-service/internal/util"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// MaxExportRows caps the XLSX export.
const MaxExportRows = 50000

const minSearchLength = 2

// BipListQuery holds the listing filters. It is echoed back as "filters".
type BipListQuery struct {
	Page        int    `form:"page" json:"page"`
	Limit       int    `form:"limit" json:"limit"`
	DateFrom    string `form:"date_from" json:"date_from"`
	DateTo      string `form:"date_to" json:"date_to"`
	Status      string `form:"status" json:"status,omitempty"`
	Notified    bool   `form:"notified" json:"notified,omitempty"`
	Product     string `form:"product" json:"product,omitempty"`
	Search      string `form:"search" json:"search,omitempty"`
	SectorID    *int64 `form:"sector_id" json:"sector_id,omitempty"`
	EmployeeID  *int64 `form:"employee_id" json:"employee_id,omitempty"`
	EquipmentID *int64 `form:"equipment_id" json:"equipment_id,omitempty"`
}

// BipListResult is one listing page.
type BipListResult struct {
	Data       []models.BipListItem `json:"data"`
	Pagination Pagination           `json:"pagination"`
	Filters    BipListQuery         `json:"filters"`
}

func (s *BipService) bipFilter(q *BipListQuery) (store.BipFilter, error) {
	from, to, err := ParseDateRange(q.DateFrom, q.DateTo, s.loc)
	if err != nil {
		return store.BipFilter{}, err
	}

	if q.Status != "" && !models.ValidBipStatus(q.Status) {
		return store.BipFilter{}, validationError("invalid_status",
			"Status inválido. Use: pending, verified ou cancelled")
	}

	search, err := searchTerm(q.Search, q.Product)
	if err != nil {
		return store.BipFilter{}, err
	}

	return store.BipFilter{
		From:         from,
		To:           to,
		Status:       q.Status,
		NotifiedOnly: q.Notified,
		Search:       search,
		SectorID:     q.SectorID,
		EmployeeID:   q.EmployeeID,
		EquipmentID:  q.EquipmentID,
	}, nil
}

// searchTerm picks the first non-empty term and enforces its minimum length.
func searchTerm(terms ...string) (string, error) {
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if len([]rune(t)) < minSearchLength {
			return "", validationError("search_too_short",
				fmt.Sprintf("O termo de busca deve ter pelo menos %d caracteres", minSearchLength))
		}
		return t, nil
	}
	return "", nil
}

// ListBips returns one page of bips matching q.
func (s *BipService) ListBips(ctx context.Context, q *BipListQuery) (*BipListResult, error) {
	ctx, span := util.StartSpan(ctx, "BipService.ListBips")
	defer span.End()

	filter, err := s.bipFilter(q)
	if err != nil {
		return nil, err
	}

	q.Page, q.Limit = normalizePage(q.Page, q.Limit)
	filter.Limit = q.Limit
	filter.Offset = offset(q.Page, q.Limit)

	items, total, err := s.repo.ListBips(ctx, filter)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	return &BipListResult{
		Data:       items,
		Pagination: NewPagination(q.Page, q.Limit, total),
		Filters:    *q,
	}, nil
}

var exportHeader = []interface{}{
	"ID", "EAN", "Data do evento", "Preço (R$)", "Produto", "Descrição", "Peso",
	"Status", "Motivo", "Funcionário", "Equipamento", "Setor", "Cupom fiscal",
	"Data da venda", "Notificado em",
}

// ExportBips writes every bip matching q, up to MaxExportRows, as an XLSX
// workbook to w. It returns the number of rows written.
func (s *BipService) ExportBips(ctx context.Context, q *BipListQuery, w io.Writer) (int, error) {
	ctx, span := util.StartSpan(ctx, "BipService.ExportBips")
	defer span.End()

	filter, err := s.bipFilter(q)
	if err != nil {
		return 0, err
	}

	items, err := s.repo.ExportBips(ctx, filter, MaxExportRows)
	if err != nil {
		return 0, util.SpanError(span, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Bipagens"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return 0, err
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to open sheet writer: %w", err)
	}
	if err := sw.SetRow("A1", exportHeader); err != nil {
		return 0, err
	}

	for i := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		if err := sw.SetRow(cell, s.exportRow(&items[i])); err != nil {
			return 0, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return 0, err
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Bips exported", zap.Int("rows", len(items)))
	return len(items), nil
}

func (s *BipService) exportRow(item *models.BipListItem) []interface{} {
	weight := ""
	if item.BipWeight.Valid {
		weight = item.BipWeight.Decimal.String()
	}
	return []interface{}{
		item.ID,
		item.EAN,
		s.formatTime(&item.EventDate),
		float64(item.BipPriceCents) / 100,
		deref(item.ProductID),
		deref(item.ProductDescription),
		weight,
		item.Status,
		deref(item.MotivoCancelamento),
		deref(item.EmployeeName),
		deref(item.EquipmentDescription),
		deref(item.EquipmentSectorName),
		deref(item.NumCupomFiscal),
		s.formatTime(item.SellDate),
		s.formatTime(item.NotifiedAt),
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (s *BipService) formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(s.loc).Format("2006-01-02 15:04:05")
}
