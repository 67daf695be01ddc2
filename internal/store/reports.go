package store

import (
	"context"
	"fmt"
	"time"

	"bip-service/internal/models"
)

// BipStatusTotals groups bips scanned in [from, to) by status.
func (s *Store) BipStatusTotals(ctx context.Context, from, to time.Time) ([]models.StatusTotal, error) {
	totals := []models.StatusTotal{}
	err := s.db.SelectContext(ctx, &totals, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(bip_price_cents), 0) AS value_cents
		FROM bips
		WHERE event_date >= $1 AND event_date < $2
		GROUP BY status
		ORDER BY status`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to total bips: %w", err)
	}
	return totals, nil
}

// SellStatusTotals groups sells made in [from, to) by status.
func (s *Store) SellStatusTotals(ctx context.Context, from, to time.Time) ([]models.StatusTotal, error) {
	totals := []models.StatusTotal{}
	err := s.db.SelectContext(ctx, &totals, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(sell_value_cents), 0) AS value_cents
		FROM sells
		WHERE sell_date >= $1 AND sell_date < $2
		GROUP BY status
		ORDER BY status`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to total sells: %w", err)
	}
	return totals, nil
}

// CancelledReasonTotals groups cancelled bips scanned in [from, to) by reason.
func (s *Store) CancelledReasonTotals(ctx context.Context, from, to time.Time) ([]models.ReasonTotal, error) {
	totals := []models.ReasonTotal{}
	err := s.db.SelectContext(ctx, &totals, `
		SELECT motivo_cancelamento AS reason, COUNT(*) AS count,
			COALESCE(SUM(bip_price_cents), 0) AS value_cents
		FROM bips
		WHERE status = 'cancelled' AND motivo_cancelamento IS NOT NULL
			AND event_date >= $1 AND event_date < $2
		GROUP BY motivo_cancelamento
		ORDER BY value_cents DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to total cancellation reasons: %w", err)
	}
	return totals, nil
}

// TopProductsByCancelledValue ranks EANs by the value of their cancelled bips.
func (s *Store) TopProductsByCancelledValue(ctx context.Context, from, to time.Time, limit int) ([]models.RankingEntry, error) {
	rows := []models.RankingEntry{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT b.ean AS key,
			COALESCE(MAX(b.product_description), b.ean) AS label,
			COUNT(*) AS count,
			COALESCE(SUM(b.bip_price_cents), 0) AS value_cents
		FROM bips b
		WHERE b.status = 'cancelled' AND b.event_date >= $1 AND b.event_date < $2
		GROUP BY b.ean
		ORDER BY value_cents DESC, count DESC
		LIMIT $3`, from, to, limit)
	return rows, err
}

// TopEmployeesByCancellations ranks employees held responsible for cancellations.
func (s *Store) TopEmployeesByCancellations(ctx context.Context, from, to time.Time, limit int) ([]models.RankingEntry, error) {
	rows := []models.RankingEntry{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT emp.id::text AS key,
			emp.name AS label,
			COUNT(*) AS count,
			COALESCE(SUM(b.bip_price_cents), 0) AS value_cents
		FROM bips b
		JOIN employees emp ON emp.id = b.employee_responsavel_id
		WHERE b.status = 'cancelled' AND b.event_date >= $1 AND b.event_date < $2
		GROUP BY emp.id, emp.name
		ORDER BY count DESC, value_cents DESC
		LIMIT $3`, from, to, limit)
	return rows, err
}

// TopSectorsByPendingValue ranks sectors by the value of bips still without a sale.
func (s *Store) TopSectorsByPendingValue(ctx context.Context, from, to time.Time, limit int) ([]models.RankingEntry, error) {
	rows := []models.RankingEntry{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT sec.id::text AS key,
			sec.name AS label,
			COUNT(*) AS count,
			COALESCE(SUM(b.bip_price_cents), 0) AS value_cents
		FROM bips b
		JOIN equipments e ON e.id = b.equipment_id
		JOIN sectors sec ON sec.id = e.sector_id
		WHERE b.status = 'pending' AND b.event_date >= $1 AND b.event_date < $2
		GROUP BY sec.id, sec.name
		ORDER BY value_cents DESC
		LIMIT $3`, from, to, limit)
	return rows, err
}
