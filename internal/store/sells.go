package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bip-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const sellListFrom = `
	FROM sells s
	LEFT JOIN bips b ON b.id = s.bip_id
	LEFT JOIN equipments e ON e.id = b.equipment_id
	LEFT JOIN sectors sec ON sec.id = e.sector_id`

// MatchCriteria describes the counterpart a reconciliation attempt looks for.
type MatchCriteria struct {
	ProductKeys []string
	PriceCents  int64
	From        time.Time
	To          time.Time
}

// UpsertSell inserts a sale line or, when the same coupon line already
// exists, loads it unchanged. It reports whether a row was inserted.
func (s *Store) UpsertSell(ctx context.Context, sell *models.Sell) (bool, error) {
	var row struct {
		models.Sell
		Inserted bool `db:"inserted"`
	}

	query := `
		INSERT INTO sells (product_id, product_description, sell_date, sell_value_cents,
			discount_cents, num_cupom_fiscal, point_of_sale_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (num_cupom_fiscal, product_id, sell_date)
			DO UPDATE SET updated_at = sells.updated_at
		RETURNING *, (xmax = 0) AS inserted`

	err := s.db.GetContext(ctx, &row, query,
		sell.ProductID, sell.ProductDescription, sell.SellDate, sell.SellValueCents,
		sell.DiscountCents, sell.NumCupomFiscal, sell.PointOfSaleCode, sell.Status)
	if err != nil {
		return false, fmt.Errorf("failed to upsert sell: %w", err)
	}

	*sell = row.Sell
	return row.Inserted, nil
}

// GetSellByID retrieves a sell by ID
func (s *Store) GetSellByID(ctx context.Context, id int64) (*models.Sell, error) {
	var sell models.Sell
	err := s.db.GetContext(ctx, &sell, "SELECT * FROM sells WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sell, nil
}

// GetSellsByBipIDs retrieves the sales linked to any of bipIDs.
func (s *Store) GetSellsByBipIDs(ctx context.Context, bipIDs []int64) ([]models.Sell, error) {
	if len(bipIDs) == 0 {
		return []models.Sell{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM sells WHERE bip_id IN (?)", bipIDs)
	if err != nil {
		return nil, err
	}

	var sells []models.Sell
	if err := s.db.SelectContext(ctx, &sells, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load linked sells: %w", err)
	}
	return sells, nil
}

// ListSells returns one page of sells matching filter and the total match count.
func (s *Store) ListSells(ctx context.Context, filter SellFilter) ([]models.SellListItem, int64, error) {
	w := filter.where()

	var total int64
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*)"+sellListFrom+w.String()), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count sells: %w", err)
	}

	items := []models.SellListItem{}
	if total == 0 {
		return items, 0, nil
	}

	query := s.db.Rebind(`
		SELECT s.*, b.ean AS bip_ean, b.event_date AS bip_event_date, sec.name AS sector_name` +
		sellListFrom + w.String() + " ORDER BY s.sell_date DESC, s.id DESC LIMIT ? OFFSET ?")
	args := append(w.args, filter.Limit, filter.Offset)
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list sells: %w", err)
	}
	return items, total, nil
}

// SellMetrics aggregates counts and values over every sell matching filter,
// ignoring its pagination.
func (s *Store) SellMetrics(ctx context.Context, filter SellFilter) (*models.SellMetrics, error) {
	w := filter.where()
	query := s.db.Rebind(`
		SELECT
			COUNT(*) AS total_count,
			COALESCE(SUM(s.sell_value_cents), 0) AS total_value_cents,
			COUNT(*) FILTER (WHERE s.status = 'verified') AS verified_count,
			COALESCE(SUM(s.sell_value_cents) FILTER (WHERE s.status = 'verified'), 0) AS verified_value_cents,
			COUNT(*) FILTER (WHERE s.status = 'not_verified') AS not_verified_count,
			COALESCE(SUM(s.sell_value_cents) FILTER (WHERE s.status = 'not_verified'), 0) AS not_verified_value_cents` +
		sellListFrom + w.String())

	var m models.SellMetrics
	if err := s.db.GetContext(ctx, &m, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to compute sell metrics: %w", err)
	}
	return &m, nil
}

// ListUnlinkedSellIDs returns not yet verified sales made since the given time.
func (s *Store) ListUnlinkedSellIDs(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM sells
		WHERE bip_id IS NULL AND status = 'not_verified' AND sell_date >= $1
		ORDER BY sell_date ASC
		LIMIT $2`, since, limit)
	return ids, err
}

// LockSell loads a sell and holds its row lock until the transaction ends.
func (t *txOps) LockSell(ctx context.Context, id int64) (*models.Sell, error) {
	var sell models.Sell
	err := t.tx.GetContext(ctx, &sell, "SELECT * FROM sells WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sell, nil
}

// LockSellByCoupon locks the sale line identified by its ERP coupon key.
func (t *txOps) LockSellByCoupon(ctx context.Context, numCupomFiscal, productID string, sellDate time.Time) (*models.Sell, error) {
	var sell models.Sell
	err := t.tx.GetContext(ctx, &sell, `
		SELECT * FROM sells
		WHERE num_cupom_fiscal = $1 AND product_id = $2 AND sell_date = $3
		FOR UPDATE`, numCupomFiscal, productID, sellDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sell, nil
}

// FindMatchingPendingBip locks the oldest unlinked pending bip satisfying c.
// Rows locked by concurrent reconciliations are skipped.
func (t *txOps) FindMatchingPendingBip(ctx context.Context, c MatchCriteria) (*models.Bip, error) {
	var bip models.Bip
	err := t.tx.GetContext(ctx, &bip, `
		SELECT * FROM bips
		WHERE status = 'pending'
			AND (product_id = ANY($1) OR ean = ANY($1))
			AND bip_price_cents = $2
			AND event_date >= $3 AND event_date <= $4
			AND NOT EXISTS (SELECT 1 FROM sells s WHERE s.bip_id = bips.id)
		ORDER BY event_date ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, pq.Array(c.ProductKeys), c.PriceCents, c.From, c.To)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bip, nil
}

// FindMatchingUnlinkedSell locks the oldest unverified sale satisfying c.
func (t *txOps) FindMatchingUnlinkedSell(ctx context.Context, c MatchCriteria) (*models.Sell, error) {
	var sell models.Sell
	err := t.tx.GetContext(ctx, &sell, `
		SELECT * FROM sells
		WHERE bip_id IS NULL AND status = 'not_verified'
			AND product_id = ANY($1)
			AND sell_value_cents + discount_cents = $2
			AND sell_date >= $3 AND sell_date <= $4
		ORDER BY sell_date ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, pq.Array(c.ProductKeys), c.PriceCents, c.From, c.To)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sell, nil
}

// LinkSellToBip marks both sides of a match verified. A bip already linked
// to another sell yields ErrConflict and leaves the transaction usable.
func (t *txOps) LinkSellToBip(ctx context.Context, sellID, bipID int64) error {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT link_sell"); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		UPDATE sells SET bip_id = $1, status = 'verified', updated_at = NOW()
		WHERE id = $2`, bipID, sellID); err != nil {
		if isUniqueViolation(err) {
			if _, rerr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT link_sell"); rerr != nil {
				return fmt.Errorf("failed to roll back to savepoint: %w", rerr)
			}
			return ErrConflict
		}
		return fmt.Errorf("failed to link sell %d: %w", sellID, err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		UPDATE bips SET status = 'verified', updated_at = NOW()
		WHERE id = $1`, bipID); err != nil {
		return fmt.Errorf("failed to verify bip %d: %w", bipID, err)
	}
	return nil
}

// CancelSell voids a sale line and drops its bip link.
func (t *txOps) CancelSell(ctx context.Context, sellID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE sells SET status = 'cancelled', bip_id = NULL, updated_at = NOW()
		WHERE id = $1`, sellID)
	return err
}
