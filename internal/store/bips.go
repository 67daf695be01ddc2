package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bip-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const bipListSelect = `
	SELECT b.*,
		e.description AS equipment_description,
		e.sector_id AS equipment_sector_id,
		es.name AS equipment_sector_name,
		emp.name AS employee_name,
		emps.name AS employee_sector_name
	FROM bips b
	LEFT JOIN equipments e ON e.id = b.equipment_id
	LEFT JOIN sectors es ON es.id = e.sector_id
	LEFT JOIN employees emp ON emp.id = b.employee_responsavel_id
	LEFT JOIN sectors emps ON emps.id = emp.sector_id`

const bipListFrom = `
	FROM bips b
	LEFT JOIN equipments e ON e.id = b.equipment_id
	LEFT JOIN employees emp ON emp.id = b.employee_responsavel_id`

// CreateBip creates a new bip
func (s *Store) CreateBip(ctx context.Context, bip *models.Bip) error {
	query := `
		INSERT INTO bips (ean, event_date, bip_price_cents, product_id, product_description,
			bip_weight, equipment_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		bip.EAN, bip.EventDate, bip.BipPriceCents, bip.ProductID, bip.ProductDescription,
		bip.BipWeight, bip.EquipmentID, bip.Status,
	).Scan(&bip.ID, &bip.CreatedAt, &bip.UpdatedAt)
}

// GetBipByID retrieves a bip by ID
func (s *Store) GetBipByID(ctx context.Context, id int64) (*models.Bip, error) {
	var bip models.Bip
	err := s.db.GetContext(ctx, &bip, "SELECT * FROM bips WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bip, nil
}

// ListBips returns one page of bips matching filter and the total match count.
func (s *Store) ListBips(ctx context.Context, filter BipFilter) ([]models.BipListItem, int64, error) {
	w := filter.where()

	var total int64
	countQuery := s.db.Rebind("SELECT COUNT(*)" + bipListFrom + w.String())
	if err := s.db.GetContext(ctx, &total, countQuery, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count bips: %w", err)
	}

	items := []models.BipListItem{}
	if total == 0 {
		return items, 0, nil
	}

	query := s.db.Rebind(bipListSelect + w.String() +
		" ORDER BY b.event_date DESC, b.id DESC LIMIT ? OFFSET ?")
	args := append(w.args, filter.Limit, filter.Offset)
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list bips: %w", err)
	}

	if err := s.attachSells(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ExportBips returns up to max bips matching filter, oldest first.
func (s *Store) ExportBips(ctx context.Context, filter BipFilter, max int) ([]models.BipListItem, error) {
	w := filter.where()
	query := s.db.Rebind(bipListSelect + w.String() + " ORDER BY b.event_date ASC, b.id ASC LIMIT ?")
	args := append(w.args, max)

	items := []models.BipListItem{}
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to export bips: %w", err)
	}
	if err := s.attachSells(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetBipListItem retrieves one denormalised bip with its linked sale.
func (s *Store) GetBipListItem(ctx context.Context, id int64) (*models.BipListItem, error) {
	var item models.BipListItem
	err := s.db.GetContext(ctx, &item, bipListSelect+" WHERE b.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items := []models.BipListItem{item}
	if err := s.attachSells(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// attachSells fills the sale columns of items with one batched query.
func (s *Store) attachSells(ctx context.Context, items []models.BipListItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}

	sells, err := s.GetSellsByBipIDs(ctx, ids)
	if err != nil {
		return err
	}

	byBip := make(map[int64]*models.Sell, len(sells))
	for i := range sells {
		if sells[i].BipID != nil {
			byBip[*sells[i].BipID] = &sells[i]
		}
	}

	for i := range items {
		if sell, ok := byBip[items[i].ID]; ok {
			id := sell.ID
			date := sell.SellDate
			cupom := sell.NumCupomFiscal
			items[i].SellID = &id
			items[i].SellDate = &date
			items[i].NumCupomFiscal = &cupom
		}
	}
	return nil
}

// SetBipMedia sets (or clears, with a nil url) the video or image url of a bip.
func (s *Store) SetBipMedia(ctx context.Context, id int64, kind string, url *string) error {
	var column string
	switch kind {
	case "video":
		column = "video_url"
	case "image":
		column = "image_url"
	default:
		return fmt.Errorf("unknown media kind: %s", kind)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE bips SET "+column+" = $1, updated_at = NOW() WHERE id = $2", url, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnnotifiedPendingBips returns pending bips scanned in [since, before)
// that were never flagged.
func (s *Store) ListUnnotifiedPendingBips(ctx context.Context, since, before time.Time, limit int) ([]models.Bip, error) {
	var bips []models.Bip
	err := s.db.SelectContext(ctx, &bips, `
		SELECT * FROM bips
		WHERE status = 'pending' AND notified_at IS NULL
			AND event_date >= $1 AND event_date < $2
		ORDER BY event_date ASC
		LIMIT $3`, since, before, limit)
	return bips, err
}

// MarkBipNotified stamps notified_at on a still pending, unflagged bip.
// It reports whether the row changed.
func (s *Store) MarkBipNotified(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bips SET notified_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND notified_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LockBip loads a bip and holds its row lock until the transaction ends.
func (t *txOps) LockBip(ctx context.Context, id int64) (*models.Bip, error) {
	var bip models.Bip
	err := t.tx.GetContext(ctx, &bip, "SELECT * FROM bips WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bip, nil
}

// LockBipsByEAN locks every bip with ean and status scanned in [from, to).
func (t *txOps) LockBipsByEAN(ctx context.Context, ean, status string, from, to time.Time) ([]models.Bip, error) {
	var bips []models.Bip
	err := t.tx.SelectContext(ctx, &bips, `
		SELECT * FROM bips
		WHERE ean = $1 AND status = $2 AND event_date >= $3 AND event_date < $4
		ORDER BY event_date ASC, id ASC
		FOR UPDATE`, ean, status, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to lock bips for ean %s: %w", ean, err)
	}
	return bips, nil
}

// UpdateBipState persists status and cancellation columns of bip.
func (t *txOps) UpdateBipState(ctx context.Context, bip *models.Bip) error {
	err := t.tx.QueryRowxContext(ctx, `
		UPDATE bips
		SET status = $1, motivo_cancelamento = $2, employee_responsavel_id = $3,
			cancelled_at = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`,
		bip.Status, bip.MotivoCancelamento, bip.EmployeeResponsavelID, bip.CancelledAt, bip.ID,
	).Scan(&bip.UpdatedAt)
	if isForeignKeyViolation(err) {
		return ErrUnknownReference
	}
	return err
}

// LinkedBipIDs returns which of ids are referenced by a sale.
func (t *txOps) LinkedBipIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	linked := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return linked, nil
	}

	query, args, err := sqlx.In("SELECT bip_id FROM sells WHERE bip_id IN (?)", ids)
	if err != nil {
		return nil, err
	}

	var found []int64
	if err := t.tx.SelectContext(ctx, &found, t.tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, id := range found {
		linked[id] = true
	}
	return linked, nil
}
