package store

import (
	"context"
	"fmt"

	"bip-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// suspectNumberLockKey serialises identification number allocation.
const suspectNumberLockKey = 7_311_001

const suspectListFrom = `
	FROM suspect_identifications si
	JOIN bips b ON b.id = si.bip_id`

// NextSuspectNumber returns the number the next new identification would get.
func (s *Store) NextSuspectNumber(ctx context.Context) (int, error) {
	var next int
	err := s.db.GetContext(ctx, &next,
		"SELECT COALESCE(MAX(identification_number), 0) + 1 FROM suspect_identifications")
	return next, err
}

// ListSuspectIdentifications returns one page of identifications, newest first.
func (s *Store) ListSuspectIdentifications(ctx context.Context, filter SuspectFilter) ([]models.SuspectIdentificationItem, int64, error) {
	w := &whereClause{}
	if filter.IdentificationNumber != nil {
		w.add("si.identification_number = ?", *filter.IdentificationNumber)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*)"+suspectListFrom+w.String()), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count suspect identifications: %w", err)
	}

	items := []models.SuspectIdentificationItem{}
	if total == 0 {
		return items, 0, nil
	}

	query := s.db.Rebind(`
		SELECT si.*,
			b.ean AS bip_ean,
			b.event_date AS bip_event_date,
			b.bip_price_cents AS bip_price_cents,
			b.product_description AS bip_product_description,
			b.motivo_cancelamento AS motivo_cancelamento,
			b.video_url AS bip_video_url,
			b.image_url AS bip_image_url,
			b.cancelled_at AS bip_cancelled_at` +
		suspectListFrom + w.String() +
		" ORDER BY si.identification_number DESC, si.id ASC LIMIT ? OFFSET ?")
	args := append(w.args, filter.Limit, filter.Offset)
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list suspect identifications: %w", err)
	}
	return items, total, nil
}

// LockSuspectNumbers takes a transaction-scoped advisory lock so number
// allocation and insert happen without interleaving.
func (t *txOps) LockSuspectNumbers(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", suspectNumberLockKey)
	return err
}

// NextSuspectNumber is NextSuspectNumber read inside the transaction.
func (t *txOps) NextSuspectNumber(ctx context.Context) (int, error) {
	var next int
	err := t.tx.GetContext(ctx, &next,
		"SELECT COALESCE(MAX(identification_number), 0) + 1 FROM suspect_identifications")
	return next, err
}

// SuspectIdentifiedBipIDs returns which of ids already carry an identification.
func (t *txOps) SuspectIdentifiedBipIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var rows []int64
	query, args, err := sqlx.In("SELECT bip_id FROM suspect_identifications WHERE bip_id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	if err := t.tx.SelectContext(ctx, &rows, t.tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, id := range rows {
		found[id] = true
	}
	return found, nil
}

// CreateSuspectIdentification inserts si and fills its generated columns.
func (t *txOps) CreateSuspectIdentification(ctx context.Context, si *models.SuspectIdentification) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO suspect_identifications (identification_number, bip_id, notes, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		si.IdentificationNumber, si.BipID, si.Notes, si.CreatedBy,
	).Scan(&si.ID, &si.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}
