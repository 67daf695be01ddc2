package store

import (
	"context"
	"time"

	"bip-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// TxOps is the set of row-locking operations available inside WithTx.
type TxOps interface {
	LockBip(ctx context.Context, id int64) (*models.Bip, error)
	LockBipsByEAN(ctx context.Context, ean, status string, from, to time.Time) ([]models.Bip, error)
	UpdateBipState(ctx context.Context, bip *models.Bip) error
	LinkedBipIDs(ctx context.Context, ids []int64) (map[int64]bool, error)

	LockSell(ctx context.Context, id int64) (*models.Sell, error)
	LockSellByCoupon(ctx context.Context, numCupomFiscal, productID string, sellDate time.Time) (*models.Sell, error)
	FindMatchingPendingBip(ctx context.Context, c MatchCriteria) (*models.Bip, error)
	FindMatchingUnlinkedSell(ctx context.Context, c MatchCriteria) (*models.Sell, error)
	LinkSellToBip(ctx context.Context, sellID, bipID int64) error
	CancelSell(ctx context.Context, sellID int64) error

	LockSuspectNumbers(ctx context.Context) error
	NextSuspectNumber(ctx context.Context) (int, error)
	SuspectIdentifiedBipIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	CreateSuspectIdentification(ctx context.Context, si *models.SuspectIdentification) error
}

type txOps struct {
	tx *sqlx.Tx
}

var _ TxOps = (*txOps)(nil)
