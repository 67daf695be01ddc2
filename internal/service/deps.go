package service

import (
	"context"
	"io"
	"time"

	"bip-service/internal/models"
	"bip-service/internal/store"
)

// Transactor runs fn inside one database transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(store.TxOps) error) error
}

// BipRepository is the bip persistence used by BipService.
type BipRepository interface {
	Transactor
	CreateBip(ctx context.Context, bip *models.Bip) error
	GetBipByID(ctx context.Context, id int64) (*models.Bip, error)
	GetBipListItem(ctx context.Context, id int64) (*models.BipListItem, error)
	ListBips(ctx context.Context, filter store.BipFilter) ([]models.BipListItem, int64, error)
	ExportBips(ctx context.Context, filter store.BipFilter, max int) ([]models.BipListItem, error)
	SetBipMedia(ctx context.Context, id int64, kind string, url *string) error
}

// EventLog records consumed event ids so redeliveries are skipped.
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// SellRepository is the sale persistence used by SellService and Reconciler.
type SellRepository interface {
	Transactor
	EventLog
	UpsertSell(ctx context.Context, sell *models.Sell) (bool, error)
	ListSells(ctx context.Context, filter store.SellFilter) ([]models.SellListItem, int64, error)
	SellMetrics(ctx context.Context, filter store.SellFilter) (*models.SellMetrics, error)
}

// SweepRepository lists the rows the periodic sweep revisits.
type SweepRepository interface {
	ListUnlinkedSellIDs(ctx context.Context, since time.Time, limit int) ([]int64, error)
	ListUnnotifiedPendingBips(ctx context.Context, since, before time.Time, limit int) ([]models.Bip, error)
	MarkBipNotified(ctx context.Context, id int64, at time.Time) (bool, error)
}

// SuspectRepository is the persistence used by SuspectService.
type SuspectRepository interface {
	Transactor
	NextSuspectNumber(ctx context.Context) (int, error)
	ListSuspectIdentifications(ctx context.Context, filter store.SuspectFilter) ([]models.SuspectIdentificationItem, int64, error)
}

// ReportRepository provides the aggregates behind the dashboard reports.
type ReportRepository interface {
	BipStatusTotals(ctx context.Context, from, to time.Time) ([]models.StatusTotal, error)
	SellStatusTotals(ctx context.Context, from, to time.Time) ([]models.StatusTotal, error)
	CancelledReasonTotals(ctx context.Context, from, to time.Time) ([]models.ReasonTotal, error)
	TopProductsByCancelledValue(ctx context.Context, from, to time.Time, limit int) ([]models.RankingEntry, error)
	TopEmployeesByCancellations(ctx context.Context, from, to time.Time, limit int) ([]models.RankingEntry, error)
	TopSectorsByPendingValue(ctx context.Context, from, to time.Time, limit int) ([]models.RankingEntry, error)
}

// EventPublisher publishes bip lifecycle events.
type EventPublisher interface {
	PublishBipCreated(ctx context.Context, event *models.BipCreatedEvent) error
	PublishBipVerified(ctx context.Context, event *models.BipVerifiedEvent) error
	PublishBipCancelled(ctx context.Context, event *models.BipCancelledEvent) error
	PublishBipReactivated(ctx context.Context, event *models.BipReactivatedEvent) error
	PublishBipUnmatched(ctx context.Context, event *models.BipUnmatchedEvent) error
}

// IdempotencyStore claims webhook delivery keys.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, string, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// Locker runs fn while holding a cluster wide lock. It reports false
// without running fn when another holder has the lock.
type Locker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (bool, error)
}

// ObjectStorage stores bip attachments.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	KeyFromURL(url string) string
}
