package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"bip-service/internal/models"
	"bip-service/internal/store"
)

// fakeStore is an in-memory repository. WithTx snapshots the maps and
// restores them when fn fails.
type fakeStore struct {
	mu sync.Mutex

	nextID    int64
	bips      map[int64]*models.Bip
	sells     map[int64]*models.Sell
	suspects  []models.SuspectIdentification
	processed map[string]bool

	failCreate      error
	failUpdateOn    int64
	missingEmployee int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bips:      map[int64]*models.Bip{},
		sells:     map[int64]*models.Sell{},
		processed: map[string]bool{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addBip(ean string, at time.Time, price int64, status string) *models.Bip {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &models.Bip{ID: f.id(), EAN: ean, EventDate: at, BipPriceCents: price, Status: status}
	if status == models.BipStatusCancelled {
		reason := models.MotivoFurto
		b.MotivoCancelamento = &reason
		b.CancelledAt = &at
	}
	f.bips[b.ID] = b
	return b
}

func (f *fakeStore) addSell(productID string, at time.Time, value, discount int64, bipID *int64) *models.Sell {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &models.Sell{
		ID: f.id(), ProductID: productID, SellDate: at, SellValueCents: value,
		DiscountCents: discount, BipID: bipID, NumCupomFiscal: fmt.Sprintf("CF-%d", f.nextID),
		Status: models.SellStatusNotVerified,
	}
	if bipID != nil {
		s.Status = models.SellStatusVerified
	}
	f.sells[s.ID] = s
	return s
}

func (f *fakeStore) bip(id int64) models.Bip {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.bips[id]
}

func (f *fakeStore) sell(id int64) models.Sell {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.sells[id]
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(store.TxOps) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	bips := make(map[int64]*models.Bip, len(f.bips))
	for k, v := range f.bips {
		c := *v
		bips[k] = &c
	}
	sells := make(map[int64]*models.Sell, len(f.sells))
	for k, v := range f.sells {
		c := *v
		sells[k] = &c
	}
	suspects := append([]models.SuspectIdentification(nil), f.suspects...)
	nextID := f.nextID

	if err := fn(&fakeTx{f: f}); err != nil {
		f.bips, f.sells, f.suspects, f.nextID = bips, sells, suspects, nextID
		return err
	}
	return nil
}

func (f *fakeStore) CreateBip(ctx context.Context, bip *models.Bip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	bip.ID = f.id()
	bip.CreatedAt = time.Now()
	bip.UpdatedAt = bip.CreatedAt
	c := *bip
	f.bips[bip.ID] = &c
	return nil
}

func (f *fakeStore) GetBipByID(ctx context.Context, id int64) (*models.Bip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bips[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (f *fakeStore) GetBipListItem(ctx context.Context, id int64) (*models.BipListItem, error) {
	b, err := f.GetBipByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.BipListItem{Bip: *b}, nil
}

func (f *fakeStore) filterBips(filter store.BipFilter) []models.BipListItem {
	items := []models.BipListItem{}
	for _, b := range f.bips {
		if b.EventDate.Before(filter.From) || !b.EventDate.Before(filter.To) {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.NotifiedOnly && b.NotifiedAt == nil {
			continue
		}
		if filter.Search != "" && !strings.Contains(b.EAN, filter.Search) {
			continue
		}
		items = append(items, models.BipListItem{Bip: *b})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (f *fakeStore) ListBips(ctx context.Context, filter store.BipFilter) ([]models.BipListItem, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.filterBips(filter)
	return page(all, filter.Offset, filter.Limit), int64(len(all)), nil
}

func (f *fakeStore) ExportBips(ctx context.Context, filter store.BipFilter, max int) ([]models.BipListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return page(f.filterBips(filter), 0, max), nil
}

func page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func (f *fakeStore) SetBipMedia(ctx context.Context, id int64, kind string, url *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bips[id]
	if !ok {
		return store.ErrNotFound
	}
	if kind == MediaVideo {
		b.VideoURL = url
	} else {
		b.ImageURL = url
	}
	return nil
}

func (f *fakeStore) ListUnnotifiedPendingBips(ctx context.Context, since, before time.Time, limit int) ([]models.Bip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Bip
	for _, b := range f.bips {
		if b.Status == models.BipStatusPending && b.NotifiedAt == nil &&
			!b.EventDate.Before(since) && b.EventDate.Before(before) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.Before(out[j].EventDate) })
	return page(out, 0, limit), nil
}

func (f *fakeStore) MarkBipNotified(ctx context.Context, id int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bips[id]
	if !ok || b.Status != models.BipStatusPending || b.NotifiedAt != nil {
		return false, nil
	}
	b.NotifiedAt = &at
	return true, nil
}

func (f *fakeStore) UpsertSell(ctx context.Context, sell *models.Sell) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sells {
		if s.NumCupomFiscal == sell.NumCupomFiscal && s.ProductID == sell.ProductID && s.SellDate.Equal(sell.SellDate) {
			*sell = *s
			return false, nil
		}
	}
	sell.ID = f.id()
	c := *sell
	f.sells[sell.ID] = &c
	return true, nil
}

func (f *fakeStore) filterSells(filter store.SellFilter) []models.SellListItem {
	items := []models.SellListItem{}
	for _, s := range f.sells {
		if s.SellDate.Before(filter.From) || !s.SellDate.Before(filter.To) {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Product != "" && !strings.Contains(s.ProductID, filter.Product) {
			continue
		}
		items = append(items, models.SellListItem{Sell: *s})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (f *fakeStore) ListSells(ctx context.Context, filter store.SellFilter) ([]models.SellListItem, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.filterSells(filter)
	return page(all, filter.Offset, filter.Limit), int64(len(all)), nil
}

func (f *fakeStore) SellMetrics(ctx context.Context, filter store.SellFilter) (*models.SellMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &models.SellMetrics{}
	for _, s := range f.filterSells(filter) {
		m.TotalCount++
		m.TotalValueCents += s.SellValueCents
		switch s.Status {
		case models.SellStatusVerified:
			m.VerifiedCount++
			m.VerifiedValueCents += s.SellValueCents
		case models.SellStatusNotVerified:
			m.NotVerifiedCount++
			m.NotVerifiedValueCents += s.SellValueCents
		}
	}
	return m, nil
}

func (f *fakeStore) ListUnlinkedSellIDs(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, s := range f.sells {
		if s.BipID == nil && s.Status == models.SellStatusNotVerified && !s.SellDate.Before(since) {
			ids = append(ids, s.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return page(ids, 0, limit), nil
}

func (f *fakeStore) NextSuspectNumber(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextSuspectNumber(), nil
}

func (f *fakeStore) nextSuspectNumber() int {
	max := 0
	for _, si := range f.suspects {
		if si.IdentificationNumber > max {
			max = si.IdentificationNumber
		}
	}
	return max + 1
}

func (f *fakeStore) ListSuspectIdentifications(ctx context.Context, filter store.SuspectFilter) ([]models.SuspectIdentificationItem, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []models.SuspectIdentificationItem{}
	for _, si := range f.suspects {
		if filter.IdentificationNumber != nil && si.IdentificationNumber != *filter.IdentificationNumber {
			continue
		}
		items = append(items, models.SuspectIdentificationItem{SuspectIdentification: si})
	}
	return page(items, filter.Offset, filter.Limit), int64(len(items)), nil
}

func (f *fakeStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[eventID], nil
}

func (f *fakeStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[eventID] = true
	return nil
}

func (f *fakeStore) BipStatusTotals(ctx context.Context, from, to time.Time) ([]models.StatusTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byStatus := map[string]*models.StatusTotal{}
	for _, b := range f.bips {
		if b.EventDate.Before(from) || !b.EventDate.Before(to) {
			continue
		}
		t, ok := byStatus[b.Status]
		if !ok {
			t = &models.StatusTotal{Status: b.Status}
			byStatus[b.Status] = t
		}
		t.Count++
		t.ValueCents += b.BipPriceCents
	}
	out := []models.StatusTotal{}
	for _, t := range byStatus {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeStore) SellStatusTotals(ctx context.Context, from, to time.Time) ([]models.StatusTotal, error) {
	return []models.StatusTotal{}, nil
}

func (f *fakeStore) CancelledReasonTotals(ctx context.Context, from, to time.Time) ([]models.ReasonTotal, error) {
	return []models.ReasonTotal{}, nil
}

func (f *fakeStore) TopProductsByCancelledValue(ctx context.Context, from, to time.Time, limit int) ([]models.RankingEntry, error) {
	return []models.RankingEntry{{Key: "789", Label: "Picanha", Count: 2, ValueCents: 9000}}, nil
}

func (f *fakeStore) TopEmployeesByCancellations(ctx context.Context, from, to time.Time, limit int) ([]models.RankingEntry, error) {
	return []models.RankingEntry{}, nil
}

func (f *fakeStore) TopSectorsByPendingValue(ctx context.Context, from, to time.Time, limit int) ([]models.RankingEntry, error) {
	return nil, errors.New("sectors unavailable")
}

// fakeTx operates on the store while WithTx holds its mutex.
type fakeTx struct {
	f *fakeStore
}

var _ store.TxOps = (*fakeTx)(nil)

func (t *fakeTx) LockBip(ctx context.Context, id int64) (*models.Bip, error) {
	b, ok := t.f.bips[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (t *fakeTx) LockBipsByEAN(ctx context.Context, ean, status string, from, to time.Time) ([]models.Bip, error) {
	var out []models.Bip
	for _, b := range t.f.bips {
		if b.EAN == ean && b.Status == status && !b.EventDate.Before(from) && b.EventDate.Before(to) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventDate.Equal(out[j].EventDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].EventDate.Before(out[j].EventDate)
	})
	return out, nil
}

func (t *fakeTx) UpdateBipState(ctx context.Context, bip *models.Bip) error {
	if t.f.failUpdateOn == bip.ID {
		return errors.New("update failed")
	}
	if bip.EmployeeResponsavelID != nil && *bip.EmployeeResponsavelID == t.f.missingEmployee {
		return store.ErrUnknownReference
	}
	b, ok := t.f.bips[bip.ID]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = bip.Status
	b.MotivoCancelamento = bip.MotivoCancelamento
	b.EmployeeResponsavelID = bip.EmployeeResponsavelID
	b.CancelledAt = bip.CancelledAt
	b.UpdatedAt = time.Now()
	bip.UpdatedAt = b.UpdatedAt
	return nil
}

func (t *fakeTx) LinkedBipIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	linked := map[int64]bool{}
	for _, s := range t.f.sells {
		if s.BipID == nil {
			continue
		}
		for _, id := range ids {
			if *s.BipID == id {
				linked[id] = true
			}
		}
	}
	return linked, nil
}

func (t *fakeTx) LockSell(ctx context.Context, id int64) (*models.Sell, error) {
	s, ok := t.f.sells[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (t *fakeTx) LockSellByCoupon(ctx context.Context, numCupomFiscal, productID string, sellDate time.Time) (*models.Sell, error) {
	for _, s := range t.f.sells {
		if s.NumCupomFiscal == numCupomFiscal && s.ProductID == productID && s.SellDate.Equal(sellDate) {
			c := *s
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *fakeTx) linked(bipID int64) bool {
	for _, s := range t.f.sells {
		if s.BipID != nil && *s.BipID == bipID {
			return true
		}
	}
	return false
}

func contains(keys []string, v string) bool {
	for _, k := range keys {
		if k == v {
			return true
		}
	}
	return false
}

func (t *fakeTx) FindMatchingPendingBip(ctx context.Context, c store.MatchCriteria) (*models.Bip, error) {
	var best *models.Bip
	for _, b := range t.f.bips {
		if b.Status != models.BipStatusPending || b.BipPriceCents != c.PriceCents {
			continue
		}
		if !contains(c.ProductKeys, b.EAN) && (b.ProductID == nil || !contains(c.ProductKeys, *b.ProductID)) {
			continue
		}
		if b.EventDate.Before(c.From) || b.EventDate.After(c.To) || t.linked(b.ID) {
			continue
		}
		if best == nil || b.EventDate.Before(best.EventDate) ||
			(b.EventDate.Equal(best.EventDate) && b.ID < best.ID) {
			best = b
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (t *fakeTx) FindMatchingUnlinkedSell(ctx context.Context, c store.MatchCriteria) (*models.Sell, error) {
	var best *models.Sell
	for _, s := range t.f.sells {
		if s.BipID != nil || s.Status != models.SellStatusNotVerified || s.GrossCents() != c.PriceCents {
			continue
		}
		if !contains(c.ProductKeys, s.ProductID) || s.SellDate.Before(c.From) || s.SellDate.After(c.To) {
			continue
		}
		if best == nil || s.SellDate.Before(best.SellDate) {
			best = s
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (t *fakeTx) LinkSellToBip(ctx context.Context, sellID, bipID int64) error {
	if t.linked(bipID) {
		return store.ErrConflict
	}
	s := t.f.sells[sellID]
	s.BipID = &bipID
	s.Status = models.SellStatusVerified
	t.f.bips[bipID].Status = models.BipStatusVerified
	return nil
}

func (t *fakeTx) CancelSell(ctx context.Context, sellID int64) error {
	s := t.f.sells[sellID]
	s.Status = models.SellStatusCancelled
	s.BipID = nil
	return nil
}

func (t *fakeTx) LockSuspectNumbers(ctx context.Context) error {
	return nil
}

func (t *fakeTx) NextSuspectNumber(ctx context.Context) (int, error) {
	return t.f.nextSuspectNumber(), nil
}

func (t *fakeTx) SuspectIdentifiedBipIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	found := map[int64]bool{}
	for _, si := range t.f.suspects {
		for _, id := range ids {
			if si.BipID == id {
				found[id] = true
			}
		}
	}
	return found, nil
}

func (t *fakeTx) CreateSuspectIdentification(ctx context.Context, si *models.SuspectIdentification) error {
	for _, existing := range t.f.suspects {
		if existing.BipID == si.BipID {
			return store.ErrConflict
		}
	}
	si.ID = t.f.id()
	si.CreatedAt = time.Now()
	t.f.suspects = append(t.f.suspects, *si)
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu          sync.Mutex
	created     []*models.BipCreatedEvent
	verified    []*models.BipVerifiedEvent
	cancelled   []*models.BipCancelledEvent
	reactivated []*models.BipReactivatedEvent
	unmatched   []*models.BipUnmatchedEvent
}

func (p *fakePublisher) PublishBipCreated(ctx context.Context, e *models.BipCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *fakePublisher) PublishBipVerified(ctx context.Context, e *models.BipVerifiedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verified = append(p.verified, e)
	return nil
}

func (p *fakePublisher) PublishBipCancelled(ctx context.Context, e *models.BipCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return nil
}

func (p *fakePublisher) PublishBipReactivated(ctx context.Context, e *models.BipReactivatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactivated = append(p.reactivated, e)
	return nil
}

func (p *fakePublisher) PublishBipUnmatched(ctx context.Context, e *models.BipUnmatchedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unmatched = append(p.unmatched, e)
	return nil
}

// fakeIdempotency mimics the Redis claim script. Keys expire once the
// clock passes their TTL.
type fakeIdempotency struct {
	mu      sync.Mutex
	keys    map[string]string
	ttls    map[string]time.Duration
	expires map[string]time.Time
	now     time.Time

	failSet error
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{
		keys:    map[string]string{},
		ttls:    map[string]time.Duration{},
		expires: map[string]time.Time{},
		now:     time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
}

// advance moves the fake clock and drops expired keys.
func (i *fakeIdempotency) advance(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.now = i.now.Add(d)
	for k, at := range i.expires {
		if !i.now.Before(at) {
			delete(i.keys, k)
			delete(i.ttls, k)
			delete(i.expires, k)
		}
	}
}

func (i *fakeIdempotency) put(key, value string, ttl time.Duration) {
	i.keys[key] = value
	i.ttls[key] = ttl
	if ttl > 0 {
		i.expires[key] = i.now.Add(ttl)
	}
}

func (i *fakeIdempotency) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if v, ok := i.keys[key]; ok {
		return false, v, nil
	}
	i.put(key, "pending", ttl)
	return true, "pending", nil
}

func (i *fakeIdempotency) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.failSet != nil {
		return i.failSet
	}
	i.put(key, fmt.Sprint(value), ttl)
	return nil
}

func (i *fakeIdempotency) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.keys, key)
	delete(i.ttls, key)
	delete(i.expires, key)
	return nil
}

// fakeLocker grants the lock unless held is set.
type fakeLocker struct {
	held bool
}

func (l *fakeLocker) TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	if l.held {
		return false, nil
	}
	return true, fn(ctx)
}

// fakeStorage keeps uploaded objects in memory under mem://<key>.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStorage) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = buf.Bytes()
	s.types[key] = contentType
	return "mem://" + key, nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) KeyFromURL(url string) string {
	if !strings.HasPrefix(url, "mem://") {
		return ""
	}
	return strings.TrimPrefix(url, "mem://")
}
