package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/notify"
)

// memStore is an in-memory MarketStore, StatusStore, LedgerStore and
// ResolutionStore with the same conflict rules as the Postgres stores.
type memStore struct {
	mu          sync.Mutex
	markets     map[string]domain.MarketRecord
	versions    map[string][]domain.StatusVersion
	slots       map[string]map[int]domain.LedgerSlot
	resolutions map[string]domain.Resolution
}

func newMemStore() *memStore {
	return &memStore{
		markets:     map[string]domain.MarketRecord{},
		versions:    map[string][]domain.StatusVersion{},
		slots:       map[string]map[int]domain.LedgerSlot{},
		resolutions: map[string]domain.Resolution{},
	}
}

var (
	_ domain.MarketStore     = (*memStore)(nil)
	_ domain.StatusStore     = (*memStore)(nil)
	_ domain.LedgerStore     = (*memStore)(nil)
	_ domain.ResolutionStore = (*memStore)(nil)
)

func (m *memStore) Create(_ context.Context, rec domain.MarketRecord, initial domain.StatusVersion, slots []domain.LedgerSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markets[rec.ID]; ok {
		return domain.ErrConflict
	}
	m.markets[rec.ID] = rec
	m.versions[rec.ID] = []domain.StatusVersion{initial}
	m.slots[rec.ID] = map[int]domain.LedgerSlot{}
	m.putSlots(rec.ID, slots)
	return nil
}

func (m *memStore) putSlots(id string, slots []domain.LedgerSlot) {
	for _, s := range slots {
		m.slots[id][s.Slot] = s
	}
}

func (m *memStore) GetByID(_ context.Context, id string) (domain.MarketRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.markets[id]
	if !ok {
		return domain.MarketRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) List(context.Context, domain.ListOpts) ([]domain.MarketRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.MarketRecord, 0, len(m.markets))
	for _, r := range m.markets {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Current(_ context.Context, id string) (domain.StatusVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.versions[id]
	if len(vs) == 0 {
		return domain.StatusVersion{}, domain.ErrNotFound
	}
	return vs[len(vs)-1], nil
}

func (m *memStore) Append(_ context.Context, v domain.StatusVersion, slots []domain.LedgerSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.versions[v.MarketID]
	if len(vs) == 0 {
		return domain.ErrNotFound
	}
	if v.Version != vs[len(vs)-1].Version+1 {
		return domain.ErrConflict
	}
	m.versions[v.MarketID] = append(vs, v)
	m.putSlots(v.MarketID, slots)
	return nil
}

func (m *memStore) History(_ context.Context, id string, _ domain.ListOpts) ([]domain.StatusVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.versions[id]
	out := make([]domain.StatusVersion, len(vs))
	for i := range vs {
		out[i] = vs[len(vs)-1-i]
	}
	return out, nil
}

func (m *memStore) ListBefore(context.Context, time.Time) ([]domain.StatusVersion, error) {
	return nil, nil
}

func (m *memStore) DeleteArchived(context.Context, []domain.StatusVersion) (int64, error) {
	return 0, nil
}

func (m *memStore) Slots(_ context.Context, id string) ([]domain.LedgerSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LedgerSlot, 0, len(m.slots[id]))
	for _, s := range m.slots[id] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func (m *memStore) Insert(_ context.Context, r domain.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resolutions[r.MarketID]; ok {
		return domain.ErrState
	}
	m.resolutions[r.MarketID] = r
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (domain.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resolutions[id]
	if !ok {
		return domain.Resolution{}, domain.ErrNotFound
	}
	return r, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memCache struct {
	mu sync.Mutex
	m  map[string]domain.StatusVersion
}

func newMemCache() *memCache { return &memCache{m: map[string]domain.StatusVersion{}} }

func (c *memCache) Set(_ context.Context, v domain.StatusVersion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[v.MarketID] = v
	return nil
}

func (c *memCache) Get(_ context.Context, id string) (domain.StatusVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[id]
	if !ok {
		return domain.StatusVersion{}, domain.ErrNotFound
	}
	return v, nil
}

func (c *memCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

type memLocks struct {
	mu    sync.Mutex
	held  map[string]bool
	taken int
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	l.taken++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type memBus struct {
	mu       sync.Mutex
	channels []string
	streams  map[string][]domain.StreamMessage
}

func (b *memBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

// StreamAppend numbers messages "1-0", "2-0", ... per stream.
func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streams == nil {
		b.streams = map[string][]domain.StreamMessage{}
	}
	id := fmt.Sprintf("%d-0", len(b.streams[stream])+1)
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (b *memBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var seq int
	if lastID != "0" && lastID != "0-0" {
		if _, err := fmt.Sscanf(lastID, "%d-0", &seq); err != nil {
			return nil, err
		}
	}
	msgs := b.streams[stream]
	if seq >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[seq:]
	if count > 0 && len(msgs) > count {
		msgs = msgs[:count]
	}
	return append([]domain.StreamMessage(nil), msgs...), nil
}

func (b *memBus) Announce(ctx context.Context, channel, stream string, payload []byte) error {
	if err := b.Publish(ctx, channel, payload); err != nil {
		return err
	}
	return b.StreamAppend(ctx, stream, payload)
}

type memNotifier struct {
	events []notify.MarketEvent
}

func (n *memNotifier) NotifyMarket(_ context.Context, ev notify.MarketEvent) error {
	n.events = append(n.events, ev)
	return nil
}
