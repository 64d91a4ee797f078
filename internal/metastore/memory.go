package metastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TobyX424242/ZeroShare/internal/share"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps encoded records in a map guarded by one mutex, which also
// makes ConsumeView atomic. It only serializes callers inside one process.
// A record whose store TTL lapsed is hidden from Get and ConsumeView but
// stays in List until deleted, so the sweeper can still reap its blob.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the clock used for TTL bookkeeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		records: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a decoded copy of the record.
func (m *MemoryStore) Get(_ context.Context, id string) (*share.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	return share.Decode(e.data)
}

// Put inserts or replaces a record.
func (m *MemoryStore) Put(_ context.Context, rec *share.Record, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	data, err := share.Encode(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = memoryEntry{data: data, expiresAt: m.now().Add(ttl)}
	return nil
}

// PutRaw stores bytes as-is. Tests use it to plant undecodable records.
func (m *MemoryStore) PutRaw(id string, data []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = memoryEntry{data: append([]byte(nil), data...), expiresAt: m.now().Add(ttl)}
}

// Delete removes a record; a missing record is not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// ConsumeView applies one view under the store lock.
func (m *MemoryStore) ConsumeView(_ context.Context, id string, now time.Time) (*share.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return nil, false, ErrNotFound
	}
	rec, err := share.Decode(e.data)
	if err != nil {
		return nil, false, err
	}
	final, err := rec.Consume(now)
	if err != nil {
		return rec, false, err
	}
	if final {
		delete(m.records, id)
		return rec, true, nil
	}
	data, err := share.Encode(rec)
	if err != nil {
		return nil, false, err
	}
	m.records[id] = memoryEntry{data: data, expiresAt: m.now().Add(rec.StoreTTL(now))}
	return rec, false, nil
}

// List walks records in id order starting after cursor, lapsed ones included.
func (m *MemoryStore) List(_ context.Context, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var page Page
	if len(ids) > limit {
		ids = ids[:limit]
		page.Next = ids[len(ids)-1]
	}
	for _, id := range ids {
		rec, err := share.Decode(m.records[id].data)
		if err != nil {
			page.Entries = append(page.Entries, Entry{ID: id, Err: fmt.Errorf("decode %s: %w", id, err)})
			continue
		}
		page.Entries = append(page.Entries, Entry{ID: id, Record: rec})
	}
	return page, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// live returns the entry for id unless its TTL lapsed. Callers hold m.mu.
func (m *MemoryStore) live(id string) (memoryEntry, bool) {
	e, ok := m.records[id]
	if !ok || !m.now().Before(e.expiresAt) {
		return memoryEntry{}, false
	}
	return e, true
}
