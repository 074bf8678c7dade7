package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ferro-labs/semcache/normalize"
)

type memoryEntry struct {
	key       string
	record    Record
	expiresAt time.Time
}

// Memory is a thread-safe in-memory LRU gateway with TTL expiration.
// A zero ttl keeps entries until they are evicted.
type Memory struct {
	mu        sync.Mutex
	capacity  int
	ttl       time.Duration
	items     map[string]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory creates a new in-memory LRU gateway.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{
		capacity:  capacity,
		ttl:       ttl,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Lookup returns the record stored for req, or false if missing or expired.
func (m *Memory) Lookup(_ context.Context, req *normalize.Request) (Record, bool, error) {
	key := req.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.misses.Add(1)
		return Record{}, false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.removeElement(elem)
		m.misses.Add(1)
		return Record{}, false, nil
	}

	m.evictList.MoveToFront(elem)
	m.hits.Add(1)
	return entry.record, true, nil
}

// Store records rec for req, replacing any previous answer.
func (m *Memory) Store(_ context.Context, req *normalize.Request, rec Record) error {
	key := req.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.evictList.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry)
		entry.record = rec
		entry.expiresAt = m.expiry()
		return nil
	}

	if m.evictList.Len() >= m.capacity {
		m.removeOldest()
	}

	elem := m.evictList.PushFront(&memoryEntry{key: key, record: rec, expiresAt: m.expiry()})
	m.items[key] = elem
	return nil
}

func (m *Memory) expiry() time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(m.ttl)
}

// Len returns the number of entries currently held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictList.Len()
}

// Stats returns entry count and hit/miss counters.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	return Stats{
		Entries: int64(m.Len()),
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}, nil
}

// Clear removes entries. With expiredOnly only entries past their TTL go.
func (m *Memory) Clear(_ context.Context, expiredOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !expiredOnly {
		m.items = make(map[string]*list.Element)
		m.evictList.Init()
		return nil
	}
	now := time.Now()
	for elem := m.evictList.Back(); elem != nil; {
		prev := elem.Prev()
		entry := elem.Value.(*memoryEntry)
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			m.removeElement(elem)
		}
		elem = prev
	}
	return nil
}

// Close is a no-op; it lets Memory satisfy the same lifecycle as SQLStore.
func (m *Memory) Close() error { return nil }

func (m *Memory) removeOldest() {
	elem := m.evictList.Back()
	if elem != nil {
		m.removeElement(elem)
	}
}

func (m *Memory) removeElement(elem *list.Element) {
	m.evictList.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(m.items, entry.key)
}
