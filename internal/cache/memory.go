package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMemoryItems = 256

// MemoryStore is an in-process LRU store with TTL support.
type MemoryStore struct {
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
	mu      sync.Mutex
	now     func() time.Time
}

type memoryItem struct {
	key       string
	value     []byte
	expiresAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most maxSize entries.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = defaultMemoryItems
	}
	return &MemoryStore{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	element, exists := m.items[key]
	if !exists {
		return nil, false, nil
	}

	item := element.Value.(*memoryItem)
	if expired(item.expiresAt, m.now()) {
		m.removeElement(element)
		return nil, false, nil
	}

	m.lru.MoveToFront(element)
	return clone(item.value), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &memoryItem{
		key:       key,
		value:     clone(value),
		expiresAt: expiry(ttl, m.now()),
	}

	if element, exists := m.items[key]; exists {
		element.Value = item
		m.lru.MoveToFront(element)
		return nil
	}

	m.items[key] = m.lru.PushFront(item)
	for len(m.items) > m.maxSize {
		if oldest := m.lru.Back(); oldest != nil {
			m.removeElement(oldest)
		}
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if element, exists := m.items[key]; exists {
		m.removeElement(element)
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) removeElement(element *list.Element) {
	item := element.Value.(*memoryItem)
	delete(m.items, item.key)
	m.lru.Remove(element)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
