package store

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const shardCount = 16

// MemoryOptions tunes retention of a Memory store. The zero value keeps
// every entry until Close.
type MemoryOptions struct {
	// Name is used in log lines only.
	Name string
	// TTL expires entries this long after creation. Zero disables expiry.
	TTL time.Duration
	// MaxEntries evicts the oldest entries once exceeded. Zero means unbounded.
	MaxEntries int

	now   func() time.Time
	newID func() string
}

type memoryItem[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
}

func (it memoryItem[T]) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

type memoryShard[T any] struct {
	mu    sync.RWMutex
	items map[string]memoryItem[T]
}

// Memory is a sharded in-process Store. Each shard has its own lock, so a
// lookup only contends with writes that hash to the same shard.
type Memory[T Entry[T]] struct {
	shards [shardCount]*memoryShard[T]
	opts   MemoryOptions
	count  atomic.Int64
	closed atomic.Bool

	// evictMu serializes MaxEntries enforcement across creators.
	evictMu   sync.Mutex
	lastSweep atomic.Int64
}

// NewMemory creates an empty in-memory store.
func NewMemory[T Entry[T]](opts MemoryOptions) *Memory[T] {
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.newID == nil {
		opts.newID = NewID
	}
	if opts.Name == "" {
		opts.Name = "memory"
	}

	m := &Memory[T]{opts: opts}
	for i := range m.shards {
		m.shards[i] = &memoryShard[T]{items: make(map[string]memoryItem[T])}
	}
	m.lastSweep.Store(opts.now().UnixNano())
	return m
}

func (m *Memory[T]) shardFor(id string) *memoryShard[T] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return m.shards[h.Sum32()%shardCount]
}

// Create implements Store.
func (m *Memory[T]) Create(_ context.Context, payload T) (string, error) {
	if m.closed.Load() {
		return "", ErrClosed
	}

	id := m.opts.newID()
	now := m.opts.now()
	item := memoryItem[T]{
		value:     payload.WithID(id).Clone(),
		createdAt: now,
	}
	if m.opts.TTL > 0 {
		item.expiresAt = now.Add(m.opts.TTL)
		m.maybeSweep(now)
	}

	sh := m.shardFor(id)
	sh.mu.Lock()
	if _, exists := sh.items[id]; exists {
		sh.mu.Unlock()
		return "", ErrDuplicateID
	}
	sh.items[id] = item
	sh.mu.Unlock()

	if n := m.count.Add(1); m.opts.MaxEntries > 0 && n > int64(m.opts.MaxEntries) {
		m.enforceLimit(id)
	}
	return id, nil
}

// Get implements Store.
func (m *Memory[T]) Get(_ context.Context, id string) (T, error) {
	var zero T
	if m.closed.Load() {
		return zero, ErrClosed
	}

	sh := m.shardFor(id)
	sh.mu.RLock()
	item, ok := sh.items[id]
	sh.mu.RUnlock()

	if !ok || item.expired(m.opts.now()) {
		return zero, ErrNotFound
	}
	return item.value.Clone(), nil
}

// Len implements Store. Expired entries that have not been swept yet are
// not counted.
func (m *Memory[T]) Len(context.Context) (int, error) {
	if m.opts.TTL <= 0 {
		return int(m.count.Load()), nil
	}

	now := m.opts.now()
	live := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, item := range sh.items {
			if !item.expired(now) {
				live++
			}
		}
		sh.mu.RUnlock()
	}
	return live, nil
}

// Close drops every entry.
func (m *Memory[T]) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	for _, sh := range m.shards {
		sh.mu.Lock()
		sh.items = make(map[string]memoryItem[T])
		sh.mu.Unlock()
	}
	m.count.Store(0)
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory[T]) Sweep() int {
	now := m.opts.now()
	removed := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		for id, item := range sh.items {
			if item.expired(now) {
				delete(sh.items, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		m.count.Add(int64(-removed))
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done. It returns
// immediately when the store has no TTL or interval is not positive; Create
// still sweeps at most once per TTL in that case.
func (m *Memory[T]) Run(ctx context.Context, interval time.Duration) error {
	if m.opts.TTL <= 0 || interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Printf("[store] %s: expired %d entries", m.opts.Name, n)
			}
		}
	}
}

// maybeSweep runs Sweep from the write path once a full TTL has passed since
// the previous sweep.
func (m *Memory[T]) maybeSweep(now time.Time) {
	last := m.lastSweep.Load()
	if now.UnixNano()-last < int64(m.opts.TTL) {
		return
	}
	if m.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		m.Sweep()
	}
}

// enforceLimit evicts until the store is back within MaxEntries.
func (m *Memory[T]) enforceLimit(keep string) {
	m.evictMu.Lock()
	defer m.evictMu.Unlock()

	for m.count.Load() > int64(m.opts.MaxEntries) {
		if !m.evictOldest(keep) {
			return
		}
	}
}

// evictOldest drops the entry with the earliest creation time, never the one
// just inserted. It reports false when there was nothing to evict.
func (m *Memory[T]) evictOldest(keep string) bool {
	var (
		oldestID string
		oldestAt time.Time
		oldestSh *memoryShard[T]
	)
	for _, sh := range m.shards {
		sh.mu.RLock()
		for id, item := range sh.items {
			if id == keep {
				continue
			}
			if oldestSh == nil || item.createdAt.Before(oldestAt) {
				oldestID, oldestAt, oldestSh = id, item.createdAt, sh
			}
		}
		sh.mu.RUnlock()
	}
	if oldestSh == nil {
		return false
	}

	oldestSh.mu.Lock()
	item, ok := oldestSh.items[oldestID]
	if ok && item.createdAt.Equal(oldestAt) {
		delete(oldestSh.items, oldestID)
	} else {
		ok = false
	}
	oldestSh.mu.Unlock()

	if ok {
		m.count.Add(-1)
		log.Printf("[store] %s: evicted %s (max entries %d)", m.opts.Name, oldestID, m.opts.MaxEntries)
	}
	// A concurrent Sweep removed the candidate; the caller rescans.
	return true
}
