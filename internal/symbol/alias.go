package symbol

import (
	"context"
	"sync"
	"sync/atomic"
)

// Aliases maps raw tickers to the canonical spelling the provider accepts.
// Implementations must be safe for concurrent use; a racing double Store is
// acceptable and the last write wins.
type Aliases interface {
	Lookup(ctx context.Context, raw string) (string, bool)
	Store(ctx context.Context, raw, canonical string)
	Forget(ctx context.Context, raw string)
	// RecordMiss notes an empty fetch through the cached alias and reports
	// whether the entry was evicted as a result.
	RecordMiss(ctx context.Context, raw string) bool
	// RecordHit resets the miss streak for raw.
	RecordHit(ctx context.Context, raw string)
}

// MemoryAliases is the process-local alias table.
type MemoryAliases struct {
	entries    sync.Map // raw -> canonical
	misses     sync.Map // raw -> *atomic.Int32
	evictAfter int32
}

// NewMemoryAliases creates an empty table. evictAfter is the number of
// consecutive misses after which an alias is dropped; zero keeps aliases forever.
func NewMemoryAliases(evictAfter int) *MemoryAliases {
	return &MemoryAliases{evictAfter: int32(evictAfter)}
}

func (m *MemoryAliases) Lookup(_ context.Context, raw string) (string, bool) {
	v, ok := m.entries.Load(Normalize(raw))
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (m *MemoryAliases) Store(_ context.Context, raw, canonical string) {
	key := Normalize(raw)
	m.entries.Store(key, Normalize(canonical))
	m.misses.Delete(key)
}

func (m *MemoryAliases) Forget(_ context.Context, raw string) {
	key := Normalize(raw)
	m.entries.Delete(key)
	m.misses.Delete(key)
}

func (m *MemoryAliases) RecordMiss(ctx context.Context, raw string) bool {
	if m.evictAfter <= 0 {
		return false
	}
	key := Normalize(raw)
	v, _ := m.misses.LoadOrStore(key, new(atomic.Int32))
	if v.(*atomic.Int32).Add(1) < m.evictAfter {
		return false
	}
	m.Forget(ctx, key)
	return true
}

func (m *MemoryAliases) RecordHit(_ context.Context, raw string) {
	m.misses.Delete(Normalize(raw))
}

// Len returns the number of cached aliases.
func (m *MemoryAliases) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
