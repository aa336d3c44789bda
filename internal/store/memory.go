package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"PriceSync/internal/model"
)

// MemoryStore keeps everything in process memory. Used for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	bars    map[string]map[string]model.PriceBar // symbol -> date -> bar
	symbols map[string]struct{}
	aliases map[string]string // raw -> canonical

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars:    make(map[string]map[string]model.PriceBar),
		symbols: make(map[string]struct{}),
		aliases: make(map[string]string),
	}
}

func (m *MemoryStore) LastKnownDate(_ context.Context, symbol string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return time.Time{}, false, m.Err
	}
	var last time.Time
	found := false
	for _, b := range m.bars[strings.ToUpper(symbol)] {
		if !found || b.Date.After(last) {
			last, found = b.Date, true
		}
	}
	return last, found, nil
}

func (m *MemoryStore) UpsertBars(_ context.Context, bars []model.PriceBar) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	inserted := 0
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		byDate, ok := m.bars[sym]
		if !ok {
			byDate = make(map[string]model.PriceBar)
			m.bars[sym] = byDate
		}
		key := b.Date.Format(model.DateFormat)
		if _, exists := byDate[key]; exists {
			continue
		}
		b.Symbol = sym
		b.Date = model.Day(b.Date)
		byDate[key] = b
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) Symbols(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]string, 0, len(m.symbols))
	for s := range m.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) EnsureSymbols(_ context.Context, symbols []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	added := 0
	for _, s := range normalizeSymbols(symbols) {
		if _, ok := m.symbols[s]; ok {
			continue
		}
		m.symbols[s] = struct{}{}
		added++
	}
	return added, nil
}

func (m *MemoryStore) Bars(_ context.Context, symbol string, from time.Time) ([]model.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	from = model.Day(from)
	var out []model.PriceBar
	for _, b := range m.bars[strings.ToUpper(symbol)] {
		if !b.Date.Before(from) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryStore) SetCanonical(_ context.Context, raw, canonical string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.aliases[strings.ToUpper(raw)] = strings.ToUpper(canonical)
	return nil
}

func (m *MemoryStore) Canonical(_ context.Context, raw string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return "", false, m.Err
	}
	c, ok := m.aliases[strings.ToUpper(raw)]
	return c, ok, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

func (m *MemoryStore) Close() error { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
