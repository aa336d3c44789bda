package collector

import (
	"context"
	"strings"
	"sync"

	"PriceSync/internal/model"
)

// StaticFetcher serves canned data for development and tests. It records
// every call so callers can assert how often each spelling was requested.
type StaticFetcher struct {
	mu sync.Mutex

	// History maps an uppercase canonical symbol to every bar the fake
	// upstream knows. Bars outside the requested range are not returned.
	History map[string][]model.PriceBar
	// SearchResults maps an uppercase query to the canonical symbol returned.
	SearchResults map[string]string
	// Unavailable lists symbols whose fetch fails with ErrUpstreamUnavailable.
	Unavailable map[string]bool

	Calls       []string
	SearchCalls []string
}

var _ Fetcher = (*StaticFetcher)(nil)

func (f *StaticFetcher) FetchHistory(ctx context.Context, symbol string, w model.FetchWindow) ([]model.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := strings.ToUpper(symbol)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, key)

	if f.Unavailable[key] {
		return nil, ErrUpstreamUnavailable
	}
	from := w.RequestStart()
	var out []model.PriceBar
	for _, b := range f.History[key] {
		if b.Date.Before(from) || b.Date.After(w.End) {
			continue
		}
		b.Symbol = key
		out = append(out, b)
	}
	return out, nil
}

func (f *StaticFetcher) Search(ctx context.Context, query string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	key := strings.ToUpper(query)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.SearchCalls = append(f.SearchCalls, key)

	sym, ok := f.SearchResults[key]
	return sym, ok, nil
}

// CallCount returns how many times symbol was fetched.
func (f *StaticFetcher) CallCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == strings.ToUpper(symbol) {
			n++
		}
	}
	return n
}

// TotalCalls returns the number of history fetches made.
func (f *StaticFetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
