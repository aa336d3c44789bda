// Package store persists price bars and the symbol catalog.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"PriceSync/internal/model"
)

// Store is the storage collaborator of the sync engine. UpsertBars is
// insert-or-ignore on (symbol, date): an existing bar is never overwritten.
type Store interface {
	// LastKnownDate returns the latest stored date for symbol; ok is false
	// when the symbol has no bars.
	LastKnownDate(ctx context.Context, symbol string) (date time.Time, ok bool, err error)
	// UpsertBars inserts bars that are not stored yet and returns how many were new.
	UpsertBars(ctx context.Context, bars []model.PriceBar) (int, error)
	// Symbols lists the symbol catalog.
	Symbols(ctx context.Context) ([]string, error)
	// EnsureSymbols adds missing symbols to the catalog and returns how many were added.
	EnsureSymbols(ctx context.Context, symbols []string) (int, error)
	// SetCanonical records the upstream spelling raw's bars are stored under.
	SetCanonical(ctx context.Context, raw, canonical string) error
	// Canonical returns the recorded spelling for raw; ok is false when none
	// was recorded.
	Canonical(ctx context.Context, raw string) (canonical string, ok bool, err error)
	// Bars returns bars for symbol on or after from, oldest first.
	Bars(ctx context.Context, symbol string, from time.Time) ([]model.PriceBar, error)
	Ping(ctx context.Context) error
	Close() error
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures a Store implementation.
type Options struct {
	Driver       string
	SQLitePath   string
	PostgresDSN  string
	MaxOpenConns int
	QueryTimeout time.Duration
	Logger       zerolog.Logger
}

// Open creates the Store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite:
		return NewSQLiteStore(ctx, opts.SQLitePath, opts.Logger)
	case DriverPostgres:
		return NewPostgresStore(ctx, opts.PostgresDSN, opts.MaxOpenConns, opts.QueryTimeout, opts.Logger)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// StorageKey returns the symbol raw's bars are stored under: the recorded
// canonical spelling when there is one, raw otherwise.
func StorageKey(ctx context.Context, st Store, raw string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	canonical, ok, err := st.Canonical(ctx, key)
	if err != nil {
		return "", err
	}
	if ok {
		return canonical, nil
	}
	return key, nil
}
