package resolver

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceSync/internal/collector"
	"PriceSync/internal/metrics"
	"PriceSync/internal/model"
	"PriceSync/internal/symbol"
)

func bar(sym, date string, closePx float64) model.PriceBar {
	return model.PriceBar{
		Symbol: sym,
		Date:   model.MustDate(date),
		Open:   decimal.NewNullDecimal(decimal.NewFromFloat(closePx)),
		Close:  decimal.NewNullDecimal(decimal.NewFromFloat(closePx)),
		Volume: 100,
	}
}

func window() model.FetchWindow {
	return model.FetchWindow{Start: model.MustDate("2024-01-11"), End: model.MustDate("2024-01-12"), Grace: 7}
}

func newResolver(f collector.Fetcher, aliases symbol.Aliases) *Resolver {
	return New(f, aliases, metrics.New(), zerolog.Nop())
}

func TestResolve_VariantPromotedToCache(t *testing.T) {
	ctx := context.Background()
	f := &collector.StaticFetcher{History: map[string][]model.PriceBar{
		"BRK-B": {bar("BRK-B", "2024-01-11", 360), bar("BRK-B", "2024-01-12", 361)},
	}}
	aliases := symbol.NewMemoryAliases(3)
	r := newResolver(f, aliases)

	res, err := r.Resolve(ctx, "brk.b", window())
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "BRK-B", res.Canonical)
	assert.Len(t, res.Bars, 2)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []string{"BRK.B", "BRK-B"}, f.Calls)

	cached, ok := aliases.Lookup(ctx, "BRK.B")
	require.True(t, ok)
	assert.Equal(t, "BRK-B", cached)

	// Next cycle goes straight to the cached alias.
	res, err = r.Resolve(ctx, "BRK.B", window())
	require.NoError(t, err)
	assert.Equal(t, "BRK-B", res.Canonical)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 3, f.TotalCalls())
}

func TestResolve_OneRequestPerSpelling(t *testing.T) {
	ctx := context.Background()
	// Search converges on a spelling the variants already tried.
	f := &collector.StaticFetcher{SearchResults: map[string]string{"ABC.U": "abc-un"}}
	aliases := symbol.NewMemoryAliases(0)
	aliases.Store(ctx, "ABC.U", "ABC-U") // cache also collides with a variant
	r := newResolver(f, aliases)

	res, err := r.Resolve(ctx, "ABC.U", window())
	require.NoError(t, err)
	assert.False(t, res.Found())

	for _, sym := range []string{"ABC.U", "ABC-U", "ABC-UN"} {
		assert.Equal(t, 1, f.CallCount(sym), sym)
	}
	assert.Equal(t, 3, f.TotalCalls())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []string{"ABC.U"}, f.SearchCalls)
}

func TestResolve_SearchFallback(t *testing.T) {
	ctx := context.Background()
	f := &collector.StaticFetcher{
		SearchResults: map[string]string{"BHP": "BHP.AX"},
		History: map[string][]model.PriceBar{
			"BHP.AX": {bar("BHP.AX", "2024-01-12", 45.2)},
		},
	}
	aliases := symbol.NewMemoryAliases(3)
	r := newResolver(f, aliases)

	res, err := r.Resolve(ctx, "BHP", window())
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "BHP.AX", res.Canonical)
	assert.Equal(t, "BHP.AX", res.Bars[0].Symbol)

	cached, ok := aliases.Lookup(ctx, "BHP")
	require.True(t, ok)
	assert.Equal(t, "BHP.AX", cached)
}

func TestResolve_FiltersToWindow(t *testing.T) {
	ctx := context.Background()
	// Bars inside the grace range but before Start must not be returned.
	f := &collector.StaticFetcher{History: map[string][]model.PriceBar{
		"AAPL": {bar("AAPL", "2024-01-05", 181), bar("AAPL", "2024-01-10", 186), bar("AAPL", "2024-01-11", 187)},
	}}
	r := newResolver(f, symbol.NewMemoryAliases(0))

	res, err := r.Resolve(ctx, "AAPL", window())
	require.NoError(t, err)
	require.Len(t, res.Bars, 1)
	assert.Equal(t, "2024-01-11", res.Bars[0].Date.Format(model.DateFormat))
}

func TestResolve_GraceOnlyDataIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := &collector.StaticFetcher{History: map[string][]model.PriceBar{
		"AAPL": {bar("AAPL", "2024-01-09", 185)},
	}}
	r := newResolver(f, symbol.NewMemoryAliases(0))

	res, err := r.Resolve(ctx, "AAPL", window())
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestResolve_TransientFlag(t *testing.T) {
	ctx := context.Background()
	f := &collector.StaticFetcher{Unavailable: map[string]bool{"MSFT": true}}
	r := newResolver(f, symbol.NewMemoryAliases(0))

	res, err := r.Resolve(ctx, "MSFT", window())
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.True(t, res.Transient)
}

func TestResolve_EvictsStaleAlias(t *testing.T) {
	ctx := context.Background()
	f := &collector.StaticFetcher{}
	aliases := symbol.NewMemoryAliases(2)
	aliases.Store(ctx, "OLD", "OLD.L")
	r := newResolver(f, aliases)

	_, err := r.Resolve(ctx, "OLD", window())
	require.NoError(t, err)
	_, ok := aliases.Lookup(ctx, "OLD")
	require.True(t, ok)

	_, err = r.Resolve(ctx, "OLD", window())
	require.NoError(t, err)
	_, ok = aliases.Lookup(ctx, "OLD")
	assert.False(t, ok)
}

func TestResolve_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newResolver(&collector.StaticFetcher{}, symbol.NewMemoryAliases(0))

	_, err := r.Resolve(ctx, "AAPL", window())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_SearchAliasStillEvicted(t *testing.T) {
	ctx := context.Background()
	// Search keeps pointing at a listing that no longer returns data.
	f := &collector.StaticFetcher{SearchResults: map[string]string{"BHP": "BHP.AX"}}
	aliases := symbol.NewMemoryAliases(2)
	r := newResolver(f, aliases)

	_, err := r.Resolve(ctx, "BHP", window())
	require.NoError(t, err)
	cached, ok := aliases.Lookup(ctx, "BHP")
	require.True(t, ok)
	assert.Equal(t, "BHP.AX", cached)

	_, err = r.Resolve(ctx, "BHP", window())
	require.NoError(t, err)
	_, ok = aliases.Lookup(ctx, "BHP")
	require.True(t, ok)

	_, err = r.Resolve(ctx, "BHP", window())
	require.NoError(t, err)
	_, ok = aliases.Lookup(ctx, "BHP")
	assert.False(t, ok)
}
