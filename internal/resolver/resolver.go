// Package resolver maps a raw ticker to the canonical symbol the upstream
// serves data for, fetching the window on the way.
package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"PriceSync/internal/collector"
	"PriceSync/internal/metrics"
	"PriceSync/internal/model"
	"PriceSync/internal/symbol"
)

// Resolution is the result of one resolution cycle. An empty Canonical means
// no spelling produced data for the window.
type Resolution struct {
	Canonical string
	Bars      []model.PriceBar // filtered to the window, symbol set to Canonical
	Attempts  int              // history requests issued
	// Transient is set when at least one attempt exhausted its retries.
	Transient bool
}

// Found reports whether a spelling produced data.
func (r Resolution) Found() bool { return r.Canonical != "" }

// Resolver tries the alias cache, then local variants, then upstream search.
type Resolver struct {
	fetcher collector.Fetcher
	aliases symbol.Aliases
	metrics *metrics.Registry
	log     zerolog.Logger
}

// New creates a Resolver.
func New(fetcher collector.Fetcher, aliases symbol.Aliases, reg *metrics.Registry, log zerolog.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		aliases: aliases,
		metrics: reg,
		log:     log.With().Str("component", "resolver").Logger(),
	}
}

// cycle holds the request-scoped state of one Resolve call.
type cycle struct {
	*Resolver
	window    model.FetchWindow
	attempted map[string]struct{}
	res       Resolution
}

// Resolve finds the first spelling of raw that yields bars inside w. Each
// spelling is requested at most once per call. No data is not an error;
// only context cancellation is returned.
func (r *Resolver) Resolve(ctx context.Context, raw string, w model.FetchWindow) (Resolution, error) {
	c := &cycle{Resolver: r, window: w, attempted: make(map[string]struct{}, 4)}
	key := symbol.Normalize(raw)
	if key == "" {
		return c.res, nil
	}

	cached, hit := r.aliases.Lookup(ctx, key)
	r.metrics.AliasLookup(hit)
	if hit {
		bars, transient, err := c.try(ctx, cached)
		if err != nil {
			return c.res, err
		}
		if len(bars) > 0 {
			r.aliases.RecordHit(ctx, key)
			return c.done(cached, bars), nil
		}
		if !transient && r.aliases.RecordMiss(ctx, key) {
			r.log.Info().Str("raw", key).Str("alias", cached).Msg("evicted alias after repeated empty fetches")
		}
	}

	for _, v := range symbol.Variants(key) {
		bars, _, err := c.try(ctx, v)
		if err != nil {
			return c.res, err
		}
		if len(bars) > 0 {
			r.aliases.Store(ctx, key, v)
			return c.done(v, bars), nil
		}
	}

	found, ok, err := r.fetcher.Search(ctx, key)
	if err != nil {
		if !errors.Is(err, collector.ErrUpstreamUnavailable) {
			return c.res, err
		}
		c.res.Transient = true
	}
	if ok {
		found = strings.ToUpper(found)
		if found != key {
			r.log.Info().Str("raw", key).Str("canonical", found).Msg("resolved symbol via search")
		}
		// A search that confirms the cached spelling leaves its miss streak alone.
		if !hit || found != cached {
			r.aliases.Store(ctx, key, found)
		}
		bars, _, err := c.try(ctx, found)
		if err != nil {
			return c.res, err
		}
		if len(bars) > 0 {
			return c.done(found, bars), nil
		}
	}

	r.log.Debug().Str("raw", key).Int("attempts", c.res.Attempts).Msg("no data after resolve attempts")
	return c.res, nil
}

// try fetches sym unless it was already attempted in this cycle and returns
// the bars inside the window.
func (c *cycle) try(ctx context.Context, sym string) ([]model.PriceBar, bool, error) {
	sym = strings.ToUpper(sym)
	if _, seen := c.attempted[sym]; seen {
		return nil, false, nil
	}
	c.attempted[sym] = struct{}{}
	c.res.Attempts++

	bars, err := c.fetcher.FetchHistory(ctx, sym, c.window)
	if err != nil {
		if errors.Is(err, collector.ErrUpstreamUnavailable) {
			c.res.Transient = true
			return nil, true, nil
		}
		return nil, false, err
	}
	return filterWindow(bars, c.window), false, nil
}

func (c *cycle) done(canonical string, bars []model.PriceBar) Resolution {
	canonical = strings.ToUpper(canonical)
	for i := range bars {
		bars[i].Symbol = canonical
	}
	c.res.Canonical = canonical
	c.res.Bars = bars
	return c.res
}

func filterWindow(bars []model.PriceBar, w model.FetchWindow) []model.PriceBar {
	out := make([]model.PriceBar, 0, len(bars))
	for _, b := range bars {
		if w.Contains(b.Date) {
			out = append(out, b)
		}
	}
	return out
}
