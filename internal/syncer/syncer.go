// Package syncer drives per-symbol sync cycles: plan, resolve, fetch,
// filter and merge into storage.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"PriceSync/internal/metrics"
	"PriceSync/internal/model"
	"PriceSync/internal/resolver"
	"PriceSync/internal/store"
	"PriceSync/internal/symbol"
	"PriceSync/internal/window"
)

const (
	DefaultBatchSize       = 5000
	DefaultOnDemandTimeout = 20 * time.Second
)

// Options tunes a Syncer.
type Options struct {
	// Allow restricts bulk runs to these symbols. Empty means the whole catalog.
	Allow []string
	// Workers is the number of symbols synced in parallel during bulk runs.
	Workers int
	// RequestDelay is the minimum spacing between symbol starts in bulk runs.
	RequestDelay    time.Duration
	OnDemandTimeout time.Duration
	BatchSize       int
	Now             func() time.Time
}

// Syncer is the sync orchestrator.
type Syncer struct {
	store    store.Store
	resolver *resolver.Resolver
	aliases  symbol.Aliases
	planner  *window.Planner
	metrics  *metrics.Registry
	log      zerolog.Logger

	allow    []string
	workers  int
	timeout  time.Duration
	batch    int
	now      func() time.Time
	limiter  *rate.Limiter
	inflight singleflight.Group
}

// New creates a Syncer.
func New(st store.Store, res *resolver.Resolver, aliases symbol.Aliases, planner *window.Planner,
	reg *metrics.Registry, log zerolog.Logger, opts Options) *Syncer {
	s := &Syncer{
		store:    st,
		resolver: res,
		aliases:  aliases,
		planner:  planner,
		metrics:  reg,
		log:      log.With().Str("component", "syncer").Logger(),
		allow:    opts.Allow,
		workers:  opts.Workers,
		timeout:  opts.OnDemandTimeout,
		batch:    opts.BatchSize,
		now:      opts.Now,
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	if s.timeout <= 0 {
		s.timeout = DefaultOnDemandTimeout
	}
	if s.batch <= 0 {
		s.batch = DefaultBatchSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.planner == nil {
		s.planner = window.NewPlanner()
	}
	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	s.limiter = rate.NewLimiter(limit, 1)
	return s
}

// SyncSymbol runs one cycle for raw. Only storage and context failures are
// returned; upstream trouble ends the cycle as SKIPPED.
func (s *Syncer) SyncSymbol(ctx context.Context, raw string) (model.SyncResult, error) {
	key := symbol.Normalize(raw)
	res := model.SyncResult{Symbol: key, State: model.StatePlanned}
	if key == "" {
		return s.finish(res, model.StateSkipped, model.SkipNoData), nil
	}

	last, known, recorded, err := s.lastKnown(ctx, key)
	if err != nil {
		return s.fail(res, err)
	}
	w := s.planner.Plan(last, known, s.now())
	res.Window = w
	if w.Empty() {
		return s.finish(res, model.StateDone, model.SkipUpToDate), nil
	}

	s.step(&res, model.StateResolving)
	resolution, err := s.resolver.Resolve(ctx, key, w)
	if err != nil {
		return s.fail(res, err)
	}
	s.step(&res, model.StateFetching)
	if !resolution.Found() {
		if resolution.Transient {
			return s.finish(res, model.StateSkipped, model.SkipUnavailable), nil
		}
		return s.finish(res, model.StateSkipped, model.SkipNoData), nil
	}
	res.Canonical = resolution.Canonical
	if res.Canonical != recorded {
		if err := s.store.SetCanonical(ctx, key, res.Canonical); err != nil {
			return s.fail(res, err)
		}
	}

	s.step(&res, model.StateParsing)
	if res.Canonical != key {
		cl, ok, err := s.store.LastKnownDate(ctx, res.Canonical)
		if err != nil {
			return s.fail(res, err)
		}
		if ok && (!known || cl.After(last)) {
			last, known = cl, true
		}
	}

	s.step(&res, model.StateFiltering)
	fresh := make([]model.PriceBar, 0, len(resolution.Bars))
	for _, b := range resolution.Bars {
		if !w.Contains(b.Date) || (known && !b.Date.After(last)) {
			continue
		}
		fresh = append(fresh, b)
	}
	if len(fresh) == 0 {
		return s.finish(res, model.StateSkipped, model.SkipNothingNew), nil
	}

	inserted, err := s.upsert(ctx, fresh)
	res.RowsInserted = inserted
	if err != nil {
		return s.fail(res, err)
	}
	s.metrics.Inserted(inserted)

	first, lastNew := model.DateRange(fresh)
	s.log.Info().Str("symbol", key).Str("canonical", res.Canonical).Int("rows", inserted).
		Str("from", first.Format(model.DateFormat)).Str("to", lastNew.Format(model.DateFormat)).
		Msg("inserted rows")
	return s.finish(res, model.StateMerged, model.SkipNone), nil
}

// lastKnown is the latest stored date for raw, its recorded canonical
// spelling and its cached alias. recorded is the spelling raw's bars are
// stored under, raw itself when none was recorded. A recorded spelling
// missing from the alias cache is put back into it.
func (s *Syncer) lastKnown(ctx context.Context, key string) (last time.Time, known bool, recorded string, err error) {
	recorded = key
	canonical, ok, err := s.store.Canonical(ctx, key)
	if err != nil {
		return time.Time{}, false, "", err
	}
	if ok {
		recorded = canonical
	}

	spellings := []string{key}
	if recorded != key {
		spellings = append(spellings, recorded)
		if _, hit := s.aliases.Lookup(ctx, key); !hit {
			s.aliases.Store(ctx, key, recorded)
		}
	}
	if alias, hit := s.aliases.Lookup(ctx, key); hit && alias != key && alias != recorded {
		spellings = append(spellings, alias)
	}

	for _, sym := range spellings {
		d, ok, err := s.store.LastKnownDate(ctx, sym)
		if err != nil {
			return time.Time{}, false, "", err
		}
		if ok && (!known || d.After(last)) {
			last, known = d, true
		}
	}
	return last, known, recorded, nil
}

// upsert writes bars in batches so a cancelled run keeps what was merged.
func (s *Syncer) upsert(ctx context.Context, bars []model.PriceBar) (int, error) {
	total := 0
	for start := 0; start < len(bars); start += s.batch {
		end := min(start+s.batch, len(bars))
		n, err := s.store.UpsertBars(ctx, bars[start:end])
		total += n
		if err != nil {
			return total, fmt.Errorf("upsert bars: %w", err)
		}
	}
	return total, nil
}

func (s *Syncer) step(res *model.SyncResult, state model.SyncState) {
	res.State = state
	s.log.Trace().Str("symbol", res.Symbol).Str("state", string(state)).Msg("sync step")
}

func (s *Syncer) finish(res model.SyncResult, state model.SyncState, skip model.SkipReason) model.SyncResult {
	res.State = state
	res.Skip = skip
	s.metrics.SyncResult(string(state), string(skip))

	ev := s.log.Debug()
	if skip == model.SkipUnavailable {
		ev = s.log.Warn()
	}
	ev.Str("symbol", res.Symbol).Str("state", string(state)).Str("reason", string(skip)).
		Stringer("window", res.Window).Msg("sync finished")
	return res
}

func (s *Syncer) fail(res model.SyncResult, err error) (model.SyncResult, error) {
	res.Err = err
	res = s.finish(res, model.StateSkipped, model.SkipFailed)
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.log.Error().Err(err).Str("symbol", res.Symbol).Msg("sync failed")
	}
	return res, err
}

// ParseAllowList splits a comma-separated symbol list. Empty or "full" means
// every catalog symbol and yields nil.
func ParseAllowList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "full") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
