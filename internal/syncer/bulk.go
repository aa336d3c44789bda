package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"PriceSync/internal/model"
)

// Targets returns the symbols a bulk run covers. Allow-listed symbols missing
// from the catalog are seeded first.
func (s *Syncer) Targets(ctx context.Context) ([]string, error) {
	if len(s.allow) > 0 {
		if _, err := s.store.EnsureSymbols(ctx, s.allow); err != nil {
			return nil, fmt.Errorf("seed configured symbols: %w", err)
		}
		return s.allow, nil
	}
	syms, err := s.store.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	return syms, nil
}

// SyncAll runs a bulk pass over Targets.
func (s *Syncer) SyncAll(ctx context.Context) (*model.RunSummary, error) {
	syms, err := s.Targets(ctx)
	if err != nil {
		return nil, err
	}
	return s.SyncSymbols(ctx, syms)
}

// SyncSymbols syncs symbols with the configured worker pool. Symbol starts
// are spaced by the request delay. Per-symbol failures are counted and never
// stop the run; cancelling ctx stops dispatching new symbols.
func (s *Syncer) SyncSymbols(ctx context.Context, symbols []string) (*model.RunSummary, error) {
	summary := &model.RunSummary{RunID: uuid.NewString(), StartedAt: s.now()}
	log := s.log.With().Str("run_id", summary.RunID).Logger()
	log.Info().Int("symbols", len(symbols)).Int("workers", s.workers).Msg("bulk sync started")
	started := time.Now()

	jobs := make(chan string)
	results := make(chan model.SyncResult)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				// Errors are already logged and carried on the result.
				r, _ := s.SyncSymbol(ctx, sym)
				results <- r
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, sym := range symbols {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case jobs <- sym:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		summary.Add(r)
	}

	summary.FinishedAt = s.now()
	s.metrics.ObserveRun(time.Since(started))
	log.Info().
		Int("merged", summary.Merged).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("inserted", summary.Inserted).
		Dur("took", time.Since(started)).
		Msg("bulk sync finished")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}
