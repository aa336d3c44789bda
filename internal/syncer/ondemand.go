package syncer

import (
	"context"

	"PriceSync/internal/model"
	"PriceSync/internal/symbol"
)

// EnsureUpToDate runs one cycle for raw before a read, bounded by the
// on-demand timeout. Concurrent calls for the same symbol share one cycle.
// Callers should serve stored data even when an error is returned.
func (s *Syncer) EnsureUpToDate(ctx context.Context, raw string) (model.SyncResult, error) {
	key := symbol.Normalize(raw)
	if key == "" {
		return model.SyncResult{}, nil
	}

	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		// The shared cycle must not die with whichever caller arrived first.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.SyncSymbol(cctx, key)
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(model.SyncResult)
		return res, r.Err
	case <-ctx.Done():
		return model.SyncResult{Symbol: key, State: model.StateSkipped, Skip: model.SkipFailed, Err: ctx.Err()}, ctx.Err()
	}
}
