package collector

import (
	"context"
	"errors"

	"PriceSync/internal/model"
)

// ErrUpstreamUnavailable is returned once retries are exhausted or the circuit
// breaker is open. Callers treat it as a skip, never as a hard failure.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Fetcher defines the upstream operations the resolver and syncer need.
type Fetcher interface {
	// FetchHistory returns the bars the upstream holds for symbol over the
	// widened request range of w. Empty and not-found are (nil, nil).
	FetchHistory(ctx context.Context, symbol string, w model.FetchWindow) ([]model.PriceBar, error)
	// Search looks up a canonical symbol for a free-text query.
	Search(ctx context.Context, query string) (string, bool, error)
}
