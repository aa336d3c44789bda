package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounters(t *testing.T) {
	r := New()
	r.FetchAttempt("retryable")
	r.FetchAttempt("retryable")
	r.FetchAttempt("parsed")
	r.Inserted(5)
	r.Inserted(0)
	r.AliasLookup(true)
	r.AliasLookup(false)
	r.SyncResult("SKIPPED", "no_data")
	r.SetBreaker(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.FetchAttempts.WithLabelValues("retryable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchAttempts.WithLabelValues("parsed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.RowsInserted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AliasLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SyncResults.WithLabelValues("SKIPPED", "no_data")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.BreakerState))
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.FetchAttempt("parsed")
		r.SyncResult("DONE", "up_to_date")
		r.Inserted(3)
		r.AliasLookup(true)
		r.ObserveRun(time.Second)
		r.SetBreaker(1)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveRun(2 * time.Second)
	r.Inserted(1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "pricesync_rows_inserted_total 1"))
	assert.True(t, strings.Contains(body, "pricesync_bulk_run_seconds_count 1"))
}
