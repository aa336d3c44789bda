package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceSync/internal/metrics"
	"PriceSync/internal/model"
	"PriceSync/internal/scheduler"
	"PriceSync/internal/store"
	"PriceSync/internal/symbol"
)

type fakeSyncer struct {
	mu        sync.Mutex
	calls     []string
	canonical string
	err       error
	onSync    func()
}

func (f *fakeSyncer) EnsureUpToDate(_ context.Context, raw string) (model.SyncResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, raw)
	f.mu.Unlock()
	if f.onSync != nil {
		f.onSync()
	}
	return model.SyncResult{Symbol: raw, Canonical: f.canonical}, f.err
}

type fakeTrigger struct {
	err  error
	last *model.RunSummary
	hits int
}

func (f *fakeTrigger) Trigger() error           { f.hits++; return f.err }
func (f *fakeTrigger) Last() *model.RunSummary { return f.last }

func bar(sym, date, close string) model.PriceBar {
	b := model.PriceBar{Symbol: sym, Date: model.MustDate(date)}
	if close != "" {
		b.Close = decimal.NewNullDecimal(decimal.RequireFromString(close))
	}
	return b
}

func newTestServer(t *testing.T, deps Deps) (*Server, *store.MemoryStore) {
	t.Helper()
	st, ok := deps.Store.(*store.MemoryStore)
	if !ok {
		st = store.NewMemoryStore()
		deps.Store = st
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return NewServer(":0", deps, zerolog.Nop()), st
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodePoints(t *testing.T, rec *httptest.ResponseRecorder) []PricePoint {
	t.Helper()
	var pts []PricePoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pts))
	return pts
}

func TestPrices_AutofetchThenRead(t *testing.T) {
	sy := &fakeSyncer{}
	s, st := newTestServer(t, Deps{Syncer: sy})
	sy.onSync = func() {
		_, _ = st.UpsertBars(context.Background(), []model.PriceBar{
			bar("AAPL", "2024-01-11", "185.59"),
			bar("AAPL", "2024-01-12", "185.92"),
		})
	}

	rec := get(t, s, "/api/prices?symbol=aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	pts := decodePoints(t, rec)
	require.Len(t, pts, 2)
	assert.Equal(t, model.MustDate("2024-01-11").UnixMilli(), pts[0].Time)
	assert.InDelta(t, 185.59, pts[0].Price, 1e-9)
	assert.Equal(t, []string{"AAPL"}, sy.calls)
}

func TestPrices_FromFilterAndNullClose(t *testing.T) {
	s, st := newTestServer(t, Deps{})
	_, err := st.UpsertBars(context.Background(), []model.PriceBar{
		bar("MSFT", "2024-01-10", "1"),
		bar("MSFT", "2024-01-11", ""),
		bar("MSFT", "2024-01-12", "3"),
	})
	require.NoError(t, err)

	pts := decodePoints(t, get(t, s, "/api/prices?symbol=MSFT&from=2024-01-11"))
	require.Len(t, pts, 1)
	assert.Equal(t, model.MustDate("2024-01-12").UnixMilli(), pts[0].Time)
}

func TestPrices_AutofetchDisabled(t *testing.T) {
	sy := &fakeSyncer{}
	s, _ := newTestServer(t, Deps{Syncer: sy})
	rec := get(t, s, "/api/prices?symbol=AAPL&autofetch=false")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
	assert.Empty(t, sy.calls)
}

func TestPrices_SyncErrorStillServesStoredData(t *testing.T) {
	sy := &fakeSyncer{err: errors.New("db locked")}
	s, st := newTestServer(t, Deps{Syncer: sy})
	_, _ = st.UpsertBars(context.Background(), []model.PriceBar{bar("AAPL", "2024-01-11", "1")})

	rec := get(t, s, "/api/prices?symbol=AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodePoints(t, rec), 1)
}

func TestPrices_ReadsCanonicalSymbol(t *testing.T) {
	aliases := symbol.NewMemoryAliases(0)
	aliases.Store(context.Background(), "BRK.B", "BRK-B")
	s, st := newTestServer(t, Deps{Aliases: aliases})
	_, _ = st.UpsertBars(context.Background(), []model.PriceBar{bar("BRK-B", "2024-01-11", "363.5")})

	pts := decodePoints(t, get(t, s, "/api/prices?symbol=brk.b&autofetch=0"))
	require.Len(t, pts, 1)

	sy := &fakeSyncer{canonical: "BRK-B"}
	s2, st2 := newTestServer(t, Deps{Syncer: sy})
	_, _ = st2.UpsertBars(context.Background(), []model.PriceBar{bar("BRK-B", "2024-01-11", "363.5")})
	assert.Len(t, decodePoints(t, get(t, s2, "/api/prices?symbol=BRK.B")), 1)
}

func TestPrices_RecordedCanonicalWithColdAliasCache(t *testing.T) {
	ctx := context.Background()
	sy := &fakeSyncer{}
	s, st := newTestServer(t, Deps{Syncer: sy, Aliases: symbol.NewMemoryAliases(0)})
	require.NoError(t, st.SetCanonical(ctx, "BRK.B", "BRK-B"))
	_, err := st.UpsertBars(ctx, []model.PriceBar{
		bar("BRK-B", "2024-01-11", "363.5"),
		bar("BRK-B", "2024-01-12", "364.1"),
	})
	require.NoError(t, err)

	pts := decodePoints(t, get(t, s, "/api/prices?symbol=BRK.B&autofetch=false"))
	require.Len(t, pts, 2)
	assert.InDelta(t, 364.1, pts[1].Price, 1e-9)
	assert.Empty(t, sy.calls)
}

func TestPrices_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	for _, target := range []string{
		"/api/prices",
		"/api/prices?symbol=AAPL&from=11-01-2024",
		"/api/prices?symbol=AAPL&autofetch=maybe",
	} {
		assert.Equal(t, http.StatusBadRequest, get(t, s, target).Code, target)
	}
}

func TestPrices_StorageError(t *testing.T) {
	st := store.NewMemoryStore()
	st.Err = errors.New("disk gone")
	s, _ := newTestServer(t, Deps{Store: st})
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/api/prices?symbol=AAPL&autofetch=false").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/healthz").Code)
}

func TestTriggerSync(t *testing.T) {
	tr := &fakeTrigger{}
	s, _ := newTestServer(t, Deps{Trigger: tr})

	post := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
		return rec
	}
	assert.Equal(t, http.StatusAccepted, post().Code)

	tr.err = scheduler.ErrRunInProgress
	rec := post()
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in progress")
	assert.Equal(t, 2, tr.hits)

	assert.Equal(t, http.StatusMethodNotAllowed, get(t, s, "/api/sync").Code)
}

func TestLastRun(t *testing.T) {
	tr := &fakeTrigger{}
	s, _ := newTestServer(t, Deps{Trigger: tr})
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/sync/last").Code)

	tr.last = &model.RunSummary{RunID: "abc", StartedAt: time.Now()}
	tr.last.Add(model.SyncResult{Symbol: "AAPL", State: model.StateMerged, RowsInserted: 2})
	rec := get(t, s, "/api/sync/last")
	require.Equal(t, http.StatusOK, rec.Code)
	var v runView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "abc", v.RunID)
	assert.Equal(t, 1, v.Merged)
	assert.Equal(t, 2, v.Inserted)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := metrics.New()
	reg.Inserted(3)
	s, _ := newTestServer(t, Deps{Metrics: reg})

	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pricesync_rows_inserted_total 3"))
}
