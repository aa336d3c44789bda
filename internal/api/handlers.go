package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"PriceSync/internal/model"
	"PriceSync/internal/scheduler"
	"PriceSync/internal/store"
	"PriceSync/internal/symbol"
)

// PricePoint is one element of the /api/prices response.
type PricePoint struct {
	Time  int64   `json:"time"` // epoch milliseconds, UTC midnight
	Price float64 `json:"price"`
}

type runView struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Symbols    int       `json:"symbols"`
	Merged     int       `json:"merged"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Inserted   int       `json:"inserted"`
}

// prices serves GET /api/prices?symbol=&from=&autofetch=. Unless autofetch is
// false the symbol is caught up first; sync failures never fail the read.
func (s *Server) prices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := symbol.Normalize(q.Get("symbol"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	var from time.Time
	if v := q.Get("from"); v != "" {
		t, err := time.ParseInLocation(model.DateFormat, v, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}

	autofetch := true
	if v := q.Get("autofetch"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "autofetch must be a boolean")
			return
		}
		autofetch = b
	}

	key := raw
	if autofetch && s.deps.Syncer != nil {
		res, err := s.deps.Syncer.EnsureUpToDate(r.Context(), raw)
		if err != nil {
			s.log.Error().Err(err).Str("symbol", raw).Msg("on-demand sync failed, serving stored data")
		}
		if res.Canonical != "" {
			key = res.Canonical
		}
	}
	if key == raw && s.deps.Aliases != nil {
		if canonical, ok := s.deps.Aliases.Lookup(r.Context(), raw); ok {
			key = canonical
		}
	}
	if key == raw {
		k, err := store.StorageKey(r.Context(), s.deps.Store, raw)
		if err != nil {
			s.log.Error().Err(err).Str("symbol", raw).Msg("resolve storage key")
			writeError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}
		key = k
	}

	bars, err := s.deps.Store.Bars(r.Context(), key, from)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", key).Msg("read bars")
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	points := make([]PricePoint, 0, len(bars))
	for _, b := range bars {
		if !b.Close.Valid {
			continue
		}
		points = append(points, PricePoint{Time: b.Date.UnixMilli(), Price: b.Close.Decimal.InexactFloat64()})
	}
	writeJSON(w, http.StatusOK, points)
}

// triggerSync serves POST /api/sync.
func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}
	if err := s.deps.Trigger.Trigger(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scheduler.ErrRunInProgress) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// lastRun serves GET /api/sync/last.
func (s *Server) lastRun(w http.ResponseWriter, r *http.Request) {
	var last *model.RunSummary
	if s.deps.Trigger != nil {
		last = s.deps.Trigger.Last()
	}
	if last == nil {
		writeError(w, http.StatusNotFound, "no run has finished yet")
		return
	}
	writeJSON(w, http.StatusOK, runView{
		RunID:      last.RunID,
		StartedAt:  last.StartedAt,
		FinishedAt: last.FinishedAt,
		Symbols:    len(last.Results),
		Merged:     last.Merged,
		Skipped:    last.Skipped,
		Failed:     last.Failed,
		Inserted:   last.Inserted,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
