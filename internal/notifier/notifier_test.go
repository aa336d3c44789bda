package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceSync/internal/model"
)

func newTestNotifier(t *testing.T, h http.HandlerFunc) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier("TOKEN", "42", srv.Client(), zerolog.Nop())
	n.APIBase = srv.URL
	n.Backoff = time.Millisecond
	return n
}

func TestSend_PostsHTMLMessage(t *testing.T) {
	var got map[string]string
	var path string
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, n.Send(context.Background(), "<b>hi</b>"))
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "<b>hi</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestSend_NonOKStatus(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad chat", http.StatusBadRequest)
	})
	err := n.Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestSendWithRetry_RecoversAfterFailures(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, n.SendWithRetry(context.Background(), "x", 3))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	err := n.SendWithRetry(context.Background(), "x", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 attempts exhausted")
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendWithRetry_ContextCancelled(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	n.Backoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err := n.SendWithRetry(ctx, "x", 3)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEnabled(t *testing.T) {
	var n *TelegramNotifier
	assert.False(t, n.Enabled())
	assert.False(t, NewTelegramNotifier("", "1", nil, zerolog.Nop()).Enabled())
	assert.True(t, NewTelegramNotifier("t", "1", nil, zerolog.Nop()).Enabled())
}

func TestStartPolling_RepliesToCommands(t *testing.T) {
	var mu sync.Mutex
	var replies []string
	var polls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if polls.Add(1) == 1 {
				assert.Equal(t, "0", r.URL.Query().Get("offset"))
				_, _ = w.Write([]byte(`{"ok":true,"result":[
					{"update_id":7,"message":{"text":" /status "}},
					{"update_id":8}
				]}`))
				return
			}
			assert.Equal(t, "9", r.URL.Query().Get("offset"))
			cancel()
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var m map[string]string
			_ = json.NewDecoder(r.Body).Decode(&m)
			mu.Lock()
			replies = append(replies, m["text"])
			mu.Unlock()
		}
	})

	done := make(chan struct{})
	go func() {
		n.StartPolling(ctx, func(_ context.Context, cmd string) string {
			return "echo " + cmd
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"echo /status"}, replies)
}

func TestFormatRunSummary(t *testing.T) {
	start := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	s := &model.RunSummary{RunID: "run-1", StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	s.Add(model.SyncResult{Symbol: "AAPL", State: model.StateMerged, RowsInserted: 2})
	s.Add(model.SyncResult{Symbol: "MSFT", State: model.StateSkipped, Skip: model.SkipUpToDate})
	s.Add(model.SyncResult{Symbol: "ZZZ", State: model.StateSkipped, Skip: model.SkipUnavailable})
	s.Add(model.SyncResult{Symbol: "<BAD>", State: model.StateSkipped, Skip: model.SkipFailed})

	out := FormatRunSummary(s)
	assert.Contains(t, out, "2024-01-12 00:00")
	assert.Contains(t, out, "Symbols: 4")
	assert.Contains(t, out, "Merged: 1 (2 rows)")
	assert.Contains(t, out, "Skipped: 2")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "Took: 1m30s")
	assert.Contains(t, out, "• ZZZ")
	assert.Contains(t, out, "• &lt;BAD&gt;")
	assert.Contains(t, out, "<code>run-1</code>")
}

func TestFormatRunSummary_TruncatesLongLists(t *testing.T) {
	s := &model.RunSummary{RunID: "r"}
	for i := 0; i < maxListed+3; i++ {
		s.Add(model.SyncResult{Symbol: string(rune('A' + i)), Skip: model.SkipFailed, State: model.StateSkipped})
	}
	assert.Contains(t, FormatRunSummary(s), "… and 3 more")
	assert.Equal(t, "No bulk run has finished yet.", FormatStatus(nil))
}
