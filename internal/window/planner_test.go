package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceSync/internal/model"
)

func TestLastCompletedWeekday(t *testing.T) {
	tests := []struct {
		name  string
		now   time.Time
		close time.Duration
		want  string
	}{
		{"monday midnight before close", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), DefaultSessionClose, "2024-01-12"},
		{"monday after close", time.Date(2024, 1, 15, 22, 0, 0, 0, time.UTC), DefaultSessionClose, "2024-01-15"},
		{"saturday", time.Date(2024, 1, 13, 23, 0, 0, 0, time.UTC), DefaultSessionClose, "2024-01-12"},
		{"sunday", time.Date(2024, 1, 14, 12, 0, 0, 0, time.UTC), DefaultSessionClose, "2024-01-12"},
		{"wednesday morning", time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC), DefaultSessionClose, "2024-01-16"},
		{"plain clamp monday", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 0, "2024-01-15"},
		{"plain clamp saturday", time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC), 0, "2024-01-12"},
		{"plain clamp sunday", time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC), 0, "2024-01-12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LastCompletedWeekday(tt.now, tt.close)
			assert.Equal(t, tt.want, got.Format(model.DateFormat))
		})
	}
}

func TestPlanAAPLMonday(t *testing.T) {
	p := NewPlanner()
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	w := p.Plan(model.MustDate("2024-01-10"), true, now)
	require.False(t, w.Empty())
	assert.Equal(t, "2024-01-11", w.Start.Format(model.DateFormat))
	assert.Equal(t, "2024-01-12", w.End.Format(model.DateFormat))
	// Widened start would be 2024-01-04, which is still before End.
	assert.Equal(t, "2024-01-04", w.RequestStart().Format(model.DateFormat))
}

func TestPlanNoHistoryUsesFloor(t *testing.T) {
	p := NewPlanner()
	w := p.Plan(time.Time{}, false, time.Date(2024, 1, 15, 22, 0, 0, 0, time.UTC))
	assert.Equal(t, DefaultFloor, w.Start)
	assert.Equal(t, "1990-01-01", w.Start.Format(model.DateFormat))
	assert.Equal(t, time.UTC, w.Start.Location())
	assert.False(t, w.Empty())
}

// The window is a no-op exactly when the last known date is on or after the
// last completed weekday.
func TestPlanNoOpProperty(t *testing.T) {
	p := NewPlanner()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for n := 0; n < 21; n++ {
		for _, hour := range []int{0, 12, 22} {
			now := base.AddDate(0, 0, n).Add(time.Duration(hour) * time.Hour)
			lcw := LastCompletedWeekday(now, p.SessionClose)
			for delta := -5; delta <= 3; delta++ {
				last := lcw.AddDate(0, 0, delta)
				w := p.Plan(last, true, now)
				assert.Equal(t, !last.Before(lcw), w.Empty(), "now=%s last=%s", now, last.Format(model.DateFormat))
			}
		}
	}
}

func TestRequestStartNeverAfterEnd(t *testing.T) {
	p := NewPlanner()
	now := time.Date(2024, 1, 16, 22, 0, 0, 0, time.UTC)
	w := p.Plan(model.MustDate("2024-01-15"), true, now)
	require.False(t, w.Empty())
	assert.False(t, w.RequestStart().After(w.End))
	assert.False(t, w.RequestStart().After(w.Start))
}

func TestIsWeekend(t *testing.T) {
	assert.True(t, IsWeekend(time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC)))
	assert.True(t, IsWeekend(time.Date(2024, 1, 14, 10, 0, 0, 0, time.UTC)))
	assert.False(t, IsWeekend(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)))
}
