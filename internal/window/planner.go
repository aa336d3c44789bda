// Package window computes the incremental fetch window for a symbol.
package window

import (
	"time"

	"PriceSync/internal/model"
)

const (
	DefaultGraceDays    = 7
	DefaultSessionClose = 21 * time.Hour
)

// DefaultFloor is the start date used for symbols with no stored history.
var DefaultFloor = model.MustDate("1990-01-01")

// Planner turns a last known date into a FetchWindow.
type Planner struct {
	Floor time.Time
	// GraceDays widens the upstream request start to ride over holiday gaps.
	GraceDays int
	// SessionClose is the UTC time of day after which today's session counts as
	// completed. Zero treats today as complete.
	SessionClose time.Duration
}

// NewPlanner returns a planner with the default floor, grace and session close.
func NewPlanner() *Planner {
	return &Planner{
		Floor:        DefaultFloor,
		GraceDays:    DefaultGraceDays,
		SessionClose: DefaultSessionClose,
	}
}

// Plan computes the window for a symbol. known reports whether lastKnown holds
// a stored date. The returned window is empty when nothing is due.
func (p *Planner) Plan(lastKnown time.Time, known bool, now time.Time) model.FetchWindow {
	end := LastCompletedWeekday(now, p.SessionClose)

	start := p.Floor
	if start.IsZero() {
		start = DefaultFloor
	}
	if known {
		start = model.Day(lastKnown).AddDate(0, 0, 1)
	}

	return model.FetchWindow{Start: model.Day(start), End: end, Grace: p.GraceDays}
}

// LastCompletedWeekday is the most recent weekday whose session has closed.
// Before sessionClose (UTC) today is not yet complete and the day steps back by one;
// the result is then clamped backward over Saturday and Sunday.
func LastCompletedWeekday(now time.Time, sessionClose time.Duration) time.Time {
	now = now.UTC()
	day := model.Day(now)
	if sessionClose > 0 && now.Before(day.Add(sessionClose)) {
		day = day.AddDate(0, 0, -1)
	}
	switch day.Weekday() {
	case time.Saturday:
		day = day.AddDate(0, 0, -1)
	case time.Sunday:
		day = day.AddDate(0, 0, -2)
	}
	return day
}

// IsWeekend reports whether t falls on Saturday or Sunday in UTC.
func IsWeekend(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
