package model

import "time"

// FetchWindow is the closed date range [Start, End] a sync cycle needs.
// Grace widens the upstream request only; results are always filtered back to [Start, End].
type FetchWindow struct {
	Start time.Time
	End   time.Time
	Grace int // days
}

// Empty reports whether the window is a no-op (Start after End).
func (w FetchWindow) Empty() bool { return w.Start.After(w.End) }

// Contains reports whether d falls inside [Start, End].
func (w FetchWindow) Contains(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// RequestStart is the start date sent upstream: Start minus the grace days,
// unless that would land after End.
func (w FetchWindow) RequestStart() time.Time {
	s := w.Start.AddDate(0, 0, -w.Grace)
	if s.After(w.End) {
		return w.Start
	}
	return s
}

func (w FetchWindow) String() string {
	return w.Start.Format(DateFormat) + ".." + w.End.Format(DateFormat)
}
