package model

import "time"

// SyncState is the stage a per-symbol cycle reached.
type SyncState string

const (
	StatePlanned   SyncState = "PLANNED"
	StateResolving SyncState = "RESOLVING"
	StateFetching  SyncState = "FETCHING"
	StateParsing   SyncState = "PARSING"
	StateFiltering SyncState = "FILTERING"
	StateMerged    SyncState = "MERGED"
	StateSkipped   SyncState = "SKIPPED"
	StateDone      SyncState = "DONE"
)

// SkipReason explains why a cycle merged nothing.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipUpToDate    SkipReason = "up_to_date"
	SkipNoData      SkipReason = "no_data"
	SkipUnavailable SkipReason = "upstream_unavailable"
	SkipNothingNew  SkipReason = "nothing_new"
	SkipFailed      SkipReason = "failed"
)

// SyncResult is the outcome of one cycle for one symbol.
type SyncResult struct {
	Symbol       string
	Canonical    string
	Window       FetchWindow
	State        SyncState
	Skip         SkipReason
	RowsInserted int
	Err          error
}

// RunSummary aggregates one bulk run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SyncResult
	Inserted   int
	Merged     int
	Skipped    int
	Failed     int
}

// Add folds r into the summary counters.
func (s *RunSummary) Add(r SyncResult) {
	s.Results = append(s.Results, r)
	s.Inserted += r.RowsInserted
	switch {
	case r.Skip == SkipFailed:
		s.Failed++
	case r.State == StateMerged:
		s.Merged++
	default:
		s.Skipped++
	}
}
