package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"PriceSync/internal/model"
)

// maxListed caps how many symbols a report names per section.
const maxListed = 10

// FormatRunSummary formats a bulk run report.
func FormatRunSummary(s *model.RunSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>Price sync</b> | %s\n\n", s.StartedAt.UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Symbols: %d\n", len(s.Results)))
	b.WriteString(fmt.Sprintf("Merged: %d (%d rows)\n", s.Merged, s.Inserted))
	b.WriteString(fmt.Sprintf("Skipped: %d\n", s.Skipped))
	b.WriteString(fmt.Sprintf("Failed: %d\n", s.Failed))
	if !s.FinishedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Took: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second)))
	}

	var unavailable, failed []string
	for _, r := range s.Results {
		switch r.Skip {
		case model.SkipUnavailable:
			unavailable = append(unavailable, r.Symbol)
		case model.SkipFailed:
			failed = append(failed, r.Symbol)
		}
	}
	writeList(&b, "⚠️ Upstream unavailable", unavailable)
	writeList(&b, "❌ Failed", failed)

	b.WriteString(fmt.Sprintf("\n<code>%s</code>", html.EscapeString(s.RunID)))
	return b.String()
}

// FormatStatus formats the last run, or a placeholder before the first one.
func FormatStatus(s *model.RunSummary) string {
	if s == nil {
		return "No bulk run has finished yet."
	}
	return FormatRunSummary(s)
}

func writeList(b *strings.Builder, title string, syms []string) {
	if len(syms) == 0 {
		return
	}
	sort.Strings(syms)
	extra := 0
	if len(syms) > maxListed {
		extra = len(syms) - maxListed
		syms = syms[:maxListed]
	}
	b.WriteString(fmt.Sprintf("\n%s:\n", title))
	for _, sym := range syms {
		b.WriteString("• " + html.EscapeString(sym) + "\n")
	}
	if extra > 0 {
		b.WriteString(fmt.Sprintf("… and %d more\n", extra))
	}
}
