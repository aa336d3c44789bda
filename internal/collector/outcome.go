package collector

import (
	"bytes"
	"fmt"
	"net/http"

	"PriceSync/internal/model"
)

// Kind is the closed set of classified upstream outcomes.
type Kind int

const (
	Parsed Kind = iota
	Empty
	NotFound
	Retryable
)

func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case Empty:
		return "empty"
	case NotFound:
		return "not_found"
	case Retryable:
		return "retryable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is decided once at the HTTP boundary. Only Retryable is retried.
type Outcome struct {
	Kind   Kind
	Status int   // HTTP status, zero for transport errors
	Err    error // transport or decode error, if any
	Bars   []model.PriceBar
	Symbol string // search result
}

func (o Outcome) String() string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	case o.Status != 0:
		return fmt.Sprintf("%s (status %d)", o.Kind, o.Status)
	default:
		return o.Kind.String()
	}
}

var noDataMarker = []byte("Data doesn't exist for startDate")

// classifyStatus handles the status codes shared by chart and search calls.
// ok reports whether the body should be decoded.
func classifyStatus(status int, body []byte) (Outcome, bool) {
	switch {
	case status >= 200 && status < 300:
		return Outcome{Status: status}, true
	case status == http.StatusBadRequest && bytes.Contains(body, noDataMarker):
		return Outcome{Kind: Empty, Status: status}, false
	case status == http.StatusNotFound:
		return Outcome{Kind: NotFound, Status: status}, false
	default:
		return Outcome{Kind: Retryable, Status: status}, false
	}
}

func classifyChart(symbol string, status int, body []byte) Outcome {
	out, ok := classifyStatus(status, body)
	if !ok {
		return out
	}
	bars, err := ParseChart(symbol, body)
	if err != nil {
		return Outcome{Kind: Empty, Status: status, Err: err}
	}
	if len(bars) == 0 {
		return Outcome{Kind: Empty, Status: status}
	}
	return Outcome{Kind: Parsed, Status: status, Bars: bars}
}

func classifySearch(status int, body []byte) Outcome {
	out, ok := classifyStatus(status, body)
	if !ok {
		return out
	}
	sym, found, err := PickQuote(body)
	if err != nil {
		return Outcome{Kind: Empty, Status: status, Err: err}
	}
	if !found {
		return Outcome{Kind: Empty, Status: status}
	}
	return Outcome{Kind: Parsed, Status: status, Symbol: sym}
}
