package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the ISO calendar date layout used for storage and logs.
const DateFormat = "2006-01-02"

// PriceBar is one daily OHLCV record for a canonical symbol.
// Open and Close are never both invalid for a stored bar.
type PriceBar struct {
	Symbol string
	Date   time.Time // UTC midnight
	Open   decimal.NullDecimal
	High   decimal.NullDecimal
	Low    decimal.NullDecimal
	Close  decimal.NullDecimal
	Volume int64
}

// Day truncates t to midnight UTC of its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MustDate parses an ISO date and panics on error. Use it for package-level
// constants only.
func MustDate(s string) time.Time {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

// DateRange returns the earliest and latest dates in bars.
func DateRange(bars []PriceBar) (first, last time.Time) {
	for i, b := range bars {
		if i == 0 || b.Date.Before(first) {
			first = b.Date
		}
		if i == 0 || b.Date.After(last) {
			last = b.Date
		}
	}
	return first, last
}
