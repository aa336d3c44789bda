package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"PriceSync/internal/model"
)

// ChartError is the chart.error object the upstream uses for known
// non-fatal conditions.
type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *ChartError) Error() string {
	return fmt.Sprintf("yahoo chart error %s: %s", e.Code, e.Description)
}

// yahooChart keeps every series element raw so one malformed value only
// affects its own index.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []json.RawMessage `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []json.RawMessage `json:"open"`
					High   []json.RawMessage `json:"high"`
					Low    []json.RawMessage `json:"low"`
					Close  []json.RawMessage `json:"close"`
					Volume []json.RawMessage `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *ChartError `json:"error"`
	} `json:"chart"`
}

// ParseChart converts a chart response into bars for symbol. Indexes where both
// open and close are absent are skipped as non-trading days. Values that are not
// JSON numbers count as absent; an unreadable timestamp skips only its index.
func ParseChart(symbol string, body []byte) ([]model.PriceBar, error) {
	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, chart.Chart.Error
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil
	}
	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, nil
	}

	quote := result.Indicators.Quote[0]
	upper := strings.ToUpper(symbol)
	bars := make([]model.PriceBar, 0, len(result.Timestamp))

	for i, raw := range result.Timestamp {
		ts, ok := rawInt(raw)
		if !ok {
			continue
		}
		open := rawDecimal(quote.Open, i)
		closePx := rawDecimal(quote.Close, i)
		if !open.Valid && !closePx.Valid {
			continue // non-trading day
		}
		vol, _ := rawIntAt(quote.Volume, i)
		if vol < 0 {
			vol = 0
		}
		bars = append(bars, model.PriceBar{
			Symbol: upper,
			Date:   model.Day(time.Unix(ts, 0)),
			Open:   open,
			High:   rawDecimal(quote.High, i),
			Low:    rawDecimal(quote.Low, i),
			Close:  closePx,
			Volume: vol,
		})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func isNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}

func rawDecimal(series []json.RawMessage, i int) decimal.NullDecimal {
	if i >= len(series) || !isNumber(series[i]) {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(string(bytes.TrimSpace(series[i])))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func rawIntAt(series []json.RawMessage, i int) (int64, bool) {
	if i >= len(series) {
		return 0, false
	}
	return rawInt(series[i])
}

func rawInt(raw json.RawMessage) (int64, bool) {
	if !isNumber(raw) {
		return 0, false
	}
	s := string(bytes.TrimSpace(raw))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.IntPart(), true
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

var preferredTypes = map[string]bool{
	"EQUITY":     true,
	"ETF":        true,
	"MUTUALFUND": true,
}

// PickQuote selects the canonical symbol from a search response: the first
// quote of a preferred instrument type, else the first quote.
func PickQuote(body []byte) (string, bool, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, fmt.Errorf("yahoo search decode: %w", err)
	}
	for _, q := range resp.Quotes {
		if q.Symbol != "" && preferredTypes[strings.ToUpper(q.QuoteType)] {
			return q.Symbol, true, nil
		}
	}
	if len(resp.Quotes) == 0 || resp.Quotes[0].Symbol == "" {
		return "", false, nil
	}
	return resp.Quotes[0].Symbol, true, nil
}
