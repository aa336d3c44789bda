// Package archive exports stored bars to Parquet files, one per symbol.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"PriceSync/internal/model"
	"PriceSync/internal/store"
)

// Extension is the file extension of exported files.
const Extension = "parquet"

// Row is the on-disk layout of one bar. Missing prices stay null.
type Row struct {
	Symbol string   `parquet:"symbol"`
	Date   string   `parquet:"date"`
	Time   int64    `parquet:"t"` // epoch milliseconds, UTC midnight
	Open   *float64 `parquet:"o,optional"`
	High   *float64 `parquet:"h,optional"`
	Low    *float64 `parquet:"l,optional"`
	Close  *float64 `parquet:"c,optional"`
	Volume int64    `parquet:"v"`
}

// Report summarises an export.
type Report struct {
	Files int
	Rows  int
}

// Exporter writes store contents under Dir.
type Exporter struct {
	Store store.Store
	Dir   string
	log   zerolog.Logger
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(st store.Store, dir string, log zerolog.Logger) *Exporter {
	return &Exporter{Store: st, Dir: dir, log: log.With().Str("component", "archive").Logger()}
}

// Export writes bars on or after from for each symbol. An empty symbol list
// exports the whole catalog. Files are named by the spelling the bars are
// stored under, so an aliased ticker lands in its canonical file. Symbols
// without bars produce no file.
func (e *Exporter) Export(ctx context.Context, symbols []string, from time.Time) (Report, error) {
	var rep Report
	if len(symbols) == 0 {
		all, err := e.Store.Symbols(ctx)
		if err != nil {
			return rep, fmt.Errorf("list symbols: %w", err)
		}
		symbols = all
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return rep, fmt.Errorf("create export dir: %w", err)
	}

	seen := make(map[string]bool, len(symbols))
	for _, raw := range symbols {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		sym, err := store.StorageKey(ctx, e.Store, raw)
		if err != nil {
			return rep, fmt.Errorf("resolve %s: %w", raw, err)
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		bars, err := e.Store.Bars(ctx, sym, from)
		if err != nil {
			return rep, fmt.Errorf("read %s: %w", sym, err)
		}
		if len(bars) == 0 {
			e.log.Debug().Str("symbol", sym).Msg("no bars, skipping")
			continue
		}
		path := e.Path(sym)
		if err := parquet.WriteFile(path, Rows(bars)); err != nil {
			return rep, fmt.Errorf("write %s: %w", path, err)
		}
		rep.Files++
		rep.Rows += len(bars)
		e.log.Info().Str("symbol", sym).Int("rows", len(bars)).Str("path", path).Msg("exported")
	}
	return rep, nil
}

// Path returns the file a symbol is exported to.
func (e *Exporter) Path(symbol string) string {
	return filepath.Join(e.Dir, symbol+"."+Extension)
}

// Rows converts bars to their archive layout.
func Rows(bars []model.PriceBar) []Row {
	rows := make([]Row, len(bars))
	for i, b := range bars {
		rows[i] = Row{
			Symbol: b.Symbol,
			Date:   b.Date.Format(model.DateFormat),
			Time:   b.Date.UnixMilli(),
			Open:   float(b.Open),
			High:   float(b.High),
			Low:    float(b.Low),
			Close:  float(b.Close),
			Volume: b.Volume,
		}
	}
	return rows
}

func float(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
