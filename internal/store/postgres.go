package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"PriceSync/internal/model"
)

// PostgresStore persists bars to PostgreSQL.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
	log     zerolog.Logger
}

// NewPostgresStore connects to dsn, checks connectivity and runs migrations.
func NewPostgresStore(ctx context.Context, dsn string, maxOpen int, timeout time.Duration, log zerolog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStoreFromDB(db, timeout, log)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.log.Info().Msg("postgres store opened")
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing connection without migrating.
func NewPostgresStoreFromDB(db *sqlx.DB, timeout time.Duration, log zerolog.Logger) *PostgresStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout, log: log.With().Str("component", "store").Logger()}
}

// Migrate creates the catalog and price tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbol_info (
			symbol     TEXT PRIMARY KEY,
			name       TEXT,
			status     TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS daily_price (
			symbol TEXT NOT NULL,
			date   DATE NOT NULL,
			open   NUMERIC,
			high   NUMERIC,
			low    NUMERIC,
			close  NUMERIC,
			volume BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_price_date ON daily_price(date)`,
		`CREATE TABLE IF NOT EXISTS symbol_alias (
			raw        TEXT PRIMARY KEY,
			canonical  TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *PostgresStore) LastKnownDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var last sql.NullTime
	err := s.db.QueryRowxContext(ctx,
		`SELECT MAX(date) FROM daily_price WHERE symbol = $1`, strings.ToUpper(symbol)).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last known date %s: %w", symbol, err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return model.Day(last.Time), true, nil
}

func (s *PostgresStore) UpsertBars(ctx context.Context, bars []model.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(bars)/1000+1))
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO daily_price (symbol, date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, date) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, b := range bars {
		res, err := stmt.ExecContext(ctx,
			strings.ToUpper(b.Symbol), b.Date.Format(model.DateFormat),
			b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return 0, fmt.Errorf("insert %s %s: %w", b.Symbol, b.Date.Format(model.DateFormat), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) Symbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []string
	if err := s.db.SelectContext(ctx, &out, `SELECT symbol FROM symbol_info ORDER BY symbol`); err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) EnsureSymbols(ctx context.Context, symbols []string) (int, error) {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	added := 0
	for _, sym := range symbols {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO symbol_info (symbol, name) VALUES ($1, $1)
			ON CONFLICT (symbol) DO NOTHING`, sym)
		if err != nil {
			return added, fmt.Errorf("seed symbol %s: %w", sym, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
			s.log.Info().Str("symbol", sym).Msg("seeded missing configured symbol")
		}
	}
	return added, nil
}

func (s *PostgresStore) SetCanonical(ctx context.Context, raw, canonical string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO symbol_alias (raw, canonical) VALUES ($1, $2)
		ON CONFLICT (raw) DO UPDATE SET canonical = EXCLUDED.canonical, updated_at = now()`,
		strings.ToUpper(raw), strings.ToUpper(canonical))
	if err != nil {
		return fmt.Errorf("set canonical %s: %w", raw, err)
	}
	return nil
}

func (s *PostgresStore) Canonical(ctx context.Context, raw string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var canonical string
	err := s.db.GetContext(ctx, &canonical, `SELECT canonical FROM symbol_alias WHERE raw = $1`, strings.ToUpper(raw))
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("canonical %s: %w", raw, err)
	}
	return canonical, true, nil
}

type barRow struct {
	Symbol string              `db:"symbol"`
	Date   time.Time           `db:"date"`
	Open   decimal.NullDecimal `db:"open"`
	High   decimal.NullDecimal `db:"high"`
	Low    decimal.NullDecimal `db:"low"`
	Close  decimal.NullDecimal `db:"close"`
	Volume int64               `db:"volume"`
}

func (s *PostgresStore) Bars(ctx context.Context, symbol string, from time.Time) ([]model.PriceBar, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []barRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT symbol, date, open, high, low, close, volume
		FROM daily_price
		WHERE symbol = $1 AND date >= $2
		ORDER BY date`, strings.ToUpper(symbol), from.UTC().Format(model.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", symbol, err)
	}

	out := make([]model.PriceBar, len(rows))
	for i, r := range rows {
		out[i] = model.PriceBar{
			Symbol: r.Symbol,
			Date:   model.Day(r.Date),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
