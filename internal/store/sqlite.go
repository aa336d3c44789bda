package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"PriceSync/internal/model"
)

// SQLiteStore persists bars to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writers
	log zerolog.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string, log zerolog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the read path query while a bulk run writes.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbol_info (
			symbol     TEXT PRIMARY KEY,
			name       TEXT,
			status     TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS daily_price (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   TEXT,
			high   TEXT,
			low    TEXT,
			close  TEXT,
			volume INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_price_date ON daily_price(date)`,

		`CREATE TABLE IF NOT EXISTS symbol_alias (
			raw        TEXT PRIMARY KEY,
			canonical  TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) LastKnownDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM daily_price WHERE symbol = ?`, strings.ToUpper(symbol)).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last known date %s: %w", symbol, err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	d, err := time.ParseInLocation(model.DateFormat, last.String, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse stored date %q: %w", last.String, err)
	}
	return d, true, nil
}

func (s *SQLiteStore) UpsertBars(ctx context.Context, bars []model.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO daily_price
		(symbol, date, open, high, low, close, volume)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, b := range bars {
		res, err := stmt.ExecContext(ctx,
			strings.ToUpper(b.Symbol), b.Date.Format(model.DateFormat),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
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

func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM symbol_info ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) EnsureSymbols(ctx context.Context, symbols []string) (int, error) {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	added := 0
	for _, sym := range symbols {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO symbol_info (symbol, name, created_at) VALUES (?,?,?)`,
			sym, sym, now)
		if err != nil {
			return 0, fmt.Errorf("seed symbol %s: %w", sym, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
			s.log.Info().Str("symbol", sym).Msg("seeded missing configured symbol")
		}
	}
	return added, tx.Commit()
}

func (s *SQLiteStore) SetCanonical(ctx context.Context, raw, canonical string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO symbol_alias (raw, canonical, updated_at) VALUES (?,?,?)
		ON CONFLICT(raw) DO UPDATE SET canonical = excluded.canonical, updated_at = excluded.updated_at`,
		strings.ToUpper(raw), strings.ToUpper(canonical), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set canonical %s: %w", raw, err)
	}
	return nil
}

func (s *SQLiteStore) Canonical(ctx context.Context, raw string) (string, bool, error) {
	var canonical string
	err := s.db.QueryRowContext(ctx, `SELECT canonical FROM symbol_alias WHERE raw = ?`,
		strings.ToUpper(raw)).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("canonical %s: %w", raw, err)
	}
	return canonical, true, nil
}

func (s *SQLiteStore) Bars(ctx context.Context, symbol string, from time.Time) ([]model.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, date, open, high, low, close, volume
		FROM daily_price WHERE symbol = ? AND date >= ? ORDER BY date`,
		strings.ToUpper(symbol), from.UTC().Format(model.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []model.PriceBar
	for rows.Next() {
		var (
			b    model.PriceBar
			date string
		)
		if err := rows.Scan(&b.Symbol, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		if b.Date, err = time.ParseInLocation(model.DateFormat, date, time.UTC); err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", date, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}
