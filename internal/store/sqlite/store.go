// Package sqlite is the append-only signal store.
//
// Each signal is one row in analysis_results. Batches are committed in a
// single transaction so concurrent readers never observe a partial cycle.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"nifty-signals/internal/model"
)

// tsLayout is fixed-width UTC ISO-8601 so that text ordering equals time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/nifty_analysis.db"
}

// Store persists and queries signals.
type Store struct {
	db *sqlx.DB
}

// signalRow is the persisted layout of a signal.
type signalRow struct {
	ID          int64   `db:"id"`
	Symbol      string  `db:"symbol"`
	SignalType  string  `db:"signal_type"`
	Strength    string  `db:"strength"`
	Price       float64 `db:"price"`
	Timestamp   string  `db:"timestamp"`
	Description string  `db:"description"`
}

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("opened signal store", slog.String("component", "sqlite"), slog.String("path", cfg.DBPath))
	return &Store{db: db}, nil
}

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_results (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			signal_type TEXT    NOT NULL,
			strength    TEXT    NOT NULL,
			price       REAL    NOT NULL,
			timestamp   TEXT    NOT NULL,
			description TEXT    NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_analysis_results_ts
			ON analysis_results (timestamp);
	`)
	return err
}

// SaveBatch inserts signals in a single transaction.
func (s *Store) SaveBatch(ctx context.Context, signals []model.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO analysis_results (symbol, signal_type, strength, price, timestamp, description)
		VALUES (:symbol, :signal_type, :strength, :price, :timestamp, :description)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sig := range signals {
		if _, err := stmt.ExecContext(ctx, toRow(sig)); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert %s: %w", sig.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db.DB }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toRow(sig model.Signal) signalRow {
	return signalRow{
		Symbol:      sig.Symbol,
		SignalType:  string(sig.Type),
		Strength:    string(sig.Strength),
		Price:       sig.Price.InexactFloat64(),
		Timestamp:   formatTS(sig.Timestamp),
		Description: sig.Description,
	}
}

func (r signalRow) toSignal() (model.Signal, error) {
	ts, err := parseTS(r.Timestamp)
	if err != nil {
		return model.Signal{}, fmt.Errorf("row %d: %w", r.ID, err)
	}
	return model.Signal{
		ID:          r.ID,
		Symbol:      r.Symbol,
		Type:        model.SignalType(r.SignalType),
		Strength:    model.Strength(r.Strength),
		Price:       decimal.NewFromFloat(r.Price),
		Timestamp:   ts,
		Description: r.Description,
	}, nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	ts, err := time.Parse(tsLayout, s)
	if err == nil {
		return ts, nil
	}
	// rows written by other tools may use plain RFC 3339
	if ts, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
}
