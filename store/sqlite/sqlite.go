/*
Package sqlite provides SQLite-backed persistence for the fundamentals engine.

PURPOSE:
  Implements the persistence side of the engine with SQLite:
  - fundamentals.Sink:    Exported quarterly/annual tables
  - PayloadCache:         TTL cache of fetched payloads (see cache.go)
  - Tracked symbols and refresh-run history for the API and scheduler

KEY TABLES:
  payloads:        Last fetched document per symbol (JSON text)
  symbols:         Symbols served and refreshed by the API
  exports:         One row per exported statement batch
  exported_values: Long-format cells of an export, labeled Quarterly/Annual
  refresh_runs:    History of scheduled and manual refreshes

VALUES:
  Metric values are stored as exact decimal TEXT (fundamentals.FormatValue),
  NULL when absent. They are never stored as REAL.

TIMESTAMPS:
  UTC, fixed width (timeLayout), so text order is time order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/fundamentals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ids, err := financials.Export(ctx, store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - fundamentals/store.go: Fetcher and Sink interfaces
  - fundamentals/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/fundamentals-engine/fundamentals"
)

// Store implements the engine's persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Raw payload cache
	CREATE TABLE IF NOT EXISTS payloads (
		symbol TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		fetched_at TEXT NOT NULL
	);

	-- Tracked symbols
	CREATE TABLE IF NOT EXISTS symbols (
		symbol TEXT PRIMARY KEY,
		added_at TEXT NOT NULL
	);

	-- Export batches
	CREATE TABLE IF NOT EXISTS exports (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		statement TEXT NOT NULL,
		quarter_count INTEGER NOT NULL,
		year_count INTEGER NOT NULL,
		exported_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exports_symbol_statement
		ON exports(symbol, statement, exported_at);

	-- Export cells (long format)
	-- period is YYYY-MM-DD for Quarterly rows and YYYY for Annual rows
	CREATE TABLE IF NOT EXISTS exported_values (
		export_id TEXT NOT NULL REFERENCES exports(id) ON DELETE CASCADE,
		frequency TEXT NOT NULL CHECK (frequency IN ('Quarterly', 'Annual')),
		period TEXT NOT NULL,
		metric TEXT NOT NULL,
		value TEXT,
		PRIMARY KEY (export_id, frequency, period, metric)
	);

	-- Refresh history
	CREATE TABLE IF NOT EXISTS refresh_runs (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		triggered_by TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_runs_started
		ON refresh_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SYMBOL STORE
// =============================================================================

// SaveSymbol starts tracking a symbol. Saving an existing symbol is a no-op.
func (s *Store) SaveSymbol(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO symbols (symbol, added_at) VALUES (?, ?) ON CONFLICT(symbol) DO NOTHING`,
		normalizeSymbol(symbol), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save symbol: %w", err)
	}
	return nil
}

// IsTracked reports whether a symbol is on the tracked list.
func (s *Store) IsTracked(ctx context.Context, symbol string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM symbols WHERE symbol = ?`, normalizeSymbol(symbol),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check symbol: %w", err)
	}
	return n > 0, nil
}

// ListSymbols returns tracked symbols in alphabetical order.
func (s *Store) ListSymbols(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM symbols ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// DeleteSymbol stops tracking a symbol and drops its cached payload.
func (s *Store) DeleteSymbol(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol = normalizeSymbol(symbol)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM symbols WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("failed to delete symbol: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM payloads WHERE symbol = ?`, symbol)
	return err
}

// =============================================================================
// EXPORT SINK (fundamentals.Sink interface)
// =============================================================================

// ExportRecord describes one stored export batch.
type ExportRecord struct {
	ID           string
	Symbol       string
	Statement    fundamentals.StatementKind
	QuarterCount int
	YearCount    int
	ExportedAt   time.Time
}

// ExportedValue is one cell of an export.
type ExportedValue struct {
	Frequency string // fundamentals.TableQuarterly or fundamentals.TableAnnual
	Period    string
	Metric    string
	Value     fundamentals.Value
}

// Export writes a batch as a Quarterly table and an Annual table atomically
// and returns the new export ID.
func (s *Store) Export(ctx context.Context, batch fundamentals.ExportBatch) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	id := uuid.New().String()
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO exports (id, symbol, statement, quarter_count, year_count, exported_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, normalizeSymbol(batch.Symbol), string(batch.Kind),
		len(batch.Quarterly), len(batch.Annual), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to insert export: %w", err)
	}

	stmt, err := sqlTx.PrepareContext(ctx, `
		INSERT INTO exported_values (export_id, frequency, period, metric, value)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare values insert: %w", err)
	}
	defer stmt.Close()

	for _, q := range batch.Quarterly {
		for _, metric := range q.Values.Keys() {
			if _, err := stmt.ExecContext(ctx, id, fundamentals.TableQuarterly, q.Date.String(), metric, nullValue(q.Values[metric])); err != nil {
				return "", fmt.Errorf("failed to insert quarterly value: %w", err)
			}
		}
	}
	for year, rec := range batch.Annual {
		for _, metric := range rec.Values.Keys() {
			if _, err := stmt.ExecContext(ctx, id, fundamentals.TableAnnual, strconv.Itoa(year), metric, nullValue(rec.Values[metric])); err != nil {
				return "", fmt.Errorf("failed to insert annual value: %w", err)
			}
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListExports returns export batches for a symbol, newest first. An empty
// symbol lists all.
func (s *Store) ListExports(ctx context.Context, symbol string) ([]ExportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, symbol, statement, quarter_count, year_count, exported_at
		FROM exports
	`
	var args []any
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, normalizeSymbol(symbol))
	}
	query += ` ORDER BY exported_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exports: %w", err)
	}
	defer rows.Close()

	var exports []ExportRecord
	for rows.Next() {
		r, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, r)
	}
	return exports, rows.Err()
}

// GetExport returns one export batch, ErrNotFound if it does not exist.
func (s *Store) GetExport(ctx context.Context, id string) (ExportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, statement, quarter_count, year_count, exported_at
		FROM exports WHERE id = ?
	`, id)
	r, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ExportRecord{}, ErrNotFound
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExport(row rowScanner) (ExportRecord, error) {
	var (
		r          ExportRecord
		statement  string
		exportedAt string
	)
	if err := row.Scan(&r.ID, &r.Symbol, &statement, &r.QuarterCount, &r.YearCount, &exportedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan export: %w", err)
	}
	r.Statement = fundamentals.StatementKind(statement)
	r.ExportedAt, _ = time.Parse(timeLayout, exportedAt)
	return r, nil
}

// ExportedValues returns one table of an export ordered by period (newest
// first) then metric.
func (s *Store) ExportedValues(ctx context.Context, exportID, frequency string) ([]ExportedValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT frequency, period, metric, value
		FROM exported_values
		WHERE export_id = ? AND frequency = ?
		ORDER BY period DESC, metric ASC
	`, exportID, frequency)
	if err != nil {
		return nil, fmt.Errorf("failed to query exported values: %w", err)
	}
	defer rows.Close()

	var values []ExportedValue
	for rows.Next() {
		var (
			v   ExportedValue
			raw sql.NullString
		)
		if err := rows.Scan(&v.Frequency, &v.Period, &v.Metric, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan exported value: %w", err)
		}
		if raw.Valid {
			v.Value = fundamentals.ParseString(raw.String)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// =============================================================================
// REFRESH RUNS
// =============================================================================

// Refresh run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// RefreshRun records one refresh of one symbol.
type RefreshRun struct {
	ID          string
	Symbol      string
	Trigger     string // schedule, manual
	Status      string // running, completed, failed
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// SaveRefreshRun inserts or updates a run. A missing ID is generated.
func (s *Store) SaveRefreshRun(ctx context.Context, r *RefreshRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}

	var completedAt *string
	if r.CompletedAt != nil {
		c := r.CompletedAt.UTC().Format(timeLayout)
		completedAt = &c
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_runs (id, symbol, triggered_by, status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, r.ID, normalizeSymbol(r.Symbol), r.Trigger, r.Status, nullString(r.Error),
		r.StartedAt.UTC().Format(timeLayout), completedAt)
	if err != nil {
		return fmt.Errorf("failed to save refresh run: %w", err)
	}
	return nil
}

// GetRefreshRuns returns runs, newest first. status filters when non-empty;
// limit <= 0 means no limit.
func (s *Store) GetRefreshRuns(ctx context.Context, status string, limit int) ([]RefreshRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, symbol, triggered_by, status, error, started_at, completed_at
		FROM refresh_runs
	`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []RefreshRun
	for rows.Next() {
		var (
			r           RefreshRun
			errText     sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Trigger, &r.Status, &errText, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan refresh run: %w", err)
		}
		r.Error = errText.String
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(timeLayout, completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"exported_values", "exports", "refresh_runs", "payloads", "symbols"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

// timeLayout is RFC3339 with a fixed nine-digit fraction. Times are stored
// in UTC so the zone is always "Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("not found")

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullValue(v fundamentals.Value) sql.NullString {
	return nullString(fundamentals.FormatValue(v))
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
