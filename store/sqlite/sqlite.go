/*
Package sqlite provides a SQLite-backed implementation of the PIF stores.

PURPOSE:
  Implements pif.Store: the staging, inflight and approved project/cost
  tables, the submission audit log and the reporting period. The promotion
  engine (archive_approved) lives here as set-based SQL so the database
  does the matching, not a row-by-row loop.

KEY TABLES:
  staging_projects / staging_costs:   replaced per site on each submission
  inflight_projects / inflight_costs: working set, one row per natural key
  approved_projects / approved_costs: durable record, upserted by natural key
  submissions:                        append-only audit log
  reporting_period:                   single-row floating year/month

INVARIANTS ENFORCED BY SCHEMA:
  - PRIMARY KEY (pif_id, project_id) on every project table
  - PRIMARY KEY (pif_id, project_id, scenario, year) on every cost table
  - Cost rows reference their parent project in the same store

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within a process, and opens write
  transactions with BEGIN IMMEDIATE so that two processes promoting the same
  site cannot both read the same candidate set.

USAGE:
  store, err := sqlite.New("./data/pif.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is migrated on New() with golang-migrate from the embedded
  migrations/ directory.

SEE ALSO:
  - promotion.go: archive_approved
  - submissions.go: staging replace, inflight merge, audit log
  - pif/store.go: Interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pifworks/pif-pipeline/pif"
)

//go:embed migrations/*.sql
var migrations embed.FS

// dateLayout is the storage format of date-only columns.
const dateLayout = "2006-01-02"

// Store implements pif.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ pif.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls and
	// matches SQLite's single-writer model.
	db.SetMaxOpenConns(1)

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

// migrate applies pending migrations. The migrate instance is not closed:
// closing the sqlite3 driver closes the shared *sql.DB.
func (s *Store) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (version uint, dirty bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRowContext(ctx,
		"SELECT version, dirty FROM schema_migrations LIMIT 1",
	).Scan(&version, &dirty)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// =============================================================================
// TRANSACTIONAL STORE (pif.Store.WithTx)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(pif.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) ReplaceStaging(ctx context.Context, site string, projects []pif.ProjectRecord, costs []pif.CostFact) (int, int, error) {
	return replaceStaging(ctx, ts.tx, site, projects, costs)
}

func (ts *txStore) MergeStagingToInflight(ctx context.Context, site string) (int, int, error) {
	return mergeStagingToInflight(ctx, ts.tx, site)
}

func (ts *txStore) AppendSubmission(ctx context.Context, sub pif.Submission) error {
	return appendSubmission(ctx, ts.tx, sub)
}

// =============================================================================
// TABLES AND COLUMNS
// =============================================================================

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// projectColumns are shared by every project table, in scan order.
var projectColumns = []string{
	"pif_id", "project_id", "line_item", "site", "archive_flag", "include_flag",
	"change_type", "category", "accounting_treatment", "strategic_rank", "status",
	"justification", "lcm_issue", "seg", "prior_year_spend",
	"original_fp_isd", "revised_fp_isd", "moving_isd_year", "submission_date",
}

var costColumns = []string{
	"pif_id", "project_id", "scenario", "year",
	"requested_value", "current_value", "variance_value",
}

func projectTable(kind pif.StoreKind) (string, error) {
	switch kind {
	case pif.StoreStaging, pif.StoreInflight, pif.StoreApproved:
		return string(kind) + "_projects", nil
	}
	return "", fmt.Errorf("%w: %q", pif.ErrUnknownStore, kind)
}

func costTable(kind pif.StoreKind) (string, error) {
	switch kind {
	case pif.StoreStaging, pif.StoreInflight, pif.StoreApproved:
		return string(kind) + "_costs", nil
	}
	return "", fmt.Errorf("%w: %q", pif.ErrUnknownStore, kind)
}

func columnList(prefix string, cols []string) string {
	if prefix == "" {
		return strings.Join(cols, ", ")
	}
	qualified := make([]string, len(cols))
	for i, c := range cols {
		qualified[i] = prefix + "." + c
	}
	return strings.Join(qualified, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// =============================================================================
// HELPERS
// =============================================================================

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", ns.String, err)
	}
	return &t, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
