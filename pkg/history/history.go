// Package history journals finished reconciliation runs and their
// field-level outcomes in a local SQLite database, so operators can answer
// "what changed on this device and when" without scraping logs.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/mpwrd/mpwrd-config/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultPath is the canonical journal location.
const DefaultPath = "/var/lib/mpwrd-config/history.db"

// Journal persists runs. It implements engine.Recorder.
type Journal struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Option configures the journal.
type Option func(*Journal)

// WithLogger sets the journal logger.
func WithLogger(l zerolog.Logger) Option { return func(j *Journal) { j.logger = l } }

// New creates a journal bound to path. An empty path means DefaultPath.
// Call Init before use.
func New(path string, opts ...Option) *Journal {
	if path == "" {
		path = DefaultPath
	}
	j := &Journal{path: path, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Init opens the database and runs pending migrations.
func (j *Journal) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", j.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping history database: %w", err)
	}
	j.db = db
	return j.migrate()
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func (j *Journal) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// RecordRun implements engine.Recorder: the run row and every field-level
// outcome are written in one transaction.
func (j *Journal) RecordRun(ctx context.Context, result *engine.Result) error {
	if j.db == nil {
		return errors.New("history database not initialized")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, state, started_at, duration_ms, planned, applied, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		result.RunID.String(),
		string(result.State),
		result.StartedAt.UTC(),
		result.Duration.Milliseconds(),
		len(result.Planned),
		len(result.Applied),
		len(result.Failures),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	const insertChange = `
		INSERT INTO changes (run_id, domain, field, before_value, after_value, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, c := range result.Applied {
		if _, err := tx.ExecContext(ctx, insertChange,
			result.RunID.String(), c.Domain, c.Field, c.Before, c.After, OutcomeApplied, nil,
		); err != nil {
			return fmt.Errorf("insert applied change: %w", err)
		}
	}
	for _, f := range result.Failures {
		if _, err := tx.ExecContext(ctx, insertChange,
			result.RunID.String(), domainOfField(f.Field), f.Field, "", "", OutcomeFailed, f.Err.Error(),
		); err != nil {
			return fmt.Errorf("insert failed change: %w", err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, state, started_at, duration_ms, planned, applied, failed
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.State, &r.StartedAt, &durationMS, &r.Planned, &r.Applied, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListChanges returns every recorded outcome of one run.
func (j *Journal) ListChanges(ctx context.Context, runID string) ([]Change, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, domain, field, before_value, after_value, outcome, COALESCE(error, '')
		FROM changes
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.RunID, &c.Domain, &c.Field, &c.Before, &c.After, &c.Outcome, &c.Error); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// domainOfField derives the adapter domain from a dotted field path.
func domainOfField(field string) string {
	for i := range field {
		if field[i] == '.' {
			return field[:i]
		}
	}
	return field
}
