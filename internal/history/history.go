// Package history keeps a SQLite-backed log of validation runs: one row per
// run plus its full diagnostic list. The CLI records into it with
// --history; server mode records every validation and serves the log over
// /v1/runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"fieldmap/internal/validate"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("run not found")

// SQLite DSN parameters for production hardening.
const (
	busyTimeout = "5000" // 5 seconds
	synchronous = "NORMAL"
	journalMode = "WAL"
)

// Run is one recorded validation run.
type Run struct {
	ID           string    `json:"id"`
	File         string    `json:"file"`
	Status       string    `json:"status"`
	ErrorCount   int       `json:"error_count"`
	WarningCount int       `json:"warning_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the run log. It holds a single-connection write pool and a wider
// read pool over the same SQLite file.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// Open opens (creating if needed) the run log at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	writeDB, err := openSQLite(path, "write", 0)
	if err != nil {
		return nil, err
	}
	readDB, err := openSQLite(path, "read", 0)
	if err != nil {
		_ = writeDB.Close()
		return nil, err
	}

	if err := runMigrations(writeDB); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("migrate run log: %w", err)
	}

	return &Store{writeDB: writeDB, readDB: readDB}, nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	werr := s.writeDB.Close()
	rerr := s.readDB.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Record stores one validation result and returns the created run.
func (s *Store) Record(ctx context.Context, res *validate.Result) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		File:      res.File,
		Status:    res.Status,
		CreatedAt: time.Now().UTC(),
	}
	for _, d := range res.Diagnostics {
		switch d.Severity {
		case validate.SeverityError:
			run.ErrorCount++
		case validate.SeverityWarning:
			run.WarningCount++
		}
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, file, status, error_count, warning_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.File, run.Status, run.ErrorCount, run.WarningCount, run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	for i, d := range res.Diagnostics {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO diagnostics (run_id, seq, severity, rule, message) VALUES (?, ?, ?, ?, ?)`,
			run.ID, i, string(d.Severity), d.Rule, d.Message)
		if err != nil {
			return nil, fmt.Errorf("insert diagnostic %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run insert: %w", err)
	}
	return run, nil
}

// Recent returns the newest runs, most recent first. limit <= 0 defaults
// to 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, file, status, error_count, warning_count, created_at
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.File, &r.Status, &r.ErrorCount, &r.WarningCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastByFile returns the most recent run for every file ever recorded,
// keyed by file path.
func (s *Store) LastByFile(ctx context.Context) (map[string]*Run, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, file, status, error_count, warning_count, created_at FROM (
		   SELECT *, ROW_NUMBER() OVER (PARTITION BY file ORDER BY created_at DESC, id DESC) AS rn
		   FROM runs
		 ) WHERE rn = 1`)
	if err != nil {
		return nil, fmt.Errorf("list last runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	latest := map[string]*Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.File, &r.Status, &r.ErrorCount, &r.WarningCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		latest[r.File] = &r
	}
	return latest, rows.Err()
}

// Run returns one run by ID.
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	var r Run
	err := s.readDB.QueryRowContext(ctx,
		`SELECT id, file, status, error_count, warning_count, created_at FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.File, &r.Status, &r.ErrorCount, &r.WarningCount, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %q: %w", id, err)
	}
	return &r, nil
}

// Diagnostics returns a run's diagnostics in recorded order.
func (s *Store) Diagnostics(ctx context.Context, runID string) ([]validate.Diagnostic, error) {
	if _, err := s.Run(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.readDB.QueryContext(ctx,
		`SELECT severity, rule, message FROM diagnostics WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list diagnostics for %q: %w", runID, err)
	}
	defer rows.Close() //nolint:errcheck

	diags := make([]validate.Diagnostic, 0)
	for rows.Next() {
		var d validate.Diagnostic
		var severity string
		if err := rows.Scan(&severity, &d.Rule, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Severity = validate.Severity(severity)
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// PruneBefore deletes runs recorded before the cutoff and returns how many
// were removed. Diagnostics cascade.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// openSQLite opens a *sql.DB pool for the given SQLite file path.
//
// mode controls write-safety and pool sizing:
//   - "write": MaxOpenConns=1, MaxIdleConns=1, includes _txlock=immediate
//   - "read":  MaxOpenConns=maxOpen (use 0 for default of 4), no _txlock
//
// Both modes set WAL journal, busy_timeout=5000ms, synchronous=NORMAL,
// and foreign_keys=on.
func openSQLite(path string, mode string, maxOpen int) (*sql.DB, error) {
	if mode != "read" && mode != "write" {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be \"read\" or \"write\"", mode)
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	switch mode {
	case "write":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case "read":
		if maxOpen <= 0 {
			maxOpen = 4
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	// Verify the connection is usable.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}

	return db, nil
}

// buildDSN constructs a SQLite DSN with hardened parameters.
func buildDSN(path string, mode string) string {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeout)
	params.Set("_synchronous", synchronous)
	params.Set("_foreign_keys", "on")

	if mode == "write" {
		params.Set("_txlock", "immediate")
	}

	return path + "?" + params.Encode()
}
