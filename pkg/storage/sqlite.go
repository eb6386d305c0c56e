package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"igbenford/pkg/benford"
	"igbenford/pkg/dataset"
)

// Run statuses recorded in the runs table
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// SQLiteStore mirrors collection runs, their samples and the analysis
// result into a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// RunRecord is a stored collection run
type RunRecord struct {
	ID         string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Samples    int
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, path: path}
	if err := store.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS samples (
		run_id TEXT NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		username TEXT NOT NULL,
		followers INTEGER NOT NULL,
		PRIMARY KEY (run_id, position),
		UNIQUE (run_id, username)
	);

	CREATE TABLE IF NOT EXISTS analyses (
		run_id TEXT PRIMARY KEY REFERENCES runs(id),
		chi_squared REAL NOT NULL,
		degrees_of_freedom INTEGER NOT NULL,
		critical_value REAL NOT NULL,
		p_value REAL NOT NULL,
		confidence REAL NOT NULL,
		conforms INTEGER NOT NULL,
		histogram TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// BeginRun records a new run in the running state
func (s *SQLiteStore) BeginRun(ctx context.Context, runID, root string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, root, started_at, status) VALUES (?, ?, ?, ?)`,
		runID, root, formatTime(startedAt), RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final status of a run
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, formatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// SaveSnapshot stores the samples of snap not yet recorded for the run.
// Snapshots only ever grow, so rows already stored are left alone.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, runID string, snap dataset.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM samples WHERE run_id = ?`, runID).Scan(&stored); err != nil {
		return fmt.Errorf("failed to count samples: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (run_id, position, username, followers) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := stored; i < snap.Len(); i++ {
		sample := snap.At(i)
		if _, err := stmt.ExecContext(ctx, runID, i, sample.Identifier, sample.Metric); err != nil {
			return fmt.Errorf("failed to insert sample %s: %w", sample.Identifier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	return nil
}

// RunSink binds the store to one run so it can be used as a snapshot sink
func (s *SQLiteStore) RunSink(runID string) *RunSink {
	return &RunSink{store: s, runID: runID}
}

// RunSink persists snapshots of a single run
type RunSink struct {
	store *SQLiteStore
	runID string
}

// Persist stores the new samples of snap
func (r *RunSink) Persist(ctx context.Context, snap dataset.Snapshot) error {
	return r.store.SaveSnapshot(ctx, r.runID, snap)
}

// SaveAnalysis stores the analysis result of a run, replacing an older one
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, runID string, analysis benford.Analysis) error {
	hist, err := json.Marshal(analysis.Histogram.Counts())
	if err != nil {
		return fmt.Errorf("failed to serialize histogram: %w", err)
	}

	r := analysis.Result
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO analyses (run_id, chi_squared, degrees_of_freedom, critical_value, p_value, confidence, conforms, histogram)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		chi_squared = excluded.chi_squared,
		degrees_of_freedom = excluded.degrees_of_freedom,
		critical_value = excluded.critical_value,
		p_value = excluded.p_value,
		confidence = excluded.confidence,
		conforms = excluded.conforms,
		histogram = excluded.histogram`,
		runID, r.ChiSquared, r.DegreesOfFreedom, r.CriticalValue, r.PValue, r.Confidence, r.Conforms, string(hist))
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// LoadResult returns the stored analysis result of a run
func (s *SQLiteStore) LoadResult(ctx context.Context, runID string) (benford.Result, map[int]int, error) {
	var r benford.Result
	var hist string
	err := s.db.QueryRowContext(ctx, `
	SELECT chi_squared, degrees_of_freedom, critical_value, p_value, confidence, conforms, histogram
	FROM analyses WHERE run_id = ?`, runID).
		Scan(&r.ChiSquared, &r.DegreesOfFreedom, &r.CriticalValue, &r.PValue, &r.Confidence, &r.Conforms, &hist)
	if err != nil {
		return benford.Result{}, nil, fmt.Errorf("failed to load analysis: %w", err)
	}

	counts := make(map[int]int)
	if err := json.Unmarshal([]byte(hist), &counts); err != nil {
		return benford.Result{}, nil, fmt.Errorf("failed to parse histogram: %w", err)
	}
	return r, counts, nil
}

// LoadSamples returns the samples of a run in insertion order
func (s *SQLiteStore) LoadSamples(ctx context.Context, runID string) ([]dataset.MetricSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, followers FROM samples WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []dataset.MetricSample
	for rows.Next() {
		var sample dataset.MetricSample
		if err := rows.Scan(&sample.Identifier, &sample.Metric); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// ListRuns returns stored runs, most recent first
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT r.id, r.root, r.started_at, r.finished_at, r.status,
		(SELECT COUNT(*) FROM samples s WHERE s.run_id = r.id)
	FROM runs r ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started string
		var finished sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Root, &started, &finished, &rec.Status, &rec.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.StartedAt = parseTime(started)
		if finished.Valid {
			rec.FinishedAt = parseTime(finished.String)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
