// Package store persists survey runs and their site candidates in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/pipeline"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is the stored summary of one survey run.
type Run struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	Status     string          `json:"status"`
	Partial    bool            `json:"partial"`
	Candidates int             `json:"candidates"`
	Failures   int             `json:"failures"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Store is a SQLite-backed repository of runs and candidates.
type Store struct {
	db *sql.DB
}

// New opens or creates the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		status TEXT NOT NULL,
		partial INTEGER NOT NULL DEFAULT 0,
		candidates INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		metadata JSON
	);

	CREATE TABLE IF NOT EXISTS candidates (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		lon REAL NOT NULL,
		lat REAL NOT NULL,
		elevation REAL,
		confidence REAL NOT NULL,
		verification_method TEXT NOT NULL,
		data JSON NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_candidates_confidence ON candidates(confidence);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun stores run and its candidate records in one transaction and
// returns the run id, generated when run.ID is empty.
func (s *Store) SaveRun(ctx context.Context, run Run, records []evidence.Record) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	var metadata sql.NullString
	if len(run.Metadata) > 0 {
		metadata = sql.NullString{String: string(run.Metadata), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, status, partial, candidates, failures, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.UTC().Format(time.RFC3339Nano), run.Status, run.Partial, len(records), run.Failures, metadata)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates (run_id, seq, id, lon, lat, elevation, confidence, verification_method, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("prepare candidate insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("marshal candidate %s: %w", rec.ID, err)
		}
		var elevation sql.NullFloat64
		if rec.Coordinates.Elevation != nil {
			elevation = sql.NullFloat64{Float64: *rec.Coordinates.Elevation, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.ID, i, rec.ID, rec.Coordinates.X, rec.Coordinates.Y,
			elevation, rec.Confidence, rec.VerificationMethod, string(data)); err != nil {
			return "", fmt.Errorf("insert candidate %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return run.ID, nil
}

// GetRun returns a stored run.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, status, partial, candidates, failures, metadata
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, status, partial, candidates, failures, metadata
		FROM runs ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run      Run
		created  string
		metadata sql.NullString
	)
	if err := sc.Scan(&run.ID, &created, &run.Status, &run.Partial, &run.Candidates, &run.Failures, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("run %s: bad created_at: %w", run.ID, err)
	}
	run.CreatedAt = t
	if metadata.Valid {
		run.Metadata = json.RawMessage(metadata.String)
	}
	return &run, nil
}

// Candidates returns the records of a run in their original order, keeping
// those with confidence at or above minConfidence.
func (s *Store) Candidates(ctx context.Context, runID string, minConfidence float64) ([]evidence.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM candidates
		WHERE run_id = ? AND confidence >= ?
		ORDER BY seq
	`, runID, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []evidence.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		var rec evidence.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal candidate: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its candidates.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// SaveFindings stores a run report under its run id.
func (s *Store) SaveFindings(ctx context.Context, f pipeline.Findings) (string, error) {
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal run metadata: %w", err)
	}
	return s.SaveRun(ctx, Run{
		ID:        f.Metadata.RunID,
		CreatedAt: f.Metadata.GeneratedAt,
		Status:    f.Metadata.Status,
		Partial:   f.Metadata.Partial,
		Failures:  len(f.Metadata.Failures),
		Metadata:  meta,
	}, f.Sites)
}
