// Package store keeps a history of evaluation runs in SQLite: one row per
// run with its settings and summary, and one row per evaluated batch.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id              TEXT PRIMARY KEY,
	checkpoint          TEXT NOT NULL,
	seed                INTEGER NOT NULL,
	threshold_character REAL NOT NULL,
	threshold_affinity  REAL NOT NULL,
	threshold_fscore    REAL NOT NULL,
	batch_size          INTEGER NOT NULL,
	status              TEXT NOT NULL,
	error               TEXT,
	started_at          TEXT NOT NULL,
	finished_at         TEXT,
	batches             INTEGER NOT NULL DEFAULT 0,
	mean_loss           REAL,
	mean_fscore         REAL
);

CREATE TABLE IF NOT EXISTS batches (
	run_id  TEXT NOT NULL,
	no      INTEGER NOT NULL,
	loss    REAL,
	fscore  REAL,
	PRIMARY KEY (run_id, no),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// RunInfo describes a run when it starts.
type RunInfo struct {
	Checkpoint         string
	Seed               int64
	ThresholdCharacter float64
	ThresholdAffinity  float64
	ThresholdFScore    float64
	BatchSize          int
}

// Run is a recorded evaluation run.
type Run struct {
	ID string
	RunInfo
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Batches    int
	MeanLoss   float64
	MeanFScore float64
}

// BatchRow is the result of one batch of a run.
type BatchRow struct {
	No     int
	Loss   float64
	FScore float64
}

// Store manages run history in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the database at dbPath and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records a new run in status running and returns its id.
func (s *Store) BeginRun(ctx context.Context, info RunInfo) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, checkpoint, seed, threshold_character, threshold_affinity,
		                   threshold_fscore, batch_size, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, info.Checkpoint, info.Seed, info.ThresholdCharacter, info.ThresholdAffinity,
		info.ThresholdFScore, info.BatchSize, StatusRunning, s.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordBatch stores the result of batch no. Recording the same batch twice
// replaces the earlier row. A NaN loss or score, as from a diverged model, is
// stored as NULL and read back as NaN.
func (s *Store) RecordBatch(ctx context.Context, runID string, no int, loss, fscore float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (run_id, no, loss, fscore) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, no) DO UPDATE SET loss = excluded.loss, fscore = excluded.fscore`,
		runID, no, nullable(loss), nullable(fscore),
	)
	if err != nil {
		return fmt.Errorf("insert batch %d: %w", no, err)
	}
	return nil
}

// FinishRun closes a run, summarizing its recorded batches. A non-nil
// runErr marks the run failed and keeps its message.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusDone, sql.NullString{}
	if runErr != nil {
		status = StatusFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
		     status = ?,
		     error = ?,
		     finished_at = ?,
		     batches = (SELECT COUNT(*) FROM batches WHERE run_id = runs.run_id),
		     mean_loss = (SELECT CASE WHEN COUNT(loss) = COUNT(*) THEN AVG(loss) END
		                  FROM batches WHERE run_id = runs.run_id),
		     mean_fscore = (SELECT CASE WHEN COUNT(fscore) = COUNT(*) THEN AVG(fscore) END
		                    FROM batches WHERE run_id = runs.run_id)
		 WHERE run_id = ?`,
		status, msg, s.now().Format(time.RFC3339Nano), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, checkpoint, seed, threshold_character, threshold_affinity, threshold_fscore,
		        batch_size, status, error, started_at, finished_at, batches, mean_loss, mean_fscore
		 FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                   Run
			errMsg, finished    sql.NullString
			started             string
			meanLoss, meanScore sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Checkpoint, &r.Seed, &r.ThresholdCharacter, &r.ThresholdAffinity,
			&r.ThresholdFScore, &r.BatchSize, &r.Status, &errMsg, &started, &finished,
			&r.Batches, &meanLoss, &meanScore); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Error = errMsg.String
		r.MeanLoss = summary(meanLoss, r.Batches)
		r.MeanFScore = summary(meanScore, r.Batches)
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finished.Valid {
			if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Batches returns the recorded batches of a run in batch order.
func (s *Store) Batches(ctx context.Context, runID string) ([]BatchRow, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT no, loss, fscore FROM batches WHERE run_id = ? ORDER BY no`, runID)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []BatchRow
	for rows.Next() {
		var (
			b            BatchRow
			loss, fscore sql.NullFloat64
		)
		if err := rows.Scan(&b.No, &loss, &fscore); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.Loss, b.FScore = orNaN(loss), orNaN(fscore)
		out = append(out, b)
	}
	return out, rows.Err()
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

// orNaN reads a stored value back. SQLite keeps a NaN double as NULL.
func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// summary reads a run mean: 0 for a run without batches, NaN when a NaN
// batch value made the mean undefined.
func summary(v sql.NullFloat64, batches int) float64 {
	if !v.Valid && batches == 0 {
		return 0
	}
	return orNaN(v)
}

// RunRecorder records the batches of one run; it satisfies the evaluation
// loop's recorder interface.
type RunRecorder struct {
	store *Store
	runID string
}

// Recorder returns a RunRecorder for runID.
func (s *Store) Recorder(runID string) *RunRecorder {
	return &RunRecorder{store: s, runID: runID}
}

// RecordBatch stores one batch result.
func (r *RunRecorder) RecordBatch(ctx context.Context, no int, loss, fscore float64) error {
	return r.store.RecordBatch(ctx, r.runID, no, loss, fscore)
}
