package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/verdict/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("store: run not found")

// Partition names used in ranked_examples.
const (
	PartitionSuccess = "success"
	PartitionFail    = "fail"
)

// Store manages the PostgreSQL connection holding the archive of analysis runs.
type Store struct {
	conn *pgx.Conn
}

// Run is one archived analysis: its inputs, the per-class metrics and the ranked examples kept after truncation.
type Run struct {
	ID                 uuid.UUID
	ResultsPath        string
	ResultsFingerprint string
	ConfigPath         string
	TopK               int
	Total              int
	SuccessCount       int
	FailCount          int
	CreatedAt          time.Time

	Classes []types.ClassMetric
	Success []types.Record
	Fail    []types.Record
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the archive tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			id UUID PRIMARY KEY,
			results_path TEXT NOT NULL,
			results_fingerprint TEXT NOT NULL,
			config_path TEXT NOT NULL,
			topk INT NOT NULL,
			total INT NOT NULL,
			success_count INT NOT NULL,
			fail_count INT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS class_metrics (
			run_id UUID REFERENCES analysis_runs(id) ON DELETE CASCADE,
			class_id INT NOT NULL,
			class_name TEXT NOT NULL,
			precision DOUBLE PRECISION NOT NULL,
			recall DOUBLE PRECISION NOT NULL,
			f1 DOUBLE PRECISION NOT NULL,
			support INT NOT NULL,
			PRIMARY KEY (run_id, class_id)
		);
		CREATE TABLE IF NOT EXISTS ranked_examples (
			run_id UUID REFERENCES analysis_runs(id) ON DELETE CASCADE,
			partition TEXT NOT NULL CHECK (partition IN ('success', 'fail')),
			rank INT NOT NULL,
			filename TEXT NOT NULL,
			pred_score DOUBLE PRECISION NOT NULL,
			pred_label INT NOT NULL,
			pred_class TEXT NOT NULL,
			gt_label INT NOT NULL,
			gt_class TEXT NOT NULL,
			PRIMARY KEY (run_id, partition, rank)
		);
		CREATE INDEX IF NOT EXISTS analysis_runs_fingerprint_idx ON analysis_runs (results_fingerprint);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// SaveRun writes the run, its metrics and its examples in one transaction.
// A zero ID is replaced by a fresh one; the stored ID is returned.
func (s *Store) SaveRun(ctx context.Context, run Run) (uuid.UUID, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO analysis_runs (id, results_path, results_fingerprint, config_path, topk, total, success_count, fail_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.ResultsPath, run.ResultsFingerprint, run.ConfigPath, run.TopK, run.Total, run.SuccessCount, run.FailCount)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range run.Classes {
		batch.Queue(`
			INSERT INTO class_metrics (run_id, class_id, class_name, precision, recall, f1, support)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, run.ID, c.ClassID, c.ClassName, c.Precision, c.Recall, c.F1, c.Support)
	}
	queueExamples(batch, run.ID, PartitionSuccess, run.Success)
	queueExamples(batch, run.ID, PartitionFail, run.Fail)

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return uuid.Nil, fmt.Errorf("insert run details: %w", err)
		}
	}

	return run.ID, tx.Commit(ctx)
}

func queueExamples(batch *pgx.Batch, runID uuid.UUID, partition string, records []types.Record) {
	for rank, r := range records {
		batch.Queue(`
			INSERT INTO ranked_examples (run_id, partition, rank, filename, pred_score, pred_label, pred_class, gt_label, gt_class)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, runID, partition, rank, r.Filename, r.PredScore, r.PredLabel, r.PredClass, r.GtLabel, r.GtClass)
	}
}

// ListRuns returns run summaries, newest first. Metrics and examples are not loaded.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, results_path, results_fingerprint, config_path, topk, total, success_count, fail_count, created_at
		FROM analysis_runs
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ResultsPath, &r.ResultsFingerprint, &r.ConfigPath,
			&r.TopK, &r.Total, &r.SuccessCount, &r.FailCount, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads a run with its per-class metrics and ranked examples.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	r := Run{ID: id}
	err := s.conn.QueryRow(ctx, `
		SELECT results_path, results_fingerprint, config_path, topk, total, success_count, fail_count, created_at
		FROM analysis_runs WHERE id = $1
	`, id).Scan(&r.ResultsPath, &r.ResultsFingerprint, &r.ConfigPath, &r.TopK, &r.Total, &r.SuccessCount, &r.FailCount, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT class_id, class_name, precision, recall, f1, support
		FROM class_metrics WHERE run_id = $1 ORDER BY class_id
	`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c types.ClassMetric
		if err := rows.Scan(&c.ClassID, &c.ClassName, &c.Precision, &c.Recall, &c.F1, &c.Support); err != nil {
			rows.Close()
			return nil, err
		}
		r.Classes = append(r.Classes, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn.Query(ctx, `
		SELECT partition, filename, pred_score, pred_label, pred_class, gt_label, gt_class
		FROM ranked_examples WHERE run_id = $1 ORDER BY partition, rank
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var partition string
		var rec types.Record
		if err := rows.Scan(&partition, &rec.Filename, &rec.PredScore, &rec.PredLabel, &rec.PredClass, &rec.GtLabel, &rec.GtClass); err != nil {
			return nil, err
		}
		if partition == PartitionSuccess {
			r.Success = append(r.Success, rec)
		} else {
			r.Fail = append(r.Fail, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

// FindByFingerprint returns the ids of earlier runs over the same results file, newest first.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) ([]uuid.UUID, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id FROM analysis_runs WHERE results_fingerprint = $1 ORDER BY created_at DESC
	`, fingerprint)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// Reset drops all archive tables to clear the database state.
// The schema is recreated on the next connection.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS ranked_examples CASCADE;
		DROP TABLE IF EXISTS class_metrics CASCADE;
		DROP TABLE IF EXISTS analysis_runs CASCADE;
	`)
	return err
}
