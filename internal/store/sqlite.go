package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/bioclick/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Job goroutines record outcomes concurrently. A single connection
	// serializes writers and keeps ":memory:" databases on one handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Batches ---

func (s *SQLiteStore) CreateBatch(ctx context.Context, b *model.Batch) error {
	s.logger.Debug("sql", "op", "insert", "table", "batches", "id", b.ID)

	state := b.State
	if state == "" {
		state = model.BatchStateRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, jobs, job_order, job_timeout_ms, state, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Jobs, b.Order, b.JobTimeout.Milliseconds(), string(state),
		b.StartedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	s.logger.Debug("sql", "op", "select", "table", "batches", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, jobs, job_order, job_timeout_ms, state, dispatched, succeeded, failed,
		        started_at, dispatched_at, completed_at
		 FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *SQLiteStore) ListBatches(ctx context.Context, opts model.ListOptions) ([]*model.Batch, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "batches", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, jobs, job_order, job_timeout_ms, state, dispatched, succeeded, failed,
		        started_at, dispatched_at, completed_at
		 FROM batches ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var batches []*model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

func (s *SQLiteStore) MarkDispatched(ctx context.Context, id string, dispatched int) error {
	s.logger.Debug("sql", "op", "update", "table", "batches", "id", id, "dispatched", dispatched)

	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET dispatched = ?, dispatched_at = ? WHERE id = ?`,
		dispatched, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	return expectOne(res, "batch", id)
}

func (s *SQLiteStore) FinishBatch(ctx context.Context, b *model.Batch) error {
	s.logger.Debug("sql", "op", "update", "table", "batches", "id", b.ID, "state", model.BatchStateCompleted)

	completed := time.Now().UTC()
	if b.CompletedAt != nil {
		completed = *b.CompletedAt
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET state = ?, succeeded = ?, failed = ?, completed_at = ? WHERE id = ?`,
		string(model.BatchStateCompleted), b.Succeeded, b.Failed, completed.Format(time.RFC3339Nano), b.ID)
	if err != nil {
		return err
	}
	return expectOne(res, "batch", b.ID)
}

// --- Jobs ---

func (s *SQLiteStore) RecordDispatch(ctx context.Context, rec *model.JobRecord) error {
	s.logger.Debug("sql", "op", "upsert", "table", "job_records", "batch_id", rec.BatchID, "job_id", rec.JobID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_records (batch_id, job_id, job_name, engine, engine_name, rule, reason, program, database_name, dispatched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(batch_id, job_id) DO UPDATE SET
		   job_name = excluded.job_name,
		   engine = excluded.engine,
		   engine_name = excluded.engine_name,
		   rule = excluded.rule,
		   reason = excluded.reason,
		   program = excluded.program,
		   database_name = excluded.database_name,
		   dispatched_at = excluded.dispatched_at`,
		rec.BatchID, int64(rec.JobID), rec.JobName, rec.Engine, rec.EngineName, rec.Rule, rec.Reason,
		string(rec.Program), rec.Database, formatTimePtr(rec.DispatchedAt),
	)
	return err
}

func (s *SQLiteStore) RecordOutcome(ctx context.Context, rec *model.JobRecord) error {
	s.logger.Debug("sql", "op", "upsert", "table", "job_records", "batch_id", rec.BatchID, "job_id", rec.JobID, "status", rec.Status)

	completed := time.Now().UTC()
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_records (batch_id, job_id, job_name, engine, status, code, output, error, duration_ms, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(batch_id, job_id) DO UPDATE SET
		   status = excluded.status,
		   code = excluded.code,
		   output = excluded.output,
		   error = excluded.error,
		   duration_ms = excluded.duration_ms,
		   completed_at = excluded.completed_at`,
		rec.BatchID, int64(rec.JobID), rec.JobName, rec.Engine, string(rec.Status), rec.Code, rec.Output, rec.Error,
		rec.Duration.Milliseconds(), completed.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, batchID string) ([]*model.JobRecord, error) {
	s.logger.Debug("sql", "op", "list", "table", "job_records", "batch_id", batchID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, job_id, job_name, engine, engine_name, rule, reason, program, database_name,
		        status, code, output, error, duration_ms, dispatched_at, completed_at
		 FROM job_records WHERE batch_id = ? ORDER BY job_id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*model.JobRecord
	for rows.Next() {
		var rec model.JobRecord
		var jobID, durationMS int64
		var program, status string
		var dispatchedAt, completedAt *string

		if err := rows.Scan(
			&rec.BatchID, &jobID, &rec.JobName, &rec.Engine, &rec.EngineName, &rec.Rule, &rec.Reason,
			&program, &rec.Database, &status, &rec.Code, &rec.Output, &rec.Error, &durationMS,
			&dispatchedAt, &completedAt,
		); err != nil {
			return nil, err
		}

		rec.JobID = uint64(jobID)
		rec.Program = model.SearchType(program)
		rec.Status = model.ResultStatus(status)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.DispatchedAt = parseTimePtr(dispatchedAt)
		rec.CompletedAt = parseTimePtr(completedAt)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*model.Batch, error) {
	var b model.Batch
	var state, startedAt string
	var timeoutMS int64
	var dispatchedAt, completedAt *string

	if err := row.Scan(&b.ID, &b.Jobs, &b.Order, &timeoutMS, &state, &b.Dispatched, &b.Succeeded, &b.Failed,
		&startedAt, &dispatchedAt, &completedAt); err != nil {
		return nil, err
	}

	b.State = model.BatchState(state)
	b.JobTimeout = time.Duration(timeoutMS) * time.Millisecond
	b.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	b.DispatchedAt = parseTimePtr(dispatchedAt)
	b.CompletedAt = parseTimePtr(completedAt)
	return &b, nil
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func expectOne(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", entity, id)
	}
	return nil
}
