package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/me/bioclick/internal/engine"
	"github.com/me/bioclick/internal/routing"
	"github.com/me/bioclick/internal/scheduler"
	"github.com/me/bioclick/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleBatch(id string) *model.Batch {
	return &model.Batch{
		ID:         id,
		Jobs:       3,
		Order:      "fifo",
		JobTimeout: 30 * time.Second,
		StartedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestBatch_Lifecycle(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	b := sampleBatch("batch_1")
	if err := st.CreateBatch(ctx, b); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	got, err := st.GetBatch(ctx, "batch_1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got == nil {
		t.Fatal("GetBatch returned nil")
	}
	if got.State != model.BatchStateRunning || got.Jobs != 3 || got.JobTimeout != 30*time.Second {
		t.Errorf("batch = %+v", got)
	}
	if !got.StartedAt.Equal(b.StartedAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, b.StartedAt)
	}
	if got.DispatchedAt != nil || got.CompletedAt != nil {
		t.Errorf("new batch has milestones set: %+v", got)
	}

	if err := st.MarkDispatched(ctx, "batch_1", 3); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	done := time.Now().UTC().Truncate(time.Millisecond)
	if err := st.FinishBatch(ctx, &model.Batch{ID: "batch_1", Succeeded: 2, Failed: 1, CompletedAt: &done}); err != nil {
		t.Fatalf("FinishBatch: %v", err)
	}

	got, _ = st.GetBatch(ctx, "batch_1")
	if got.State != model.BatchStateCompleted || got.Dispatched != 3 || got.Succeeded != 2 || got.Failed != 1 {
		t.Errorf("finished batch = %+v", got)
	}
	if got.DispatchedAt == nil || got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("milestones = %v / %v", got.DispatchedAt, got.CompletedAt)
	}
}

func TestGetBatch_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetBatch(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestFinishBatch_NotFound(t *testing.T) {
	st := testStore(t)
	if err := st.FinishBatch(context.Background(), &model.Batch{ID: "missing"}); err == nil {
		t.Error("expected error for unknown batch")
	}
	if err := st.MarkDispatched(context.Background(), "missing", 1); err == nil {
		t.Error("expected error for unknown batch")
	}
}

func TestListBatches(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		b := sampleBatch(fmt.Sprintf("batch_%d", i))
		b.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := st.CreateBatch(ctx, b); err != nil {
			t.Fatalf("CreateBatch: %v", err)
		}
	}

	batches, total, err := st.ListBatches(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if total != 5 || len(batches) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(batches))
	}
	if batches[0].ID != "batch_4" || batches[1].ID != "batch_3" {
		t.Errorf("order = %s, %s, want newest first", batches[0].ID, batches[1].ID)
	}

	batches, _, _ = st.ListBatches(ctx, model.ListOptions{Limit: 2, Offset: 4})
	if len(batches) != 1 || batches[0].ID != "batch_0" {
		t.Errorf("last page = %+v", batches)
	}
}

func TestJobRecords_DispatchThenOutcome(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.CreateBatch(ctx, sampleBatch("batch_1")); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	at := time.Now().UTC()
	if err := st.RecordDispatch(ctx, &model.JobRecord{
		BatchID: "batch_1", JobID: 2, JobName: "two",
		Engine: "large", EngineName: "BLAST+", Rule: "size", Reason: "input 9000 bytes > 4096",
		Program: model.SearchBlastP, Database: "nr", DispatchedAt: &at,
	}); err != nil {
		t.Fatalf("RecordDispatch: %v", err)
	}
	if err := st.RecordOutcome(ctx, &model.JobRecord{
		BatchID: "batch_1", JobID: 2, JobName: "two", Engine: "large",
		Status: model.ResultStatusFailed, Code: "TIMEOUT", Error: "large: TIMEOUT: deadline exceeded",
		Duration: 1500 * time.Millisecond,
	}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	recs, err := st.ListOutcomes(ctx, "batch_1")
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.Rule != "size" || r.EngineName != "BLAST+" || r.Program != model.SearchBlastP || r.Database != "nr" {
		t.Errorf("dispatch columns lost: %+v", r)
	}
	if r.Status != model.ResultStatusFailed || r.Code != "TIMEOUT" || r.Duration != 1500*time.Millisecond {
		t.Errorf("outcome columns = %+v", r)
	}
	if r.DispatchedAt == nil || !r.Done() {
		t.Errorf("timestamps = %v / %v", r.DispatchedAt, r.CompletedAt)
	}
}

func TestJobRecords_OutcomeWithoutDispatch(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	st.CreateBatch(ctx, sampleBatch("batch_1"))

	if err := st.RecordOutcome(ctx, &model.JobRecord{
		BatchID: "batch_1", JobID: 9, Status: model.ResultStatusFailed, Code: scheduler.CodeRouting,
	}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	recs, _ := st.ListOutcomes(ctx, "batch_1")
	if len(recs) != 1 || recs[0].DispatchedAt != nil || recs[0].Engine != "" {
		t.Errorf("records = %+v", recs)
	}
}

func TestJobRecords_ForeignKey(t *testing.T) {
	st := testStore(t)
	err := st.RecordOutcome(context.Background(), &model.JobRecord{BatchID: "nope", JobID: 1})
	if err == nil {
		t.Error("expected foreign key violation for unknown batch")
	}
}

type okEngine struct{}

func (okEngine) Name() string { return "ok" }

func (okEngine) Execute(_ context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error) {
	if req.JobID%2 == 0 {
		return nil, model.NewEngineError(model.ErrCodeDatabaseUnavailable, "ok", "database %s offline", req.Parameters.Database)
	}
	return model.NewSuccessResult(req, model.FileOutput(fmt.Sprintf("out_%d.txt", req.JobID))), nil
}

func TestRecorder_RecordsBatch(t *testing.T) {
	st := testStore(t)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	reg := engine.NewRegistry(logger)
	reg.Register("ok", okEngine{})
	table, err := routing.NewTable(reg, "ok")
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	jobs := []*model.Job{
		model.NewJob(1, "one", "a.fasta", model.SearchBlastN, "nt"),
		model.NewJob(2, "two", "b.fasta", model.SearchBlastX, "nr"),
		model.NewJob(3, "three", "c.fasta", "", ""),
	}
	s := scheduler.New(jobs, table, scheduler.DefaultConfig(), logger,
		scheduler.WithObserver(NewRecorder(st, logger)))
	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ctx := context.Background()
	b, err := st.GetBatch(ctx, report.BatchID)
	if err != nil || b == nil {
		t.Fatalf("GetBatch: %v, %v", b, err)
	}
	if b.State != model.BatchStateCompleted || b.Jobs != 3 || b.Dispatched != 3 || b.Succeeded != 2 || b.Failed != 1 {
		t.Errorf("batch = %+v", b)
	}

	recs, err := st.ListOutcomes(ctx, report.BatchID)
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	if recs[0].Output != "out_1.txt" || recs[0].Rule != routing.DefaultRule || recs[0].Status != model.ResultStatusSuccess {
		t.Errorf("job 1 = %+v", recs[0])
	}
	if recs[1].Code != "DATABASE_UNAVAILABLE" || recs[1].Database != "nr" || recs[1].Error == "" {
		t.Errorf("job 2 = %+v", recs[1])
	}
	if recs[2].Program != model.SearchBlastN || recs[2].Database != model.DefaultDatabase {
		t.Errorf("job 3 defaults = %+v", recs[2])
	}
}

func TestRecorder_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	st, err := NewSQLiteStore(path, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st.CreateBatch(context.Background(), sampleBatch("batch_disk"))
	st.Close()

	st, err = NewSQLiteStore(path, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	b, err := st.GetBatch(context.Background(), "batch_disk")
	if err != nil || b == nil {
		t.Fatalf("GetBatch after reopen: %v, %v", b, err)
	}
}
