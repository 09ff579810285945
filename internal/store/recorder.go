package store

import (
	"context"
	"log/slog"

	"github.com/me/bioclick/internal/scheduler"
	"github.com/me/bioclick/pkg/model"
)

// Recorder writes scheduler events to a Store. Write failures are logged and
// never affect the batch.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

var _ scheduler.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder backed by st.
func NewRecorder(st Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: st, logger: logger.With("component", "recorder")}
}

func (r *Recorder) BatchStarted(ctx context.Context, info scheduler.BatchInfo) {
	err := r.store.CreateBatch(ctx, &model.Batch{
		ID:         info.BatchID,
		Jobs:       info.Jobs,
		Order:      string(info.Order),
		JobTimeout: info.JobTimeout,
		State:      model.BatchStateRunning,
		StartedAt:  info.StartedAt,
	})
	r.check(err, "create batch", "batch_id", info.BatchID)
}

func (r *Recorder) JobDispatched(ctx context.Context, d scheduler.Dispatch) {
	at := d.At
	err := r.store.RecordDispatch(ctx, &model.JobRecord{
		BatchID:      d.BatchID,
		JobID:        d.JobID,
		JobName:      d.JobName,
		Engine:       d.Engine,
		EngineName:   d.EngineName,
		Rule:         d.Rule,
		Reason:       d.Reason,
		Program:      d.Type,
		Database:     d.Database,
		DispatchedAt: &at,
	})
	r.check(err, "record dispatch", "batch_id", d.BatchID, "job_id", d.JobID)
}

func (r *Recorder) DispatchFinished(ctx context.Context, batchID string, dispatched int) {
	r.check(r.store.MarkDispatched(ctx, batchID, dispatched), "mark dispatched", "batch_id", batchID)
}

func (r *Recorder) JobCompleted(ctx context.Context, o scheduler.Outcome) {
	rec := &model.JobRecord{
		BatchID:  o.BatchID,
		JobID:    o.JobID,
		JobName:  o.JobName,
		Engine:   o.Engine,
		Status:   o.Status(),
		Code:     o.Code(),
		Duration: o.Duration,
	}
	if o.Result != nil {
		rec.Output = o.Result.Output.String()
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	r.check(r.store.RecordOutcome(ctx, rec), "record outcome", "batch_id", o.BatchID, "job_id", o.JobID)
}

func (r *Recorder) BatchCompleted(ctx context.Context, rep *scheduler.Report) {
	completed := rep.CompletedAt
	err := r.store.FinishBatch(ctx, &model.Batch{
		ID:          rep.BatchID,
		Succeeded:   rep.Succeeded,
		Failed:      rep.Failed,
		CompletedAt: &completed,
	})
	r.check(err, "finish batch", "batch_id", rep.BatchID)
}

func (r *Recorder) check(err error, op string, args ...any) {
	if err == nil {
		return
	}
	r.logger.Error("ledger write failed", append([]any{"op", op, "error", err}, args...)...)
}
