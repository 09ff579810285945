package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/me/bioclick/pkg/model"
)

// BatchInfo describes a batch as Run starts it.
type BatchInfo struct {
	BatchID    string
	Jobs       int
	Order      Order
	JobTimeout time.Duration
	StartedAt  time.Time
}

// Dispatch describes one job handed to an engine.
type Dispatch struct {
	BatchID string
	JobID   uint64
	JobName string
	// Engine is the registry name, EngineName the engine's own Name().
	Engine     string
	EngineName string
	Rule       string
	Reason     string
	Type       model.SearchType
	Database   string
	At         time.Time
}

// Observer receives batch lifecycle events.
//
// BatchStarted, JobDispatched, DispatchFinished and BatchCompleted are called
// from the goroutine running the batch, in that order. JobCompleted is called
// once per job from the job's own goroutine, so implementations must be safe
// for concurrent use.
type Observer interface {
	BatchStarted(ctx context.Context, info BatchInfo)
	JobDispatched(ctx context.Context, d Dispatch)
	DispatchFinished(ctx context.Context, batchID string, dispatched int)
	JobCompleted(ctx context.Context, o Outcome)
	BatchCompleted(ctx context.Context, r *Report)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) BatchStarted(context.Context, BatchInfo)       {}
func (NopObserver) JobDispatched(context.Context, Dispatch)       {}
func (NopObserver) DispatchFinished(context.Context, string, int) {}
func (NopObserver) JobCompleted(context.Context, Outcome)         {}
func (NopObserver) BatchCompleted(context.Context, *Report)       {}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (m Observers) BatchStarted(ctx context.Context, info BatchInfo) {
	for _, o := range m {
		o.BatchStarted(ctx, info)
	}
}

func (m Observers) JobDispatched(ctx context.Context, d Dispatch) {
	for _, o := range m {
		o.JobDispatched(ctx, d)
	}
}

func (m Observers) DispatchFinished(ctx context.Context, batchID string, dispatched int) {
	for _, o := range m {
		o.DispatchFinished(ctx, batchID, dispatched)
	}
}

func (m Observers) JobCompleted(ctx context.Context, out Outcome) {
	for _, o := range m {
		o.JobCompleted(ctx, out)
	}
}

func (m Observers) BatchCompleted(ctx context.Context, r *Report) {
	for _, o := range m {
		o.BatchCompleted(ctx, r)
	}
}

// LogObserver writes batch events to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger.With("component", "scheduler")}
}

func (l *LogObserver) BatchStarted(_ context.Context, info BatchInfo) {
	l.logger.Info("batch started",
		"batch_id", info.BatchID,
		"jobs", info.Jobs,
		"order", info.Order,
		"job_timeout", info.JobTimeout,
	)
}

func (l *LogObserver) JobDispatched(_ context.Context, d Dispatch) {
	l.logger.Info("job dispatched",
		"batch_id", d.BatchID,
		"job_id", d.JobID,
		"job", d.JobName,
		"engine", d.Engine,
		"rule", d.Rule,
		"reason", d.Reason,
	)
}

func (l *LogObserver) DispatchFinished(_ context.Context, batchID string, dispatched int) {
	l.logger.Info("scheduler finished dispatching jobs", "batch_id", batchID, "jobs", dispatched)
}

func (l *LogObserver) JobCompleted(_ context.Context, o Outcome) {
	if o.Succeeded() {
		l.logger.Info("job completed",
			"batch_id", o.BatchID,
			"job_id", o.JobID,
			"engine", o.Engine,
			"output", o.Result.Output.String(),
			"duration", o.Duration,
		)
		return
	}
	l.logger.Warn("job failed",
		"batch_id", o.BatchID,
		"job_id", o.JobID,
		"engine", o.Engine,
		"code", o.Code(),
		"error", o.Err,
		"duration", o.Duration,
	)
}

func (l *LogObserver) BatchCompleted(_ context.Context, r *Report) {
	l.logger.Info("all jobs completed",
		"batch_id", r.BatchID,
		"jobs", len(r.Outcomes),
		"succeeded", r.Succeeded,
		"failed", r.Failed,
		"elapsed", r.Elapsed(),
	)
}
