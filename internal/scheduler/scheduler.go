// Package scheduler runs a closed batch of jobs: it dispatches every job to
// the engine chosen by a routing policy, each in its own goroutine, then
// joins all of them and reports one outcome per job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/bioclick/internal/routing"
	"github.com/me/bioclick/pkg/model"
)

// ErrAlreadyRun is returned by Run on a Scheduler whose batch has been run.
var ErrAlreadyRun = errors.New("scheduler: batch already run")

// Order is the queue removal order.
type Order string

const (
	// OrderFIFO dispatches jobs in the order they were supplied.
	OrderFIFO Order = "fifo"
	// OrderLIFO dispatches the last supplied job first.
	OrderLIFO Order = "lifo"
)

// ParseOrder converts a string to an Order. Empty means FIFO.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OrderFIFO):
		return OrderFIFO, nil
	case string(OrderLIFO):
		return OrderLIFO, nil
	default:
		return "", fmt.Errorf("unknown dispatch order %q (want fifo or lifo)", s)
	}
}

// Config holds scheduler configuration.
type Config struct {
	Order Order
	// JobTimeout bounds each engine call. On expiry the job's outcome is
	// TIMEOUT and the engine call is abandoned with a cancelled context.
	// 0 disables the deadline.
	JobTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Order: OrderFIFO}
}

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithObserver adds an observer for batch events. Observers receive
// JobCompleted from the job goroutines and must be safe for concurrent use.
func WithObserver(obs Observer) Option {
	return func(s *Scheduler) {
		s.observers = append(s.observers, obs)
	}
}

// WithBatchID overrides the generated batch id.
func WithBatchID(id string) Option {
	return func(s *Scheduler) {
		s.batchID = id
	}
}

// Scheduler owns one batch of jobs for the duration of Run.
//
// The queue and the handle list are touched only by the goroutine that calls
// Run. Dispatched jobs are owned by their job goroutine until it resolves.
type Scheduler struct {
	queue     []*model.Job
	handles   []*handle
	// dispatched counts jobs handed to an engine.
	dispatched int
	policy    routing.Policy
	config    Config
	observers Observers
	batchID   string
	logger    *slog.Logger
	ran       bool
}

// New creates a Scheduler that takes ownership of jobs. The caller must not
// modify jobs or add to the batch after this call.
func New(jobs []*model.Job, policy routing.Policy, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.Order == "" {
		cfg.Order = OrderFIFO
	}
	s := &Scheduler{
		queue:   append([]*model.Job(nil), jobs...),
		handles: make([]*handle, 0, len(jobs)),
		policy:  policy,
		config:  cfg,
		batchID: "batch_" + uuid.New().String(),
		logger:  logger.With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("batch_id", s.batchID)
	s.observers = append(Observers{NewLogObserver(logger)}, s.observers...)
	return s
}

// BatchID returns the id reported with every event of this batch.
func (s *Scheduler) BatchID() string {
	return s.batchID
}

// Run dispatches every queued job, waits for all of them, and returns the
// batch report. Run is terminal: a second call returns ErrAlreadyRun.
//
// Job failures, engine errors and panics are recorded in the report and
// never fail Run.
func (s *Scheduler) Run(ctx context.Context) (*Report, error) {
	if s.ran {
		return nil, ErrAlreadyRun
	}
	s.ran = true

	notifyCtx := context.WithoutCancel(ctx)
	report := &Report{
		BatchID:   s.batchID,
		Jobs:      len(s.queue),
		StartedAt: time.Now().UTC(),
	}
	s.observers.BatchStarted(notifyCtx, BatchInfo{
		BatchID:    s.batchID,
		Jobs:       report.Jobs,
		Order:      s.config.Order,
		JobTimeout: s.config.JobTimeout,
		StartedAt:  report.StartedAt,
	})

	for {
		job, ok := s.next()
		if !ok {
			break
		}
		// The handle is recorded before the next job is taken so that no
		// dispatched job can go unobserved.
		s.handles = append(s.handles, s.dispatch(ctx, job))
	}

	report.DispatchedAt = time.Now().UTC()
	s.observers.DispatchFinished(notifyCtx, s.batchID, s.dispatched)

	report.Outcomes = make([]Outcome, 0, len(s.handles))
	for _, h := range s.handles {
		report.add(h.wait())
	}
	s.handles = nil

	report.CompletedAt = time.Now().UTC()
	s.observers.BatchCompleted(notifyCtx, report)

	return report, nil
}

// next removes one job from the queue according to the configured order.
func (s *Scheduler) next() (*model.Job, bool) {
	if len(s.queue) == 0 {
		return nil, false
	}
	var job *model.Job
	switch s.config.Order {
	case OrderLIFO:
		last := len(s.queue) - 1
		job = s.queue[last]
		s.queue[last] = nil
		s.queue = s.queue[:last]
	default:
		job = s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}
	return job, true
}
