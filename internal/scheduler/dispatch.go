package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/me/bioclick/internal/engine"
	"github.com/me/bioclick/internal/routing"
	"github.com/me/bioclick/pkg/model"
)

// handle is the join point for one dispatched job. done receives exactly one
// Outcome.
type handle struct {
	jobID uint64
	done  chan Outcome
}

func newHandle(jobID uint64) *handle {
	return &handle{jobID: jobID, done: make(chan Outcome, 1)}
}

func (h *handle) wait() Outcome {
	return <-h.done
}

// dispatch starts one job and returns its handle. Jobs that cannot be started
// get a handle that is already resolved with the failure.
func (s *Scheduler) dispatch(ctx context.Context, job *model.Job) *handle {
	h := newHandle(job.ID)
	notifyCtx := context.WithoutCancel(ctx)
	base := Outcome{BatchID: s.batchID, JobID: job.ID, JobName: job.Name}

	if err := job.Transition(model.JobStateRunning); err != nil {
		s.logger.Warn("job not dispatchable", "job_id", job.ID, "state", job.State, "error", err)
		base.Err = err
		s.resolve(notifyCtx, h, base)
		return h
	}

	req := model.NewExecutionRequest(job)

	decision, err := s.policy.Route(job)
	if err != nil {
		job.State = model.JobStateCompleted
		base.Err = &RoutingError{JobID: job.ID, Err: err}
		s.resolve(notifyCtx, h, base)
		return h
	}

	base.Engine = decision.EngineName
	base.Rule = decision.Rule
	base.Reason = decision.Reason
	base.StartedAt = time.Now().UTC()

	s.dispatched++
	s.observers.JobDispatched(notifyCtx, Dispatch{
		BatchID:    s.batchID,
		JobID:      job.ID,
		JobName:    job.Name,
		Engine:     decision.EngineName,
		EngineName: decision.Engine.Name(),
		Rule:       decision.Rule,
		Reason:     decision.Reason,
		Type:       req.Type,
		Database:   req.Parameters.Database,
		At:         base.StartedAt,
	})

	go s.execute(ctx, h, job, req, decision, base)
	return h
}

// execute runs in the job goroutine. It always resolves h, including when
// the engine panics.
func (s *Scheduler) execute(ctx context.Context, h *handle, job *model.Job, req model.ExecutionRequest, d routing.Decision, outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome.Result = nil
			outcome.Err = &PanicError{JobID: req.JobID, Value: r, Stack: debug.Stack()}
		}
		outcome.Duration = time.Since(outcome.StartedAt)
		job.State = model.JobStateCompleted
		s.resolve(context.WithoutCancel(ctx), h, outcome)
	}()

	res, err := s.call(ctx, d.Engine, req)
	outcome.Result, outcome.Err = checkResult(d.Engine.Name(), req, res, err)
}

// resolve reports the outcome and hands it to the join point. A panicking
// observer is logged and skipped; h is resolved regardless.
func (s *Scheduler) resolve(ctx context.Context, h *handle, o Outcome) {
	defer func() { h.done <- o }()
	for _, obs := range s.observers {
		s.notifyCompleted(ctx, obs, o)
	}
}

func (s *Scheduler) notifyCompleted(ctx context.Context, obs Observer, o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observer panicked", "job_id", o.JobID, "observer", fmt.Sprintf("%T", obs), "panic", r)
		}
	}()
	obs.JobCompleted(ctx, o)
}

// call invokes the engine, enforcing the per-job deadline when configured.
// When the deadline fires first the engine goroutine is abandoned; it sees
// a cancelled context and its late reply is discarded.
func (s *Scheduler) call(ctx context.Context, e engine.Engine, req model.ExecutionRequest) (*model.ExecutionResult, error) {
	if s.config.JobTimeout <= 0 {
		return e.Execute(ctx, req)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	type reply struct {
		res *model.ExecutionResult
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: &PanicError{JobID: req.JobID, Value: r, Stack: debug.Stack()}}
			}
		}()
		res, err := e.Execute(ctx, req)
		ch <- reply{res: res, err: err}
	}()

	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, model.WrapEngineError(model.ErrCodeTimeout, e.Name(),
				fmt.Sprintf("no result within %s", s.config.JobTimeout), ctx.Err())
		}
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.Name(), "cancelled", ctx.Err())
	}
}

// checkResult enforces the engine contract: exactly one of result or error,
// an error from the closed code set, and a result attributed to the request.
// Violations become EXECUTION_FAILED.
func checkResult(engineName string, req model.ExecutionRequest, res *model.ExecutionResult, err error) (*model.ExecutionResult, error) {
	if err != nil {
		var pe *PanicError
		if errors.As(err, &pe) {
			return nil, err
		}
		if code, ok := model.ErrorCodeOf(err); !ok || !code.Valid() {
			err = model.WrapEngineError(model.ErrCodeExecutionFailed, engineName, "unclassified engine error", err)
		}
		return nil, err
	}
	if res == nil {
		return nil, model.NewEngineError(model.ErrCodeExecutionFailed, engineName, "engine returned neither result nor error")
	}
	if res.JobID != req.JobID {
		return nil, model.NewEngineError(model.ErrCodeExecutionFailed, engineName,
			"result attributed to job %d, want %d", res.JobID, req.JobID)
	}
	return res, nil
}
