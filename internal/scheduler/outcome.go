package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/me/bioclick/pkg/model"
)

// Failure codes reported for failures that did not come from an engine.
const (
	CodePanic    = "PANIC"
	CodeRouting  = "ROUTING_FAILED"
	CodeRejected = "REJECTED"
)

// PanicError records a panic raised while a job was executing.
type PanicError struct {
	JobID uint64
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job %d: engine panicked: %v", e.JobID, e.Value)
}

// RoutingError records that no engine could be selected for a job.
type RoutingError struct {
	JobID uint64
	Err   error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("route job %d: %v", e.JobID, e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// Outcome is the resolved result of one job: exactly one of Result or Err is
// set.
type Outcome struct {
	BatchID string
	JobID   uint64
	JobName string

	// Engine is the registry name of the engine the job was routed to.
	// Empty when routing failed.
	Engine string
	Rule   string
	Reason string

	Result *model.ExecutionResult
	Err    error

	StartedAt time.Time
	Duration  time.Duration
}

// Succeeded reports whether the engine returned a SUCCESS result.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Result != nil && o.Result.Status == model.ResultStatusSuccess
}

// Code classifies a failed outcome, or returns "" for a success.
func (o Outcome) Code() string {
	if o.Succeeded() {
		return ""
	}
	if code, ok := model.ErrorCodeOf(o.Err); ok {
		return code.String()
	}
	var pe *PanicError
	if errors.As(o.Err, &pe) {
		return CodePanic
	}
	var re *RoutingError
	if errors.As(o.Err, &re) {
		return CodeRouting
	}
	if o.Err != nil {
		return CodeRejected
	}
	return string(model.ResultStatusFailed)
}

// Status is SUCCESS or FAILED.
func (o Outcome) Status() model.ResultStatus {
	if o.Succeeded() {
		return model.ResultStatusSuccess
	}
	return model.ResultStatusFailed
}

// Report summarizes a finished batch. Outcomes are in dispatch order.
type Report struct {
	BatchID  string
	Jobs     int
	Outcomes []Outcome

	Succeeded int
	Failed    int

	StartedAt    time.Time
	DispatchedAt time.Time
	CompletedAt  time.Time
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Succeeded() {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// Outcome returns the outcome for jobID.
func (r *Report) Outcome(jobID uint64) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.JobID == jobID {
			return o, true
		}
	}
	return Outcome{}, false
}

// OK reports whether every job succeeded.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Elapsed is the wall time from start to the last join.
func (r *Report) Elapsed() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
