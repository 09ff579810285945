package model

// JobState represents the lifecycle state of a Job.
//
// There is no failed state: whether a job ran to the end is
// tracked here, whether it succeeded is carried by its ExecutionResult or
// EngineError.
type JobState string

const (
	JobStateQueued    JobState = "QUEUED"
	JobStateRunning   JobState = "RUNNING"
	JobStateCompleted JobState = "COMPLETED"
)

// String returns the string representation of the job state.
func (s JobState) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted
}

// ValidJobTransitions defines the allowed state transitions for Jobs.
var ValidJobTransitions = map[JobState][]JobState{
	JobStateQueued:  {JobStateRunning},
	JobStateRunning: {JobStateCompleted},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ResultStatus is the outcome status reported by an engine.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "SUCCESS"
	ResultStatusFailed  ResultStatus = "FAILED"
)

// String returns the string representation of the result status.
func (s ResultStatus) String() string {
	return string(s)
}
