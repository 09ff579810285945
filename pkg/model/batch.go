package model

import "time"

// BatchState is the lifecycle state of a recorded batch.
type BatchState string

const (
	BatchStateRunning   BatchState = "RUNNING"
	BatchStateCompleted BatchState = "COMPLETED"
)

// String returns the string representation of the batch state.
func (s BatchState) String() string {
	return string(s)
}

// Batch is the ledger record of one scheduler run.
type Batch struct {
	ID           string        `json:"id"`
	Jobs         int           `json:"jobs"`
	Order        string        `json:"order"`
	JobTimeout   time.Duration `json:"job_timeout"`
	State        BatchState    `json:"state"`
	Dispatched   int           `json:"dispatched"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	StartedAt    time.Time     `json:"started_at"`
	DispatchedAt *time.Time    `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// JobRecord is the ledger record of one job within a batch: where it was
// routed and how it ended. Dispatch fields are empty for jobs that were
// never handed to an engine.
type JobRecord struct {
	BatchID string `json:"batch_id"`
	JobID   uint64 `json:"job_id"`
	JobName string `json:"job_name"`

	Engine     string     `json:"engine,omitempty"`
	EngineName string     `json:"engine_name,omitempty"`
	Rule       string     `json:"rule,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Program    SearchType `json:"program,omitempty"`
	Database   string     `json:"database,omitempty"`

	Status   ResultStatus  `json:"status,omitempty"`
	Code     string        `json:"code,omitempty"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Done reports whether the job's outcome has been recorded.
func (r *JobRecord) Done() bool {
	return r.CompletedAt != nil
}
