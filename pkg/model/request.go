package model

// InputKind tags the variant held by an Input.
type InputKind string

const (
	InputKindFilePath InputKind = "file"
	InputKindRawBytes InputKind = "raw"
)

// Input is the sequence payload of an ExecutionRequest: either a file path
// reference or raw in-memory bytes. Exactly one of Path or Data is meaningful,
// selected by Kind.
type Input struct {
	Kind InputKind `json:"kind"`
	Path string    `json:"path,omitempty"`
	Data []byte    `json:"-"`
}

// FileInput returns an Input referencing a file on disk.
func FileInput(path string) Input {
	return Input{Kind: InputKindFilePath, Path: path}
}

// RawInput returns an Input carrying the sequence bytes directly.
func RawInput(data []byte) Input {
	return Input{Kind: InputKindRawBytes, Data: data}
}

// IsFile reports whether the input is a file path reference.
func (in Input) IsFile() bool { return in.Kind == InputKindFilePath }

// IsRaw reports whether the input carries raw bytes.
func (in Input) IsRaw() bool { return in.Kind == InputKindRawBytes }

// Parameters holds search flags passed through to engines.
type Parameters struct {
	// Database selects the reference database, e.g. "nt".
	Database string `json:"database,omitempty"`

	// Extra is reserved for engine-specific flags. Nothing sets it today.
	Extra map[string]string `json:"extra,omitempty"`
}

// ExecutionRequest is the engine-agnostic payload handed to an Engine.
// It is built fresh for every dispatch and never modified afterwards.
type ExecutionRequest struct {
	JobID      uint64     `json:"job_id"`
	Type       SearchType `json:"type"`
	Input      Input      `json:"input"`
	Parameters Parameters `json:"parameters"`
}

// NewExecutionRequest builds the request for a job. The input is always a
// file path reference to job.InputPath.
func NewExecutionRequest(job *Job) ExecutionRequest {
	program := job.Program
	if program == "" {
		program = SearchBlastN
	}
	database := job.Database
	if database == "" {
		database = DefaultDatabase
	}
	return ExecutionRequest{
		JobID: job.ID,
		Type:  program,
		Input: FileInput(job.InputPath),
		Parameters: Parameters{
			Database: database,
		},
	}
}
