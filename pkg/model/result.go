package model

// OutputKind tags the variant held by an Output.
type OutputKind string

const (
	OutputKindFilePath OutputKind = "file"
)

// Output references an artifact produced by an engine.
type Output struct {
	Kind OutputKind `json:"kind"`
	Path string     `json:"path,omitempty"`
}

// FileOutput returns an Output pointing at a file.
func FileOutput(path string) Output {
	return Output{Kind: OutputKindFilePath, Path: path}
}

// String renders the output reference for logs and reports.
func (o Output) String() string {
	return o.Path
}

// ExecutionResult is the structured outcome an engine returns on success.
type ExecutionResult struct {
	JobID  uint64       `json:"job_id"`
	Status ResultStatus `json:"status"`
	Output Output       `json:"output"`
}

// NewSuccessResult returns a SUCCESS result for the given request.
func NewSuccessResult(req ExecutionRequest, out Output) *ExecutionResult {
	return &ExecutionResult{
		JobID:  req.JobID,
		Status: ResultStatusSuccess,
		Output: out,
	}
}
