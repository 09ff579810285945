package model

import "net/http"

// Multipart form fields of the run_blast endpoint.
const (
	FormFieldFile      = "file"
	FormFieldBlastType = "blastType"
	FormFieldDatabase  = "database"
	FormFieldJobID     = "jobId"
)

// RunBlastPath is the engine service endpoint that executes one search.
const RunBlastPath = "/run_blast"

// ErrorResponse is the JSON body an engine service returns on failure.
type ErrorResponse struct {
	Error   string    `json:"error"`
	Code    ErrorCode `json:"code,omitempty"`
	Details string    `json:"details,omitempty"`
}

// HTTPStatus returns the HTTP status an engine service uses for code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeInvalidInput, ErrCodeUnsupportedFormat:
		return http.StatusBadRequest
	case ErrCodeDatabaseUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// CodeForHTTPStatus maps an HTTP failure status to an error code when the
// response body carried none.
func CodeForHTTPStatus(status int) ErrorCode {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return ErrCodeInvalidInput
	case http.StatusServiceUnavailable:
		return ErrCodeDatabaseUnavailable
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ErrCodeTimeout
	default:
		return ErrCodeExecutionFailed
	}
}

// ListOptions configures ledger list queries with pagination.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
