package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an engine failure.
type ErrorCode string

const (
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCodeUnsupportedFormat   ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeDatabaseUnavailable ErrorCode = "DATABASE_UNAVAILABLE"
	ErrCodeExecutionFailed     ErrorCode = "EXECUTION_FAILED"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// Valid reports whether c is one of the ErrCode constants.
func (c ErrorCode) Valid() bool {
	switch c {
	case ErrCodeInvalidInput, ErrCodeUnsupportedFormat, ErrCodeDatabaseUnavailable,
		ErrCodeExecutionFailed, ErrCodeTimeout:
		return true
	}
	return false
}

// EngineError is the structured failure an engine returns instead of a
// result. The set of codes is closed; see the ErrCode constants.
type EngineError struct {
	Code    ErrorCode `json:"code"`
	Engine  string    `json:"engine,omitempty"`
	Message string    `json:"message,omitempty"`
	Err     error     `json:"-"`
}

func (e *EngineError) Error() string {
	msg := string(e.Code)
	if e.Engine != "" {
		msg = e.Engine + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches any *EngineError carrying the same code, so callers can write
// errors.Is(err, model.ErrTimeout).
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching by code.
var (
	ErrInvalidInput        = &EngineError{Code: ErrCodeInvalidInput}
	ErrUnsupportedFormat   = &EngineError{Code: ErrCodeUnsupportedFormat}
	ErrDatabaseUnavailable = &EngineError{Code: ErrCodeDatabaseUnavailable}
	ErrExecutionFailed     = &EngineError{Code: ErrCodeExecutionFailed}
	ErrTimeout             = &EngineError{Code: ErrCodeTimeout}
)

// NewEngineError creates an EngineError with a formatted message.
func NewEngineError(code ErrorCode, engine, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Engine: engine, Message: fmt.Sprintf(format, args...)}
}

// WrapEngineError creates an EngineError that wraps cause.
func WrapEngineError(code ErrorCode, engine, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Engine: engine, Message: msg, Err: cause}
}

// ErrorCodeOf extracts the code of the first EngineError in err's chain.
func ErrorCodeOf(err error) (ErrorCode, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return "", false
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}
