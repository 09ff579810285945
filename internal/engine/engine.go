// Package engine defines the execution contract the scheduler dispatches
// through, and the concrete BLAST backends that satisfy it.
package engine

import (
	"context"

	"github.com/me/bioclick/pkg/model"
)

// Engine is a pluggable backend that runs search requests.
//
// One Engine value is shared by every job routed to it, so Execute must be
// safe for concurrent use. Any serialization an engine needs is internal.
type Engine interface {
	// Name returns a human-readable engine name.
	Name() string

	// Execute runs one request. On success it returns a result whose JobID
	// equals req.JobID and a nil error. On failure it returns a nil result
	// and a *model.EngineError.
	Execute(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error)
}

// Type identifies an engine implementation in configuration.
type Type string

const (
	TypeDummy   Type = "dummy"
	TypeProcess Type = "process"
	TypeRemote  Type = "remote"
)

// fileInput returns the request's file path, or an INVALID_INPUT error for
// engines that cannot accept raw bytes.
func fileInput(engine string, req model.ExecutionRequest) (string, error) {
	if !req.Input.IsFile() {
		return "", model.NewEngineError(model.ErrCodeInvalidInput, engine, "%s engine requires file input", engine)
	}
	if req.Input.Path == "" {
		return "", model.NewEngineError(model.ErrCodeInvalidInput, engine, "empty input path")
	}
	return req.Input.Path, nil
}

// checkType rejects search programs outside the known set.
func checkType(engine string, req model.ExecutionRequest) error {
	if !req.Type.Valid() {
		return model.NewEngineError(model.ErrCodeUnsupportedFormat, engine, "unsupported search type %q", req.Type)
	}
	return nil
}
