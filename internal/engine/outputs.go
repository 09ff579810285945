package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/me/bioclick/pkg/model"
)

// DefaultOutputsDir is used when no output directory is configured.
const DefaultOutputsDir = "outputs"

// Outputs owns the directory where engines write result artifacts.
// It holds no mutable state and is safe to share between engines.
type Outputs struct {
	dir string
}

// NewOutputs creates an Outputs rooted at dir.
// If dir is empty, DefaultOutputsDir is used.
func NewOutputs(dir string) *Outputs {
	if dir == "" {
		dir = DefaultOutputsDir
	}
	return &Outputs{dir: dir}
}

// Dir returns the output directory.
func (o *Outputs) Dir() string {
	return o.dir
}

// Path ensures the output directory exists and returns the path for name.
func (o *Outputs) Path(name string) (string, error) {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", o.dir, err)
	}
	return filepath.Join(o.dir, name), nil
}

// Write stores data under name and returns the written path.
func (o *Outputs) Write(name string, data []byte) (string, error) {
	path, err := o.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// outputName builds "<prefix>_<jobID><ext>".
func outputName(prefix string, jobID uint64, ext string) string {
	return fmt.Sprintf("%s_%d%s", prefix, jobID, ext)
}

// contextError converts a finished context into an EngineError.
func contextError(engine string, err error) *model.EngineError {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.WrapEngineError(model.ErrCodeTimeout, engine, "deadline exceeded", err)
	}
	return model.WrapEngineError(model.ErrCodeExecutionFailed, engine, "cancelled", err)
}
