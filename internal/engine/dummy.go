package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/bioclick/pkg/model"
)

// DummyConfig configures a DummyEngine.
type DummyConfig struct {
	// Name is reported by Name(). Defaults to "DummyEngine".
	Name string
	// Prefix starts each output file name. Defaults to "dummy".
	Prefix string
	// Delay simulates engine latency before the result is written.
	Delay time.Duration
}

// DummyEngine computes a placeholder result in-process. It accepts both
// file and raw-bytes input.
type DummyEngine struct {
	cfg     DummyConfig
	outputs *Outputs
	logger  *slog.Logger
}

// NewDummyEngine creates a DummyEngine writing into outputs.
func NewDummyEngine(cfg DummyConfig, outputs *Outputs, logger *slog.Logger) *DummyEngine {
	if cfg.Name == "" {
		cfg.Name = "DummyEngine"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "dummy"
	}
	return &DummyEngine{
		cfg:     cfg,
		outputs: outputs,
		logger:  logger.With("component", "dummy-engine", "engine", cfg.Name),
	}
}

// Name returns the configured engine name.
func (e *DummyEngine) Name() string {
	return e.cfg.Name
}

// Execute writes a dummy report for the request.
func (e *DummyEngine) Execute(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error) {
	e.logger.Debug("executing", "job_id", req.JobID, "type", req.Type)

	if err := checkType(e.cfg.Name, req); err != nil {
		return nil, err
	}

	if e.cfg.Delay > 0 {
		timer := time.NewTimer(e.cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, contextError(e.cfg.Name, ctx.Err())
		case <-timer.C:
		}
	}

	body := fmt.Sprintf("Dummy BLAST result\nJob ID: %d\n", req.JobID)
	switch req.Input.Kind {
	case model.InputKindRawBytes:
		body += fmt.Sprintf("Input bytes: %d\n", len(req.Input.Data))
	default:
		body += fmt.Sprintf("Input: %s\n", req.Input.Path)
	}

	path, err := e.outputs.Write(outputName(e.cfg.Prefix+"_result", req.JobID, ".txt"), []byte(body))
	if err != nil {
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "write output", err)
	}

	return model.NewSuccessResult(req, model.FileOutput(path)), nil
}
