package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/me/bioclick/pkg/model"
)

// DefaultProcessCommand runs the bundled seqstat tool.
var DefaultProcessCommand = []string{"seqstat", "{job_id}", "{input}"}

// ProcessConfig configures a ProcessEngine.
type ProcessConfig struct {
	// Name is reported by Name(). Defaults to "ProcessEngine".
	Name string
	// Prefix starts each output file name. Defaults to "process".
	Prefix string
	// Command is the argv template. The tokens {job_id}, {input},
	// {program} and {database} are substituted per request.
	Command []string
	// WorkDir is the working directory of the child process.
	WorkDir string
	// MaxParallel caps concurrently running child processes. 0 means no cap.
	MaxParallel int
	// Databases, when non-empty, lists the databases this engine can search.
	Databases []string
}

// ProcessEngine runs each request as an external OS process and stores the
// process stdout as the result artifact. It only accepts file input.
type ProcessEngine struct {
	cfg     ProcessConfig
	outputs *Outputs
	slots   chan struct{}
	logger  *slog.Logger
}

// NewProcessEngine creates a ProcessEngine writing into outputs.
func NewProcessEngine(cfg ProcessConfig, outputs *Outputs, logger *slog.Logger) *ProcessEngine {
	if cfg.Name == "" {
		cfg.Name = "ProcessEngine"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "process"
	}
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultProcessCommand
	}
	e := &ProcessEngine{
		cfg:     cfg,
		outputs: outputs,
		logger:  logger.With("component", "process-engine", "engine", cfg.Name),
	}
	if cfg.MaxParallel > 0 {
		e.slots = make(chan struct{}, cfg.MaxParallel)
	}
	return e
}

// Name returns the configured engine name.
func (e *ProcessEngine) Name() string {
	return e.cfg.Name
}

// Execute runs the configured command for the request.
func (e *ProcessEngine) Execute(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error) {
	inputPath, err := fileInput(e.cfg.Name, req)
	if err != nil {
		return nil, err
	}
	if err := checkType(e.cfg.Name, req); err != nil {
		return nil, err
	}
	if _, err := os.Stat(inputPath); err != nil {
		return nil, model.WrapEngineError(model.ErrCodeInvalidInput, e.cfg.Name,
			fmt.Sprintf("input file %s is not readable", inputPath), err)
	}
	if !e.hasDatabase(req.Parameters.Database) {
		return nil, model.NewEngineError(model.ErrCodeDatabaseUnavailable, e.cfg.Name,
			"database %q is not available", req.Parameters.Database)
	}

	if e.slots != nil {
		select {
		case e.slots <- struct{}{}:
			defer func() { <-e.slots }()
		case <-ctx.Done():
			return nil, contextError(e.cfg.Name, ctx.Err())
		}
	}

	argv := expandCommand(e.cfg.Command, req, inputPath)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.cfg.WorkDir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	e.logger.Debug("process finished",
		"job_id", req.JobID,
		"command", argv,
		"stderr", stderrBuf.String(),
	)

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(e.cfg.Name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, model.NewEngineError(model.ErrCodeExecutionFailed, e.cfg.Name,
				"exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderrBuf.String()))
		}
		// Non-exit errors (e.g. binary not found).
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "spawn failed", runErr)
	}

	path, err := e.outputs.Write(outputName(e.cfg.Prefix, req.JobID, ".txt"), stdoutBuf.Bytes())
	if err != nil {
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "write output", err)
	}

	return model.NewSuccessResult(req, model.FileOutput(path)), nil
}

func (e *ProcessEngine) hasDatabase(db string) bool {
	if len(e.cfg.Databases) == 0 {
		return true
	}
	for _, known := range e.cfg.Databases {
		if known == db {
			return true
		}
	}
	return false
}

// expandCommand substitutes request values into the argv template.
func expandCommand(template []string, req model.ExecutionRequest, inputPath string) []string {
	r := strings.NewReplacer(
		"{job_id}", strconv.FormatUint(req.JobID, 10),
		"{input}", inputPath,
		"{program}", req.Type.String(),
		"{database}", req.Parameters.Database,
	)
	argv := make([]string, len(template))
	for i, arg := range template {
		argv[i] = r.Replace(arg)
	}
	return argv
}
