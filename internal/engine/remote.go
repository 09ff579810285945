package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/me/bioclick/pkg/model"
)

// DefaultRemoteURL is the address of a locally running engine service.
const DefaultRemoteURL = "http://127.0.0.1:5001"

// RemoteConfig configures a RemoteEngine.
type RemoteConfig struct {
	// Name is reported by Name(). Defaults to "RemoteEngine".
	Name string
	// Prefix starts each output file name. Defaults to "remote".
	Prefix string
	// URL is the base URL of the engine service.
	URL string
	// Timeout bounds each HTTP call. 0 means no client-side limit.
	Timeout time.Duration
}

// RemoteEngine submits each request to an engine service over HTTP as a
// multipart upload and saves the response body as the result artifact.
// It accepts both file and raw-bytes input.
type RemoteEngine struct {
	cfg     RemoteConfig
	client  *http.Client
	outputs *Outputs
	logger  *slog.Logger
}

// NewRemoteEngine creates a RemoteEngine writing into outputs.
func NewRemoteEngine(cfg RemoteConfig, outputs *Outputs, logger *slog.Logger) *RemoteEngine {
	if cfg.Name == "" {
		cfg.Name = "RemoteEngine"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "remote"
	}
	if cfg.URL == "" {
		cfg.URL = DefaultRemoteURL
	}
	return &RemoteEngine{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		outputs: outputs,
		logger:  logger.With("component", "remote-engine", "engine", cfg.Name),
	}
}

// Name returns the configured engine name.
func (e *RemoteEngine) Name() string {
	return e.cfg.Name
}

// Endpoint returns the full run_blast URL.
func (e *RemoteEngine) Endpoint() string {
	return strings.TrimSuffix(e.cfg.URL, "/") + model.RunBlastPath
}

// Execute uploads the request input and stores the service response.
func (e *RemoteEngine) Execute(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error) {
	if err := checkType(e.cfg.Name, req); err != nil {
		return nil, err
	}

	body, contentType, err := e.encode(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint(), body)
	if err != nil {
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "create request", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	e.logger.Debug("remote call", "job_id", req.JobID, "url", e.Endpoint(), "type", req.Type)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(e.cfg.Name, ctxErr)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, model.WrapEngineError(model.ErrCodeTimeout, e.cfg.Name, "remote call timed out", err)
		}
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "remote call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.decodeFailure(resp)
	}

	path, err := e.outputs.Path(outputName(e.cfg.Prefix, req.JobID, ".xml"))
	if err != nil {
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "prepare output", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "create output", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(e.cfg.Name, ctxErr)
		}
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "write output", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "close output", err)
	}

	e.logger.Debug("remote call completed", "job_id", req.JobID, "output", path)

	return model.NewSuccessResult(req, model.FileOutput(path)), nil
}

// encode builds the multipart body for req.
func (e *RemoteEngine) encode(req model.ExecutionRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := "sequence.fasta"
	if req.Input.IsFile() {
		filename = filepath.Base(req.Input.Path)
	}
	part, err := w.CreateFormFile(model.FormFieldFile, filename)
	if err != nil {
		return nil, "", model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "encode request", err)
	}

	switch req.Input.Kind {
	case model.InputKindRawBytes:
		if _, err := part.Write(req.Input.Data); err != nil {
			return nil, "", model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "encode request", err)
		}
	case model.InputKindFilePath:
		f, err := os.Open(req.Input.Path)
		if err != nil {
			return nil, "", model.WrapEngineError(model.ErrCodeInvalidInput, e.cfg.Name,
				fmt.Sprintf("input file %s is not readable", req.Input.Path), err)
		}
		_, err = io.Copy(part, f)
		f.Close()
		if err != nil {
			return nil, "", model.WrapEngineError(model.ErrCodeInvalidInput, e.cfg.Name, "read input", err)
		}
	default:
		return nil, "", model.NewEngineError(model.ErrCodeInvalidInput, e.cfg.Name, "unknown input kind %q", req.Input.Kind)
	}

	fields := map[string]string{
		model.FormFieldBlastType: req.Type.String(),
		model.FormFieldDatabase:  req.Parameters.Database,
		model.FormFieldJobID:     strconv.FormatUint(req.JobID, 10),
	}
	for _, name := range []string{model.FormFieldBlastType, model.FormFieldDatabase, model.FormFieldJobID} {
		if err := w.WriteField(name, fields[name]); err != nil {
			return nil, "", model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "encode request", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", model.WrapEngineError(model.ErrCodeExecutionFailed, e.cfg.Name, "encode request", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeFailure converts a non-200 response into an EngineError, preferring
// the code carried in the JSON body over the HTTP status. Codes outside the
// known set fall back to the status mapping.
func (e *RemoteEngine) decodeFailure(resp *http.Response) error {
	code := model.CodeForHTTPStatus(resp.StatusCode)
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return model.WrapEngineError(code, e.cfg.Name, fmt.Sprintf("HTTP %d: read body", resp.StatusCode), err)
	}

	var er model.ErrorResponse
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != "" {
		msg = er.Error
		if er.Details != "" {
			msg += ": " + er.Details
		}
		switch {
		case er.Code.Valid():
			code = er.Code
		case er.Code != "":
			msg = fmt.Sprintf("%s (remote code %q)", msg, er.Code)
		}
	}
	return model.NewEngineError(code, e.cfg.Name, "HTTP %d: %s", resp.StatusCode, msg)
}
