package engineserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/me/bioclick/pkg/model"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "bioclick engine server")
}

type healthResponse struct {
	Status    string   `json:"status"`
	GoVersion string   `json:"go_version"`
	Uptime    string   `json:"uptime"`
	Databases []string `json:"databases"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	dbs := make([]string, 0, len(s.databases))
	for db := range s.databases {
		dbs = append(dbs, db)
	}
	sort.Strings(dbs)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:    "healthy",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Databases: dbs,
	})
}

func (s *Server) handleRunBlast(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, reqID, "", http.StatusRequestEntityTooLarge, model.ErrorResponse{
				Error: fmt.Sprintf("Upload exceeds %d bytes", s.config.MaxUploadBytes),
				Code:  model.ErrCodeInvalidInput,
			})
			return
		}
		s.fail(w, reqID, "", http.StatusBadRequest, model.ErrorResponse{
			Error:   "Malformed multipart request",
			Code:    model.ErrCodeInvalidInput,
			Details: err.Error(),
		})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(model.FormFieldFile)
	if err != nil {
		s.fail(w, reqID, "", http.StatusBadRequest, model.ErrorResponse{
			Error: "Missing 'file' in request",
			Code:  model.ErrCodeInvalidInput,
		})
		return
	}
	defer file.Close()

	blastType := r.FormValue(model.FormFieldBlastType)
	if blastType == "" {
		s.fail(w, reqID, "", http.StatusBadRequest, model.ErrorResponse{
			Error: "Missing 'blastType' in form data",
			Code:  model.ErrCodeInvalidInput,
		})
		return
	}
	program := model.SearchType(blastType)
	if !program.Valid() {
		s.fail(w, reqID, "unsupported", http.StatusBadRequest, model.ErrorResponse{
			Error: fmt.Sprintf("Unsupported blastType '%s'", blastType),
			Code:  model.ErrCodeUnsupportedFormat,
		})
		return
	}

	database := r.FormValue(model.FormFieldDatabase)
	if database == "" {
		database = model.DefaultDatabase
	}
	if !s.databases[database] {
		s.fail(w, reqID, blastType, http.StatusServiceUnavailable, model.ErrorResponse{
			Error: fmt.Sprintf("Database '%s' is not available", database),
			Code:  model.ErrCodeDatabaseUnavailable,
		})
		return
	}

	seq, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, reqID, blastType, http.StatusBadRequest, model.ErrorResponse{
			Error:   "Could not read uploaded file",
			Code:    model.ErrCodeInvalidInput,
			Details: err.Error(),
		})
		return
	}

	ctx := r.Context()
	if s.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SearchTimeout)
		defer cancel()
	}

	jobID := r.FormValue(model.FormFieldJobID)
	s.logger.Debug("search", "request_id", reqID, "job_id", jobID, "program", program, "database", database, "bytes", len(seq))

	report, err := s.searcher.Search(ctx, SearchRequest{
		JobID:    jobID,
		Type:     program,
		Database: database,
		Filename: header.Filename,
		Sequence: seq,
	})
	if err != nil {
		var ee *model.EngineError
		if errors.As(err, &ee) {
			body := model.ErrorResponse{Error: ee.Message, Code: ee.Code}
			if ee.Err != nil {
				body.Details = ee.Err.Error()
			}
			s.fail(w, reqID, blastType, ee.Code.HTTPStatus(), body)
			return
		}
		s.fail(w, reqID, blastType, http.StatusInternalServerError, model.ErrorResponse{
			Error:   "Remote BLAST failed",
			Code:    model.ErrCodeExecutionFailed,
			Details: err.Error(),
		})
		return
	}

	s.metrics.searches.WithLabelValues(blastType, "OK").Inc()
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", `attachment; filename="blast_result.xml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(report)
}

// fail writes a JSON error body and counts the failed search.
func (s *Server) fail(w http.ResponseWriter, reqID, program string, status int, body model.ErrorResponse) {
	if program == "" {
		program = unmatched
	}
	s.metrics.searches.WithLabelValues(program, string(body.Code)).Inc()
	s.logger.Warn("search rejected", "request_id", reqID, "status", status, "code", body.Code, "error", body.Error)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
