package engineserver

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/me/bioclick/internal/seqstat"
	"github.com/me/bioclick/pkg/model"
)

// SearchRequest is one validated run_blast upload.
type SearchRequest struct {
	JobID    string
	Type     model.SearchType
	Database string
	Filename string
	Sequence []byte
}

// Searcher runs a search and returns the report body. Failures should be
// *model.EngineError values; anything else is reported as a 500.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]byte, error)
}

// SummarySearcher answers every search with a BLAST-XML-shaped report of the
// query's sequence statistics. It needs no local BLAST installation.
type SummarySearcher struct{}

type summaryReport struct {
	XMLName  xml.Name `xml:"BlastOutput"`
	Program  string   `xml:"BlastOutput_program"`
	Database string   `xml:"BlastOutput_db"`
	QueryID  string   `xml:"BlastOutput_query-ID"`
	QueryDef string   `xml:"BlastOutput_query-def"`
	QueryLen int64    `xml:"BlastOutput_query-len"`
	Records  int      `xml:"BlastOutput_param>Parameters_records"`
	Bytes    int64    `xml:"BlastOutput_param>Parameters_bytes"`
	Hits     []string `xml:"BlastOutput_iterations>Iteration>Iteration_query-ID"`
}

func (SummarySearcher) Search(_ context.Context, req SearchRequest) ([]byte, error) {
	st, err := seqstat.Summarize(bytes.NewReader(req.Sequence))
	if err != nil {
		return nil, model.WrapEngineError(model.ErrCodeInvalidInput, "", "parse FASTA", err)
	}
	if st.Records == 0 {
		return nil, model.NewEngineError(model.ErrCodeInvalidInput, "", "no sequence records in %s", req.Filename)
	}

	rep := summaryReport{
		Program:  req.Type.String(),
		Database: req.Database,
		QueryID:  req.JobID,
		QueryDef: req.Filename,
		QueryLen: st.Residues,
		Records:  st.Records,
		Bytes:    st.Bytes,
		Hits:     st.IDs,
	}
	out, err := xml.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, "", "encode report", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// DefaultSearchCommand runs BLAST+ with XML output.
var DefaultSearchCommand = []string{"{program}", "-db", "{database}", "-query", "{query}", "-outfmt", "5"}

// CommandSearcher runs a local search binary against the uploaded query,
// written to a temporary file. Stdout is the report.
type CommandSearcher struct {
	// Command is the argv template. {program}, {database}, {query} and
	// {job_id} are substituted per search.
	Command []string
	// TempDir holds query files. Empty uses the OS default.
	TempDir string
}

func (c CommandSearcher) Search(ctx context.Context, req SearchRequest) ([]byte, error) {
	f, err := os.CreateTemp(c.TempDir, "query-*"+filepath.Ext(req.Filename))
	if err != nil {
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, "", "create query file", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(req.Sequence); err != nil {
		f.Close()
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, "", "write query file", err)
	}
	if err := f.Close(); err != nil {
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, "", "close query file", err)
	}

	template := c.Command
	if len(template) == 0 {
		template = DefaultSearchCommand
	}
	r := strings.NewReplacer(
		"{program}", req.Type.String(),
		"{database}", req.Database,
		"{query}", f.Name(),
		"{job_id}", req.JobID,
	)
	argv := make([]string, len(template))
	for i, a := range template {
		argv[i] = r.Replace(a)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, model.WrapEngineError(model.ErrCodeTimeout, "", "search timed out", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, model.NewEngineError(model.ErrCodeExecutionFailed, "",
				"%s exit code %d: %s", argv[0], exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, model.WrapEngineError(model.ErrCodeExecutionFailed, "", fmt.Sprintf("start %s", argv[0]), err)
	}
	return stdout.Bytes(), nil
}
