package engineserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/bioclick/internal/config"
	"github.com/me/bioclick/internal/engine"
	"github.com/me/bioclick/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	srv := New(config.DefaultServerConfig(), discardLogger(), opts...)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

// upload builds a run_blast request. Empty field values are omitted.
func upload(t *testing.T, url string, file []byte, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if file != nil {
		part, err := w.CreateFormFile(model.FormFieldFile, "query.fasta")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(file)
	}
	for k, v := range fields {
		if v != "" {
			w.WriteField(k, v)
		}
	}
	w.Close()

	resp, err := http.Post(url+model.RunBlastPath, w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) model.ErrorResponse {
	t.Helper()
	var er model.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return er
}

func TestRunBlast_Success(t *testing.T) {
	ts := testServer(t)
	resp := upload(t, ts.URL, []byte(">q1 test\nACGTACGT\n>q2\nAC\n"), map[string]string{
		model.FormFieldBlastType: "blastn",
		model.FormFieldJobID:     "42",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/xml" {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "blast_result.xml") {
		t.Errorf("content disposition = %q", cd)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"<BlastOutput_program>blastn</BlastOutput_program>",
		"<BlastOutput_db>nt</BlastOutput_db>",
		"<BlastOutput_query-ID>42</BlastOutput_query-ID>",
		"<BlastOutput_query-len>10</BlastOutput_query-len>",
		"q2",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("report missing %q:\n%s", want, body)
		}
	}
}

func TestRunBlast_Rejections(t *testing.T) {
	ts := testServer(t)
	fasta := []byte(">q\nACGT\n")

	tests := []struct {
		name   string
		file   []byte
		fields map[string]string
		status int
		code   model.ErrorCode
		msg    string
	}{
		{"missing file", nil, map[string]string{model.FormFieldBlastType: "blastn"},
			http.StatusBadRequest, model.ErrCodeInvalidInput, "Missing 'file'"},
		{"missing type", fasta, nil,
			http.StatusBadRequest, model.ErrCodeInvalidInput, "Missing 'blastType'"},
		{"unsupported type", fasta, map[string]string{model.FormFieldBlastType: "megablast"},
			http.StatusBadRequest, model.ErrCodeUnsupportedFormat, "Unsupported blastType 'megablast'"},
		{"unknown database", fasta, map[string]string{model.FormFieldBlastType: "blastp", model.FormFieldDatabase: "env_nt"},
			http.StatusServiceUnavailable, model.ErrCodeDatabaseUnavailable, "env_nt"},
		{"not fasta", []byte("12345\n"), map[string]string{model.FormFieldBlastType: "blastn"},
			http.StatusBadRequest, model.ErrCodeInvalidInput, "parse FASTA"},
		{"comments only", []byte("; nothing here\n\n"), map[string]string{model.FormFieldBlastType: "blastn"},
			http.StatusBadRequest, model.ErrCodeInvalidInput, "no sequence records"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := upload(t, ts.URL, tt.file, tt.fields)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			er := decodeError(t, resp)
			if er.Code != tt.code || !strings.Contains(er.Error, tt.msg) {
				t.Errorf("body = %+v, want code %s msg %q", er, tt.code, tt.msg)
			}
		})
	}
}

func TestRunBlast_NotMultipart(t *testing.T) {
	ts := testServer(t)
	resp, err := http.Post(ts.URL+model.RunBlastPath, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRunBlast_TooLarge(t *testing.T) {
	cfg := config.DefaultServerConfig()
	cfg.MaxUploadBytes = 1024
	ts := httptest.NewServer(New(cfg, discardLogger()))
	defer ts.Close()

	big := append([]byte(">q\n"), bytes.Repeat([]byte("A"), 4096)...)
	resp := upload(t, ts.URL, big, map[string]string{model.FormFieldBlastType: "blastn"})
	if resp.StatusCode != http.StatusRequestEntityTooLarge && resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 413 or 400", resp.StatusCode)
	}
	if er := decodeError(t, resp); er.Code != model.ErrCodeInvalidInput {
		t.Errorf("code = %s", er.Code)
	}
}

type errSearcher struct{ err error }

func (e errSearcher) Search(context.Context, SearchRequest) ([]byte, error) { return nil, e.err }

func TestRunBlast_SearcherErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   model.ErrorCode
	}{
		{"classified", model.NewEngineError(model.ErrCodeTimeout, "", "too slow"), http.StatusGatewayTimeout, model.ErrCodeTimeout},
		{"unclassified", errors.New("ncbi down"), http.StatusInternalServerError, model.ErrCodeExecutionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testServer(t, WithSearcher(errSearcher{tt.err}))
			resp := upload(t, ts.URL, []byte(">q\nAC\n"), map[string]string{model.FormFieldBlastType: "blastn"})
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if er := decodeError(t, resp); er.Code != tt.code {
				t.Errorf("code = %s, want %s", er.Code, tt.code)
			}
		})
	}
}

func TestHealthAndRoot(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "healthy" || len(h.Databases) == 0 {
		t.Errorf("health = %+v", h)
	}

	resp2, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	body, _ := io.ReadAll(resp2.Body)
	if !strings.Contains(string(body), "engine server") {
		t.Errorf("root = %q", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := testServer(t)
	upload(t, ts.URL, []byte(">q\nAC\n"), map[string]string{model.FormFieldBlastType: "blastx"})
	upload(t, ts.URL, []byte(">q\nAC\n"), map[string]string{model.FormFieldBlastType: "nope"})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`bioclick_engine_http_requests_total{method="POST",path="/run_blast",status="200"} 1`,
		`bioclick_engine_http_requests_total{method="POST",path="/run_blast",status="400"} 1`,
		`bioclick_engine_searches_total{code="OK",program="blastx"} 1`,
		`bioclick_engine_searches_total{code="UNSUPPORTED_FORMAT",program="unsupported"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

// TestRemoteEngineRoundTrip drives the server through the client engine.
func TestRemoteEngineRoundTrip(t *testing.T) {
	ts := testServer(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "q.fasta")
	if err := os.WriteFile(input, []byte(">q\nMKVLA\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := engine.NewRemoteEngine(engine.RemoteConfig{URL: ts.URL, Timeout: 5 * time.Second},
		engine.NewOutputs(filepath.Join(dir, "out")), discardLogger())

	res, err := e.Execute(context.Background(), model.ExecutionRequest{
		JobID:      9,
		Type:       model.SearchBlastP,
		Input:      model.FileInput(input),
		Parameters: model.Parameters{Database: "swissprot"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, err := os.ReadFile(res.Output.Path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "<BlastOutput_query-ID>9</BlastOutput_query-ID>") {
		t.Errorf("output = %s", data)
	}

	_, err = e.Execute(context.Background(), model.ExecutionRequest{
		JobID:      10,
		Type:       model.SearchBlastP,
		Input:      model.RawInput([]byte(">q\nMK\n")),
		Parameters: model.Parameters{Database: "env_nr"},
	})
	if !errors.Is(err, model.ErrDatabaseUnavailable) {
		t.Errorf("error = %v, want DATABASE_UNAVAILABLE", err)
	}
}

func TestCommandSearcher(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	s := CommandSearcher{Command: []string{"sh", "-c", `echo "{program} {database} {job_id}"; cat "{query}"`}}
	out, err := s.Search(context.Background(), SearchRequest{
		JobID: "5", Type: model.SearchBlastN, Database: "nt", Filename: "q.fa", Sequence: []byte(">q\nAC\n"),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if string(out) != "blastn nt 5\n>q\nAC\n" {
		t.Errorf("out = %q", out)
	}

	fail := CommandSearcher{Command: []string{"sh", "-c", "echo bad db >&2; exit 2"}}
	_, err = fail.Search(context.Background(), SearchRequest{Type: model.SearchBlastN})
	if !errors.Is(err, model.ErrExecutionFailed) || !strings.Contains(err.Error(), "bad db") {
		t.Errorf("error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	slow := CommandSearcher{Command: []string{"sh", "-c", "sleep 5"}}
	if _, err := slow.Search(ctx, SearchRequest{Type: model.SearchBlastN}); !errors.Is(err, model.ErrTimeout) {
		t.Errorf("error = %v, want TIMEOUT", err)
	}
}
