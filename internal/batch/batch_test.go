package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/bioclick/pkg/model"
)

const fasta = ">seq1\nACGTACGT\n"

func TestLoad_Manifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "seqs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "seqs", "q1.fasta"), []byte(fasta), 0o644); err != nil {
		t.Fatal(err)
	}
	manifest := filepath.Join(dir, "batch.yaml")
	body := `
defaults:
  program: blastp
  database: nr
jobs:
  - id: 10
    name: first
    input: seqs/q1.fasta
    schedule: 5s
  - input: /abs/missing.fasta
    program: tblastx
    database: pdb
`
	if err := os.WriteFile(manifest, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	jobs, err := Load(manifest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}

	j := jobs[0]
	if j.ID != 10 || j.Name != "first" || j.State != model.JobStateQueued {
		t.Errorf("job 0 = %+v", j)
	}
	if j.InputPath != filepath.Join(dir, "seqs", "q1.fasta") {
		t.Errorf("input = %q, want resolved against manifest dir", j.InputPath)
	}
	if j.InputSize != int64(len(fasta)) {
		t.Errorf("input size = %d, want %d", j.InputSize, len(fasta))
	}
	if j.Program != model.SearchBlastP || j.Database != "nr" || j.Schedule != 5*time.Second {
		t.Errorf("defaults not applied: %+v", j)
	}

	j = jobs[1]
	if j.ID != 2 {
		t.Errorf("auto id = %d, want position 2", j.ID)
	}
	if j.Name != "BLAST Job for missing.fasta" || j.InputPath != "/abs/missing.fasta" {
		t.Errorf("job 1 = %+v", j)
	}
	if j.InputSize != 0 {
		t.Errorf("missing file size = %d, want 0", j.InputSize)
	}
	if j.Program != model.SearchTBlastX || j.Database != "pdb" {
		t.Errorf("overrides lost: %+v", j)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"duplicate id", "jobs:\n  - {id: 1, input: a}\n  - {id: 1, input: b}\n", []string{"id 1 already used"}},
		{"missing input", "jobs:\n  - {id: 1}\n", []string{"input is required"}},
		{"bad program", "jobs:\n  - {input: a, program: megablast}\n", []string{"unknown search type"}},
		{"unknown field", "jobs:\n  - {input: a, priority: 3}\n", []string{"priority"}},
		{"all reported", "jobs:\n  - {id: 1}\n  - {input: a, program: x}\n", []string{"jobs[0]", "jobs[1]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body), "")
			if err == nil {
				t.Fatal("expected error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not contain %q", err, w)
				}
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	jobs, err := Parse(strings.NewReader(""), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %d, want 0", len(jobs))
	}
}

func TestLoad_MissingManifest(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}

func TestFromInputs(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "reads.fa")
	if err := os.WriteFile(p, []byte(fasta), 0o644); err != nil {
		t.Fatal(err)
	}

	jobs, err := FromInputs([]string{p, "other.fa"}, "", "")
	if err != nil {
		t.Fatalf("FromInputs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	if jobs[0].ID != 1 || jobs[1].ID != 2 {
		t.Errorf("ids = %d, %d", jobs[0].ID, jobs[1].ID)
	}
	if jobs[0].Name != "BLAST Job for reads.fa" {
		t.Errorf("name = %q", jobs[0].Name)
	}
	if jobs[0].InputSize != int64(len(fasta)) || jobs[1].InputSize != 0 {
		t.Errorf("sizes = %d, %d", jobs[0].InputSize, jobs[1].InputSize)
	}
	if jobs[0].Program != model.SearchBlastN || jobs[0].Database != model.DefaultDatabase {
		t.Errorf("defaults = %s/%s", jobs[0].Program, jobs[0].Database)
	}
}

func TestFromInputs_Errors(t *testing.T) {
	if _, err := FromInputs([]string{"a"}, "megablast", ""); err == nil {
		t.Error("expected error for unknown program")
	}
	if _, err := FromInputs([]string{"a", ""}, "", ""); err == nil {
		t.Error("expected error for empty path")
	}
}
