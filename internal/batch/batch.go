// Package batch turns operator input into the closed list of queued jobs a
// scheduler runs: either a YAML manifest or a plain list of FASTA paths.
package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/bioclick/pkg/model"
)

// Manifest is the on-disk batch description.
//
//	defaults:
//	  program: blastp
//	jobs:
//	  - id: 1
//	    name: query one
//	    input: seqs/q1.fasta
//	    database: nr
type Manifest struct {
	Defaults Defaults `yaml:"defaults"`
	Jobs     []Entry  `yaml:"jobs"`
}

// Defaults apply to entries that leave the field empty.
type Defaults struct {
	Program  string `yaml:"program"`
	Database string `yaml:"database"`
}

// Entry is one job in a manifest. A zero ID is replaced by the entry's
// 1-based position.
type Entry struct {
	ID       uint64        `yaml:"id"`
	Name     string        `yaml:"name"`
	Input    string        `yaml:"input"`
	Program  string        `yaml:"program"`
	Database string        `yaml:"database"`
	Schedule time.Duration `yaml:"schedule"`
}

// Load reads a manifest file. Relative input paths resolve against the
// manifest's directory.
func Load(path string) ([]*model.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	jobs, err := Parse(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return jobs, nil
}

// Parse decodes a manifest, resolving relative inputs against baseDir.
func Parse(r io.Reader, baseDir string) ([]*model.Job, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse: %w", err)
	}
	return m.ToJobs(baseDir)
}

// ToJobs validates the manifest and converts it to queued jobs.
func (m Manifest) ToJobs(baseDir string) ([]*model.Job, error) {
	var errs []error
	seen := make(map[uint64]int, len(m.Jobs))
	jobs := make([]*model.Job, 0, len(m.Jobs))

	for i, e := range m.Jobs {
		id := e.ID
		if id == 0 {
			id = uint64(i + 1)
		}
		if prev, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("jobs[%d]: id %d already used by jobs[%d]", i, id, prev))
			continue
		}
		seen[id] = i

		if e.Input == "" {
			errs = append(errs, fmt.Errorf("jobs[%d]: input is required", i))
			continue
		}

		program, err := resolveProgram(e.Program, m.Defaults.Program)
		if err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d]: %w", i, err))
			continue
		}

		database := e.Database
		if database == "" {
			database = m.Defaults.Database
		}

		input := e.Input
		if !filepath.IsAbs(input) && baseDir != "" {
			input = filepath.Join(baseDir, input)
		}

		name := e.Name
		if name == "" {
			name = jobName(input)
		}

		job := model.NewJob(id, name, input, program, database)
		job.Schedule = e.Schedule
		job.InputSize = statSize(input)
		jobs = append(jobs, job)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return jobs, nil
}

// FromInputs builds one job per input path with ids 1..n.
func FromInputs(paths []string, program model.SearchType, database string) ([]*model.Job, error) {
	if program == "" {
		program = model.SearchBlastN
	}
	if !program.Valid() {
		return nil, fmt.Errorf("unknown search type %q", program)
	}
	if database == "" {
		database = model.DefaultDatabase
	}

	jobs := make([]*model.Job, 0, len(paths))
	for i, p := range paths {
		if p == "" {
			return nil, fmt.Errorf("input %d: empty path", i+1)
		}
		job := model.NewJob(uint64(i+1), jobName(p), p, program, database)
		job.InputSize = statSize(p)
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func resolveProgram(program, fallback string) (model.SearchType, error) {
	if program == "" {
		program = fallback
	}
	if program == "" {
		return model.SearchBlastN, nil
	}
	return model.ParseSearchType(program)
}

func jobName(input string) string {
	return "BLAST Job for " + filepath.Base(input)
}

// statSize returns the file size, or 0 when it cannot be determined.
func statSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return 0
	}
	return fi.Size()
}
