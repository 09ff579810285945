package model

import (
	"fmt"
	"strings"
	"time"
)

// SearchType identifies which BLAST program a job runs.
type SearchType string

const (
	SearchBlastN  SearchType = "blastn"
	SearchBlastP  SearchType = "blastp"
	SearchBlastX  SearchType = "blastx"
	SearchTBlastN SearchType = "tblastn"
	SearchTBlastX SearchType = "tblastx"
)

// SearchTypes lists every supported search program in a stable order.
var SearchTypes = []SearchType{SearchBlastN, SearchBlastP, SearchBlastX, SearchTBlastN, SearchTBlastX}

// String returns the program name as passed to BLAST tooling.
func (t SearchType) String() string {
	return string(t)
}

// Valid reports whether t is one of the known search programs.
func (t SearchType) Valid() bool {
	for _, known := range SearchTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseSearchType converts a program name (case-insensitive) to a SearchType.
func ParseSearchType(s string) (SearchType, error) {
	t := SearchType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown search type %q", s)
	}
	return t, nil
}

// DefaultDatabase is the reference database used when a job names none.
const DefaultDatabase = "nt"

// Job is one unit of requested work within a batch.
type Job struct {
	ID   uint64 `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// Schedule is reserved for future timing/priority use. The scheduler
	// does not read it.
	Schedule time.Duration `json:"schedule" yaml:"schedule"`

	State JobState `json:"state" yaml:"-"`

	// InputPath locates the sequence data. The scheduler treats it as opaque.
	InputPath string `json:"input_path" yaml:"input"`

	// InputSize is the declared input size in bytes, 0 when unknown.
	InputSize int64 `json:"input_size,omitempty" yaml:"input_size,omitempty"`

	Database string     `json:"database,omitempty" yaml:"database,omitempty"`
	Program  SearchType `json:"program,omitempty" yaml:"program,omitempty"`
}

// NewJob creates a queued job.
func NewJob(id uint64, name, inputPath string, program SearchType, database string) *Job {
	return &Job{
		ID:        id,
		Name:      name,
		State:     JobStateQueued,
		InputPath: inputPath,
		Database:  database,
		Program:   program,
	}
}

// Transition moves the job to next, or returns an *InvalidTransitionError.
func (j *Job) Transition(next JobState) error {
	if !j.State.CanTransitionTo(next) {
		return &InvalidTransitionError{
			Entity: "job",
			ID:     fmt.Sprintf("%d", j.ID),
			From:   j.State.String(),
			To:     next.String(),
		}
	}
	j.State = next
	return nil
}
