package routing

import (
	"fmt"
	"sort"

	"github.com/me/bioclick/pkg/model"
)

// FixedRule always selects one engine.
type FixedRule struct {
	Engine string
}

func (r FixedRule) Name() string      { return "fixed" }
func (r FixedRule) Engines() []string { return []string{r.Engine} }

func (r FixedRule) Select(*model.Job) (string, string, bool, error) {
	return r.Engine, "fixed assignment", true, nil
}

// ParityRule routes odd job ids to Odd and even ids to Even.
type ParityRule struct {
	Odd  string
	Even string
}

func (r ParityRule) Name() string      { return "parity" }
func (r ParityRule) Engines() []string { return []string{r.Odd, r.Even} }

func (r ParityRule) Select(job *model.Job) (string, string, bool, error) {
	if job.ID%2 == 1 {
		return r.Odd, fmt.Sprintf("job id %d is odd", job.ID), true, nil
	}
	return r.Even, fmt.Sprintf("job id %d is even", job.ID), true, nil
}

// SizeRule selects Engine for jobs whose declared input size is at most
// MaxBytes. Jobs with an unknown (zero) size never match.
type SizeRule struct {
	MaxBytes int64
	Engine   string
}

func (r SizeRule) Name() string      { return "size" }
func (r SizeRule) Engines() []string { return []string{r.Engine} }

func (r SizeRule) Select(job *model.Job) (string, string, bool, error) {
	if job.InputSize <= 0 || job.InputSize > r.MaxBytes {
		return "", "", false, nil
	}
	return r.Engine, fmt.Sprintf("input size %d <= %d bytes", job.InputSize, r.MaxBytes), true, nil
}

// ProgramRule selects an engine by the job's search program.
type ProgramRule struct {
	Programs map[model.SearchType]string
}

func (r ProgramRule) Name() string { return "program" }

func (r ProgramRule) Engines() []string {
	return sortedValues(r.Programs)
}

func (r ProgramRule) Select(job *model.Job) (string, string, bool, error) {
	program := job.Program
	if program == "" {
		program = model.SearchBlastN
	}
	name, ok := r.Programs[program]
	if !ok {
		return "", "", false, nil
	}
	return name, fmt.Sprintf("program %s", program), true, nil
}

// DatabaseRule selects an engine by the job's reference database.
type DatabaseRule struct {
	Databases map[string]string
}

func (r DatabaseRule) Name() string { return "database" }

func (r DatabaseRule) Engines() []string {
	return sortedValues(r.Databases)
}

func (r DatabaseRule) Select(job *model.Job) (string, string, bool, error) {
	db := job.Database
	if db == "" {
		db = model.DefaultDatabase
	}
	name, ok := r.Databases[db]
	if !ok {
		return "", "", false, nil
	}
	return name, fmt.Sprintf("database %s", db), true, nil
}

func sortedValues[K comparable](m map[K]string) []string {
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	for _, v := range m {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
