// Package routing selects which shared engine instance runs a job.
//
// A Table holds an ordered list of rules and a default engine name. Route
// walks the rules in order and the first rule that selects an engine wins;
// if none does, the default is used. Rules look only at the job and at their
// own static configuration, so routing the same job twice always gives the
// same answer.
package routing

import (
	"fmt"
	"strings"

	"github.com/me/bioclick/internal/engine"
	"github.com/me/bioclick/pkg/model"
)

// Decision is the routing outcome for one job.
type Decision struct {
	Engine     engine.Engine
	EngineName string
	// Rule names the rule that matched, or "default".
	Rule string
	// Reason is a short human-readable explanation for audit logs.
	Reason string
}

// Policy maps a job to the engine that should run it.
type Policy interface {
	Route(job *model.Job) (Decision, error)
}

// Rule inspects a job and optionally selects an engine by name.
type Rule interface {
	// Name identifies the rule in decisions and logs.
	Name() string
	// Select returns the engine name and a reason when the rule applies.
	// ok is false when the rule does not apply to the job.
	Select(job *model.Job) (engineName, reason string, ok bool, err error)
	// Engines lists every engine name the rule can select.
	Engines() []string
}

// DefaultRule is the rule name reported when no rule matched.
const DefaultRule = "default"

// Table is a Policy backed by an ordered rule list and an engine registry.
// It is read-only after construction.
type Table struct {
	registry      *engine.Registry
	rules         []Rule
	defaultEngine string
}

// NewTable creates a Table. Each engine a rule can select, and the default
// engine when set, must be registered.
func NewTable(reg *engine.Registry, defaultEngine string, rules ...Rule) (*Table, error) {
	if defaultEngine == "" && len(rules) == 0 {
		return nil, fmt.Errorf("routing table needs a default engine or at least one rule")
	}
	if defaultEngine != "" && !reg.Has(defaultEngine) {
		return nil, fmt.Errorf("default engine %q is not registered", defaultEngine)
	}
	for _, r := range rules {
		for _, name := range r.Engines() {
			if !reg.Has(name) {
				return nil, fmt.Errorf("rule %s: engine %q is not registered", r.Name(), name)
			}
		}
	}
	return &Table{
		registry:      reg,
		rules:         rules,
		defaultEngine: defaultEngine,
	}, nil
}

// Route returns the decision for job.
func (t *Table) Route(job *model.Job) (Decision, error) {
	for _, r := range t.rules {
		name, reason, ok, err := r.Select(job)
		if err != nil {
			return Decision{}, fmt.Errorf("job %d: rule %s: %w", job.ID, r.Name(), err)
		}
		if ok {
			return t.decide(name, r.Name(), reason)
		}
	}
	if t.defaultEngine == "" {
		return Decision{}, fmt.Errorf("job %d: no routing rule matched and no default engine", job.ID)
	}
	return t.decide(t.defaultEngine, DefaultRule, "no rule matched")
}

func (t *Table) decide(name, rule, reason string) (Decision, error) {
	e, err := t.registry.Get(name)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Engine: e, EngineName: name, Rule: rule, Reason: reason}, nil
}

// Describe renders the table for operators, one line per rule.
func (t *Table) Describe() string {
	var b strings.Builder
	for i, r := range t.rules {
		fmt.Fprintf(&b, "%d. %s -> %s\n", i+1, r.Name(), strings.Join(r.Engines(), ", "))
	}
	if t.defaultEngine != "" {
		fmt.Fprintf(&b, "*. %s -> %s\n", DefaultRule, t.defaultEngine)
	}
	return b.String()
}
