package routing

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/me/bioclick/pkg/model"
)

// exprBudget bounds a single rule evaluation.
const exprBudget = 100 * time.Millisecond

// ExprRule selects Engine when a JavaScript boolean expression over the job
// is true, e.g. `job.program === "blastp" && job.input_size > 1e6`.
//
// The compiled program is shared; every evaluation gets its own runtime,
// since a goja.Runtime is not safe for concurrent use. Math.random and Date
// are removed, so an expression sees nothing but the job.
type ExprRule struct {
	expr    string
	engine  string
	program *goja.Program
}

// NewExprRule compiles expr.
func NewExprRule(expr, engineName string) (*ExprRule, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty routing expression")
	}
	prog, err := goja.Compile("route", "("+expr+")", true)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, err)
	}
	return &ExprRule{expr: expr, engine: engineName, program: prog}, nil
}

func (r *ExprRule) Name() string      { return "expr" }
func (r *ExprRule) Engines() []string { return []string{r.engine} }

// Expr returns the source expression.
func (r *ExprRule) Expr() string { return r.expr }

func (r *ExprRule) Select(job *model.Job) (string, string, bool, error) {
	vm := goja.New()
	if math := vm.Get("Math"); math != nil {
		math.ToObject(vm).Delete("random")
	}
	vm.GlobalObject().Delete("Date")
	if err := vm.Set("job", jobObject(job)); err != nil {
		return "", "", false, fmt.Errorf("set job: %w", err)
	}

	timer := time.AfterFunc(exprBudget, func() {
		vm.Interrupt("routing expression exceeded time budget")
	})
	v, err := vm.RunProgram(r.program)
	timer.Stop()
	if err != nil {
		return "", "", false, fmt.Errorf("evaluate %q: %w", r.expr, err)
	}

	if !v.ToBoolean() {
		return "", "", false, nil
	}
	return r.engine, fmt.Sprintf("expression %s", r.expr), true, nil
}

// jobObject exposes the routing-relevant job fields to expressions.
func jobObject(job *model.Job) map[string]any {
	program := job.Program
	if program == "" {
		program = model.SearchBlastN
	}
	database := job.Database
	if database == "" {
		database = model.DefaultDatabase
	}
	return map[string]any{
		"id":         int64(job.ID),
		"name":       job.Name,
		"input":      job.InputPath,
		"input_size": job.InputSize,
		"program":    program.String(),
		"database":   database,
	}
}
