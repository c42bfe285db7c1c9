package payroll

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// DefaultPayoutExpr pays out on the first day of the month, UTC.
const DefaultPayoutExpr = "now.getDate() == 1"

// PayoutPolicy decides whether automatic payroll runs fire on a given day.
// It is a CEL expression over the timestamp variable now.
type PayoutPolicy struct {
	expr string
	prg  cel.Program
}

// NewPayoutPolicy compiles expr; an empty expr uses DefaultPayoutExpr.
func NewPayoutPolicy(expr string) (*PayoutPolicy, error) {
	if expr == "" {
		expr = DefaultPayoutExpr
	}
	env, err := cel.NewEnv(cel.Variable("now", cel.TimestampType))
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("payout policy: compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("payout policy: must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast, cel.CostLimit(1000))
	if err != nil {
		return nil, fmt.Errorf("payout policy: program: %w", err)
	}
	return &PayoutPolicy{expr: expr, prg: prg}, nil
}

// IsPayoutDay evaluates the policy at now.
func (p *PayoutPolicy) IsPayoutDay(now time.Time) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{"now": now.UTC()})
	if err != nil {
		return false, fmt.Errorf("payout policy: eval: %w", err)
	}
	ok, _ := out.Value().(bool)
	return ok, nil
}

func (p *PayoutPolicy) String() string { return p.expr }
