// Package bridge gates every cross-ledger transfer by fund category.
//
// PTO and sick-leave funds never leave their ledger. That rule is fixed and
// evaluated first; operator rules written in CEL run afterwards and can only
// narrow what is allowed.
package bridge

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/events"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/transport"
)

// Allowed reports whether funds of category c may be bridged at all.
func Allowed(c model.FundCategory) bool {
	switch c {
	case model.CategoryPayroll, model.CategoryTrustFund:
		return true
	}
	return false
}

// Rule is an operator policy: Expr must evaluate to true for a transfer to
// proceed. It sees a single variable, transfer, with the keys category,
// amount, recipient, subject_id and reference.
type Rule struct {
	Name string `mapstructure:"name" json:"name"`
	Expr string `mapstructure:"expr" json:"expr"`
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// Enforcer is a Transport that refuses disallowed transfers before they
// reach the wrapped Transport.
type Enforcer struct {
	next    transport.Transport
	emitter events.Emitter
	rules   []compiledRule
	logger  *zap.Logger
}

// New compiles rules and wraps next. A rule that does not compile to a
// boolean expression is a configuration error.
func New(next transport.Transport, emitter events.Emitter, logger *zap.Logger, rules ...Rule) (*Enforcer, error) {
	env, err := cel.NewEnv(
		cel.Variable("transfer", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	e := &Enforcer{next: next, emitter: emitter, logger: logger}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("bridge rule %q: compile: %w", r.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("bridge rule %q: must evaluate to bool, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast, cel.CostLimit(10000))
		if err != nil {
			return nil, fmt.Errorf("bridge rule %q: program: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiledRule{Rule: r, prg: prg})
	}
	return e, nil
}

// Check applies the category rule and then every operator rule.
func (e *Enforcer) Check(ctx context.Context, t transport.Transfer) error {
	if !Allowed(t.Category) {
		e.reject(ctx, t, "category "+string(t.Category)+" may not be bridged")
		return fmt.Errorf("%w: %s funds cannot be bridged", model.ErrPolicyViolation, t.Category)
	}

	input := map[string]any{
		"transfer": map[string]any{
			"category":   string(t.Category),
			"amount":     clampInt(t.Amount),
			"recipient":  t.Recipient,
			"subject_id": t.SubjectID,
			"reference":  t.Reference,
		},
	}
	for _, r := range e.rules {
		out, _, err := r.prg.Eval(input)
		if err != nil {
			// Fail closed.
			e.logger.Warn("bridge rule evaluation failed", zap.String("rule", r.Name), zap.Error(err))
			e.reject(ctx, t, "rule "+r.Name+" errored")
			return fmt.Errorf("%w: rule %s: %v", model.ErrPolicyViolation, r.Name, err)
		}
		if ok, _ := out.Value().(bool); !ok {
			e.reject(ctx, t, "rule "+r.Name+" denied")
			return fmt.Errorf("%w: rule %s denied transfer", model.ErrPolicyViolation, r.Name)
		}
	}
	return nil
}

// ExecuteTransfer implements transport.Transport.
func (e *Enforcer) ExecuteTransfer(ctx context.Context, t transport.Transfer) (transport.Receipt, error) {
	if err := e.Check(ctx, t); err != nil {
		return transport.Receipt{}, err
	}
	return e.next.ExecuteTransfer(ctx, t)
}

func (e *Enforcer) reject(ctx context.Context, t transport.Transfer, reason string) {
	e.logger.Warn("bridge transfer refused",
		zap.String("subject_id", t.SubjectID),
		zap.String("category", string(t.Category)),
		zap.Uint64("amount", t.Amount),
		zap.String("reason", reason),
	)
	e.emitter.Emit(ctx, model.Event{
		Type:      model.EventInvalidBridgeAttempt,
		SubjectID: t.SubjectID,
		Category:  t.Category,
		Amount:    t.Amount,
		Detail: map[string]string{
			"reason":    reason,
			"recipient": t.Recipient,
			"reference": t.Reference,
			"amount":    strconv.FormatUint(t.Amount, 10),
		},
	})
}

func clampInt(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
