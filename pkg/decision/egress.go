package decision

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/rynxs/operator-core/pkg/errs"
)

// DefaultEgressExpr is the hard-coded rule spec §4.5 names, expressed as
// CEL so operators can override it without a code change
// (SPEC_FULL.md §4.5), grounded on github.com/google/cel-go.
const DefaultEgressExpr = `role == "director" || role == "manager" || permissions.canAssignTasks`

// EgressPredicate is a compiled, reusable CEL program deciding allow-egress
// vs deny-egress.
type EgressPredicate struct {
	program cel.Program
}

// CompileEgressPredicate compiles expr once at startup. An empty expr falls
// back to DefaultEgressExpr.
func CompileEgressPredicate(expr string) (*EgressPredicate, error) {
	if expr == "" {
		expr = DefaultEgressExpr
	}
	env, err := cel.NewEnv(
		cel.Variable("role", cel.StringType),
		cel.Variable("permissions", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errs.Config("decision: cel env construction failed: %v", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errs.Config("decision: cel compile failed: %v", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errs.Config("decision: cel program construction failed: %v", err)
	}
	return &EgressPredicate{program: prg}, nil
}

// AllowEgress evaluates the compiled predicate against role/permissions.
func (p *EgressPredicate) AllowEgress(role string, permissions map[string]any) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"role":        role,
		"permissions": permissions,
	})
	if err != nil {
		return false, errs.Determinism("decision: cel evaluation failed: %v", err)
	}
	b, ok := asBool(out)
	if !ok {
		return false, errs.Determinism("decision: cel expression did not evaluate to bool (got %T)", out)
	}
	return b, nil
}

func asBool(v ref.Val) (bool, bool) {
	b, ok := v.(types.Bool)
	if !ok {
		return false, false
	}
	return bool(b), true
}
