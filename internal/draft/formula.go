package draft

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/shopspring/decimal"
)

// Formula builds a synchronous deriver that recomputes target from an expr
// expression over the scope's fields, e.g. "round(netWeight + tareWeight, 3)".
// While any source is missing or not numeric, target is removed.
func Formula(name, section, group, target, expression string, sources ...string) (DeriverSpec, error) {
	program, err := compileFormula(expression)
	if err != nil {
		return DeriverSpec{}, fmt.Errorf("formula %s: %w", name, err)
	}
	return DeriverSpec{
		Name:    name,
		Section: section,
		Group:   group,
		Sources: sources,
		Derive: func(_ context.Context, in Input) (Patch, error) {
			env := make(map[string]any, len(sources))
			for _, src := range sources {
				f, ok := asFloat(in.Scope[src])
				if !ok {
					return Patch{target: nil}, nil
				}
				env[src] = f
			}
			out, err := expr.Run(program, env)
			if err != nil {
				return nil, fmt.Errorf("formula %s: %w", name, err)
			}
			f, ok := asFloat(out)
			if !ok {
				return Patch{target: nil}, nil
			}
			return Patch{target: f}, nil
		},
	}, nil
}

func compileFormula(expression string) (*vm.Program, error) {
	return expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.Function("round", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("round expects 2 arguments, got %d", len(params))
			}
			x, ok := asFloat(params[0])
			if !ok {
				return nil, fmt.Errorf("round: %v is not a number", params[0])
			}
			places, ok := asInt(params[1])
			if !ok {
				return nil, fmt.Errorf("round: %v is not a whole number", params[1])
			}
			f, _ := decimal.NewFromFloat(x).Round(int32(places)).Float64()
			return f, nil
		}),
	)
}
