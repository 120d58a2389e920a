package core

import (
	"encoding/json"
	"math"

	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/node"
	"github.com/chazu/stencil/vm"
)

// Predicates returns a fresh copy of the catalog.
func Predicates() vm.Predicates {
	return vm.Predicates{
		"equal?":       vm.PredicateFunc(equal),
		"greaterThan?": vm.PredicateFunc(compareWith(func(a, b float64) bool { return a > b })),
		"lessThan?":    vm.PredicateFunc(compareWith(func(a, b float64) bool { return a < b })),
		"even?":        vm.PredicateFunc(parity(0)),
		"odd?":         vm.PredicateFunc(parity(1)),
		"plural?":      numberTest(func(f float64) bool { return f > 1 }),
		"singular?":    numberTest(func(f float64) bool { return f == 1 }),
		"collection?":  typeTest(node.ArrayType, node.ObjectType),
		"array?":       typeTest(node.ArrayType),
		"object?":      typeTest(node.ObjectType),
		"string?":      typeTest(node.StringType),
		"number?":      typeTest(node.NumberType),
	}
}

// operand resolves arg as a path, then as a JSON literal, then as text.
func operand(ctx *vm.Context, arg string) node.Node {
	if n := ctx.Resolve(bytecode.ParsePath(arg)); !n.IsMissing() {
		return n
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err == nil {
		return node.New(v)
	}
	return node.String(arg)
}

// operands returns the values a binary predicate compares: the current
// node against one argument, or two arguments against each other.
func operands(ctx *vm.Context, args []string) (node.Node, node.Node, bool) {
	switch len(args) {
	case 0:
		return node.Missing, node.Missing, false
	case 1:
		return ctx.Node(), operand(ctx, args[0]), true
	}
	return operand(ctx, args[0]), operand(ctx, args[1]), true
}

func equal(ctx *vm.Context, args []string) bool {
	a, b, ok := operands(ctx, args)
	if !ok || a.Type() != b.Type() {
		return false
	}
	if a.Type() == node.NumberType {
		return a.AsNumber() == b.AsNumber()
	}
	ja, errA := json.Marshal(a.Value())
	jb, errB := json.Marshal(b.Value())
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func compareWith(fn func(a, b float64) bool) func(*vm.Context, []string) bool {
	return func(ctx *vm.Context, args []string) bool {
		a, b, ok := operands(ctx, args)
		if !ok || a.Type() != node.NumberType || b.Type() != node.NumberType {
			return false
		}
		return fn(a.AsNumber(), b.AsNumber())
	}
}

func parity(want int) func(*vm.Context, []string) bool {
	return func(ctx *vm.Context, args []string) bool {
		n := ctx.Node()
		if len(args) > 0 {
			n = operand(ctx, args[0])
		}
		if n.Type() != node.NumberType {
			return false
		}
		f := n.AsNumber()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return false
		}
		return int(math.Abs(math.Mod(f, 2))) == want
	}
}

func numberTest(fn func(float64) bool) vm.Predicate {
	return vm.PredicateFunc(func(ctx *vm.Context, _ []string) bool {
		n := ctx.Node()
		return n.Type() == node.NumberType && fn(n.AsNumber())
	})
}

func typeTest(types ...node.Type) vm.Predicate {
	return vm.PredicateFunc(func(ctx *vm.Context, args []string) bool {
		n := ctx.Node()
		if len(args) > 0 {
			n = ctx.Resolve(bytecode.ParsePath(args[0]))
		}
		for _, t := range types {
			if n.Type() == t {
				return true
			}
		}
		return false
	})
}

// Options registers the whole catalog on an engine.
func Options() []vm.EngineOption {
	return []vm.EngineOption{
		vm.WithFormatters(Formatters()),
		vm.WithPredicates(Predicates()),
	}
}
