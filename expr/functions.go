package expr

import (
	"math"

	"github.com/chazu/stencil/pkg/node"
)

type builtin func(args []node.Node) node.Node

var builtins = map[string]builtin{
	"min": func(args []node.Node) node.Node {
		return fold("min", args, math.Min)
	},
	"max": func(args []node.Node) node.Node {
		return fold("max", args, math.Max)
	},
	"abs": func(args []node.Node) node.Node {
		for _, a := range args {
			if f := toNumber(a); !math.IsNaN(f) {
				return node.Number(math.Abs(f))
			}
		}
		fail("abs() has no numeric argument")
		return node.Missing
	},
	"num": func(args []node.Node) node.Node {
		return node.Number(toNumber(args[0]))
	},
	"str": func(args []node.Node) node.Node {
		return node.String(toString(args[0]))
	},
	"bool": func(args []node.Node) node.Node {
		return node.Bool(truthy(args[0]))
	},
}

// fold combines every argument that converts cleanly to a number.
func fold(name string, args []node.Node, fn func(a, b float64) float64) node.Node {
	var acc float64
	found := false
	for _, a := range args {
		f := toNumber(a)
		if math.IsNaN(f) {
			continue
		}
		if !found {
			acc, found = f, true
			continue
		}
		acc = fn(acc, f)
	}
	if !found {
		fail("%s() has no numeric argument", name)
	}
	return node.Number(acc)
}

func call(name string, args []node.Node) node.Node {
	fn, ok := builtins[name]
	if !ok {
		fail("unknown function %s()", name)
	}
	if len(args) == 0 {
		fail("%s() requires at least one argument", name)
	}
	return fn(args)
}
