package vm

import "github.com/chazu/stencil/expr"

// DefaultMaxPartialDepth bounds nested partial and macro application per
// render.
const DefaultMaxPartialDepth = 16

// Options configure one render.
type Options struct {
	// Partials maps names to template source (string), compiled bytecode
	// (*bytecode.Root) or encoded bytecode ([]byte).
	Partials map[string]any

	// Injectables maps file-path keys to text bound by {.inject}.
	Injectables map[string]string

	Locale Locale

	// Expressions enables {.eval}. ExpressionDebug renders each
	// statement's RPN and result instead of the value alone.
	Expressions     bool
	ExpressionDebug bool
	MaxTokens       int
	MaxStringLength int

	MaxPartialDepth int
}

func (o Options) withDefaults() Options {
	if o.MaxPartialDepth <= 0 {
		o.MaxPartialDepth = DefaultMaxPartialDepth
	}
	return o
}

func (o Options) exprOptions() expr.Options {
	return expr.Options{
		MaxTokens:       o.MaxTokens,
		MaxStringLength: o.MaxStringLength,
		Debug:           o.ExpressionDebug,
	}
}
