// Package expr implements the inline expression language used by EVAL
// instructions: a tokenizer, an operator-precedence builder producing RPN,
// and a reducer evaluating the RPN against a template context.
//
// Expressions are deliberately small. There are no user-defined functions
// and no loops; token count and result string length are bounded.
package expr

import (
	"strings"

	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
	"github.com/chazu/stencil/pkg/node"
)

const (
	DefaultMaxTokens       = 500
	DefaultMaxStringLength = 50000
)

// Context is what an expression reads from and writes to while reducing.
type Context interface {
	Resolve(path bytecode.Path) node.Node
	SetVar(name string, value node.Node)
	AddError(err diag.Error)
}

// Options bound the work a single expression may do.
type Options struct {
	MaxTokens       int
	MaxStringLength int
	Debug           bool
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.MaxStringLength <= 0 {
		o.MaxStringLength = DefaultMaxStringLength
	}
	return o
}

// Expr is a parsed expression. Parsing happens once in New; Reduce may be
// called any number of times, including concurrently with distinct
// contexts.
type Expr struct {
	Source     string
	opts       Options
	tokens     []Token
	statements [][]Token
	errors     []diag.Error
}

// New tokenizes and builds source. Lexical and syntax errors are recorded
// on the returned Expr, which then reduces to nothing.
func New(source string, opts Options) *Expr {
	e := &Expr{Source: source, opts: opts.withDefaults()}
	tokens, err := tokenize(source, e.opts.MaxTokens)
	if err != nil {
		e.errors = append(e.errors, diag.New(diag.Expression, "%v", err))
		return e
	}
	e.tokens = tokens
	stmts, err := build(tokens)
	if err != nil {
		e.errors = append(e.errors, diag.New(diag.Expression, "%v", err))
		return e
	}
	e.statements = stmts
	return e
}

// Errors returns the lexical and syntax errors found by New.
func (e *Expr) Errors() []diag.Error { return e.errors }

// WithLimits returns a copy of e that reduces under the string length and
// debug settings of opts. The parse is shared; the token limit is fixed by
// New.
func (e *Expr) WithLimits(opts Options) *Expr {
	opts = opts.withDefaults()
	c := *e
	c.opts.MaxStringLength = opts.MaxStringLength
	c.opts.Debug = opts.Debug
	return &c
}

// Tokens returns the flat token list.
func (e *Expr) Tokens() []Token { return e.tokens }

// Statements returns each statement's RPN form.
func (e *Expr) Statements() [][]Token { return e.statements }

// Reduce evaluates every statement in order against ctx and returns the
// value of the last one. ok is false when the program is empty, ends in an
// assignment, failed to parse, or the last statement raised an error.
func (e *Expr) Reduce(ctx Context) (value node.Node, ok bool) {
	if len(e.errors) > 0 {
		return node.Missing, false
	}
	for _, stmt := range e.statements {
		value, ok = e.reduceStatement(ctx, stmt)
	}
	return value, ok
}

// Trace evaluates like Reduce but returns one line per statement showing
// its RPN and result.
func (e *Expr) Trace(ctx Context) string {
	var sb strings.Builder
	for _, err := range e.errors {
		sb.WriteString("error: " + err.Message + "\n")
	}
	if len(e.errors) > 0 {
		return sb.String()
	}
	for _, stmt := range e.statements {
		parts := make([]string, len(stmt))
		for i, t := range stmt {
			parts[i] = t.String()
		}
		sb.WriteString(strings.Join(parts, " "))
		sb.WriteString(" => ")
		before := ctxErrCount(ctx)
		v, ok := e.reduceStatement(ctx, stmt)
		switch {
		case ok:
			sb.WriteString(describe(v))
		case ctxErrCount(ctx) > before:
			sb.WriteString("error")
		default:
			sb.WriteString("(no value)")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// errorCounter is implemented by contexts that can report how many errors
// they hold; Trace uses it to label failed statements.
type errorCounter interface {
	ErrorCount() int
}

func ctxErrCount(ctx Context) int {
	if c, ok := ctx.(errorCounter); ok {
		return c.ErrorCount()
	}
	return 0
}

func describe(v node.Node) string {
	switch v.Type() {
	case node.StringType:
		return `"` + v.AsString() + `"`
	case node.MissingType:
		return "undefined"
	}
	return toString(v)
}

// Eval parses and reduces source in one step. Parse errors are added to
// ctx.
func Eval(source string, opts Options, ctx Context) (node.Node, bool) {
	e := New(source, opts)
	for _, err := range e.Errors() {
		ctx.AddError(err)
	}
	return e.Reduce(ctx)
}
