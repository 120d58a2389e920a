package vm

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/stencil/compiler"
	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
)

var log = commonlog.GetLogger("stencil.vm")

// Handler executes one instruction.
type Handler func(e *Engine, ctx *Context, inst bytecode.Instruction)

// Engine interprets bytecode. Its dispatch table is per instance, so callers
// can override or add opcode handlers without touching the core loop. An
// Engine is safe for concurrent renders once configured.
type Engine struct {
	handlers   [bytecode.NumOpcodes]Handler
	formatters Formatters
	predicates Predicates
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithFormatters adds formatters, replacing any of the same name.
func WithFormatters(fs Formatters) EngineOption {
	return func(e *Engine) {
		for name, f := range fs {
			e.formatters[name] = f
		}
	}
}

// WithPredicates adds predicates, replacing any of the same name.
func WithPredicates(ps Predicates) EngineOption {
	return func(e *Engine) {
		for name, p := range ps {
			e.predicates[name] = p
		}
	}
}

// WithHandler installs h for op.
func WithHandler(op bytecode.Opcode, h Handler) EngineOption {
	return func(e *Engine) { e.SetHandler(op, h) }
}

// NewEngine returns an engine with the default handlers and the built-in
// apply formatter.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		handlers:   defaultHandlers,
		formatters: Formatters{"apply": FormatterFunc(applyFormatter)},
		predicates: Predicates{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetHandler replaces the handler for op. A nil handler makes op a no-op.
func (e *Engine) SetHandler(op bytecode.Opcode, h Handler) {
	if !op.Valid() {
		panic(fmt.Sprintf("vm: SetHandler on invalid opcode %d", op))
	}
	e.handlers[op] = h
}

// Handler returns the handler installed for op.
func (e *Engine) Handler(op bytecode.Opcode) Handler {
	if !op.Valid() {
		return nil
	}
	return e.handlers[op]
}

// Formatter looks up a formatter by name.
func (e *Engine) Formatter(name string) (Formatter, bool) {
	f, ok := e.formatters[name]
	return f, ok
}

// Predicate looks up a predicate by name.
func (e *Engine) Predicate(name string) (Predicate, bool) {
	p, ok := e.predicates[name]
	return p, ok
}

// FormatterNames and PredicateNames list the registered plugins.
func (e *Engine) FormatterNames() []string { return keys(e.formatters) }
func (e *Engine) PredicateNames() []string { return keys(e.predicates) }

// Execute dispatches one instruction.
func (e *Engine) Execute(ctx *Context, inst bytecode.Instruction) {
	if inst == nil {
		return
	}
	op := inst.Opcode()
	h := e.Handler(op)
	if h == nil {
		log.Debugf("no handler for %s", op)
		return
	}
	h(e, ctx, inst)
}

// ExecuteBlock dispatches each instruction of block in order.
func (e *Engine) ExecuteBlock(ctx *Context, block []bytecode.Instruction) {
	for _, inst := range block {
		e.Execute(ctx, inst)
	}
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Render executes code against data. code is template source (string),
// compiled bytecode (*bytecode.Root) or a *compiler.Result. Compile errors of a source template
// are reported on the returned Context and the best-effort tree still runs.
func (e *Engine) Render(code any, data any, opts Options) *Context {
	ctx := newContext(e, data, opts)
	switch c := code.(type) {
	case *bytecode.Root:
		e.Execute(ctx, c)
	case string:
		e.execResult(ctx, compiler.Compile(c))
	case *compiler.Result:
		e.execResult(ctx, c)
	default:
		ctx.AddError(diag.New(diag.Engine, "cannot execute %T", code))
	}
	return ctx
}

// NewContext returns an empty render context over data. Callers that drive
// the engine themselves, such as an expression REPL, keep one context
// across calls.
func (e *Engine) NewContext(data any, opts Options) *Context {
	return newContext(e, data, opts)
}

func (e *Engine) execResult(ctx *Context, res *compiler.Result) {
	for _, err := range res.Errors {
		ctx.AddError(err)
	}
	e.Execute(ctx, res.Code)
}

// Execute renders code against data with a fresh default engine configured
// by engineOpts.
func Execute(code any, data any, opts Options, engineOpts ...EngineOption) *Context {
	return NewEngine(engineOpts...).Render(code, data, opts)
}

var errPartialSyntax = errors.New("syntax errors")

// compilePartial turns a partial table entry into bytecode.
func (e *Engine) compilePartial(src any) (*bytecode.Root, error) {
	switch p := src.(type) {
	case *bytecode.Root:
		return p, nil
	case []byte:
		return bytecode.Decode(p)
	case string:
		res := compiler.Compile(p)
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("%w: %s", errPartialSyntax, res.Errors[0].Error())
		}
		log.Debugf("compiled partial (%d bytes)", len(p))
		return res.Code, nil
	}
	return nil, fmt.Errorf("unsupported partial type %T", src)
}
