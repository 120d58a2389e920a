package vm

import (
	"sort"

	"github.com/chazu/stencil/expr"
	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/node"
)

var defaultHandlers = [bytecode.NumOpcodes]Handler{
	bytecode.OpRoot:           execRoot,
	bytecode.OpText:           execText,
	bytecode.OpMetaLeft:       literal("{"),
	bytecode.OpMetaRight:      literal("}"),
	bytecode.OpNewline:        literal("\n"),
	bytecode.OpSpace:          literal(" "),
	bytecode.OpTab:            literal("\t"),
	bytecode.OpVariable:       execVariable,
	bytecode.OpSection:        execSection,
	bytecode.OpRepeated:       execRepeated,
	bytecode.OpPredicate:      execPredicate,
	bytecode.OpOrPredicate:    execOrPredicate,
	bytecode.OpIf:             execIf,
	bytecode.OpBindVar:        execBindVar,
	bytecode.OpCtxVar:         execCtxVar,
	bytecode.OpInject:         execInject,
	bytecode.OpMacro:          execMacro,
	bytecode.OpInclude:        execInclude,
	bytecode.OpEval:           execEval,
	bytecode.OpComment:        noop,
	bytecode.OpEnd:            noop,
	bytecode.OpEOF:            noop,
	bytecode.OpAlternatesWith: noop,
	// ATOM and STRUCT carry application payloads and have no default.
}

func noop(*Engine, *Context, bytecode.Instruction) {}

func literal(s string) Handler {
	return func(_ *Engine, ctx *Context, _ bytecode.Instruction) { ctx.Write(s) }
}

func execRoot(e *Engine, ctx *Context, inst bytecode.Instruction) {
	e.ExecuteBlock(ctx, inst.(*bytecode.Root).Block)
}

func execText(_ *Engine, ctx *Context, inst bytecode.Instruction) {
	ctx.Write(inst.(*bytecode.Text).Value)
}

// ---------------------------------------------------------------------------
// Variables and formatters
// ---------------------------------------------------------------------------

// resolveVariables resolves every candidate path. The first candidate that
// is not missing leads the returned list; the others follow in order.
func resolveVariables(ctx *Context, paths []bytecode.Path) []*Variable {
	vars := make([]*Variable, 0, len(paths))
	lead := -1
	for i, p := range paths {
		v := NewVariable(ctx.Resolve(p))
		if lead < 0 && !v.Node().IsMissing() {
			lead = i
		}
		vars = append(vars, v)
	}
	if lead > 0 {
		first := vars[lead]
		copy(vars[1:lead+1], vars[:lead])
		vars[0] = first
	}
	if len(vars) == 0 {
		vars = append(vars, NewVariable(node.Missing))
	}
	return vars
}

// applyFormatters runs the chain left to right. An unknown name is
// reported once, leaves the lead variable missing and ends the chain.
func (e *Engine) applyFormatters(ctx *Context, calls []bytecode.FormatterCall, vars []*Variable) {
	for _, call := range calls {
		f, ok := e.Formatter(call.Name)
		if !ok {
			ctx.errorf("formatter %s not found", call.Name)
			vars[0].SetNode(node.Missing)
			return
		}
		f.Apply(ctx, call.ArgList(), vars)
	}
}

func execVariable(e *Engine, ctx *Context, inst bytecode.Instruction) {
	v := inst.(*bytecode.Variable)
	vars := resolveVariables(ctx, v.Variables)
	e.applyFormatters(ctx, v.Formatters, vars)
	ctx.Write(vars[0].Node().String())
}

func execBindVar(e *Engine, ctx *Context, inst bytecode.Instruction) {
	b := inst.(*bytecode.BindVar)
	vars := resolveVariables(ctx, b.Variables)
	e.applyFormatters(ctx, b.Formatters, vars)
	ctx.SetVar(b.Name, vars[0].Node())
}

func execCtxVar(_ *Engine, ctx *Context, inst bytecode.Instruction) {
	c := inst.(*bytecode.CtxVar)
	obj := make(map[string]any, len(c.Bindings))
	for _, b := range c.Bindings {
		n := ctx.Resolve(b.Path)
		if n.IsMissing() {
			continue
		}
		obj[b.Key] = n.Value()
	}
	ctx.SetVar(c.Name, node.New(obj))
}

func execInject(_ *Engine, ctx *Context, inst bytecode.Instruction) {
	in := inst.(*bytecode.Inject)
	if s, ok := ctx.Injectable(in.Path); ok {
		ctx.SetVar(in.Name, node.String(s))
	}
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

func execSection(e *Engine, ctx *Context, inst bytecode.Instruction) {
	s := inst.(*bytecode.Section)
	n := ctx.Resolve(s.Variable)
	if !n.Truthy() {
		e.Execute(ctx, s.Alternative)
		return
	}
	ctx.PushNode(n)
	e.ExecuteBlock(ctx, s.Block)
	ctx.Pop()
}

func execRepeated(e *Engine, ctx *Context, inst bytecode.Instruction) {
	r := inst.(*bytecode.Repeated)
	n := ctx.Resolve(r.Variable)
	if n.Type() != node.ArrayType || n.Len() == 0 {
		e.Execute(ctx, r.Alternative)
		return
	}
	ctx.PushNode(n)
	count := n.Len()
	for i := 0; i < count; i++ {
		if i > 0 && len(r.AlternatesWith) > 0 {
			e.ExecuteBlock(ctx, r.AlternatesWith)
		}
		ctx.pushIteration(n.Index(i), i, count)
		e.ExecuteBlock(ctx, r.Block)
		ctx.Pop()
	}
	ctx.Pop()
}

// testPredicate reports whether the named predicate holds for the current
// frame. An unknown name is reported and counts as false.
func (e *Engine) testPredicate(ctx *Context, name string, args *bytecode.Args) bool {
	p, ok := e.Predicate(name)
	if !ok {
		ctx.errorf("predicate %s not found", name)
		return false
	}
	var list []string
	if args != nil {
		list = args.List
	}
	return p.Apply(ctx, list)
}

func execPredicate(e *Engine, ctx *Context, inst bytecode.Instruction) {
	p := inst.(*bytecode.Predicate)
	if e.testPredicate(ctx, p.Name, p.Args) {
		e.ExecuteBlock(ctx, p.Block)
		return
	}
	e.Execute(ctx, p.Alternative)
}

func execOrPredicate(e *Engine, ctx *Context, inst bytecode.Instruction) {
	o := inst.(*bytecode.OrPredicate)
	if o.Unconditional() || e.testPredicate(ctx, o.Name, o.Args) {
		e.ExecuteBlock(ctx, o.Block)
		return
	}
	e.Execute(ctx, o.Alternative)
}

func execIf(e *Engine, ctx *Context, inst bytecode.Instruction) {
	x := inst.(*bytecode.If)
	if evalIf(x.Operators, x.Variables, func(p bytecode.Path) bool { return ctx.Resolve(p).Truthy() }) {
		e.ExecuteBlock(ctx, x.Block)
		return
	}
	e.Execute(ctx, x.Alternative)
}

// evalIf folds operand truthiness left to right. An operand is not
// resolved when the running result already decides its operator.
func evalIf(ops []bytecode.Operator, paths []bytecode.Path, truthy func(bytecode.Path) bool) bool {
	if len(paths) == 0 {
		return false
	}
	result := truthy(paths[0])
	for i, op := range ops {
		if i+1 >= len(paths) {
			break
		}
		switch op {
		case bytecode.LogicalAnd:
			if result {
				result = truthy(paths[i+1])
			}
		case bytecode.LogicalOr:
			if !result {
				result = truthy(paths[i+1])
			}
		}
	}
	return result
}

func execMacro(_ *Engine, ctx *Context, inst bytecode.Instruction) {
	m := inst.(*bytecode.Macro)
	ctx.SetMacro(m.Name, m.Block)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func execEval(_ *Engine, ctx *Context, inst bytecode.Instruction) {
	if !ctx.opts.Expressions {
		return
	}
	ev := inst.(*bytecode.Eval)
	opts := ctx.opts.exprOptions()
	x := ev.Parsed(func(code string) any { return expr.New(code, opts) }).(*expr.Expr).WithLimits(opts)
	for _, err := range x.Errors() {
		ctx.AddError(err)
	}
	if len(x.Errors()) > 0 {
		return
	}
	if ctx.opts.ExpressionDebug {
		ctx.Write(x.Trace(ctx))
		return
	}
	if v, ok := x.Reduce(ctx); ok {
		ctx.Write(v.String())
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
