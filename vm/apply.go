package vm

import (
	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/node"
)

// privateArg narrows a partial's view to the node it is applied to.
const privateArg = "private"

func hasPrivate(modifiers []string) bool {
	for _, a := range modifiers {
		if a == privateArg {
			return true
		}
	}
	return false
}

// ApplyPartial executes the macro or partial called name in a new frame
// scoped to n, writing to the current buffer. It reports and returns false
// when the partial is missing, fails to compile, is already being applied,
// or the depth limit is reached.
func (e *Engine) ApplyPartial(ctx *Context, name string, n node.Node, private bool) bool {
	if ctx.active[name] {
		ctx.errorf("recursion into self: %s", name)
		return false
	}
	if ctx.depth >= ctx.opts.MaxPartialDepth {
		ctx.errorf("recursion depth limit %d exceeded applying %s", ctx.opts.MaxPartialDepth, name)
		return false
	}
	block, ok := ctx.Partial(name)
	if !ok {
		if !ctx.failed[name] {
			ctx.errorf("partial %s not found", name)
		}
		return false
	}

	ctx.active[name] = true
	ctx.depth++
	f := ctx.PushNode(n)
	f.StopResolution = private
	e.ExecuteBlock(ctx, block)
	ctx.Pop()
	ctx.depth--
	delete(ctx.active, name)
	return true
}

// applyFormatter implements {x|apply name [private]}: the partial runs
// against x and its output replaces x.
func applyFormatter(ctx *Context, args []string, vars []*Variable) {
	if len(args) == 0 {
		ctx.errorf("apply requires a partial name")
		return
	}
	v := vars[0]
	prev := ctx.SwapBuffer()
	ok := ctx.Engine().ApplyPartial(ctx, args[0], v.Node(), hasPrivate(args[1:]))
	out := ctx.RestoreBuffer(prev)
	if ok {
		v.SetNode(node.String(out))
	} else {
		v.SetNode(node.Missing)
	}
}

func execInclude(e *Engine, ctx *Context, inst bytecode.Instruction) {
	in := inst.(*bytecode.Include)
	var args []string
	if in.Args != nil {
		args = in.Args.List
	}
	e.ApplyPartial(ctx, in.Name, ctx.Node(), hasPrivate(args))
}
