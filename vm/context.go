package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
	"github.com/chazu/stencil/pkg/node"
)

// ---------------------------------------------------------------------------
// Frame: one entry of the scope stack
// ---------------------------------------------------------------------------

// Frame binds a value and, inside a repeated section, the iteration cursor.
type Frame struct {
	Node node.Node

	// Index is the 0-based iteration position, or -1 outside a repeated
	// section. Length is the collection size.
	Index  int
	Length int

	// StopResolution blocks name lookup from continuing past this frame.
	StopResolution bool

	Parent *Frame

	vars map[string]node.Node
}

func (f *Frame) iterating() bool { return f.Index >= 0 }

// ---------------------------------------------------------------------------
// Context: per-render state
// ---------------------------------------------------------------------------

// Context holds everything one render owns: the frame stack, output buffer,
// diagnostics and the macro, partial and injectable tables. A Context must
// not be shared between goroutines.
type Context struct {
	engine *Engine
	opts   Options

	frames []*Frame
	buf    *strings.Builder
	errors []diag.Error

	macros   map[string][]bytecode.Instruction
	compiled map[string]*bytecode.Root
	failed   map[string]bool

	depth  int
	active map[string]bool
}

func newContext(e *Engine, data any, opts Options) *Context {
	ctx := &Context{
		engine:   e,
		opts:     opts.withDefaults(),
		buf:      &strings.Builder{},
		macros:   make(map[string][]bytecode.Instruction),
		compiled: make(map[string]*bytecode.Root),
		failed:   make(map[string]bool),
		active:   make(map[string]bool),
	}
	ctx.frames = []*Frame{{Node: node.New(data), Index: -1}}
	return ctx
}

// Render returns the text written so far.
func (c *Context) Render() string { return c.buf.String() }

// Errors returns the diagnostics collected so far, in emission order.
func (c *Context) Errors() []diag.Error { return c.errors }

// ErrorCount returns len(Errors()).
func (c *Context) ErrorCount() int { return len(c.errors) }

// AddError records a diagnostic.
func (c *Context) AddError(err diag.Error) { c.errors = append(c.errors, err) }

func (c *Context) errorf(format string, args ...any) {
	c.AddError(diag.New(diag.Engine, format, args...))
}

// Engine returns the engine driving this render.
func (c *Context) Engine() *Engine { return c.engine }

// Locale returns the configured locale, or nil.
func (c *Context) Locale() Locale { return c.opts.Locale }

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// Write appends s to the current buffer.
func (c *Context) Write(s string) { c.buf.WriteString(s) }

// SwapBuffer installs a fresh buffer and returns the previous one, to be
// handed back to RestoreBuffer.
func (c *Context) SwapBuffer() *strings.Builder {
	prev := c.buf
	c.buf = &strings.Builder{}
	return prev
}

// RestoreBuffer reinstalls prev and returns the text captured since the
// matching SwapBuffer.
func (c *Context) RestoreBuffer(prev *strings.Builder) string {
	captured := c.buf.String()
	c.buf = prev
	return captured
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// Frame returns the innermost frame.
func (c *Context) Frame() *Frame { return c.frames[len(c.frames)-1] }

// Node returns the innermost frame's value.
func (c *Context) Node() node.Node { return c.Frame().Node }

// Depth returns the number of frames on the stack.
func (c *Context) Depth() int { return len(c.frames) }

// PushNode pushes a frame scoped to n.
func (c *Context) PushNode(n node.Node) *Frame {
	f := &Frame{Node: n, Index: -1, Parent: c.Frame()}
	c.frames = append(c.frames, f)
	return f
}

// PushSection resolves path and pushes a frame scoped to the result.
func (c *Context) PushSection(path bytecode.Path) *Frame {
	return c.PushNode(c.Resolve(path))
}

func (c *Context) pushIteration(n node.Node, index, length int) {
	f := c.PushNode(n)
	f.Index, f.Length = index, length
}

// Pop discards the innermost frame. Popping the root frame panics.
func (c *Context) Pop() {
	if len(c.frames) <= 1 {
		panic("vm: context pop past root frame")
	}
	c.frames[len(c.frames)-1] = nil
	c.frames = c.frames[:len(c.frames)-1]
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// Resolve looks up the first segment on the frame stack and walks the rest
// from there. Any failed step yields node.Missing.
func (c *Context) Resolve(path bytecode.Path) node.Node {
	if len(path) == 0 {
		return c.Node()
	}
	n := c.LookupStack(path[0])
	for _, seg := range path[1:] {
		if n.IsMissing() {
			return n
		}
		n = step(n, seg)
	}
	return n
}

func step(n node.Node, seg bytecode.Segment) node.Node {
	if seg.IsIndex {
		return n.Index(seg.Index)
	}
	return n.Key(seg.Key)
}

// LookupStack searches from the innermost frame outwards for seg, stopping
// after the first frame that has StopResolution set. Names starting with
// '@' are variables: "@" is the current value, "@index" and "@index0" the
// nearest iteration position.
func (c *Context) LookupStack(seg bytecode.Segment) node.Node {
	if !seg.IsIndex && strings.HasPrefix(seg.Key, "@") {
		return c.lookupVar(seg.Key)
	}
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		if n := step(f.Node, seg); !n.IsMissing() {
			return n
		}
		if f.StopResolution {
			break
		}
	}
	return node.Missing
}

func (c *Context) lookupVar(name string) node.Node {
	switch name {
	case "@":
		return c.Node()
	case "@index", "@index0":
		for i := len(c.frames) - 1; i >= 0; i-- {
			f := c.frames[i]
			if f.iterating() {
				if name == "@index" {
					return node.Number(float64(f.Index + 1))
				}
				return node.Number(float64(f.Index))
			}
			if f.StopResolution {
				break
			}
		}
		return node.Missing
	}
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		if v, ok := f.vars[name]; ok {
			return v
		}
		if f.StopResolution {
			break
		}
	}
	return node.Missing
}

// SetVar binds name in the innermost frame; the binding disappears when
// that frame is popped.
func (c *Context) SetVar(name string, value node.Node) {
	f := c.Frame()
	if f.vars == nil {
		f.vars = make(map[string]node.Node)
	}
	f.vars[name] = value
}

// Var returns the visible binding for name, or node.Missing.
func (c *Context) Var(name string) node.Node { return c.lookupVar(name) }

// ---------------------------------------------------------------------------
// Side tables
// ---------------------------------------------------------------------------

// Injectable returns the externally supplied text registered under key.
func (c *Context) Injectable(key string) (string, bool) {
	s, ok := c.opts.Injectables[key]
	return s, ok
}

// SetMacro registers block under name for later application.
func (c *Context) SetMacro(name string, block []bytecode.Instruction) {
	c.macros[name] = block
}

// Partial returns the body registered under name. Macros defined by the
// running template win over externally supplied partials. Raw partial
// sources are compiled on first use; a partial that fails to compile is
// reported once per render and then treated as absent.
func (c *Context) Partial(name string) ([]bytecode.Instruction, bool) {
	if block, ok := c.macros[name]; ok {
		return block, true
	}
	if root, ok := c.compiled[name]; ok {
		return root.Block, true
	}
	if c.failed[name] {
		return nil, false
	}
	src, ok := c.opts.Partials[name]
	if !ok {
		return nil, false
	}
	root, err := c.engine.compilePartial(src)
	if err != nil {
		c.failed[name] = true
		c.errorf("partial %s: %v", name, err)
		return nil, false
	}
	c.compiled[name] = root
	return root.Block, true
}

func (c *Context) String() string {
	return fmt.Sprintf("Context{frames: %d, depth: %d, errors: %d}", len(c.frames), c.depth, len(c.errors))
}
