package expr

import (
	"fmt"
	"math"

	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
	"github.com/chazu/stencil/pkg/node"
)

// operand is one evaluation stack slot. Variables stay unresolved until
// read so assignment can see the target path.
type operand struct {
	value    node.Node
	path     bytecode.Path
	ref      bool
	resolved bool
	args     bool // call argument marker
}

type runtimeError struct{ msg string }

func (e *runtimeError) Error() string { return e.msg }

func fail(format string, args ...any) {
	panic(&runtimeError{msg: fmt.Sprintf(format, args...)})
}

type reducer struct {
	ctx   Context
	opts  Options
	stack []operand
}

func (r *reducer) push(v node.Node) { r.stack = append(r.stack, operand{value: v, resolved: true}) }

func (r *reducer) popOperand() operand {
	o := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	return o
}

func (r *reducer) value(o operand) node.Node {
	if o.ref && !o.resolved {
		return r.ctx.Resolve(o.path)
	}
	return o.value
}

func (r *reducer) pop() node.Node { return r.value(r.popOperand()) }

// reduceStatement evaluates one RPN statement. Runtime errors abort the
// statement and are reported on ctx.
func (e *Expr) reduceStatement(ctx Context, rpn []Token) (result node.Node, ok bool) {
	r := &reducer{ctx: ctx, opts: e.opts}
	defer func() {
		if p := recover(); p != nil {
			re, isRuntime := p.(*runtimeError)
			if !isRuntime {
				panic(p)
			}
			ctx.AddError(diag.New(diag.Expression, "%s", re.msg))
			result, ok = node.Missing, false
		}
	}()

	for _, t := range rpn {
		r.step(t)
	}
	if len(rpn) > 0 && rpn[len(rpn)-1].is(OpAssign) {
		return node.Missing, false
	}
	return r.pop(), true
}

func (r *reducer) step(t Token) {
	switch t.Type {
	case TokenNumber:
		r.push(node.Number(t.Num))
	case TokenString:
		r.push(node.String(t.Str))
	case TokenBoolean:
		r.push(node.Bool(t.Bool))
	case TokenNull:
		r.push(node.Null)
	case TokenVariable:
		r.stack = append(r.stack, operand{path: t.Path, ref: true})
	case TokenArgs:
		r.stack = append(r.stack, operand{args: true})
	case TokenCall:
		var args []node.Node
		for {
			o := r.popOperand()
			if o.args {
				break
			}
			args = append(args, r.value(o))
		}
		for i, j := 0, len(args)-1; i < j; i, j = i+1, j-1 {
			args[i], args[j] = args[j], args[i]
		}
		r.push(call(t.Str, args))
	case TokenOperator:
		r.operator(t.Op)
	}
}

func (r *reducer) operator(op Op) {
	switch op {
	case OpPlus:
		r.push(node.Number(toNumber(r.pop())))
		return
	case OpMinus:
		r.push(node.Number(-toNumber(r.pop())))
		return
	case OpNot:
		r.push(node.Bool(!truthy(r.pop())))
		return
	case OpBitNot:
		r.push(node.Number(float64(^toInt32(r.pop()))))
		return
	case OpAssign:
		v := r.pop()
		target := r.popOperand()
		if !target.ref || len(target.path) != 1 || target.path[0].IsIndex ||
			len(target.path[0].Key) < 2 || target.path[0].Key[0] != '@' {
			fail("invalid assignment target")
		}
		r.ctx.SetVar(target.path[0].Key, v)
		r.push(v)
		return
	}

	b := r.pop()
	a := r.pop()
	switch op {
	case OpAdd:
		r.push(r.add(a, b))
	case OpSub:
		r.push(node.Number(toNumber(a) - toNumber(b)))
	case OpMul:
		r.push(node.Number(toNumber(a) * toNumber(b)))
	case OpDiv:
		r.push(node.Number(toNumber(a) / toNumber(b)))
	case OpMod:
		r.push(node.Number(math.Mod(toNumber(a), toNumber(b))))
	case OpPow:
		r.push(node.Number(math.Pow(toNumber(a), toNumber(b))))
	case OpShl:
		r.push(node.Number(float64(toInt32(a) << (uint32(toInt32(b)) & 31))))
	case OpShr:
		r.push(node.Number(float64(toInt32(a) >> (uint32(toInt32(b)) & 31))))
	case OpBitAnd:
		r.push(node.Number(float64(toInt32(a) & toInt32(b))))
	case OpBitOr:
		r.push(node.Number(float64(toInt32(a) | toInt32(b))))
	case OpBitXor:
		r.push(node.Number(float64(toInt32(a) ^ toInt32(b))))
	case OpLT, OpLE, OpGT, OpGE:
		r.push(node.Bool(compare(op, a, b)))
	case OpEq:
		r.push(node.Bool(looseEquals(a, b)))
	case OpNe:
		r.push(node.Bool(!looseEquals(a, b)))
	case OpSeq:
		r.push(node.Bool(strictEquals(a, b)))
	case OpSne:
		r.push(node.Bool(!strictEquals(a, b)))
	case OpAnd:
		// Both operands are already evaluated; only the choice of result
		// follows short-circuit rules.
		if truthy(a) {
			r.push(b)
		} else {
			r.push(a)
		}
	case OpOr:
		if truthy(a) {
			r.push(a)
		} else {
			r.push(b)
		}
	default:
		fail("unsupported operator %s", op)
	}
}

func (r *reducer) add(a, b node.Node) node.Node {
	pa, pb := toPrimitive(a), toPrimitive(b)
	if pa.Type() == node.StringType || pb.Type() == node.StringType {
		sa, sb := toString(pa), toString(pb)
		if len(sa)+len(sb) > r.opts.MaxStringLength {
			fail("string exceeds maximum length of %d", r.opts.MaxStringLength)
		}
		return node.String(sa + sb)
	}
	return node.Number(toNumber(pa) + toNumber(pb))
}
