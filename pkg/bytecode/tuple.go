package bytecode

import (
	"encoding/json"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Tagged-tuple form
//
// Every instruction persists as a JSON-like array whose first element is the
// opcode. Absent optional operands encode as 0. Paths are arrays of strings
// and integers; argument lists are [list, delimiter] pairs.
// ---------------------------------------------------------------------------

// ToTuple converts inst to its tagged-tuple form.
func ToTuple(inst Instruction) []any {
	op := int(inst.Opcode())
	switch x := inst.(type) {
	case *Root:
		return []any{op, x.Version, blockTuple(x.Block), []any{int(OpEOF)}}
	case *Text:
		return []any{op, x.Value}
	case *Variable:
		return []any{op, pathsTuple(x.Variables), formattersTuple(x.Formatters)}
	case *Section:
		return []any{op, pathTuple(x.Variable), blockTuple(x.Block), altTuple(x.Alternative)}
	case *Repeated:
		return []any{op, pathTuple(x.Variable), blockTuple(x.Block), altTuple(x.Alternative), blockTuple(x.AlternatesWith)}
	case *Predicate:
		return []any{op, x.Name, argsTuple(x.Args), blockTuple(x.Block), altTuple(x.Alternative)}
	case *OrPredicate:
		var name any = 0
		if x.Name != "" {
			name = x.Name
		}
		return []any{op, name, argsTuple(x.Args), blockTuple(x.Block), altTuple(x.Alternative)}
	case *BindVar:
		return []any{op, x.Name, pathsTuple(x.Variables), formattersTuple(x.Formatters)}
	case *If:
		ops := make([]any, len(x.Operators))
		for i, o := range x.Operators {
			ops[i] = int(o)
		}
		return []any{op, ops, pathsTuple(x.Variables), blockTuple(x.Block), altTuple(x.Alternative)}
	case *Inject:
		return []any{op, x.Name, x.Path, argsTuple(x.Args)}
	case *Macro:
		return []any{op, x.Name, blockTuple(x.Block)}
	case *Comment:
		multi := 0
		if x.Multiline {
			multi = 1
		}
		return []any{op, x.Text, multi}
	case *CtxVar:
		bindings := make([]any, len(x.Bindings))
		for i, b := range x.Bindings {
			bindings[i] = []any{b.Key, pathTuple(b.Path)}
		}
		return []any{op, x.Name, bindings}
	case *Atom:
		return []any{op, x.Value}
	case *Struct:
		return []any{op, x.Value, blockTuple(x.Block)}
	case *Eval:
		return []any{op, x.Code}
	case *Include:
		return []any{op, x.Name, argsTuple(x.Args)}
	}
	return []any{op}
}

func blockTuple(block []Instruction) []any {
	out := make([]any, len(block))
	for i, inst := range block {
		out[i] = ToTuple(inst)
	}
	return out
}

func altTuple(alt Instruction) []any {
	if alt == nil {
		return []any{int(OpEnd)}
	}
	return ToTuple(alt)
}

func pathTuple(p Path) []any {
	out := make([]any, len(p))
	for i, s := range p {
		if s.IsIndex {
			out[i] = s.Index
		} else {
			out[i] = s.Key
		}
	}
	return out
}

func pathsTuple(paths []Path) []any {
	out := make([]any, len(paths))
	for i, p := range paths {
		out[i] = pathTuple(p)
	}
	return out
}

func argsTuple(a *Args) any {
	if a == nil {
		return 0
	}
	list := make([]any, len(a.List))
	for i, s := range a.List {
		list[i] = s
	}
	return []any{list, a.Delim}
}

func formattersTuple(fmts []FormatterCall) any {
	if len(fmts) == 0 {
		return 0
	}
	out := make([]any, len(fmts))
	for i, f := range fmts {
		if f.Args == nil {
			out[i] = []any{f.Name}
		} else {
			out[i] = []any{f.Name, argsTuple(f.Args)}
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// DecodeError reports malformed tuple input.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return "bytecode: " + e.Msg }

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

// FromTuple rebuilds an instruction from its tagged-tuple form. Numbers may
// arrive as any Go numeric type (JSON decodes float64, CBOR decodes uint64
// or int64).
func FromTuple(v any) (Instruction, error) {
	t, ok := v.([]any)
	if !ok || len(t) == 0 {
		return nil, decodeErrorf("instruction must be a non-empty array, got %T", v)
	}
	code, ok := toInt(t[0])
	if !ok || code < 0 || code >= NumOpcodes {
		return nil, decodeErrorf("invalid opcode %v", t[0])
	}
	op := Opcode(code)
	d := &tupleDecoder{t: t, op: op}

	var inst Instruction
	switch op {
	case OpRoot:
		inst = &Root{Version: d.int(1), Block: d.block(2)}
		if d.err == nil {
			eof, err := FromTuple(d.at(3))
			if err != nil || eof.Opcode() != OpEOF {
				d.fail("ROOT must terminate with EOF")
			}
		}
	case OpText:
		inst = &Text{Value: d.str(1)}
	case OpVariable:
		inst = &Variable{Variables: d.paths(1), Formatters: d.formatters(2)}
	case OpSection:
		inst = &Section{Variable: d.path(1), Block: d.block(2), Alternative: d.alt(3)}
	case OpRepeated:
		inst = &Repeated{Variable: d.path(1), Block: d.block(2), Alternative: d.alt(3), AlternatesWith: d.block(4)}
	case OpPredicate:
		inst = &Predicate{Name: d.str(1), Args: d.args(2), Block: d.block(3), Alternative: d.alt(4)}
	case OpOrPredicate:
		o := &OrPredicate{Args: d.args(2), Block: d.block(3), Alternative: d.alt(4)}
		if _, isNum := toInt(d.at(1)); !isNum {
			o.Name = d.str(1)
		}
		inst = o
	case OpBindVar:
		inst = &BindVar{Name: d.str(1), Variables: d.paths(2), Formatters: d.formatters(3)}
	case OpIf:
		i := &If{Variables: d.paths(2), Block: d.block(3), Alternative: d.alt(4)}
		for _, o := range d.list(1) {
			n, ok := toInt(o)
			if !ok || (n != 0 && n != 1) {
				d.fail("invalid IF operator %v", o)
				break
			}
			i.Operators = append(i.Operators, Operator(n))
		}
		inst = i
	case OpInject:
		inst = &Inject{Name: d.str(1), Path: d.str(2), Args: d.args(3)}
	case OpMacro:
		inst = &Macro{Name: d.str(1), Block: d.block(2)}
	case OpComment:
		inst = &Comment{Text: d.str(1), Multiline: d.int(2) == 1}
	case OpCtxVar:
		c := &CtxVar{Name: d.str(1)}
		for _, b := range d.list(2) {
			pair, ok := b.([]any)
			if !ok || len(pair) != 2 {
				d.fail("invalid CTXVAR binding %v", b)
				break
			}
			key, ok := pair[0].(string)
			if !ok {
				d.fail("invalid CTXVAR key %v", pair[0])
				break
			}
			c.Bindings = append(c.Bindings, Binding{Key: key, Path: d.decodePath(pair[1])})
		}
		inst = c
	case OpAtom:
		inst = &Atom{Value: d.at(1)}
	case OpStruct:
		inst = &Struct{Value: d.at(1), Block: d.block(2)}
	case OpEval:
		inst = &Eval{Code: d.str(1)}
	case OpInclude:
		inst = &Include{Name: d.str(1), Args: d.args(2)}
	case OpEnd:
		inst = &End{}
	case OpEOF:
		inst = &EOF{}
	case OpAlternatesWith:
		inst = &AlternatesWith{}
	case OpMetaLeft:
		inst = &MetaLeft{}
	case OpMetaRight:
		inst = &MetaRight{}
	case OpNewline:
		inst = &Newline{}
	case OpSpace:
		inst = &Space{}
	case OpTab:
		inst = &Tab{}
	}
	if d.err != nil {
		return nil, d.err
	}
	return inst, nil
}

// tupleDecoder records the first error and returns zero values afterwards,
// so FromTuple can read operands without checking each one.
type tupleDecoder struct {
	t   []any
	op  Opcode
	err error
}

func (d *tupleDecoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = decodeErrorf("%s: %s", d.op, fmt.Sprintf(format, args...))
	}
}

func (d *tupleDecoder) at(i int) any {
	if i >= len(d.t) {
		d.fail("missing operand %d", i)
		return nil
	}
	return d.t[i]
}

func (d *tupleDecoder) str(i int) string {
	v := d.at(i)
	s, ok := v.(string)
	if !ok && d.err == nil {
		d.fail("operand %d: expected string, got %T", i, v)
	}
	return s
}

func (d *tupleDecoder) int(i int) int {
	v := d.at(i)
	n, ok := toInt(v)
	if !ok && d.err == nil {
		d.fail("operand %d: expected integer, got %v", i, v)
	}
	return n
}

func (d *tupleDecoder) list(i int) []any {
	v := d.at(i)
	l, ok := v.([]any)
	if !ok && d.err == nil {
		d.fail("operand %d: expected array, got %T", i, v)
	}
	return l
}

func (d *tupleDecoder) block(i int) []Instruction {
	l := d.list(i)
	if d.err != nil || len(l) == 0 {
		return nil
	}
	out := make([]Instruction, 0, len(l))
	for _, v := range l {
		inst, err := FromTuple(v)
		if err != nil {
			d.err = err
			return nil
		}
		out = append(out, inst)
	}
	return out
}

func (d *tupleDecoder) alt(i int) Instruction {
	v := d.at(i)
	if d.err != nil {
		return nil
	}
	inst, err := FromTuple(v)
	if err != nil {
		d.err = err
		return nil
	}
	if op := inst.Opcode(); op != OpEnd && op != OpOrPredicate {
		d.fail("alternative must be END or OR_PREDICATE, got %s", op)
	}
	return inst
}

func (d *tupleDecoder) decodePath(v any) Path {
	l, ok := v.([]any)
	if !ok {
		d.fail("path must be an array, got %T", v)
		return nil
	}
	if len(l) == 0 {
		return nil
	}
	p := make(Path, len(l))
	for i, s := range l {
		switch x := s.(type) {
		case string:
			p[i] = Key(x)
		default:
			n, ok := toInt(x)
			if !ok || n < 0 {
				d.fail("invalid path segment %v", s)
				return nil
			}
			p[i] = Index(n)
		}
	}
	return p
}

func (d *tupleDecoder) path(i int) Path {
	v := d.at(i)
	if d.err != nil {
		return nil
	}
	return d.decodePath(v)
}

func (d *tupleDecoder) paths(i int) []Path {
	l := d.list(i)
	if d.err != nil || len(l) == 0 {
		return nil
	}
	out := make([]Path, len(l))
	for j, v := range l {
		out[j] = d.decodePath(v)
	}
	return out
}

func (d *tupleDecoder) decodeArgs(v any) *Args {
	if n, ok := toInt(v); ok && n == 0 {
		return nil
	}
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		d.fail("arguments must be [list, delimiter], got %v", v)
		return nil
	}
	list, ok := pair[0].([]any)
	delim, ok2 := pair[1].(string)
	if !ok || !ok2 {
		d.fail("arguments must be [list, delimiter], got %v", v)
		return nil
	}
	a := &Args{Delim: delim, List: make([]string, len(list))}
	for i, s := range list {
		str, ok := s.(string)
		if !ok {
			d.fail("argument %d is not a string", i)
			return nil
		}
		a.List[i] = str
	}
	return a
}

func (d *tupleDecoder) args(i int) *Args {
	v := d.at(i)
	if d.err != nil {
		return nil
	}
	return d.decodeArgs(v)
}

func (d *tupleDecoder) formatters(i int) []FormatterCall {
	v := d.at(i)
	if d.err != nil {
		return nil
	}
	if n, ok := toInt(v); ok && n == 0 {
		return nil
	}
	l, ok := v.([]any)
	if !ok {
		d.fail("formatters must be an array, got %T", v)
		return nil
	}
	out := make([]FormatterCall, 0, len(l))
	for _, f := range l {
		call, ok := f.([]any)
		if !ok || len(call) == 0 || len(call) > 2 {
			d.fail("invalid formatter %v", f)
			return nil
		}
		name, ok := call[0].(string)
		if !ok {
			d.fail("invalid formatter name %v", call[0])
			return nil
		}
		fc := FormatterCall{Name: name}
		if len(call) == 2 {
			fc.Args = d.decodeArgs(call[1])
		}
		out = append(out, fc)
	}
	return out
}

// toInt accepts the numeric types produced by encoding/json and the CBOR
// decoder. Non-integral floats are rejected.
func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		if x > math.MaxInt32 {
			return 0, false
		}
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
