package bytecode

import (
	"strconv"
	"strings"
	"sync"
)

// FormatVersion tags every ROOT instruction.
const FormatVersion = 1

// Instruction is one node of the bytecode tree. Trees are immutable once
// assembled and may be shared by concurrent renders.
type Instruction interface {
	Opcode() Opcode
}

// ---------------------------------------------------------------------------
// Operand shapes
// ---------------------------------------------------------------------------

// Segment is one step of a variable path: a member name or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key returns a name segment.
func Key(k string) Segment { return Segment{Key: k} }

// Index returns an index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

func (s Segment) String() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

// Path is a dotted variable reference.
type Path []Segment

// ParsePath splits a dotted reference; all-digit segments become indexes.
// It performs no validation beyond that.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, len(parts))
	for i, part := range parts {
		if n, err := strconv.Atoi(part); err == nil && n >= 0 && isDigits(part) {
			p[i] = Index(n)
		} else {
			p[i] = Key(part)
		}
	}
	return p
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Args is a literal argument list together with the delimiter that
// separated it in the source.
type Args struct {
	List  []string
	Delim string
}

// FormatterCall is one link of a formatter chain.
type FormatterCall struct {
	Name string
	Args *Args
}

// ArgList returns the call's arguments, or nil.
func (f FormatterCall) ArgList() []string {
	if f.Args == nil {
		return nil
	}
	return f.Args.List
}

// Binding is one key=path pair of a CTXVAR.
type Binding struct {
	Key  string
	Path Path
}

// ---------------------------------------------------------------------------
// Leaf instructions
// ---------------------------------------------------------------------------

type Text struct{ Value string }

type Comment struct {
	Text      string
	Multiline bool
}

type End struct{}
type EOF struct{}
type AlternatesWith struct{}
type MetaLeft struct{}
type MetaRight struct{}
type Newline struct{}
type Space struct{}
type Tab struct{}

// Variable interpolates the first resolvable candidate path through an
// optional formatter chain.
type Variable struct {
	Variables  []Path
	Formatters []FormatterCall
}

// BindVar binds a formatted variable to @Name.
type BindVar struct {
	Name       string
	Variables  []Path
	Formatters []FormatterCall
}

// CtxVar binds an object assembled from key=path pairs to @Name.
type CtxVar struct {
	Name     string
	Bindings []Binding
}

// Inject binds an injectable file's contents to @Name.
type Inject struct {
	Name string
	Path string
	Args *Args
}

// Include applies a macro or partial in place.
type Include struct {
	Name string
	Args *Args
}

// Atom carries an application-defined payload for custom handlers.
type Atom struct{ Value any }

// Eval holds inline expression source. The parsed form is cached on first
// use; see Parsed.
type Eval struct {
	Code string

	once   sync.Once
	parsed any
}

// Parsed returns the cached parse of Code, calling parse exactly once per
// instruction. Safe for concurrent use.
func (e *Eval) Parsed(parse func(code string) any) any {
	e.once.Do(func() { e.parsed = parse(e.Code) })
	return e.parsed
}

// ---------------------------------------------------------------------------
// Composite instructions
// ---------------------------------------------------------------------------

// Root wraps every compiled unit.
type Root struct {
	Version int
	Block   []Instruction
}

// Section scopes its body to a resolved value.
type Section struct {
	Variable    Path
	Block       []Instruction
	Alternative Instruction // *End or *OrPredicate
}

// Repeated iterates its body over an array.
type Repeated struct {
	Variable       Path
	Block          []Instruction
	Alternative    Instruction // *End or *OrPredicate
	AlternatesWith []Instruction
}

// Predicate runs its body when the named predicate holds.
type Predicate struct {
	Name        string
	Args        *Args
	Block       []Instruction
	Alternative Instruction
}

// OrPredicate is one {.or} branch. An empty Name is the unconditional
// final branch.
type OrPredicate struct {
	Name        string
	Args        *Args
	Block       []Instruction
	Alternative Instruction
}

// Unconditional reports whether this is a bare {.or}.
func (o *OrPredicate) Unconditional() bool { return o.Name == "" }

// If folds operand truthiness left to right through Operators.
type If struct {
	Operators   []Operator
	Variables   []Path
	Block       []Instruction
	Alternative Instruction
}

// Macro registers Block under Name when executed.
type Macro struct {
	Name  string
	Block []Instruction
}

// Struct carries an application-defined payload and a body.
type Struct struct {
	Value any
	Block []Instruction
}

func (*Text) Opcode() Opcode           { return OpText }
func (*Variable) Opcode() Opcode       { return OpVariable }
func (*Section) Opcode() Opcode        { return OpSection }
func (*End) Opcode() Opcode            { return OpEnd }
func (*Repeated) Opcode() Opcode       { return OpRepeated }
func (*Predicate) Opcode() Opcode      { return OpPredicate }
func (*BindVar) Opcode() Opcode        { return OpBindVar }
func (*OrPredicate) Opcode() Opcode    { return OpOrPredicate }
func (*If) Opcode() Opcode             { return OpIf }
func (*Inject) Opcode() Opcode         { return OpInject }
func (*Macro) Opcode() Opcode          { return OpMacro }
func (*Comment) Opcode() Opcode        { return OpComment }
func (*MetaLeft) Opcode() Opcode       { return OpMetaLeft }
func (*MetaRight) Opcode() Opcode      { return OpMetaRight }
func (*Newline) Opcode() Opcode        { return OpNewline }
func (*Space) Opcode() Opcode          { return OpSpace }
func (*Tab) Opcode() Opcode            { return OpTab }
func (*Root) Opcode() Opcode           { return OpRoot }
func (*EOF) Opcode() Opcode            { return OpEOF }
func (*AlternatesWith) Opcode() Opcode { return OpAlternatesWith }
func (*Atom) Opcode() Opcode           { return OpAtom }
func (*CtxVar) Opcode() Opcode         { return OpCtxVar }
func (*Struct) Opcode() Opcode         { return OpStruct }
func (*Eval) Opcode() Opcode           { return OpEval }
func (*Include) Opcode() Opcode        { return OpInclude }

// NewRoot returns an empty ROOT at the current format version.
func NewRoot() *Root {
	return &Root{Version: FormatVersion}
}

// Walk calls fn for inst and, depth first, every instruction nested in its
// blocks and alternatives. Returning false from fn skips inst's children.
func Walk(inst Instruction, fn func(Instruction) bool) {
	if inst == nil || !fn(inst) {
		return
	}
	walkBlock := func(block []Instruction) {
		for _, child := range block {
			Walk(child, fn)
		}
	}
	switch x := inst.(type) {
	case *Root:
		walkBlock(x.Block)
	case *Section:
		walkBlock(x.Block)
		Walk(x.Alternative, fn)
	case *Repeated:
		walkBlock(x.Block)
		walkBlock(x.AlternatesWith)
		Walk(x.Alternative, fn)
	case *Predicate:
		walkBlock(x.Block)
		Walk(x.Alternative, fn)
	case *OrPredicate:
		walkBlock(x.Block)
		Walk(x.Alternative, fn)
	case *If:
		walkBlock(x.Block)
		Walk(x.Alternative, fn)
	case *Macro:
		walkBlock(x.Block)
	case *Struct:
		walkBlock(x.Block)
	}
}
