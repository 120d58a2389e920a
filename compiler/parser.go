package compiler

import (
	"sort"
	"strings"

	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
)

// ---------------------------------------------------------------------------
// Parser: tag recognition over raw template text
// ---------------------------------------------------------------------------

// Parser scans template source once, left to right, and feeds recognized
// instructions to an Assembler. A tag that fails to match any instruction
// is passed through unchanged as text.
type Parser struct {
	src        string
	asm        *Assembler
	m          *Matcher
	lineStarts []int
	textStart  int
}

// NewParser returns a parser over src feeding asm, using the fixed-position
// matcher.
func NewParser(src string, asm *Assembler) *Parser {
	return newParser(src, asm, NewMatcher(src))
}

func newParser(src string, asm *Assembler, m *Matcher) *Parser {
	p := &Parser{src: src, asm: asm, m: m, lineStarts: []int{0}}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			p.lineStarts = append(p.lineStarts, i+1)
		}
	}
	return p
}

// position converts a byte offset to a 1-based line and column.
func (p *Parser) position(offset int) (int, int) {
	line := sort.Search(len(p.lineStarts), func(i int) bool { return p.lineStarts[i] > offset }) - 1
	return line + 1, offset - p.lineStarts[line] + 1
}

func (p *Parser) emit(inst bytecode.Instruction, offset int) {
	line, col := p.position(offset)
	p.asm.AcceptAt(inst, line, col)
}

// flushText emits pending literal text up to end.
func (p *Parser) flushText(end int) {
	if end > p.textStart {
		p.emit(&bytecode.Text{Value: p.src[p.textStart:end]}, p.textStart)
	}
}

// Parse consumes the whole source and signals EOF.
func (p *Parser) Parse() {
	src := p.src
	i := 0
	for i < len(src) {
		if src[i] != '{' {
			i++
			continue
		}

		if strings.HasPrefix(src[i:], "{##") {
			if end := strings.Index(src[i+3:], "##}"); end >= 0 {
				p.flushText(i)
				p.emit(&bytecode.Comment{Text: src[i+3 : i+3+end], Multiline: true}, i)
				i += 3 + end + 3
				p.textStart = i
				continue
			}
		}

		closing := strings.IndexByte(src[i+1:], '}')
		if closing < 0 {
			break
		}
		closing += i + 1
		inner := src[i+1 : closing]
		// A nested '{' restarts recognition there; the first brace is text.
		if j := strings.IndexByte(inner, '{'); j >= 0 {
			i += 1 + j
			continue
		}
		if strings.ContainsAny(inner, "\n\r") {
			i++
			continue
		}

		if inst := p.parseTag(i+1, closing); inst != nil {
			p.flushText(i)
			p.emit(inst, i)
			p.textStart = closing + 1
		}
		i = closing + 1
	}
	p.flushText(len(src))
	p.emit(&bytecode.EOF{}, len(src))
}

// parseTag recognizes the tag body src[start:end]. It returns nil when the
// body matches nothing, leaving the span to be emitted as text.
func (p *Parser) parseTag(start, end int) bytecode.Instruction {
	if start >= end {
		return nil
	}
	m := p.m
	m.Set(start, end)
	switch p.src[start] {
	case '#':
		return &bytecode.Comment{Text: p.src[start+1 : end]}
	case '.':
		m.Set(start+1, end)
		if inst := p.parseKeyword(); inst != nil {
			return inst
		}
		m.Reset()
		return p.parsePredicate()
	}
	return p.parseVariable()
}

// finish accepts optional trailing whitespace and reports whether the
// window was fully consumed.
func (p *Parser) finish() bool {
	if p.m.MatchWhitespace() {
		p.m.Consume()
	}
	return p.m.Finished()
}

// requireSpace consumes mandatory whitespace after a keyword or operand.
func (p *Parser) requireSpace() bool {
	if !p.m.MatchWhitespace() {
		return false
	}
	p.m.Consume()
	return true
}

// optionalArgs matches an argument list if one is present.
func (p *Parser) optionalArgs() *bytecode.Args {
	args, ok := p.m.MatchArguments()
	if !ok {
		return nil
	}
	p.m.Consume()
	return args
}

func (p *Parser) parseVariable() bytecode.Instruction {
	m := p.m
	vars, ok := m.MatchVariables()
	if !ok {
		return nil
	}
	m.Consume()
	fmts, ok := m.MatchFormatters()
	if ok {
		m.Consume()
	}
	if !m.Finished() {
		return nil
	}
	return &bytecode.Variable{Variables: vars, Formatters: fmts}
}

func (p *Parser) parsePredicate() bytecode.Instruction {
	name, args, ok := p.predicateCall()
	if !ok || !p.m.Finished() {
		return nil
	}
	return &bytecode.Predicate{Name: name, Args: args}
}

// predicateCall matches "name? args".
func (p *Parser) predicateCall() (string, *bytecode.Args, bool) {
	name, ok := p.m.MatchPredicate()
	if !ok {
		return "", nil, false
	}
	p.m.Consume()
	return name, p.optionalArgs(), true
}

func (p *Parser) parseKeyword() bytecode.Instruction {
	m := p.m
	op, ok := m.MatchKeyword()
	if !ok {
		return nil
	}
	m.Consume()

	switch op {
	case bytecode.OpEnd, bytecode.OpAlternatesWith, bytecode.OpMetaLeft, bytecode.OpMetaRight,
		bytecode.OpNewline, bytecode.OpSpace, bytecode.OpTab:
		if !p.finish() {
			return nil
		}
		return simpleInstruction(op)

	case bytecode.OpSection, bytecode.OpRepeated:
		if !p.requireSpace() {
			return nil
		}
		path, ok := m.MatchVariable()
		if !ok {
			return nil
		}
		m.Consume()
		if !p.finish() {
			return nil
		}
		if op == bytecode.OpSection {
			return &bytecode.Section{Variable: path}
		}
		return &bytecode.Repeated{Variable: path}

	case bytecode.OpOrPredicate:
		// The keyword match guarantees whitespace or the end follows.
		if p.finish() {
			return &bytecode.OrPredicate{}
		}
		name, args, ok := p.predicateCall()
		if !ok || !m.Finished() {
			return nil
		}
		return &bytecode.OrPredicate{Name: name, Args: args}

	case bytecode.OpIf:
		if !p.requireSpace() {
			return nil
		}
		if name, args, ok := p.predicateCall(); ok {
			if !m.Finished() {
				return nil
			}
			return &bytecode.Predicate{Name: name, Args: args}
		}
		ops, vars, ok := m.MatchIfExpression()
		if !ok {
			return nil
		}
		m.Consume()
		if !p.finish() {
			return nil
		}
		return &bytecode.If{Operators: ops, Variables: vars}

	case bytecode.OpBindVar:
		name, ok := p.definition()
		if !ok || !p.requireSpace() {
			return nil
		}
		vars, ok := m.MatchVariables()
		if !ok {
			return nil
		}
		m.Consume()
		fmts, ok := m.MatchFormatters()
		if ok {
			m.Consume()
		}
		if !p.finish() {
			return nil
		}
		return &bytecode.BindVar{Name: name, Variables: vars, Formatters: fmts}

	case bytecode.OpCtxVar:
		name, ok := p.definition()
		if !ok {
			return nil
		}
		args := p.optionalArgs()
		if args == nil || args.Delim != " " || !m.Finished() {
			return nil
		}
		bindings := parseBindings(args.List)
		if bindings == nil {
			return nil
		}
		return &bytecode.CtxVar{Name: name, Bindings: bindings}

	case bytecode.OpInject:
		name, ok := p.definition()
		if !ok || !p.requireSpace() {
			return nil
		}
		path, ok := m.MatchFilePath()
		if !ok {
			return nil
		}
		m.Consume()
		args := p.optionalArgs()
		if !m.Finished() {
			return nil
		}
		return &bytecode.Inject{Name: name, Path: path, Args: args}

	case bytecode.OpMacro, bytecode.OpInclude:
		if !p.requireSpace() {
			return nil
		}
		name, ok := m.MatchFilePath()
		if !ok {
			return nil
		}
		m.Consume()
		if op == bytecode.OpMacro {
			if !p.finish() {
				return nil
			}
			return &bytecode.Macro{Name: name}
		}
		args := p.optionalArgs()
		if !m.Finished() {
			return nil
		}
		return &bytecode.Include{Name: name, Args: args}

	case bytecode.OpEval:
		if !p.requireSpace() {
			return nil
		}
		code := strings.TrimSpace(m.Remaining())
		if code == "" {
			return nil
		}
		return &bytecode.Eval{Code: code}
	}
	return nil
}

// definition matches " @name" after a keyword.
func (p *Parser) definition() (string, bool) {
	if !p.requireSpace() {
		return "", false
	}
	name, ok := p.m.MatchDefinition()
	if !ok {
		return "", false
	}
	p.m.Consume()
	return name, true
}

// parseBindings decodes key=path pairs. Any malformed pair rejects the
// whole list.
func parseBindings(list []string) []bytecode.Binding {
	var out []bytecode.Binding
	for _, pair := range list {
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" || scanSegment(key) != len(key) || scanVariable(value) != len(value) || value == "" {
			return nil
		}
		out = append(out, bytecode.Binding{Key: key, Path: bytecode.ParsePath(value)})
	}
	return out
}

func simpleInstruction(op bytecode.Opcode) bytecode.Instruction {
	switch op {
	case bytecode.OpEnd:
		return &bytecode.End{}
	case bytecode.OpAlternatesWith:
		return &bytecode.AlternatesWith{}
	case bytecode.OpMetaLeft:
		return &bytecode.MetaLeft{}
	case bytecode.OpMetaRight:
		return &bytecode.MetaRight{}
	case bytecode.OpNewline:
		return &bytecode.Newline{}
	case bytecode.OpSpace:
		return &bytecode.Space{}
	case bytecode.OpTab:
		return &bytecode.Tab{}
	}
	panic("compiler: not a simple instruction: " + op.String())
}

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

// Result is the outcome of compiling one template. Code is always usable,
// even when Errors is non-empty.
type Result struct {
	Code     *bytecode.Root
	Errors   []diag.Error
	Complete bool
}

// Compile parses and assembles src.
func Compile(src string) *Result {
	asm := NewAssembler()
	NewParser(src, asm).Parse()
	return &Result{Code: asm.Code(), Errors: asm.Errors(), Complete: asm.Complete()}
}
