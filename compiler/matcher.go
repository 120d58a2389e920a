package compiler

import (
	"strings"

	"github.com/chazu/stencil/pkg/bytecode"
)

// Matcher recognizes lexical categories over a window [start, end) of a
// source string. A successful MatchX records where the match ended; Consume
// advances the window start past it, Reset rewinds to the start given to
// Set. Failed matches leave the window untouched.
type Matcher struct {
	src   string
	lex   lexer
	begin int
	start int
	end   int
	ptr   int
}

// NewMatcher returns a Matcher over src backed by the fixed-position
// scanner.
func NewMatcher(src string) *Matcher {
	return &Matcher{src: src, lex: scanLexer{}, end: len(src)}
}

// NewRegexpMatcher returns a Matcher backed by anchored regular expressions.
// It recognizes exactly what NewMatcher recognizes.
func NewRegexpMatcher(src string) *Matcher {
	return &Matcher{src: src, lex: sharedRegexpLexer, end: len(src)}
}

// sharedRegexpLexer is read-only after initialization.
var sharedRegexpLexer = newRegexpLexer()

// Set restricts matching to src[start:end].
func (m *Matcher) Set(start, end int) {
	m.begin, m.start, m.ptr, m.end = start, start, start, end
}

// Consume moves the window start to the end of the last successful match.
func (m *Matcher) Consume() { m.start = m.ptr }

// Reset rewinds the window to the range given to Set.
func (m *Matcher) Reset() { m.start, m.ptr = m.begin, m.begin }

// Finished reports whether the window is empty.
func (m *Matcher) Finished() bool { return m.start >= m.end }

// Pos returns the current window start.
func (m *Matcher) Pos() int { return m.start }

// Remaining returns the unconsumed text of the window.
func (m *Matcher) Remaining() string { return m.src[m.start:m.end] }

func (m *Matcher) match(cat category) (string, bool) {
	n := m.lex.match(cat, m.src[m.start:m.end])
	if n < 0 {
		return "", false
	}
	m.ptr = m.start + n
	return m.src[m.start:m.ptr], true
}

// MatchWhitespace matches a run of spaces, tabs and line breaks.
func (m *Matcher) MatchWhitespace() bool {
	_, ok := m.match(catWhitespace)
	return ok
}

// MatchSpace matches exactly one space.
func (m *Matcher) MatchSpace() bool {
	_, ok := m.match(catSpace)
	return ok
}

// MatchKeyword matches an instruction keyword followed by whitespace or
// the end of the window.
func (m *Matcher) MatchKeyword() (bytecode.Opcode, bool) {
	kw, ok := m.match(catKeyword)
	if !ok {
		return 0, false
	}
	return keywordOps[kw], true
}

// MatchDefinition matches an @name.
func (m *Matcher) MatchDefinition() (string, bool) {
	return m.match(catDefinition)
}

// MatchPredicate matches a predicate name, including the trailing '?'.
func (m *Matcher) MatchPredicate() (string, bool) {
	return m.match(catPredicate)
}

// MatchVariable matches a dotted variable path.
func (m *Matcher) MatchVariable() (bytecode.Path, bool) {
	s, ok := m.match(catVariable)
	if !ok {
		return nil, false
	}
	return bytecode.ParsePath(s), true
}

// MatchVariables matches a comma-separated list of variable paths.
func (m *Matcher) MatchVariables() ([]bytecode.Path, bool) {
	s, ok := m.match(catVariables)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	paths := make([]bytecode.Path, len(parts))
	for i, p := range parts {
		paths[i] = bytecode.ParsePath(strings.Trim(p, " \t\n\r"))
	}
	return paths, true
}

// MatchFormatters matches a pipe-chained formatter list.
func (m *Matcher) MatchFormatters() ([]bytecode.FormatterCall, bool) {
	s, ok := m.match(catFormatters)
	if !ok {
		return nil, false
	}
	var calls []bytecode.FormatterCall
	for _, seg := range strings.Split(s[1:], "|") {
		n := 1
		for n < len(seg) && seg[n] != ' ' && seg[n] != ':' {
			n++
		}
		call := bytecode.FormatterCall{Name: seg[:n]}
		if n+1 < len(seg) {
			delim := seg[n : n+1]
			call.Args = &bytecode.Args{List: strings.Split(seg[n+1:], delim), Delim: delim}
		}
		calls = append(calls, call)
	}
	return calls, true
}

// MatchArguments matches a delimiter character followed by free-form text,
// split on that delimiter.
func (m *Matcher) MatchArguments() (*bytecode.Args, bool) {
	s, ok := m.match(catArguments)
	if !ok {
		return nil, false
	}
	delim := s[:1]
	return &bytecode.Args{List: strings.Split(s[1:], delim), Delim: delim}, true
}

// MatchFilePath matches a relative file path or partial name.
func (m *Matcher) MatchFilePath() (string, bool) {
	return m.match(catFilePath)
}

// MatchIfExpression matches operands joined by && and ||. Operators are
// returned in source order for left-to-right folding.
func (m *Matcher) MatchIfExpression() ([]bytecode.Operator, []bytecode.Path, bool) {
	s, ok := m.match(catIfExpression)
	if !ok {
		return nil, nil, false
	}
	var ops []bytecode.Operator
	var paths []bytecode.Path
	i := 0
	for {
		n := scanVariable(s[i:])
		paths = append(paths, bytecode.ParsePath(s[i:i+n]))
		i = skip(s, i+n, isWS)
		if i >= len(s) {
			break
		}
		if s[i] == '&' {
			ops = append(ops, bytecode.LogicalAnd)
		} else {
			ops = append(ops, bytecode.LogicalOr)
		}
		i = skip(s, i+2, isWS)
	}
	return ops, paths, true
}
