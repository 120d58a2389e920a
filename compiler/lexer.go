package compiler

import (
	"sort"

	"github.com/chazu/stencil/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Lexical categories
//
// A lexer reports how many bytes of s, starting at s[0], belong to one
// category, or -1. Two implementations exist: scanLexer walks fixed
// positions by hand, regexpLexer anchors a pattern per category. They must
// agree on every input; FuzzLexerAgreement checks that.
// ---------------------------------------------------------------------------

type category uint8

const (
	catWhitespace category = iota
	catSpace
	catKeyword
	catDefinition
	catPredicate
	catVariable
	catVariables
	catFormatters
	catArguments
	catFilePath
	catIfExpression

	numCategories
)

var categoryNames = [numCategories]string{
	"whitespace", "space", "keyword", "definition", "predicate", "variable",
	"variables", "formatters", "arguments", "file path", "if expression",
}

func (c category) String() string {
	if c < numCategories {
		return categoryNames[c]
	}
	return "unknown"
}

type lexer interface {
	match(cat category, s string) int
}

// keywords lists instruction keywords longest first, so a keyword that is a
// prefix of another never shadows it.
var keywords, keywordOps = buildKeywords()

func buildKeywords() ([]string, map[string]bytecode.Opcode) {
	var kws []string
	ops := map[string]bytecode.Opcode{}
	for _, op := range bytecode.AllOpcodes() {
		if kw := bytecode.GetOpcodeInfo(op).Keyword; kw != "" {
			kws = append(kws, kw)
			ops[kw] = op
		}
	}
	sort.SliceStable(kws, func(i, j int) bool {
		if len(kws[i]) != len(kws[j]) {
			return len(kws[i]) > len(kws[j])
		}
		return kws[i] < kws[j]
	})
	return kws, ops
}

// ---------------------------------------------------------------------------
// Fixed-position scanner
// ---------------------------------------------------------------------------

type scanLexer struct{}

func (scanLexer) match(cat category, s string) int {
	switch cat {
	case catWhitespace:
		return scanWhitespace(s)
	case catSpace:
		if len(s) > 0 && s[0] == ' ' {
			return 1
		}
		return -1
	case catKeyword:
		return scanKeyword(s)
	case catDefinition:
		return scanDefinition(s)
	case catPredicate:
		return scanPredicate(s)
	case catVariable:
		return scanVariable(s)
	case catVariables:
		return scanJoined(s, scanComma)
	case catFormatters:
		return scanFormatters(s)
	case catArguments:
		if len(s) >= 2 && isDelim(s[0]) {
			return len(s)
		}
		return -1
	case catFilePath:
		return scanFilePath(s)
	case catIfExpression:
		return scanJoined(s, scanLogical)
	}
	return -1
}

func isWS(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDelim(c byte) bool {
	return c == ' ' || c == ':' || c == '|'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return isLetter(c) || c == '_' || c == '$'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '-'
}

func skip(s string, i int, pred func(byte) bool) int {
	for i < len(s) && pred(s[i]) {
		i++
	}
	return i
}

func scanWhitespace(s string) int {
	n := skip(s, 0, isWS)
	if n == 0 {
		return -1
	}
	return n
}

func scanKeyword(s string) int {
	for _, kw := range keywords {
		if len(s) >= len(kw) && s[:len(kw)] == kw && (len(s) == len(kw) || isWS(s[len(kw)])) {
			return len(kw)
		}
	}
	return -1
}

func scanDefinition(s string) int {
	if len(s) < 2 || s[0] != '@' || !isIdentStart(s[1]) {
		return -1
	}
	return skip(s, 2, isIdentPart)
}

func scanPredicate(s string) int {
	if len(s) == 0 || !isLetter(s[0]) {
		return -1
	}
	n := skip(s, 1, func(c byte) bool { return isLetter(c) || isDigit(c) || c == '_' || c == '-' })
	if n < len(s) && s[n] == '?' {
		return n + 1
	}
	return -1
}

// scanSegment matches one path segment after a dot: an identifier or a
// run of digits.
func scanSegment(s string) int {
	switch {
	case len(s) == 0:
		return -1
	case isIdentStart(s[0]):
		return skip(s, 1, isIdentPart)
	case isDigit(s[0]):
		return skip(s, 1, isDigit)
	}
	return -1
}

func scanVariable(s string) int {
	var n int
	if len(s) > 0 && s[0] == '@' {
		n = skip(s, 1, isIdentPart)
	} else {
		n = scanSegment(s)
		if n < 0 {
			return -1
		}
	}
	for n < len(s) && s[n] == '.' {
		k := scanSegment(s[n+1:])
		if k < 0 {
			break
		}
		n += 1 + k
	}
	return n
}

func scanComma(s string) int {
	if len(s) > 0 && s[0] == ',' {
		return 1
	}
	return -1
}

func scanLogical(s string) int {
	if len(s) >= 2 && (s[:2] == "&&" || s[:2] == "||") {
		return 2
	}
	return -1
}

// scanJoined matches variable (ws* sep ws* variable)*.
func scanJoined(s string, sep func(string) int) int {
	n := scanVariable(s)
	if n < 0 {
		return -1
	}
	for {
		j := skip(s, n, isWS)
		k := sep(s[j:])
		if k < 0 {
			return n
		}
		j = skip(s, j+k, isWS)
		v := scanVariable(s[j:])
		if v < 0 {
			return n
		}
		n = j + v
	}
}

func scanFormatters(s string) int {
	n := 0
	for n < len(s) && s[n] == '|' {
		if n+1 >= len(s) || !isLetter(s[n+1]) {
			break
		}
		j := skip(s, n+2, func(c byte) bool { return isLetter(c) || isDigit(c) || c == '_' || c == '-' })
		if j < len(s) && (s[j] == ' ' || s[j] == ':') {
			j = skip(s, j+1, func(c byte) bool { return c != '|' })
		}
		n = j
	}
	if n == 0 {
		return -1
	}
	return n
}

func scanFilePath(s string) int {
	if len(s) == 0 || !(isLetter(s[0]) || isDigit(s[0]) || s[0] == '_' || s[0] == '.') {
		return -1
	}
	return skip(s, 1, func(c byte) bool {
		return isLetter(c) || isDigit(c) || c == '_' || c == '.' || c == '/' || c == '-'
	})
}
