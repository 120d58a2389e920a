package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/stencil/pkg/bytecode"
)

var constants = map[string]Token{
	"PI":       numberToken(math.Pi),
	"E":        numberToken(math.E),
	"Infinity": numberToken(math.Inf(1)),
	"NaN":      numberToken(math.NaN()),
	"true":     {Type: TokenBoolean, Bool: true},
	"false":    {Type: TokenBoolean, Bool: false},
	"null":     {Type: TokenNull},
}

type tokenizer struct {
	src    string
	pos    int
	tokens []Token
}

// tokenize scans src into a flat token list. The first lexical error
// aborts the scan.
func tokenize(src string, maxTokens int) ([]Token, error) {
	t := &tokenizer{src: src}
	for {
		t.skipSpace()
		if t.pos >= len(src) {
			return t.tokens, nil
		}
		if err := t.next(); err != nil {
			return nil, err
		}
		if maxTokens > 0 && len(t.tokens) > maxTokens {
			return nil, fmt.Errorf("expression exceeds maximum of %d tokens", maxTokens)
		}
	}
}

func (t *tokenizer) skipSpace() {
	for t.pos < len(t.src) {
		switch t.src[t.pos] {
		case ' ', '\t', '\n', '\r':
			t.pos++
		default:
			return
		}
	}
}

func (t *tokenizer) emit(tok Token) { t.tokens = append(t.tokens, tok) }

// prefixPosition reports whether an operator here would be unary: at the
// start, or after another operator, '(' or a separator.
func (t *tokenizer) prefixPosition() bool {
	if len(t.tokens) == 0 {
		return true
	}
	prev := t.tokens[len(t.tokens)-1]
	if prev.Type == TokenOperator {
		return prev.Op != OpRParen
	}
	return prev.Type == TokenCall
}

func (t *tokenizer) next() error {
	c := t.src[t.pos]
	switch {
	case c == '"' || c == '\'':
		return t.quoted(c)
	case isDigit(c) || (c == '.' && t.pos+1 < len(t.src) && isDigit(t.src[t.pos+1])):
		return t.number()
	case c == '@' || isIdentStart(c):
		return t.identifier()
	case c < 0x20 || c == 0x7f:
		return fmt.Errorf("control character %q at offset %d", c, t.pos)
	}

	for _, o := range binaryOps {
		if strings.HasPrefix(t.src[t.pos:], o.text) {
			op := o.op
			if t.prefixPosition() {
				switch op {
				case OpAdd:
					op = OpPlus
				case OpSub:
					op = OpMinus
				}
			}
			t.pos += len(o.text)
			t.emit(opToken(op))
			return nil
		}
	}
	r, _ := utf8.DecodeRuneInString(t.src[t.pos:])
	return fmt.Errorf("unexpected character %q at offset %d", r, t.pos)
}

func (t *tokenizer) number() error {
	src, start := t.src, t.pos
	i := start
	if src[i] == '0' && i+1 < len(src) && (src[i+1] == 'x' || src[i+1] == 'X') {
		i += 2
		var v float64
		for i < len(src) && isHex(src[i]) {
			v = v*16 + float64(hexVal(src[i]))
			i++
		}
		if i == start+2 {
			return fmt.Errorf("incomplete hex literal at offset %d", start)
		}
		t.pos = i
		t.emit(numberToken(v))
		return t.checkNumberEnd()
	}

	seenDot, seenExp := false, false
loop:
	for i < len(src) {
		switch c := src[i]; {
		case isDigit(c):
			i++
		case c == '.':
			if seenExp {
				return fmt.Errorf("decimal point in exponent at offset %d", i)
			}
			if seenDot {
				return fmt.Errorf("duplicate decimal point at offset %d", i)
			}
			seenDot = true
			i++
		case c == 'e' || c == 'E':
			if seenExp {
				break loop
			}
			seenExp = true
			i++
			if i < len(src) && (src[i] == '+' || src[i] == '-') {
				i++
			}
			if i >= len(src) || !isDigit(src[i]) {
				return fmt.Errorf("incomplete exponent at offset %d", start)
			}
		default:
			break loop
		}
	}
	f, err := strconv.ParseFloat(src[start:i], 64)
	if err != nil && !isRangeErr(err) {
		return fmt.Errorf("invalid number %q", src[start:i])
	}
	t.pos = i
	t.emit(numberToken(f))
	return t.checkNumberEnd()
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// checkNumberEnd rejects literals glued to identifiers, like 12ab.
func (t *tokenizer) checkNumberEnd() error {
	if t.pos < len(t.src) && (isIdentPart(t.src[t.pos]) || t.src[t.pos] == '.') {
		return fmt.Errorf("invalid number at offset %d", t.pos)
	}
	return nil
}

func (t *tokenizer) quoted(quote byte) error {
	src, start := t.src, t.pos
	var sb strings.Builder
	i := start + 1
	for {
		if i >= len(src) {
			return fmt.Errorf("unterminated string at offset %d", start)
		}
		c := src[i]
		switch {
		case c == quote:
			t.pos = i + 1
			t.emit(Token{Type: TokenString, Str: sb.String()})
			return nil
		case c == '\n' || c == '\r':
			return fmt.Errorf("line break in string at offset %d", i)
		case c < 0x20 || c == 0x7f:
			return fmt.Errorf("control character %q in string at offset %d", c, i)
		case c == '\\':
			if i+1 >= len(src) {
				return fmt.Errorf("unterminated string at offset %d", start)
			}
			i = t.escape(&sb, i+1)
		default:
			sb.WriteByte(c)
			i++
		}
	}
}

// escape decodes the escape whose letter is at src[i] and returns the index
// after it. Malformed numeric escapes decode to a single space.
func (t *tokenizer) escape(sb *strings.Builder, i int) int {
	src := t.src
	c := src[i]
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		sb.WriteByte(0)
	case 'x', 'u', 'U':
		width := 2
		switch c {
		case 'u':
			width = 4
		case 'U':
			width = 6
		}
		j := i + 1
		var v rune
		for j < len(src) && j < i+1+width && isHex(src[j]) {
			v = v*16 + rune(hexVal(src[j]))
			j++
		}
		if j != i+1+width || !utf8.ValidRune(v) {
			sb.WriteByte(' ')
			return j
		}
		sb.WriteRune(v)
		return j
	default:
		// \\, \', \" and any other character stand for themselves.
		r, size := utf8.DecodeRuneInString(src[i:])
		sb.WriteRune(r)
		return i + size
	}
	return i + 1
}

func (t *tokenizer) identifier() error {
	src, start := t.src, t.pos
	i := start
	if src[i] == '@' {
		i++
	}
	i = skipIdent(src, i)
	for i+1 < len(src) && src[i] == '.' && (isIdentStart(src[i+1]) || isDigit(src[i+1])) {
		if isDigit(src[i+1]) {
			i = skipDigits(src, i+1)
		} else {
			i = skipIdent(src, i+1)
		}
	}
	word := src[start:i]
	t.pos = i

	if src[start] != '@' && !strings.Contains(word, ".") {
		if i < len(src) && src[i] == '(' {
			t.emit(Token{Type: TokenCall, Str: word})
			return nil
		}
		if tok, ok := constants[word]; ok {
			t.emit(tok)
			return nil
		}
	}
	t.emit(Token{Type: TokenVariable, Path: bytecode.ParsePath(word)})
	return nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isHex(c byte) bool        { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isIdentStart(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$' }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

func hexVal(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return int(c-'A') + 10
}

func skipIdent(s string, i int) int {
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return i
}

func skipDigits(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}
