package expr

import (
	"strconv"

	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/node"
)

// TokenType classifies a token.
type TokenType uint8

const (
	TokenNumber TokenType = iota
	TokenString
	TokenBoolean
	TokenNull
	TokenVariable
	TokenCall
	TokenOperator
	TokenArgs // marks the start of a call's arguments in RPN
)

// Op identifies an operator or punctuation token.
type Op uint8

const (
	OpNone Op = iota

	// Unary
	OpPlus
	OpMinus
	OpNot
	OpBitNot

	// Binary
	OpPow
	OpMul
	OpDiv
	OpMod
	OpAdd
	OpSub
	OpShl
	OpShr
	OpLT
	OpLE
	OpGT
	OpGE
	OpEq
	OpNe
	OpSeq
	OpSne
	OpBitAnd
	OpBitXor
	OpBitOr
	OpAnd
	OpOr
	OpAssign

	// Punctuation
	OpLParen
	OpRParen
	OpComma
	OpSemicolon
)

type opInfo struct {
	symbol     string
	prec       int
	rightAssoc bool
	unary      bool
}

var opTable = [...]opInfo{
	OpNone:      {"", 0, false, false},
	OpPlus:      {"+", 15, true, true},
	OpMinus:     {"-", 15, true, true},
	OpNot:       {"!", 15, true, true},
	OpBitNot:    {"~", 15, true, true},
	OpPow:       {"**", 14, true, false},
	OpMul:       {"*", 13, false, false},
	OpDiv:       {"/", 13, false, false},
	OpMod:       {"%", 13, false, false},
	OpAdd:       {"+", 12, false, false},
	OpSub:       {"-", 12, false, false},
	OpShl:       {"<<", 11, false, false},
	OpShr:       {">>", 11, false, false},
	OpLT:        {"<", 10, false, false},
	OpLE:        {"<=", 10, false, false},
	OpGT:        {">", 10, false, false},
	OpGE:        {">=", 10, false, false},
	OpEq:        {"==", 9, false, false},
	OpNe:        {"!=", 9, false, false},
	OpSeq:       {"===", 9, false, false},
	OpSne:       {"!==", 9, false, false},
	OpBitAnd:    {"&", 8, false, false},
	OpBitXor:    {"^", 7, false, false},
	OpBitOr:     {"|", 6, false, false},
	OpAnd:       {"&&", 5, false, false},
	OpOr:        {"||", 4, false, false},
	OpAssign:    {"=", 1, true, false},
	OpLParen:    {"(", 0, false, false},
	OpRParen:    {")", 0, false, false},
	OpComma:     {",", 0, false, false},
	OpSemicolon: {";", 0, false, false},
}

func (o Op) String() string {
	if int(o) < len(opTable) {
		return opTable[o].symbol
	}
	return "?"
}

// binaryOps maps operator text to its binary form, longest symbols first
// so the tokenizer can match greedily.
var binaryOps = []struct {
	text string
	op   Op
}{
	{"===", OpSeq}, {"!==", OpSne},
	{"**", OpPow}, {"==", OpEq}, {"!=", OpNe}, {"<=", OpLE}, {">=", OpGE},
	{"<<", OpShl}, {">>", OpShr}, {"&&", OpAnd}, {"||", OpOr},
	{"+", OpAdd}, {"-", OpSub}, {"*", OpMul}, {"/", OpDiv}, {"%", OpMod},
	{"&", OpBitAnd}, {"|", OpBitOr}, {"^", OpBitXor}, {"~", OpBitNot},
	{"<", OpLT}, {">", OpGT}, {"!", OpNot}, {"=", OpAssign},
	{"(", OpLParen}, {")", OpRParen}, {",", OpComma}, {";", OpSemicolon},
}

// Token is one lexical unit of an expression.
type Token struct {
	Type TokenType
	Op   Op
	Num  float64
	Str  string // string literal value, or call name
	Bool bool
	Path bytecode.Path
}

func numberToken(f float64) Token { return Token{Type: TokenNumber, Num: f} }

func opToken(op Op) Token { return Token{Type: TokenOperator, Op: op} }

// operand reports whether the token produces a value on its own.
func (t Token) operand() bool {
	switch t.Type {
	case TokenNumber, TokenString, TokenBoolean, TokenNull, TokenVariable:
		return true
	}
	return false
}

func (t Token) is(op Op) bool { return t.Type == TokenOperator && t.Op == op }

func (t Token) String() string {
	switch t.Type {
	case TokenNumber:
		return node.FormatNumber(t.Num)
	case TokenString:
		return strconv.Quote(t.Str)
	case TokenBoolean:
		return strconv.FormatBool(t.Bool)
	case TokenNull:
		return "null"
	case TokenVariable:
		return t.Path.String()
	case TokenCall:
		return t.Str + "()"
	case TokenArgs:
		return "<args>"
	}
	return t.Op.String()
}
