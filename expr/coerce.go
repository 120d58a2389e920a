package expr

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/chazu/stencil/pkg/node"
)

// Conversions follow the usual dynamic-language rules so expressions
// behave the way template authors expect from script code. Missing plays
// the role of undefined.

func toNumber(n node.Node) float64 {
	switch n.Type() {
	case node.NumberType:
		return n.AsNumber()
	case node.BooleanType:
		if n.AsBool() {
			return 1
		}
		return 0
	case node.NullType:
		return 0
	case node.StringType:
		return stringToNumber(n.AsString())
	case node.ArrayType:
		return stringToNumber(n.String())
	}
	return math.NaN()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(v)
	}
	// ParseFloat accepts forms ("inf", "0x1p3", "1_0") that scripts do not.
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(isDigit(c) || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-') {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !isRangeErr(err) {
		return math.NaN()
	}
	return f
}

func toString(n node.Node) string {
	switch n.Type() {
	case node.NullType:
		return "null"
	case node.ObjectType:
		return "[object Object]"
	}
	return n.String()
}

func truthy(n node.Node) bool {
	switch n.Type() {
	case node.ArrayType, node.ObjectType:
		return true
	}
	return n.Truthy()
}

func toInt32(n node.Node) int32 {
	f := toNumber(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Mod(math.Trunc(f), 1<<32)
	if f < 0 {
		f += 1 << 32
	}
	return int32(uint32(f))
}

func isPrimitive(n node.Node) bool {
	switch n.Type() {
	case node.ArrayType, node.ObjectType:
		return false
	}
	return true
}

// toPrimitive converts containers to their string form.
func toPrimitive(n node.Node) node.Node {
	if isPrimitive(n) {
		return n
	}
	return node.String(toString(n))
}

func strictEquals(a, b node.Node) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch a.Type() {
	case node.MissingType, node.NullType:
		return true
	case node.NumberType:
		return a.AsNumber() == b.AsNumber()
	case node.StringType:
		return a.AsString() == b.AsString()
	case node.BooleanType:
		return a.AsBool() == b.AsBool()
	}
	return reflect.DeepEqual(a.Value(), b.Value())
}

func looseEquals(a, b node.Node) bool {
	ta, tb := a.Type(), b.Type()
	if ta == tb {
		return strictEquals(a, b)
	}
	nullish := func(t node.Type) bool { return t == node.NullType || t == node.MissingType }
	switch {
	case nullish(ta) || nullish(tb):
		return nullish(ta) && nullish(tb)
	case ta == node.BooleanType:
		return looseEquals(node.Number(toNumber(a)), b)
	case tb == node.BooleanType:
		return looseEquals(a, node.Number(toNumber(b)))
	case ta == node.NumberType && tb == node.StringType,
		ta == node.StringType && tb == node.NumberType:
		return toNumber(a) == toNumber(b)
	case !isPrimitive(a) && isPrimitive(b):
		return looseEquals(toPrimitive(a), b)
	case isPrimitive(a) && !isPrimitive(b):
		return looseEquals(a, toPrimitive(b))
	}
	return false
}

// compare casts b to a's type and reports the ordering test op. Null,
// missing and containers on the left always compare false.
func compare(op Op, a, b node.Node) bool {
	switch a.Type() {
	case node.NumberType, node.BooleanType:
		x, y := toNumber(a), toNumber(b)
		if math.IsNaN(x) || math.IsNaN(y) {
			return false
		}
		return ordered(op, x < y, x == y)
	case node.StringType:
		x, y := a.AsString(), toString(b)
		return ordered(op, x < y, x == y)
	}
	return false
}

func ordered(op Op, less, equal bool) bool {
	switch op {
	case OpLT:
		return less
	case OpLE:
		return less || equal
	case OpGT:
		return !less && !equal
	case OpGE:
		return !less
	}
	return false
}
