// Package node wraps JSON-like values for the template engine.
//
// A Node pairs a value (nil, bool, float64, string, []any or map[string]any)
// with a cached type classification. The Missing sentinel stands for an
// unresolved or type-invalid access: it is falsy, renders as the empty
// string and short-circuits every operation that touches it.
package node

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Type classifies the value held by a Node.
type Type uint8

const (
	MissingType Type = iota
	NullType
	BooleanType
	NumberType
	StringType
	ArrayType
	ObjectType
)

var typeNames = [...]string{
	MissingType: "missing",
	NullType:    "null",
	BooleanType: "boolean",
	NumberType:  "number",
	StringType:  "string",
	ArrayType:   "array",
	ObjectType:  "object",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// Node is an immutable value wrapper.
type Node struct {
	value any
	typ   Type
}

// Missing is the sentinel for values that could not be resolved.
var Missing = Node{typ: MissingType}

// Null is the JSON null value.
var Null = Node{typ: NullType}

// New wraps v, normalizing Go numeric kinds to float64 and arbitrary slices
// and string-keyed maps to []any and map[string]any. Values that have no
// JSON-like shape wrap as Missing.
func New(v any) Node {
	switch x := v.(type) {
	case nil:
		return Null
	case Node:
		return x
	case bool:
		return Node{value: x, typ: BooleanType}
	case string:
		return Node{value: x, typ: StringType}
	case float64:
		return Node{value: x, typ: NumberType}
	case float32:
		return Node{value: float64(x), typ: NumberType}
	case int:
		return Node{value: float64(x), typ: NumberType}
	case int8:
		return Node{value: float64(x), typ: NumberType}
	case int16:
		return Node{value: float64(x), typ: NumberType}
	case int32:
		return Node{value: float64(x), typ: NumberType}
	case int64:
		return Node{value: float64(x), typ: NumberType}
	case uint:
		return Node{value: float64(x), typ: NumberType}
	case uint8:
		return Node{value: float64(x), typ: NumberType}
	case uint16:
		return Node{value: float64(x), typ: NumberType}
	case uint32:
		return Node{value: float64(x), typ: NumberType}
	case uint64:
		return Node{value: float64(x), typ: NumberType}
	case interface{ Float64() (float64, error) }:
		// encoding/json.Number
		f, err := x.Float64()
		if err != nil {
			return Missing
		}
		return Node{value: f, typ: NumberType}
	case []any:
		return Node{value: x, typ: ArrayType}
	case map[string]any:
		return Node{value: x, typ: ObjectType}
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) Node {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null
		}
		return New(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return Node{value: out, typ: ArrayType}
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key()
			if k.Kind() != reflect.String {
				return Missing
			}
			out[k.String()] = iter.Value().Interface()
		}
		return Node{value: out, typ: ObjectType}
	}
	return Missing
}

// Number wraps f.
func Number(f float64) Node { return Node{value: f, typ: NumberType} }

// String wraps s.
func String(s string) Node { return Node{value: s, typ: StringType} }

// Bool wraps b.
func Bool(b bool) Node { return Node{value: b, typ: BooleanType} }

// Type returns the cached classification.
func (n Node) Type() Type { return n.typ }

// Value returns the wrapped value; nil for Null and Missing.
func (n Node) Value() any { return n.value }

func (n Node) IsMissing() bool { return n.typ == MissingType }
func (n Node) IsNull() bool    { return n.typ == NullType }

// AsNumber returns the number held by n, or 0 when n is not a number.
func (n Node) AsNumber() float64 {
	f, _ := n.value.(float64)
	return f
}

// AsString returns the string held by n, or "" when n is not a string.
func (n Node) AsString() string {
	s, _ := n.value.(string)
	return s
}

// AsBool returns the boolean held by n, or false when n is not a boolean.
func (n Node) AsBool() bool {
	b, _ := n.value.(bool)
	return b
}

// Array returns the elements of an array node.
func (n Node) Array() []any {
	a, _ := n.value.([]any)
	return a
}

// Object returns the members of an object node.
func (n Node) Object() map[string]any {
	m, _ := n.value.(map[string]any)
	return m
}

// Len returns the number of elements of an array or object, the byte
// length of a string, and 0 otherwise.
func (n Node) Len() int {
	switch n.typ {
	case ArrayType:
		return len(n.Array())
	case ObjectType:
		return len(n.Object())
	case StringType:
		return len(n.AsString())
	}
	return 0
}

// Key looks up a member by name. On arrays the key is coerced to an index
// when it is a non-negative decimal integer.
func (n Node) Key(k string) Node {
	switch n.typ {
	case ObjectType:
		v, ok := n.Object()[k]
		if !ok {
			return Missing
		}
		return New(v)
	case ArrayType:
		i, ok := parseIndex(k)
		if !ok {
			return Missing
		}
		return n.Index(i)
	}
	return Missing
}

// Has reports whether an object node has a member named k.
func (n Node) Has(k string) bool {
	if n.typ != ObjectType {
		return false
	}
	_, ok := n.Object()[k]
	return ok
}

// Index returns the i-th element of an array node. Objects are indexed by
// the decimal form of i.
func (n Node) Index(i int) Node {
	switch n.typ {
	case ArrayType:
		a := n.Array()
		if i < 0 || i >= len(a) {
			return Missing
		}
		return New(a[i])
	case ObjectType:
		return n.Key(strconv.Itoa(i))
	}
	return Missing
}

func parseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Truthy implements template truthiness: missing, null, false, zero, NaN,
// the empty string, and empty arrays and objects are false.
func (n Node) Truthy() bool {
	switch n.typ {
	case BooleanType:
		return n.AsBool()
	case NumberType:
		f := n.AsNumber()
		return f != 0 && !math.IsNaN(f)
	case StringType:
		return n.AsString() != ""
	case ArrayType, ObjectType:
		return n.Len() > 0
	}
	return false
}

// String renders n as template output text.
func (n Node) String() string {
	switch n.typ {
	case BooleanType:
		return strconv.FormatBool(n.AsBool())
	case NumberType:
		return FormatNumber(n.AsNumber())
	case StringType:
		return n.AsString()
	case ArrayType:
		return renderArray(n.Array())
	}
	// Objects, null and missing render empty.
	return ""
}

func renderArray(a []any) string {
	var b strings.Builder
	for i, v := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		e := New(v)
		if e.IsNull() {
			b.WriteString("null")
			continue
		}
		b.WriteString(e.String())
	}
	return b.String()
}

// FormatNumber renders f as the shortest decimal that round-trips, with no
// trailing ".0" on integral values. Magnitudes of 1e21 and above use an
// exponent.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
