package expr

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
	"github.com/chazu/stencil/pkg/node"
	"github.com/kr/pretty"
)

// testContext resolves @-names from vars and everything else from data.
type testContext struct {
	data   node.Node
	vars   map[string]node.Node
	errors []diag.Error
}

func newTestContext(data any) *testContext {
	return &testContext{data: node.New(data), vars: map[string]node.Node{}}
}

func (c *testContext) Resolve(path bytecode.Path) node.Node {
	if len(path) == 0 {
		return node.Missing
	}
	cur := c.data
	rest := path
	if first := path[0]; !first.IsIndex && strings.HasPrefix(first.Key, "@") {
		v, ok := c.vars[first.Key]
		if !ok {
			return node.Missing
		}
		cur, rest = v, path[1:]
	}
	for _, seg := range rest {
		if seg.IsIndex {
			cur = cur.Index(seg.Index)
		} else {
			cur = cur.Key(seg.Key)
		}
		if cur.IsMissing() {
			return cur
		}
	}
	return cur
}

func (c *testContext) SetVar(name string, v node.Node) { c.vars[name] = v }
func (c *testContext) AddError(err diag.Error)        { c.errors = append(c.errors, err) }
func (c *testContext) ErrorCount() int                { return len(c.errors) }

func TestReduce(t *testing.T) {
	data := map[string]any{
		"a":     map[string]any{"b": 2.0},
		"list":  []any{10.0, 20.0},
		"name":  "Ada",
		"empty": "",
	}
	tests := []struct {
		src  string
		want node.Node
	}{
		{"1 + 2 * 3", node.Number(7)},
		{"(1 + 2) * 3", node.Number(9)},
		{"2 ** 3 ** 2", node.Number(512)},
		{"-2 + 5", node.Number(3)},
		{"7 % 4", node.Number(3)},
		{"10 - 4 - 3", node.Number(3)},
		{"1 / 0", node.Number(math.Inf(1))},
		{"'a' + 1", node.String("a1")},
		{"1 + '2'", node.String("12")},
		{"'3' * '4'", node.Number(12)},
		{"1 < 2", node.Bool(true)},
		{"'b' > 'a'", node.Bool(true)},
		{"2 >= 3", node.Bool(false)},
		{"1 == '1'", node.Bool(true)},
		{"1 === '1'", node.Bool(false)},
		{"1 !== 2", node.Bool(true)},
		{"null == @nothing", node.Bool(true)},
		{"0 || 'x'", node.String("x")},
		{"1 && 0", node.Number(0)},
		{"!0", node.Bool(true)},
		{"~5", node.Number(-6)},
		{"1 << 4", node.Number(16)},
		{"-16 >> 2", node.Number(-4)},
		{"5 & 3", node.Number(1)},
		{"5 | 3", node.Number(7)},
		{"5 ^ 3", node.Number(6)},
		{"max(1, 5, 3)", node.Number(5)},
		{"min(4, 'x', 2)", node.Number(2)},
		{"abs(-3)", node.Number(3)},
		{"num('12')", node.Number(12)},
		{"str(12) + 1", node.String("121")},
		{"bool('')", node.Bool(false)},
		{"max(1, min(8, 3))", node.Number(3)},
		{"0x1f", node.Number(31)},
		{"1e3", node.Number(1000)},
		{"PI > 3", node.Bool(true)},
		{`'\x41B'`, node.String("AB")},
		{`"it\'s"`, node.String("it's")},
		{"a.b + 1", node.Number(3)},
		{"list.1", node.Number(20)},
		{"'hi ' + name", node.String("hi Ada")},
		{"empty || 'none'", node.String("none")},
	}
	for _, tt := range tests {
		ctx := newTestContext(data)
		e := New(tt.src, Options{})
		if errs := e.Errors(); len(errs) > 0 {
			t.Errorf("New(%q) errors: %v", tt.src, diag.Messages(errs))
			continue
		}
		got, ok := e.Reduce(ctx)
		if !ok {
			t.Errorf("Reduce(%q) produced no value; errors %v", tt.src, diag.Messages(ctx.errors))
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Reduce(%q) = %# v, want %# v", tt.src, pretty.Formatter(got), pretty.Formatter(tt.want))
		}
	}
}

func TestReduceStatements(t *testing.T) {
	ctx := newTestContext(nil)
	got, ok := New("@a = 6; @b = 2 * @a; @b / 3", Options{}).Reduce(ctx)
	if !ok || !reflect.DeepEqual(got, node.Number(4)) {
		t.Fatalf("Reduce = %v, %v, want 4, true", got, ok)
	}
	wantVars := map[string]node.Node{"@a": node.Number(6), "@b": node.Number(12)}
	if !reflect.DeepEqual(ctx.vars, wantVars) {
		t.Errorf("vars: %v", pretty.Diff(ctx.vars, wantVars))
	}
}

func TestReduceNoValue(t *testing.T) {
	for _, src := range []string{"", " ; ;", "@x = 1", "1; @y = 2"} {
		ctx := newTestContext(nil)
		if v, ok := New(src, Options{}).Reduce(ctx); ok {
			t.Errorf("Reduce(%q) = %v, want no value", src, v)
		}
		if len(ctx.errors) != 0 {
			t.Errorf("Reduce(%q) errors: %v", src, diag.Messages(ctx.errors))
		}
	}
}

func TestReduceRuntimeErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"foo(1)", "unknown function foo()"},
		{"1 = 2", "invalid assignment target"},
		{"a.b = 1", "invalid assignment target"},
		{"@a.b = 1", "invalid assignment target"},
		{"max('x')", "max() has no numeric argument"},
		{"min()", "min() requires at least one argument"},
	}
	for _, tt := range tests {
		ctx := newTestContext(nil)
		e := New(tt.src, Options{})
		if errs := e.Errors(); len(errs) > 0 {
			t.Errorf("New(%q) errors: %v", tt.src, diag.Messages(errs))
			continue
		}
		if _, ok := e.Reduce(ctx); ok {
			t.Errorf("Reduce(%q) produced a value, want error", tt.src)
		}
		if len(ctx.errors) != 1 || ctx.errors[0].Message != tt.want {
			t.Errorf("Reduce(%q) errors = %q, want [%q]", tt.src, diag.Messages(ctx.errors), tt.want)
			continue
		}
		if ctx.errors[0].Kind != diag.Expression {
			t.Errorf("Reduce(%q) error kind = %v", tt.src, ctx.errors[0].Kind)
		}
	}
}

func TestRuntimeErrorAbortsOneStatement(t *testing.T) {
	ctx := newTestContext(nil)
	got, ok := New("foo(1); 2", Options{}).Reduce(ctx)
	if !ok || !reflect.DeepEqual(got, node.Number(2)) {
		t.Errorf("Reduce = %v, %v, want 2, true", got, ok)
	}
	if len(ctx.errors) != 1 {
		t.Errorf("errors = %v, want 1", diag.Messages(ctx.errors))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 +", "syntax error near +"},
		{"1 2", "syntax error"},
		{"(1", "mismatched '('"},
		{"max(1", "mismatched '('"},
		{"1)", "mismatched ')'"},
		{"1, 2", "unexpected ',' outside a call"},
		{"'abc", "unterminated string at offset 0"},
		{`'abc\`, "unterminated string at offset 0"},
		{"'a\nb'", "line break in string at offset 2"},
		{"12ab", "invalid number at offset 2"},
		{"1..2", "duplicate decimal point at offset 2"},
		{"1e", "incomplete exponent at offset 0"},
		{"1e5.2", "decimal point in exponent at offset 3"},
		{"0x", "incomplete hex literal at offset 0"},
		{"#", `unexpected character '#' at offset 0`},
		{"1 +\x01 2", `control character '\x01' at offset 3`},
	}
	for _, tt := range tests {
		e := New(tt.src, Options{})
		errs := e.Errors()
		if len(errs) != 1 || errs[0].Message != tt.want {
			t.Errorf("New(%q) errors = %q, want [%q]", tt.src, diag.Messages(errs), tt.want)
		}
		if v, ok := e.Reduce(newTestContext(nil)); ok {
			t.Errorf("Reduce(%q) = %v after parse error", tt.src, v)
		}
	}
}

func TestMaxTokens(t *testing.T) {
	e := New("1 + 1 + 1", Options{MaxTokens: 3})
	errs := e.Errors()
	if len(errs) != 1 || errs[0].Message != "expression exceeds maximum of 3 tokens" {
		t.Errorf("errors = %q", diag.Messages(errs))
	}
	if errs := New("1 + 1", Options{MaxTokens: 3}).Errors(); len(errs) != 0 {
		t.Errorf("3 tokens rejected: %q", diag.Messages(errs))
	}
}

func TestMaxStringLength(t *testing.T) {
	ctx := newTestContext(nil)
	_, ok := New("'abc' + 'def'", Options{MaxStringLength: 5}).Reduce(ctx)
	if ok || len(ctx.errors) != 1 || ctx.errors[0].Message != "string exceeds maximum length of 5" {
		t.Errorf("ok = %v, errors = %q", ok, diag.Messages(ctx.errors))
	}
}

func TestWithLimits(t *testing.T) {
	e := New("'abc' + 'def'", Options{MaxStringLength: 100})
	ctx := newTestContext(nil)
	if v, ok := e.Reduce(ctx); !ok || v.AsString() != "abcdef" {
		t.Errorf("Reduce = %v, %v, want abcdef", v.Value(), ok)
	}
	if _, ok := e.WithLimits(Options{MaxStringLength: 5}).Reduce(ctx); ok {
		t.Errorf("WithLimits(5).Reduce produced a value, want error")
	}
	if len(ctx.errors) != 1 || ctx.errors[0].Message != "string exceeds maximum length of 5" {
		t.Errorf("errors = %q", diag.Messages(ctx.errors))
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1+-2", "1 + - 2"},
		{"-(1)", "- ( 1 )"},
		{"a.b.0 === @c", "a.b.0 === @c"},
		{"max(1,2)", "max() ( 1 , 2 )"},
		{"true && null", "true && null"},
		{"x=1;y", "x = 1 ; y"},
		{"'q' != \"r\"", `"q" != "r"`},
		{".5 * 2.", "0.5 * 2"},
	}
	for _, tt := range tests {
		toks, err := tokenize(tt.src, 0)
		if err != nil {
			t.Errorf("tokenize(%q) error: %v", tt.src, err)
			continue
		}
		parts := make([]string, len(toks))
		for i, tok := range toks {
			parts[i] = tok.String()
		}
		if got := strings.Join(parts, " "); got != tt.want {
			t.Errorf("tokenize(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestEscapes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`'a\nb'`, "a\nb"},
		{`'\t\r\b\f\v'`, "\t\r\b\f\v"},
		{`'\0'`, "\x00"},
		{`'\x4'`, " "},
		{`'é'`, "é"},
		{`'\U01F600'`, "\U0001F600"},
		{`'\U110000'`, " "},
		{`'\q'`, "q"},
		{`'\\'`, `\`},
		{`"\""`, `"`},
	}
	for _, tt := range tests {
		toks, err := tokenize(tt.src, 0)
		if err != nil || len(toks) != 1 || toks[0].Type != TokenString {
			t.Errorf("tokenize(%q) = %v, %v", tt.src, toks, err)
			continue
		}
		if toks[0].Str != tt.want {
			t.Errorf("tokenize(%q) = %q, want %q", tt.src, toks[0].Str, tt.want)
		}
	}
}

func TestBuildRPN(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"1 + 2 * 3", []string{"1 2 3 * +"}},
		{"(1 + 2) * 3", []string{"1 2 + 3 *"}},
		{"2 ** 3 ** 2", []string{"2 3 2 ** **"}},
		{"-a + 1", []string{"a - 1 +"}},
		{"@a = @b = 1", []string{"@a @b 1 = ="}},
		{"max(1, 2 + 3)", []string{"<args> 1 2 3 + max()"}},
		{"1; 2", []string{"1", "2"}},
	}
	for _, tt := range tests {
		e := New(tt.src, Options{})
		if errs := e.Errors(); len(errs) > 0 {
			t.Errorf("New(%q) errors: %v", tt.src, diag.Messages(errs))
			continue
		}
		var got []string
		for _, stmt := range e.Statements() {
			parts := make([]string, len(stmt))
			for i, tok := range stmt {
				parts[i] = tok.String()
			}
			got = append(got, strings.Join(parts, " "))
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("RPN(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestTrace(t *testing.T) {
	ctx := newTestContext(nil)
	got := New("@x = 2; @x * 3; 'a'; foo(1)", Options{}).Trace(ctx)
	want := "@x 2 = => (no value)\n" +
		"@x 3 * => 6\n" +
		`"a" => "a"` + "\n" +
		"<args> 1 foo() => error\n"
	if got != want {
		t.Errorf("Trace:\n%s\nwant:\n%s", got, want)
	}
}

func TestEvalReportsParseErrors(t *testing.T) {
	ctx := newTestContext(nil)
	if _, ok := Eval("1 +", Options{}, ctx); ok {
		t.Error("Eval produced a value")
	}
	if len(ctx.errors) != 1 {
		t.Errorf("errors = %q", diag.Messages(ctx.errors))
	}
}

func FuzzExpr(f *testing.F) {
	for _, seed := range []string{
		"1 + 2 * 3",
		"@a = 6; @b = 2 * @a; @b / 3",
		"max(1, min(2, 3)) ** -1",
		"'a' + \"b\\u0041\" == 'abA'",
		"((1)",
		"~!-+a.b.0",
		"0x10 << 33 >> 1",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, src string) {
		e := New(src, Options{MaxTokens: 200})
		ctx := newTestContext(map[string]any{"a": map[string]any{"b": []any{1.0}}})
		e.Reduce(ctx)
		e.Trace(ctx)
	})
}
