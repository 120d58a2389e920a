package compiler

import (
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/kr/pretty"
)

func tree(insts ...bytecode.Instruction) *bytecode.Root {
	root := bytecode.NewRoot()
	root.Block = insts
	return root
}

func path(s string) bytecode.Path { return bytecode.ParsePath(s) }

func paths(ss ...string) []bytecode.Path {
	out := make([]bytecode.Path, len(ss))
	for i, s := range ss {
		out[i] = path(s)
	}
	return out
}

func text(s string) *bytecode.Text { return &bytecode.Text{Value: s} }

func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want *bytecode.Root
	}{
		{"empty", "", tree()},
		{"text", "hello", tree(text("hello"))},
		{"variable", "a{b.c}d", tree(text("a"), &bytecode.Variable{Variables: paths("b.c")}, text("d"))},
		{"fallback candidates", "{a, b|html}", tree(&bytecode.Variable{
			Variables:  paths("a", "b"),
			Formatters: []bytecode.FormatterCall{{Name: "html"}},
		})},
		{"brace coalescing", "a{{b}}c", tree(text("a{"), &bytecode.Variable{Variables: paths("b")}, text("}c"))},
		{"section", "{.section a}{b}{.end}", tree(&bytecode.Section{
			Variable:    path("a"),
			Block:       []bytecode.Instruction{&bytecode.Variable{Variables: paths("b")}},
			Alternative: &bytecode.End{},
		})},
		{"section or", "{.section a}x{.or}y{.end}", tree(&bytecode.Section{
			Variable: path("a"),
			Block:    []bytecode.Instruction{text("x")},
			Alternative: &bytecode.OrPredicate{
				Block:       []bytecode.Instruction{text("y")},
				Alternative: &bytecode.End{},
			},
		})},
		{"repeated", "{.repeated section items}{@}{.alternates with}, {.end}", tree(&bytecode.Repeated{
			Variable:       path("items"),
			Block:          []bytecode.Instruction{&bytecode.Variable{Variables: paths("@")}},
			Alternative:    &bytecode.End{},
			AlternatesWith: []bytecode.Instruction{text(", ")},
		})},
		{"predicate chain", "{.equal? a b}1{.or plural?}2{.or}3{.end}", tree(&bytecode.Predicate{
			Name:  "equal?",
			Args:  &bytecode.Args{List: []string{"a", "b"}, Delim: " "},
			Block: []bytecode.Instruction{text("1")},
			Alternative: &bytecode.OrPredicate{
				Name:  "plural?",
				Block: []bytecode.Instruction{text("2")},
				Alternative: &bytecode.OrPredicate{
					Block:       []bytecode.Instruction{text("3")},
					Alternative: &bytecode.End{},
				},
			},
		})},
		{"if expression", "{.if a && b || c}x{.end}", tree(&bytecode.If{
			Operators:   []bytecode.Operator{bytecode.LogicalAnd, bytecode.LogicalOr},
			Variables:   paths("a", "b", "c"),
			Block:       []bytecode.Instruction{text("x")},
			Alternative: &bytecode.End{},
		})},
		{"if predicate", "{.if odd? n}x{.end}", tree(&bytecode.Predicate{
			Name:        "odd?",
			Args:        &bytecode.Args{List: []string{"n"}, Delim: " "},
			Block:       []bytecode.Instruction{text("x")},
			Alternative: &bytecode.End{},
		})},
		{"bindings", "{.var @x a|json}{.ctx @c k=a.b j=c}{.inject @i ./f.html}", tree(
			&bytecode.BindVar{Name: "@x", Variables: paths("a"), Formatters: []bytecode.FormatterCall{{Name: "json"}}},
			&bytecode.CtxVar{Name: "@c", Bindings: []bytecode.Binding{{Key: "k", Path: path("a.b")}, {Key: "j", Path: path("c")}}},
			&bytecode.Inject{Name: "@i", Path: "./f.html"},
		)},
		{"macro include", "{.macro m}x{.end}{.include m private}", tree(
			&bytecode.Macro{Name: "m", Block: []bytecode.Instruction{text("x")}},
			&bytecode.Include{Name: "m", Args: &bytecode.Args{List: []string{"private"}, Delim: " "}},
		)},
		{"eval", "{.eval @a = 1 + 2 }", tree(&bytecode.Eval{Code: "@a = 1 + 2"})},
		{"literals", "{.meta-left}{.meta-right}{.newline}{.space}{.tab}", tree(
			&bytecode.MetaLeft{}, &bytecode.MetaRight{}, &bytecode.Newline{}, &bytecode.Space{}, &bytecode.Tab{},
		)},
		{"comments", "a{# one}b{## two\nlines ##}c", tree(
			text("a"), &bytecode.Comment{Text: " one"}, text("b"),
			&bytecode.Comment{Text: " two\nlines ", Multiline: true}, text("c"),
		)},
	}
	for _, tt := range tests {
		res := Compile(tt.src)
		if !res.Complete {
			t.Errorf("%s: Compile(%q) incomplete: %v", tt.name, tt.src, res.Errors)
			continue
		}
		if !reflect.DeepEqual(res.Code, tt.want) {
			t.Errorf("%s: Compile(%q) mismatch:\n%s", tt.name, tt.src, strings.Join(pretty.Diff(tt.want, res.Code), "\n"))
		}
	}
}

// Malformed tags must come back as the exact source text.
func TestFailSoftToText(t *testing.T) {
	inputs := []string{
		"{", "}", "{}", "{ }", "{ a }", "{a b}", "{a|}", "{a|1}", "{a.}",
		"{.section}", "{.section a b}", "{.sections a}", "{.bogus x}", "{.end x}",
		"{.var x}", "{.var @x}", "{.ctx @c}", "{.ctx @c k}", "{.inject @i}",
		"{.if}", "{.if a &&}", "{.or x}", "{.equal?x}", "{.macro}", "{.eval }",
		"{a\n}", "x{y", "{.}", "{a b|html}",
	}
	for _, in := range inputs {
		res := Compile(in)
		want := tree(text(in))
		if !reflect.DeepEqual(res.Code, want) {
			t.Errorf("Compile(%q) = %# v, want plain text", in, pretty.Formatter(res.Code.Block))
		}
		if !res.Complete {
			t.Errorf("Compile(%q) errors: %v", in, res.Errors)
		}
	}
}

func TestUnclosedBlocks(t *testing.T) {
	tests := []struct {
		src  string
		name string
	}{
		{"{.section a}x", "SECTION"},
		{"{.repeated section a}x", "REPEATED"},
		{"{.if a}x", "IF"},
		{"{.equal? a}x", "PREDICATE"},
		{"{.macro m}x", "MACRO"},
		{"{.section a}{.or}x", "SECTION"},
	}
	for _, tt := range tests {
		res := Compile(tt.src)
		if res.Complete {
			t.Errorf("Compile(%q) complete, want errors", tt.src)
			continue
		}
		if len(res.Errors) != 2 {
			t.Errorf("Compile(%q) errors = %v, want 2", tt.src, res.Errors)
			continue
		}
		if msg := res.Errors[0].Message; msg != "unclosed "+tt.name {
			t.Errorf("Compile(%q) first error = %q", tt.src, msg)
		}
		if msg := res.Errors[1].Message; msg != "state EOF not reached" {
			t.Errorf("Compile(%q) last error = %q", tt.src, msg)
		}
		// The open block is still in the tree.
		if len(res.Code.Block) != 1 {
			t.Errorf("Compile(%q) dropped the unclosed block", tt.src)
		}
	}
}

func TestGrammarErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"{.end}", "END not allowed at root"},
		{"{.or}", "OR_PREDICATE not allowed at root"},
		{"{.alternates with}", "ALTERNATES_WITH not allowed at root"},
		{"{.section a}{.or}x{.or}y{.end}", "dead code"},
		{"{.equal? a}{.or}x{.or odd? b}y{.end}", "dead code"},
		{"{.macro m}{.or}{.end}", "not allowed in MACRO"},
		{"{.macro m}{.alternates with}{.end}", "not allowed in MACRO"},
		{"{.section a}{.alternates with}{.end}", "not allowed in SECTION"},
		{"{.repeated section a}{.alternates with}{.alternates with}{.end}", "duplicate ALTERNATES_WITH"},
		{"{.repeated section a}{.or}{.alternates with}{.end}", "not allowed after OR_PREDICATE"},
	}
	for _, tt := range tests {
		res := Compile(tt.src)
		if res.Complete {
			t.Errorf("Compile(%q) complete, want %q", tt.src, tt.want)
			continue
		}
		if len(res.Errors) == 0 || !strings.Contains(res.Errors[0].Message, tt.want) {
			t.Errorf("Compile(%q) errors = %v, want %q", tt.src, res.Errors, tt.want)
		}
		for _, e := range res.Errors {
			if e.Kind != "assembler" {
				t.Errorf("Compile(%q) error kind = %q", tt.src, e.Kind)
			}
		}
	}
}

func TestErrorPositions(t *testing.T) {
	res := Compile("line one\n  {.end}\n{.section a}")
	if len(res.Errors) != 3 {
		t.Fatalf("errors = %v, want 3", res.Errors)
	}
	want := [][2]int{{2, 3}, {3, 1}, {3, 13}}
	for i, e := range res.Errors {
		if e.Line != want[i][0] || e.Column != want[i][1] {
			t.Errorf("error %d (%s) at %d:%d, want %d:%d", i, e.Message, e.Line, e.Column, want[i][0], want[i][1])
		}
	}
}

func TestAssemblerAfterEOF(t *testing.T) {
	a := NewAssembler()
	a.Accept(&bytecode.EOF{})
	if !a.Complete() {
		t.Fatal("empty stream should be complete")
	}
	a.Accept(text("late"))
	if a.Complete() {
		t.Error("Complete() after transition from EOF")
	}
	if len(a.Errors()) != 1 || !strings.Contains(a.Errors()[0].Message, "transition from EOF") {
		t.Errorf("errors = %v", a.Errors())
	}
	if len(a.Code().Block) != 0 {
		t.Error("instruction accepted after EOF")
	}
}

func TestAssemblerMisusePanics(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic", name)
			}
		}()
		fn()
	}
	mustPanic("pop on empty stack", func() { NewAssembler().pop() })
	mustPanic("accept nil", func() { NewAssembler().Accept(nil) })
	mustPanic("accept ROOT", func() { NewAssembler().Accept(bytecode.NewRoot()) })
}

func TestRegexpMatcherCompilesIdentically(t *testing.T) {
	srcs := []string{
		"{.section a}{b|html}{.or}{.end}",
		"{.repeated section x}{@index}{.alternates with}, {.end}",
		"{.if a || b}{.var @v c}{.end}{.ctx @c k=a}{ bad }",
	}
	for _, src := range srcs {
		fast := Compile(src)
		asm := NewAssembler()
		newParser(src, asm, NewRegexpMatcher(src)).Parse()
		if !reflect.DeepEqual(fast.Code, asm.Code()) {
			t.Errorf("matchers disagree on %q:\n%s", src, strings.Join(pretty.Diff(fast.Code, asm.Code()), "\n"))
		}
	}
}

func FuzzCompile(f *testing.F) {
	for _, s := range []string{
		"", "{", "{.section a}{b}{.end}", "{.repeated section a}{.alternates with}{.or}{.end}",
		"{## x ##}", "{.if a && b}{.or}{.end}", "{a|truncate 3 ...|html}", "{{}}",
	} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, src string) {
		res := Compile(src)
		if res.Code == nil {
			t.Fatal("nil code")
		}
		if res.Complete != (len(res.Errors) == 0) {
			t.Fatalf("Complete=%v with %d errors", res.Complete, len(res.Errors))
		}
	})
}
