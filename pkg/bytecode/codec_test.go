package bytecode

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kr/pretty"
)

// sampleTree exercises every opcode with operands.
func sampleTree() *Root {
	root := NewRoot()
	root.Block = []Instruction{
		&Text{Value: "hello <b>"},
		&Variable{
			Variables:  []Path{{Key("a"), Index(0)}, {Key("b")}},
			Formatters: []FormatterCall{{Name: "html"}, {Name: "truncate", Args: &Args{List: []string{"10", "..."}, Delim: " "}}},
		},
		&Section{
			Variable:    Path{Key("a")},
			Block:       []Instruction{&Variable{Variables: []Path{{Key("b")}}}},
			Alternative: &OrPredicate{Block: []Instruction{&Text{Value: "none"}}, Alternative: &End{}},
		},
		&Repeated{
			Variable:       Path{Key("items")},
			Block:          []Instruction{&Variable{Variables: []Path{{Key("@")}}}},
			Alternative:    &End{},
			AlternatesWith: []Instruction{&Text{Value: ", "}},
		},
		&Predicate{
			Name:  "equal?",
			Args:  &Args{List: []string{"a", "b"}, Delim: " "},
			Block: []Instruction{&Newline{}},
			Alternative: &OrPredicate{
				Name:        "plural?",
				Block:       []Instruction{&Space{}},
				Alternative: &End{},
			},
		},
		&If{
			Operators:   []Operator{LogicalAnd, LogicalOr},
			Variables:   []Path{{Key("a")}, {Key("b")}, {Key("c")}},
			Block:       []Instruction{&Tab{}},
			Alternative: &End{},
		},
		&BindVar{Name: "@x", Variables: []Path{{Key("a")}}, Formatters: []FormatterCall{{Name: "json"}}},
		&CtxVar{Name: "@c", Bindings: []Binding{{Key: "k", Path: Path{Key("a"), Key("b")}}}},
		&Inject{Name: "@i", Path: "./foo.html", Args: &Args{List: []string{"x"}, Delim: " "}},
		&Macro{Name: "m", Block: []Instruction{&MetaLeft{}, &MetaRight{}}},
		&Include{Name: "m", Args: &Args{List: []string{"private"}, Delim: " "}},
		&Comment{Text: " note ", Multiline: true},
		&Eval{Code: "1 + 2"},
		&Atom{Value: map[string]any{"k": "v"}},
		&Struct{Value: "s", Block: []Instruction{&Text{Value: "in"}}},
	}
	return root
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	root := sampleTree()
	data, err := Encode(root)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, root) {
		t.Errorf("round trip mismatch:\n%s", strings.Join(pretty.Diff(root, got), "\n"))
	}
}

func TestPrettyRoundTrip(t *testing.T) {
	root := sampleTree()
	out := Pretty(root)
	got, err := Decode([]byte(out))
	if err != nil {
		t.Fatalf("Decode(Pretty): %v\n%s", err, out)
	}
	if !reflect.DeepEqual(got, root) {
		t.Errorf("pretty round trip mismatch:\n%s", strings.Join(pretty.Diff(root, got), "\n"))
	}
}

func TestPrettyLayout(t *testing.T) {
	root := NewRoot()
	root.Block = []Instruction{
		&Text{Value: "a<b"},
		&Section{Variable: Path{Key("x")}, Block: []Instruction{&Text{Value: "y"}}, Alternative: &End{}},
	}
	want := `[17, 1, [
  [0,"a<b"],
  [2, ["x"], [
    [0,"y"]
  ], [3]]
], [18]]
`
	if got := Pretty(root); got != want {
		t.Errorf("Pretty() =\n%s\nwant\n%s", got, want)
	}
	if got := Pretty(NewRoot()); got != "[17, 1, [], [18]]\n" {
		t.Errorf("Pretty(empty) = %q", got)
	}
}

func TestCBORRoundTrip(t *testing.T) {
	root := sampleTree()
	data, err := MarshalCBOR(root)
	if err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	again, err := MarshalCBOR(root)
	if err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	if string(data) != string(again) {
		t.Error("canonical encoding is not deterministic")
	}
	got, err := UnmarshalCBOR(data)
	if err != nil {
		t.Fatalf("UnmarshalCBOR: %v", err)
	}
	if !reflect.DeepEqual(got, root) {
		t.Errorf("cbor round trip mismatch:\n%s", strings.Join(pretty.Diff(root, got), "\n"))
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `[17, 1,`},
		{"not array", `{"a":1}`},
		{"empty", `[]`},
		{"bad opcode", `[99]`},
		{"not root", `[0, "x"]`},
		{"missing eof", `[17, 1, []]`},
		{"wrong terminator", `[17, 1, [], [3]]`},
		{"text operand", `[17, 1, [[0, 5]], [18]]`},
		{"bad alternative", `[17, 1, [[2, ["a"], [], [0, "x"]]], [18]]`},
		{"bad path segment", `[17, 1, [[2, [true], [], [3]]], [18]]`},
		{"bad args", `[17, 1, [[24, "m", ["x"]]], [18]]`},
		{"bad if operator", `[17, 1, [[8, [2], [["a"]], [], [3]]], [18]]`},
	}
	for _, tt := range tests {
		if _, err := Decode([]byte(tt.in)); err == nil {
			t.Errorf("%s: Decode(%s) succeeded, want error", tt.name, tt.in)
		}
	}
}

func TestRootJSONMarshaler(t *testing.T) {
	root := NewRoot()
	root.Block = []Instruction{&Text{Value: "x"}}
	data, err := root.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[17,1,[[0,"x"]],[18]]` {
		t.Errorf("MarshalJSON = %s", data)
	}
	var back Root
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if len(back.Block) != 1 {
		t.Errorf("UnmarshalJSON block = %v", back.Block)
	}
}

func TestWalk(t *testing.T) {
	var ops []Opcode
	Walk(sampleTree(), func(inst Instruction) bool {
		ops = append(ops, inst.Opcode())
		return inst.Opcode() != OpMacro
	})
	counts := map[Opcode]int{}
	for _, op := range ops {
		counts[op]++
	}
	if counts[OpRoot] != 1 {
		t.Errorf("ROOT visited %d times", counts[OpRoot])
	}
	if counts[OpMetaLeft] != 0 {
		t.Error("Walk descended into MACRO although fn returned false")
	}
	if counts[OpOrPredicate] != 2 {
		t.Errorf("OR_PREDICATE visited %d times, want 2", counts[OpOrPredicate])
	}
	// Section, Repeated, If and the nested or-chain end.
	if counts[OpEnd] != 4 {
		t.Errorf("END visited %d times, want 4", counts[OpEnd])
	}
}
