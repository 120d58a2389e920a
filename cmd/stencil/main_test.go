package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/stencil/compiler"
	"github.com/chazu/stencil/pkg/bytecode"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCompile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "t.html", "{.section a}{b}{.end}")

	code, out, errOut := runCLI("compile", path)
	if code != 0 {
		t.Fatalf("compile exit %d: %s", code, errOut)
	}
	want, _ := bytecode.Encode(compiler.Compile("{.section a}{b}{.end}").Code)
	if out != string(want)+"\n" {
		t.Errorf("compile output = %q, want %q", out, want)
	}

	cborPath := filepath.Join(dir, "t.cbor")
	if code, _, errOut := runCLI("compile", "-format", "cbor", "-o", cborPath, "-cache", filepath.Join(dir, "c.db"), path); code != 0 {
		t.Fatalf("compile cbor exit %d: %s", code, errOut)
	}
	raw, err := os.ReadFile(cborPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bytecode.UnmarshalCBOR(raw); err != nil {
		t.Errorf("UnmarshalCBOR: %v", err)
	}
}

func TestCompileErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.html", "x{.section a}y")
	code, _, errOut := runCLI("compile", path)
	if code != 1 {
		t.Errorf("compile exit = %d, want 1", code)
	}
	if !strings.Contains(errOut, ":1:2: unclosed SECTION") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestPretty(t *testing.T) {
	src := "{.repeated section xs}{@}{.end}"
	path := writeFile(t, t.TempDir(), "p.html", src)
	code, out, _ := runCLI("pretty", path)
	if code != 0 {
		t.Fatalf("pretty exit %d", code)
	}
	if want := bytecode.Pretty(compiler.Compile(src).Code); out != want {
		t.Errorf("pretty = %q, want %q", out, want)
	}
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeFile(t, dir, "t.html", "{.section post}{title|html}: {n|format-number}{.end}")
	jsonData := writeFile(t, dir, "d.json", `{"post": {"title": "<hi>", "n": 1234.5}}`)
	yamlData := writeFile(t, dir, "d.yaml", "post:\n  title: <hi>\n  n: 1234.5\n")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"render", "-data", jsonData, tmpl}, "&lt;hi&gt;: 1234.50"},
		{[]string{"render", "-data", yamlData, tmpl}, "&lt;hi&gt;: 1234.50"},
		{[]string{"render", "-data", yamlData, "-locale", "de", tmpl}, "&lt;hi&gt;: 1.234,50"},
	}
	for _, tt := range tests {
		code, out, errOut := runCLI(tt.args...)
		if code != 0 || out != tt.want {
			t.Errorf("%v = %d %q (%s), want 0 %q", tt.args, code, out, errOut, tt.want)
		}
	}
}

func TestRenderExpressions(t *testing.T) {
	tmpl := writeFile(t, t.TempDir(), "e.html", "[{.eval 2 * 3}]")
	if _, out, _ := runCLI("render", tmpl); out != "[]" {
		t.Errorf("render without -expressions = %q, want []", out)
	}
	if _, out, _ := runCLI("render", "-expressions", tmpl); out != "[6]" {
		t.Errorf("render -expressions = %q, want [6]", out)
	}
}

func TestRenderProject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stencil.toml", "[project]\nname = \"cli\"\n[cache]\ndisabled = true\n")
	writeFile(t, dir, "templates/index.html", "hi {.include greet}")
	writeFile(t, dir, "partials/greet.html", "{name}")
	data := writeFile(t, dir, "d.json", `{"name": "bo"}`)

	code, out, errOut := runCLI("render", "-project", dir, "-data", data, "index")
	if code != 0 || out != "hi bo" {
		t.Errorf("render project = %d %q (%s), want 0 %q", code, out, errOut, "hi bo")
	}
	if code, _, _ := runCLI("render", "-project", dir, "nope"); code != 1 {
		t.Errorf("render unknown template exit = %d, want 1", code)
	}
}

func TestEval(t *testing.T) {
	data := writeFile(t, t.TempDir(), "d.yaml", "a: 2\nb: 5\n")
	tests := []struct {
		args    []string
		code    int
		out     string
		errPart string
	}{
		{[]string{"eval", "1 + 2 * 3"}, 0, "7\n", ""},
		{[]string{"eval", "-data", data, "a + b * 2"}, 0, "12\n", ""},
		{[]string{"eval", "-debug", "1 + 2"}, 0, "1 2 + => 3\n", ""},
		{[]string{"eval", "1 +"}, 1, "", "expression error: syntax error near +"},
	}
	for _, tt := range tests {
		code, out, errOut := runCLI(tt.args...)
		if code != tt.code || out != tt.out || !strings.Contains(errOut, tt.errPart) {
			t.Errorf("%v = %d %q %q, want %d %q %q", tt.args, code, out, errOut, tt.code, tt.out, tt.errPart)
		}
	}
}

func TestSession(t *testing.T) {
	s := newSession(map[string]any{"x": 4}, false)
	var out, errOut bytes.Buffer
	s.eval("@a = 2", &out, &errOut)
	s.eval("@a * x", &out, &errOut)
	if out.String() != "8\n" || errOut.Len() != 0 {
		t.Errorf("session output = %q, errors = %q", out.String(), errOut.String())
	}

	out.Reset()
	s.eval("nope(1)", &out, &errOut)
	s.eval("1", &out, &errOut)
	if got := errOut.String(); got != "expression error: unknown function nope()\n" {
		t.Errorf("errors = %q, want one unknown function error", got)
	}

	if s.command(":debug", &out, &errOut) || !s.debug {
		t.Error(":debug did not toggle debug")
	}
	s.command(":reset", &out, &errOut)
	out.Reset()
	s.debug = false
	s.eval("@a", &out, &errOut)
	if out.String() != "\n" {
		t.Errorf("@a after reset = %q, want empty line", out.String())
	}
	if !s.command(":quit", &out, &errOut) {
		t.Error(":quit did not exit")
	}
}

func TestUnknownCommand(t *testing.T) {
	if code, _, errOut := runCLI("frobnicate"); code != 2 || !strings.Contains(errOut, "unknown command") {
		t.Errorf("exit %d, stderr %q", code, errOut)
	}
	if code, _, _ := runCLI(); code != 2 {
		t.Errorf("no command exit = %d, want 2", code)
	}
}
