package project

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/stencil/pkg/diag"
)

const testManifest = `
[project]
name = "demo"

[templates]
partials = ["partials"]

[injectables]
"legal.txt" = "assets/legal.txt"

[engine]
expressions = true
locale = "de"
`

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func newProject(t *testing.T) (*Project, string) {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"stencil.toml":              testManifest,
		"templates/page.html":       "{title|upper}: {.repeated section items}{@|apply blocks/item}{.alternates with}, {.end}{.inject @f legal.txt} {@f}",
		"templates/docs/price.html": "{n|format-number} {.eval n * 2}",
		"templates/broken.html":     "{.include bad}",
		"partials/blocks/item.html": "[{@}]",
		"partials/bad.html":         "{.section x}",
		"assets/legal.txt":          "(c)",
		"templates/notes.txt":       "ignored",
	})
	p, err := Open(filepath.Join(root, "templates"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, root
}

func TestLoad(t *testing.T) {
	p, _ := newProject(t)
	if want := []string{"broken", "docs/price", "page"}; !reflect.DeepEqual(p.Templates(), want) {
		t.Errorf("Templates() = %v, want %v", p.Templates(), want)
	}
	if want := []string{"bad", "blocks/item"}; !reflect.DeepEqual(p.Partials(), want) {
		t.Errorf("Partials() = %v, want %v", p.Partials(), want)
	}
	if got := p.Options().Injectables["legal.txt"]; got != "(c)" {
		t.Errorf("injectable = %q, want (c)", got)
	}
}

func TestRender(t *testing.T) {
	p, _ := newProject(t)
	tests := []struct {
		name string
		data any
		want string
	}{
		{"page", map[string]any{"title": "list", "items": []any{"a", "b"}}, "LIST: [a], [b] (c)"},
		{"docs/price", map[string]any{"n": 1234.5}, "1.234,50 2469"},
	}
	for _, tt := range tests {
		ctx, err := p.Render(tt.name, tt.data)
		if err != nil {
			t.Fatalf("Render(%q): %v", tt.name, err)
		}
		if got := ctx.Render(); got != tt.want {
			t.Errorf("Render(%q) = %q, want %q", tt.name, got, tt.want)
		}
		if errs := ctx.Errors(); len(errs) > 0 {
			t.Errorf("Render(%q) errors: %v", tt.name, diag.Messages(errs))
		}
	}
}

func TestRenderUsesCache(t *testing.T) {
	p, root := newProject(t)
	for i := 0; i < 2; i++ {
		if _, err := p.Render("page", map[string]any{}); err != nil {
			t.Fatal(err)
		}
	}
	st, err := p.Cache().Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Hits == 0 {
		t.Errorf("Stats() = %+v, want at least one hit", st)
	}
	if _, err := os.Stat(filepath.Join(root, ".stencil", "cache.db")); err != nil {
		t.Errorf("cache file: %v", err)
	}
}

func TestBrokenPartial(t *testing.T) {
	p, _ := newProject(t)
	ctx, err := p.Render("broken", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ctx.ErrorCount() != 1 {
		t.Errorf("errors = %v, want one", diag.Messages(ctx.Errors()))
	}
}

func TestUnknownTemplate(t *testing.T) {
	p, _ := newProject(t)
	if _, err := p.Render("nope", nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("Render(nope) = %v, want ErrUnknownTemplate", err)
	}
}

func TestCacheDisabled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"stencil.toml":      "[cache]\ndisabled = true\n",
		"templates/hi.html": "hi {name}",
	})
	p, err := Open(root)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if p.Cache() != nil {
		t.Error("cache opened while disabled")
	}
	ctx, err := p.Render("hi", map[string]any{"name": "bo"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ctx.Render(); got != "hi bo" {
		t.Errorf("Render = %q, want %q", got, "hi bo")
	}
}
