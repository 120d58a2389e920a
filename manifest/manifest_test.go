package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "site"
version = "0.1.0"

[templates]
dirs = ["pages", "layouts"]
partials = ["blocks"]
ext = ".tmpl"

[injectables]
"legal/footer.txt" = "assets/footer.txt"

[engine]
expressions = true
expression-debug = false
max-tokens = 100
max-string-length = 2000
max-partial-depth = 8
locale = "de-DE"

[cache]
path = "/tmp/site-cache.db"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "site" {
		t.Errorf("project name = %q, want site", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if want := []string{"pages", "layouts"}; !reflect.DeepEqual(m.Templates.Dirs, want) {
		t.Errorf("template dirs = %v, want %v", m.Templates.Dirs, want)
	}
	if m.Templates.Ext != ".tmpl" {
		t.Errorf("ext = %q, want .tmpl", m.Templates.Ext)
	}
	wantEngine := Engine{Expressions: true, MaxTokens: 100, MaxStringLength: 2000, MaxPartialDepth: 8, Locale: "de-DE"}
	if m.Engine != wantEngine {
		t.Errorf("engine = %+v, want %+v", m.Engine, wantEngine)
	}
	if got := m.CachePath(); got != "/tmp/site-cache.db" {
		t.Errorf("cache path = %q", got)
	}
	if p, ok := m.InjectablePath("legal/footer.txt"); !ok || p != filepath.Join(m.Dir, "assets", "footer.txt") {
		t.Errorf("injectable path = %q, %v", p, ok)
	}
	if _, ok := m.InjectablePath("nope"); ok {
		t.Error("unknown injectable resolved")
	}
	if got := m.PartialDirPaths(); len(got) != 1 || got[0] != filepath.Join(m.Dir, "blocks") {
		t.Errorf("partial dirs = %v", got)
	}
}

func TestDefaults(t *testing.T) {
	m, err := Parse([]byte("[project]\nname = \"bare\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"templates"}; !reflect.DeepEqual(m.Templates.Dirs, want) {
		t.Errorf("template dirs = %v, want %v", m.Templates.Dirs, want)
	}
	if want := []string{"partials"}; !reflect.DeepEqual(m.Templates.Partials, want) {
		t.Errorf("partial dirs = %v, want %v", m.Templates.Partials, want)
	}
	if m.Templates.Ext != ".html" {
		t.Errorf("ext = %q, want .html", m.Templates.Ext)
	}
	if m.Cache.Path != filepath.Join(".stencil", "cache.db") {
		t.Errorf("cache path = %q", m.Cache.Path)
	}
	if m.Engine.Expressions || m.Cache.Disabled {
		t.Error("boolean defaults should be false")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"[project\n", ""},
		{"[engine]\nmax-tokens = \"many\"\n", ""},
		{"[engine]\nturbo = true\n", "unknown key engine.turbo"},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.src))
		if err == nil {
			t.Errorf("Parse(%q) succeeded, want error", tt.src)
			continue
		}
		if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Parse(%q) = %v, want %q", tt.src, err, tt.want)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[project]\nname = \"up\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	m, err := FindAndLoad(nested)
	if err != nil || m == nil {
		t.Fatalf("FindAndLoad = %v, %v", m, err)
	}
	if m.Project.Name != "up" {
		t.Errorf("name = %q, want up", m.Project.Name)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of empty dir succeeded")
	}
}
