// Package manifest handles stencil.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked for in a project directory.
const FileName = "stencil.toml"

// Manifest represents a stencil.toml project configuration.
type Manifest struct {
	Project     Project           `toml:"project"`
	Templates   Templates         `toml:"templates"`
	Injectables map[string]string `toml:"injectables"`
	Engine      Engine            `toml:"engine"`
	Cache       Cache             `toml:"cache"`

	// Dir is the directory containing the stencil.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Templates configures where template and partial sources live.
type Templates struct {
	Dirs     []string `toml:"dirs"`
	Partials []string `toml:"partials"`
	Ext      string   `toml:"ext"`
}

// Engine configures rendering.
type Engine struct {
	Expressions     bool   `toml:"expressions"`
	ExpressionDebug bool   `toml:"expression-debug"`
	MaxTokens       int    `toml:"max-tokens"`
	MaxStringLength int    `toml:"max-string-length"`
	MaxPartialDepth int    `toml:"max-partial-depth"`
	Locale          string `toml:"locale"`
}

// Cache configures the compiled-template cache.
type Cache struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

// Load parses a stencil.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text and applies defaults. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}
	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if len(m.Templates.Dirs) == 0 {
		m.Templates.Dirs = []string{"templates"}
	}
	if len(m.Templates.Partials) == 0 {
		m.Templates.Partials = []string{"partials"}
	}
	if m.Templates.Ext == "" {
		m.Templates.Ext = ".html"
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".stencil", "cache.db")
	}
}

// FindAndLoad walks up from startDir to find a stencil.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// TemplateDirPaths returns absolute paths for the configured template directories.
func (m *Manifest) TemplateDirPaths() []string { return m.join(m.Templates.Dirs) }

// PartialDirPaths returns absolute paths for the configured partial directories.
func (m *Manifest) PartialDirPaths() []string { return m.join(m.Templates.Partials) }

func (m *Manifest) join(dirs []string) []string {
	var paths []string
	for _, d := range dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// InjectablePath returns the absolute path registered for key.
func (m *Manifest) InjectablePath(key string) (string, bool) {
	p, ok := m.Injectables[key]
	if !ok {
		return "", false
	}
	return filepath.Join(m.Dir, p), true
}
