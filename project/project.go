// Package project loads a stencil.toml project from disk and renders its
// templates.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/stencil/compiler"
	"github.com/chazu/stencil/lib/core"
	"github.com/chazu/stencil/lib/i18n"
	"github.com/chazu/stencil/manifest"
	"github.com/chazu/stencil/store"
	"github.com/chazu/stencil/vm"
)

var log = commonlog.GetLogger("stencil.project")

// ErrNoManifest is returned by Open when no stencil.toml is found.
var ErrNoManifest = errors.New("no " + manifest.FileName + " found")

// ErrUnknownTemplate is returned when a template name is not in the project.
var ErrUnknownTemplate = errors.New("unknown template")

// Project is a loaded template project.
type Project struct {
	Manifest *manifest.Manifest

	engine *vm.Engine
	cache  *store.Store
	opts   vm.Options

	// templates maps a template name (path relative to its directory,
	// without extension, slash separated) to its file.
	templates map[string]string
}

// Open finds the manifest at or above dir and loads the project.
func Open(dir string, engineOpts ...vm.EngineOption) (*Project, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w above %s", ErrNoManifest, dir)
	}
	return New(m, engineOpts...)
}

// New loads the templates, partials and injectables named by m. The engine
// carries the core formatter catalog plus engineOpts.
func New(m *manifest.Manifest, engineOpts ...vm.EngineOption) (*Project, error) {
	p := &Project{
		Manifest:  m,
		engine:    vm.NewEngine(append(core.Options(), engineOpts...)...),
		templates: make(map[string]string),
		opts: vm.Options{
			Partials:        make(map[string]any),
			Injectables:     make(map[string]string),
			Expressions:     m.Engine.Expressions,
			ExpressionDebug: m.Engine.ExpressionDebug,
			MaxTokens:       m.Engine.MaxTokens,
			MaxStringLength: m.Engine.MaxStringLength,
			MaxPartialDepth: m.Engine.MaxPartialDepth,
		},
	}

	if m.Engine.Locale != "" {
		loc, err := i18n.New(m.Engine.Locale)
		if err != nil {
			return nil, err
		}
		p.opts.Locale = loc
	}

	if !m.Cache.Disabled {
		s, err := store.Open(m.CachePath())
		if err != nil {
			return nil, err
		}
		p.cache = s
	}

	for _, dir := range m.TemplateDirPaths() {
		if err := p.scan(dir, func(name, path string) error {
			p.templates[name] = path
			return nil
		}); err != nil {
			p.Close()
			return nil, err
		}
	}
	for _, dir := range m.PartialDirPaths() {
		if err := p.scan(dir, p.loadPartial); err != nil {
			p.Close()
			return nil, err
		}
	}
	for key := range m.Injectables {
		path, _ := m.InjectablePath(key)
		data, err := os.ReadFile(path)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("reading injectable %s: %w", key, err)
		}
		p.opts.Injectables[key] = string(data)
	}

	log.Infof("loaded project %s: %d templates, %d partials", m.Project.Name, len(p.templates), len(p.opts.Partials))
	return p, nil
}

// scan calls fn for every template file under dir. A missing directory is
// not an error.
func (p *Project) scan(dir string, fn func(name, path string) error) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	ext := p.Manifest.Templates.Ext
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ext) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(strings.TrimSuffix(rel, ext)), path)
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", dir, err)
	}
	return nil
}

// loadPartial registers a partial. Partials that compile cleanly are stored
// as bytecode; broken ones stay as source so the engine reports them when a
// render uses them.
func (p *Project) loadPartial(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading partial %s: %w", name, err)
	}
	res := p.compile(string(data))
	if len(res.Errors) > 0 {
		p.opts.Partials[name] = string(data)
	} else {
		p.opts.Partials[name] = res.Code
	}
	return nil
}

func (p *Project) compile(src string) *compiler.Result {
	if p.cache == nil {
		return compiler.Compile(src)
	}
	res, _ := p.cache.Compile(src)
	return res
}

// Close releases the cache.
func (p *Project) Close() error {
	if p.cache == nil {
		return nil
	}
	err := p.cache.Close()
	p.cache = nil
	return err
}

// Engine returns the project's engine.
func (p *Project) Engine() *vm.Engine { return p.engine }

// Options returns a copy of the render options derived from the manifest.
func (p *Project) Options() vm.Options { return p.opts }

// Cache returns the compiled-template store, or nil when disabled.
func (p *Project) Cache() *store.Store { return p.cache }

// Templates lists template names in sorted order.
func (p *Project) Templates() []string {
	names := make([]string, 0, len(p.templates))
	for name := range p.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Partials lists partial names in sorted order.
func (p *Project) Partials() []string {
	names := make([]string, 0, len(p.opts.Partials))
	for name := range p.opts.Partials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source reads a template's source.
func (p *Project) Source(name string) (string, error) {
	path, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", name, err)
	}
	return string(data), nil
}

// Compile compiles the named template through the cache.
func (p *Project) Compile(name string) (*compiler.Result, error) {
	src, err := p.Source(name)
	if err != nil {
		return nil, err
	}
	return p.compile(src), nil
}

// Render renders the named template against data. Template diagnostics are
// on the returned Context; the error covers only host failures.
func (p *Project) Render(name string, data any) (*vm.Context, error) {
	res, err := p.Compile(name)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	log.Debugf("render %s: %s", id, name)
	ctx := p.engine.Render(res, data, p.opts)
	if n := ctx.ErrorCount(); n > 0 {
		log.Infof("render %s: %s finished with %d errors", id, name, n)
	}
	return ctx, nil
}
