// Package server implements a language server for stencil templates.
package server

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/stencil/compiler"
	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
	"github.com/chazu/stencil/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "stencil-lsp"

var log = commonlog.GetLogger("stencil.server")

// keywordDocs describes each instruction keyword for hover.
var keywordDocs = map[bytecode.Opcode]string{
	bytecode.OpSection:        "Renders its block with the path's value as the current node when the value is truthy, otherwise the `{.or}` branch.",
	bytecode.OpEnd:            "Closes the innermost open block.",
	bytecode.OpRepeated:       "Renders its block once per element of an array. `{.alternates with}` separates iterations.",
	bytecode.OpBindVar:        "Binds a formatted value to an `@variable` in the current scope.",
	bytecode.OpOrPredicate:    "Starts the fallback branch of a block, optionally guarded by a predicate.",
	bytecode.OpIf:             "Tests paths combined with `&&` and `||`, or a predicate call.",
	bytecode.OpInject:         "Binds the contents of an injectable file to an `@variable`.",
	bytecode.OpMacro:          "Defines a named macro usable with `{.include}` and `apply`.",
	bytecode.OpMetaLeft:       "Writes a literal `{`.",
	bytecode.OpMetaRight:      "Writes a literal `}`.",
	bytecode.OpNewline:        "Writes a newline.",
	bytecode.OpSpace:          "Writes a space.",
	bytecode.OpTab:            "Writes a tab.",
	bytecode.OpAlternatesWith: "Separator block rendered between iterations of `{.repeated section}`.",
	bytecode.OpCtxVar:         "Binds an object built from `key=path` pairs to an `@variable`.",
	bytecode.OpEval:           "Evaluates an inline expression and writes its value.",
	bytecode.OpInclude:        "Renders a partial or macro in place against the current node.",
}

// keywords maps the first word of each instruction keyword to its opcode.
var keywords = func() map[string]bytecode.Opcode {
	m := make(map[string]bytecode.Opcode)
	for _, op := range bytecode.AllOpcodes() {
		kw := bytecode.GetOpcodeInfo(op).Keyword
		if kw == "" {
			continue
		}
		m[strings.Fields(kw)[0]] = op
	}
	return m
}()

// LspServer serves diagnostics, hover and completion for open templates.
type LspServer struct {
	engine *vm.Engine

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a server whose completions come from engine's plugins.
func NewLSP(engine *vm.Engine) *LspServer {
	s := &LspServer{
		engine:  engine,
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("%s initializing", lspName)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{".", "|"},
	}

	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// Full sync: the last change carries the whole text.
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	trigger, prefix := extractPrefix(text, params.Position)
	return s.complete(trigger, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(text, word), nil
}

// complete offers instruction keywords and predicates after "{." and
// formatters after "|".
func (s *LspServer) complete(trigger byte, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(label, prefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	switch trigger {
	case '.':
		for _, op := range bytecode.AllOpcodes() {
			if kw := bytecode.GetOpcodeInfo(op).Keyword; kw != "" {
				add(kw, "instruction", protocol.CompletionItemKindKeyword)
			}
		}
		for _, name := range s.engine.PredicateNames() {
			add(name, "predicate", protocol.CompletionItemKindFunction)
		}
	case '|':
		for _, name := range s.engine.FormatterNames() {
			add(name, "formatter", protocol.CompletionItemKindFunction)
		}
	}
	return items
}

func (s *LspServer) hover(text, word string) *protocol.Hover {
	var b strings.Builder
	if op, ok := keywords[word]; ok {
		info := bytecode.GetOpcodeInfo(op)
		fmt.Fprintf(&b, "**%s** (`%s`)\n\n%s", info.Keyword, info.Name, keywordDocs[op])
		if n := countOpcode(text, op); n > 0 {
			fmt.Fprintf(&b, "\n\n%d in this document", n)
		}
	} else if _, ok := s.engine.Formatter(word); ok {
		fmt.Fprintf(&b, "**%s** formatter", word)
	} else if _, ok := s.engine.Predicate(word); ok {
		fmt.Fprintf(&b, "**%s** predicate", word)
	} else {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// countOpcode counts op's instructions in the compiled form of text.
func countOpcode(text string, op bytecode.Opcode) int {
	n := 0
	bytecode.Walk(compiler.Compile(text).Code, func(inst bytecode.Instruction) bool {
		if inst.Opcode() == op {
			n++
		}
		return true
	})
	return n
}

// --- Diagnostics ---

// diagnostics converts compile errors to LSP diagnostics. Errors without a
// position are placed at the start of the document.
func diagnostics(text string) []protocol.Diagnostic {
	res := compiler.Compile(text)
	out := make([]protocol.Diagnostic, 0, len(res.Errors))
	for _, err := range res.Errors {
		out = append(out, toDiagnostic(err))
	}
	return out
}

func toDiagnostic(err diag.Error) protocol.Diagnostic {
	var start protocol.Position
	if err.HasPosition() {
		start = protocol.Position{
			Line:      protocol.UInteger(err.Line - 1),
			Character: protocol.UInteger(err.Column - 1),
		}
	}
	end := start
	end.Character++
	severity := protocol.DiagnosticSeverityError
	source := lspName
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: &severity,
		Source:   &source,
		Message:  err.Message,
	}
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diags := diagnostics(text)
	log.Debugf("%s: %d diagnostics", uri, len(diags))
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diags,
	})
}

// --- Text extraction helpers ---

func isNameChar(ch byte) bool {
	r := rune(ch)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || ch == '_' || ch == '-' || ch == '?'
}

func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the name fragment before the cursor and the byte
// preceding it ('.' or '|' start a completion; 0 otherwise).
func extractPrefix(text string, pos protocol.Position) (byte, string) {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return 0, ""
	}
	start := col
	for start > 0 && isNameChar(line[start-1]) {
		start--
	}
	var trigger byte
	if start > 0 {
		switch line[start-1] {
		case '.':
			if start > 1 && line[start-2] == '{' {
				trigger = '.'
			}
		case '|':
			trigger = '|'
		}
	}
	return trigger, line[start:col]
}

// extractWord returns the full name under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isNameChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isNameChar(line[end]) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
