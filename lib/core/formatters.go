// Package core is the general-purpose formatter and predicate catalog.
package core

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/stencil/pkg/diag"
	"github.com/chazu/stencil/pkg/node"
	"github.com/chazu/stencil/vm"
)

// Formatters returns a fresh copy of the catalog.
func Formatters() vm.Formatters {
	return vm.Formatters{
		"html":          vm.FormatterFunc(html),
		"htmlattr":      vm.FormatterFunc(htmlAttr),
		"htmltag":       vm.FormatterFunc(htmlAttr),
		"json":          vm.FormatterFunc(jsonFormatter),
		"json-pretty":   vm.FormatterFunc(jsonPretty),
		"raw":           vm.FormatterFunc(raw),
		"safe":          vm.FormatterFunc(safe),
		"truncate":      vm.FormatterFunc(truncate),
		"count":         vm.FormatterFunc(count),
		"pluralize":     vm.FormatterFunc(pluralize),
		"format-number": vm.FormatterFunc(formatNumber),
		"iter":          vm.FormatterFunc(iter),
		"lower":         stringFormatter(strings.ToLower),
		"upper":         stringFormatter(strings.ToUpper),
		"trim":          stringFormatter(strings.TrimSpace),
	}
}

func stringFormatter(fn func(string) string) vm.Formatter {
	return vm.FormatterFunc(func(_ *vm.Context, _ []string, vars []*vm.Variable) {
		vars[0].Set(fn(vars[0].Node().String()))
	})
}

func errorf(ctx *vm.Context, format string, args ...any) {
	ctx.AddError(diag.New(diag.Engine, format, args...))
}

// ---------------------------------------------------------------------------
// Escaping
// ---------------------------------------------------------------------------

var (
	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func html(_ *vm.Context, _ []string, vars []*vm.Variable) {
	vars[0].Set(htmlEscaper.Replace(vars[0].Node().String()))
}

func htmlAttr(_ *vm.Context, _ []string, vars []*vm.Variable) {
	vars[0].Set(attrEscaper.Replace(vars[0].Node().String()))
}

// safe strips markup tags.
func safe(_ *vm.Context, _ []string, vars []*vm.Variable) {
	s := vars[0].Node().String()
	var b strings.Builder
	inTag := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '<':
			inTag = true
		case c == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteByte(c)
		}
	}
	vars[0].Set(b.String())
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

func encodeJSON(n node.Node, indent string) (string, error) {
	if n.IsMissing() {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(n.Value()); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func jsonFormatter(ctx *vm.Context, _ []string, vars []*vm.Variable) {
	s, err := encodeJSON(vars[0].Node(), "")
	if err != nil {
		errorf(ctx, "json: %v", err)
		s = ""
	}
	vars[0].Set(s)
}

func jsonPretty(ctx *vm.Context, _ []string, vars []*vm.Variable) {
	s, err := encodeJSON(vars[0].Node(), "  ")
	if err != nil {
		errorf(ctx, "json-pretty: %v", err)
		s = ""
	}
	vars[0].Set(s)
}

// raw leaves scalars as text and encodes containers as JSON.
func raw(ctx *vm.Context, args []string, vars []*vm.Variable) {
	switch vars[0].Node().Type() {
	case node.ArrayType, node.ObjectType:
		jsonFormatter(ctx, args, vars)
	}
}

// ---------------------------------------------------------------------------
// Text and numbers
// ---------------------------------------------------------------------------

// truncate N [suffix] cuts the text to N runes, backing up to the last
// word boundary when there is one, and appends suffix (default "...").
func truncate(ctx *vm.Context, args []string, vars []*vm.Variable) {
	if len(args) == 0 {
		errorf(ctx, "truncate: missing length")
		return
	}
	limit, err := strconv.Atoi(args[0])
	if err != nil || limit < 0 {
		errorf(ctx, "truncate: invalid length %q", args[0])
		return
	}
	suffix := "..."
	if len(args) > 1 {
		suffix = args[1]
	}
	s := vars[0].Node().String()
	if utf8.RuneCountInString(s) <= limit {
		vars[0].Set(s)
		return
	}
	cut := 0
	for i := 0; i < limit; i++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	if sp := strings.LastIndexByte(s[:cut], ' '); sp > 0 && s[cut] != ' ' {
		cut = sp
	}
	vars[0].Set(strings.TrimRight(s[:cut], " ") + suffix)
}

func count(_ *vm.Context, _ []string, vars []*vm.Variable) {
	n := vars[0].Node()
	switch n.Type() {
	case node.ArrayType, node.ObjectType:
		vars[0].Set(n.Len())
	default:
		vars[0].Set(0)
	}
}

// pluralize [singular] [plural] picks a suffix by count; the defaults are
// "" and "s".
func pluralize(_ *vm.Context, args []string, vars []*vm.Variable) {
	singular, plural := "", "s"
	switch len(args) {
	case 0:
	case 1:
		plural = args[0]
	default:
		singular, plural = args[0], args[1]
	}
	n := vars[0].Node()
	if n.Type() == node.NumberType && n.AsNumber() == 1 {
		vars[0].Set(singular)
		return
	}
	vars[0].Set(plural)
}

// formatNumber [decimals] renders a number through the context locale.
func formatNumber(ctx *vm.Context, args []string, vars []*vm.Variable) {
	n := vars[0].Node()
	if n.Type() != node.NumberType {
		return
	}
	decimals := 2
	if len(args) > 0 {
		d, err := strconv.Atoi(args[0])
		if err != nil || d < 0 {
			errorf(ctx, "format-number: invalid decimals %q", args[0])
			return
		}
		decimals = d
	}
	if loc := ctx.Locale(); loc != nil {
		vars[0].Set(loc.FormatNumber(n.AsNumber(), decimals))
		return
	}
	vars[0].Set(strconv.FormatFloat(n.AsNumber(), 'f', decimals, 64))
}

// iter replaces the value with the 1-based position of the innermost
// repeated section.
func iter(ctx *vm.Context, _ []string, vars []*vm.Variable) {
	vars[0].SetNode(ctx.Var("@index"))
}
