// Package i18n provides a vm.Locale backed by golang.org/x/text.
package i18n

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/chazu/stencil/pkg/node"
)

// Locale formats numbers with CLDR conventions for one language tag.
type Locale struct {
	tag     language.Tag
	printer *message.Printer
}

// New parses a BCP 47 tag such as "en-US" or "de".
func New(tag string) (*Locale, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return nil, fmt.Errorf("locale %q: %w", tag, err)
	}
	return &Locale{tag: t, printer: message.NewPrinter(t)}, nil
}

// Default is the en-US locale.
func Default() *Locale {
	return &Locale{tag: language.AmericanEnglish, printer: message.NewPrinter(language.AmericanEnglish)}
}

// Tag returns the canonical tag string.
func (l *Locale) Tag() string { return l.tag.String() }

// FormatNumber renders f grouped and with exactly decimals fraction digits.
// Non-finite values use the engine's plain spelling.
func (l *Locale) FormatNumber(f float64, decimals int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return node.FormatNumber(f)
	}
	return l.printer.Sprint(number.Decimal(f,
		number.MinFractionDigits(decimals),
		number.MaxFractionDigits(decimals),
	))
}
