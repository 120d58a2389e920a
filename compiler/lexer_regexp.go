package compiler

import (
	"regexp"
	"strings"
)

// regexpLexer is the pattern-driven fallback. Each category is compiled
// once; patterns are anchored so a match always begins at s[0].
type regexpLexer struct {
	patterns [numCategories]*regexp.Regexp
}

const (
	reWS       = `[ \t\n\r]`
	reSegment  = `(?:[A-Za-z_$][A-Za-z0-9_$-]*|[0-9]+)`
	reVariable = `(?:@[A-Za-z0-9_$-]*|` + reSegment + `)(?:\.` + reSegment + `)*`
)

func newRegexpLexer() *regexpLexer {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	src := [numCategories]string{
		catWhitespace:   reWS + `+`,
		catSpace:        ` `,
		catKeyword:      `(` + strings.Join(quoted, "|") + `)(?:` + reWS + `|$)`,
		catDefinition:   `@[A-Za-z_$][A-Za-z0-9_$-]*`,
		catPredicate:    `[a-zA-Z][a-zA-Z0-9_-]*\?`,
		catVariable:     reVariable,
		catVariables:    reVariable + `(?:` + reWS + `*,` + reWS + `*` + reVariable + `)*`,
		catFormatters:   `(?:\|[a-zA-Z][a-zA-Z0-9_-]*(?:[ :][^|]*)?)+`,
		catArguments:    `(?s)[ :|].+`,
		catFilePath:     `[A-Za-z0-9_.][A-Za-z0-9_./-]*`,
		catIfExpression: reVariable + `(?:` + reWS + `*(?:&&|\|\|)` + reWS + `*` + reVariable + `)*`,
	}
	l := &regexpLexer{}
	for i, p := range src {
		l.patterns[i] = regexp.MustCompile(`^(?:` + p + `)`)
	}
	return l
}

func (l *regexpLexer) match(cat category, s string) int {
	if cat >= numCategories {
		return -1
	}
	loc := l.patterns[cat].FindStringSubmatchIndex(s)
	if loc == nil {
		return -1
	}
	if cat == catKeyword {
		// Group 1 excludes the trailing whitespace.
		return loc[3]
	}
	return loc[1]
}
