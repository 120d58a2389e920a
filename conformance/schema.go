// Package conformance runs YAML-described template suites against the
// engine.
package conformance

// TestSuite is one YAML file.
type TestSuite struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Options     SuiteOptions      `yaml:"options,omitempty"`
	Partials    map[string]string `yaml:"partials,omitempty"`
	Injectables map[string]string `yaml:"injectables,omitempty"`
	Tests       []TestCase        `yaml:"tests"`
}

// SuiteOptions map onto vm.Options for every case in the suite.
type SuiteOptions struct {
	Expressions     bool   `yaml:"expressions,omitempty"`
	ExpressionDebug bool   `yaml:"expression_debug,omitempty"`
	MaxPartialDepth int    `yaml:"max_partial_depth,omitempty"`
	MaxTokens       int    `yaml:"max_tokens,omitempty"`
	MaxStringLength int    `yaml:"max_string_length,omitempty"`
	Locale          string `yaml:"locale,omitempty"`
}

// TestCase renders Template against Data.
type TestCase struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Skip        interface{} `yaml:"skip,omitempty"` // bool or string
	Template    string      `yaml:"template"`
	Data        interface{} `yaml:"data,omitempty"`
	Expect      Expectation `yaml:"expect"`
}

// Expectation checks a render. Every field that is set must hold; a case
// that lists no errors must render without diagnostics.
type Expectation struct {
	Output   *string  `yaml:"output,omitempty"`   // exact match
	Contains string   `yaml:"contains,omitempty"` // substring of the output
	Match    string   `yaml:"match,omitempty"`    // regex over the output
	Errors   []string `yaml:"errors,omitempty"`   // exact messages, in order
}

// IsSkipped reports whether the case is marked skip.
func (tc *TestCase) IsSkipped() (bool, string) {
	switch v := tc.Skip.(type) {
	case bool:
		if v {
			return true, "skipped"
		}
	case string:
		return true, v
	}
	return false, ""
}
