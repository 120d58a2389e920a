package conformance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chazu/stencil/lib/core"
	"github.com/chazu/stencil/lib/i18n"
	"github.com/chazu/stencil/pkg/diag"
	"github.com/chazu/stencil/vm"
)

// TestResult is the outcome of one case.
type TestResult struct {
	Test       LoadedTest
	Passed     bool
	Skipped    bool
	SkipReason string
	Output     string
	Error      error
}

// Runner renders cases on one engine.
type Runner struct {
	engine *vm.Engine
}

// NewRunner returns a runner whose engine has the core catalog plus
// engineOpts.
func NewRunner(engineOpts ...vm.EngineOption) *Runner {
	return &Runner{engine: vm.NewEngine(append(core.Options(), engineOpts...)...)}
}

func (r *Runner) options(suite *TestSuite) (vm.Options, error) {
	opts := vm.Options{
		Injectables:     suite.Injectables,
		Expressions:     suite.Options.Expressions,
		ExpressionDebug: suite.Options.ExpressionDebug,
		MaxPartialDepth: suite.Options.MaxPartialDepth,
		MaxTokens:       suite.Options.MaxTokens,
		MaxStringLength: suite.Options.MaxStringLength,
	}
	if len(suite.Partials) > 0 {
		opts.Partials = make(map[string]any, len(suite.Partials))
		for name, src := range suite.Partials {
			opts.Partials[name] = src
		}
	}
	if suite.Options.Locale != "" {
		loc, err := i18n.New(suite.Options.Locale)
		if err != nil {
			return opts, err
		}
		opts.Locale = loc
	}
	return opts, nil
}

// Run executes a single case.
func (r *Runner) Run(test LoadedTest) TestResult {
	if skipped, reason := test.Test.IsSkipped(); skipped {
		return TestResult{Test: test, Skipped: true, SkipReason: reason}
	}
	opts, err := r.options(test.Suite)
	if err != nil {
		return TestResult{Test: test, Error: err}
	}
	ctx := r.engine.Render(test.Test.Template, test.Test.Data, opts)
	out := ctx.Render()
	err = checkExpectation(test.Test.Expect, out, ctx.Errors())
	return TestResult{Test: test, Passed: err == nil, Output: out, Error: err}
}

// RunAll executes every case in order.
func (r *Runner) RunAll(tests []LoadedTest) []TestResult {
	results := make([]TestResult, len(tests))
	for i, t := range tests {
		results[i] = r.Run(t)
	}
	return results
}

// SummaryStats counts results.
type SummaryStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// ComputeStats generates statistics from test results.
func ComputeStats(results []TestResult) SummaryStats {
	stats := SummaryStats{Total: len(results)}
	for _, r := range results {
		if r.Skipped {
			stats.Skipped++
		} else if r.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
	}
	return stats
}

// FormatStats returns a human-readable summary.
func FormatStats(stats SummaryStats) string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped (%d total)",
		stats.Passed, stats.Failed, stats.Skipped, stats.Total)
}

func checkExpectation(expect Expectation, out string, errs []diag.Error) error {
	if expect.Output != nil && out != *expect.Output {
		return fmt.Errorf("output %q, want %q", out, *expect.Output)
	}
	if expect.Contains != "" && !strings.Contains(out, expect.Contains) {
		return fmt.Errorf("output %q does not contain %q", out, expect.Contains)
	}
	if expect.Match != "" {
		re, err := regexp.Compile(expect.Match)
		if err != nil {
			return fmt.Errorf("bad match pattern: %w", err)
		}
		if !re.MatchString(out) {
			return fmt.Errorf("output %q does not match %s", out, expect.Match)
		}
	}

	got := diag.Messages(errs)
	if expect.Errors != nil {
		if strings.Join(got, "\n") != strings.Join(expect.Errors, "\n") || len(got) != len(expect.Errors) {
			return fmt.Errorf("errors %q, want %q", got, expect.Errors)
		}
	} else if len(got) > 0 {
		return fmt.Errorf("unexpected errors %q", got)
	}
	return nil
}
