// Package expect judges a step's outcome against its expected text.
//
// Three forms are supported:
//
//	plain text    substring match on the outcome output
//	re:<pattern>  regular expression match
//	expr:<expr>   boolean expr-lang expression over output/captures
package expect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/arvelex/veriplan/pkg/backend"
)

// Result is the evaluation of one expectation.
type Result struct {
	Kind     string `json:"kind"` // contains, matches, expr
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
}

// Evaluate checks an expected-result string against an outcome. A nil error
// with Passed=false is an assertion mismatch (step FAILED); a non-nil error
// means the expectation itself could not be evaluated (step ERROR).
func Evaluate(expected string, outcome *backend.Outcome) (*Result, error) {
	expected = strings.TrimSpace(expected)

	switch {
	case strings.HasPrefix(expected, "expr:"):
		return evalExpr(strings.TrimPrefix(expected, "expr:"), outcome)
	case strings.HasPrefix(expected, "re:"):
		return evalMatches(strings.TrimPrefix(expected, "re:"), outcome)
	default:
		return evalContains(expected, outcome), nil
	}
}

func evalContains(expected string, outcome *backend.Outcome) *Result {
	passed := strings.Contains(outcome.Output, expected)
	msg := fmt.Sprintf("output contains %q", expected)
	if !passed {
		msg = fmt.Sprintf("output does not contain %q", expected)
	}
	return &Result{
		Kind:     "contains",
		Expected: expected,
		Actual:   truncate(outcome.Output, 200),
		Passed:   passed,
		Message:  msg,
	}
}

func evalMatches(pattern string, outcome *backend.Outcome) (*Result, error) {
	pattern = strings.TrimSpace(pattern)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile expectation /%s/: %w", pattern, err)
	}
	passed := re.MatchString(outcome.Output)
	msg := fmt.Sprintf("output matches /%s/", pattern)
	if !passed {
		msg = fmt.Sprintf("output does not match /%s/", pattern)
	}
	return &Result{
		Kind:     "matches",
		Expected: pattern,
		Actual:   truncate(outcome.Output, 200),
		Passed:   passed,
		Message:  msg,
	}, nil
}

func evalExpr(src string, outcome *backend.Outcome) (*Result, error) {
	src = strings.TrimSpace(src)

	captures := map[string]string{}
	for k, v := range outcome.Captures {
		captures[k] = v
	}
	env := map[string]interface{}{
		"output":   outcome.Output,
		"captures": captures,
		"failed":   outcome.Failed,
	}

	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expectation %q: %w", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("eval expectation %q: %w", src, err)
	}
	passed, ok := out.(bool)
	if !ok {
		return nil, fmt.Errorf("expectation %q did not return bool (got %T)", src, out)
	}

	msg := fmt.Sprintf("expression %q is true", src)
	if !passed {
		msg = fmt.Sprintf("expression %q is false", src)
	}
	return &Result{
		Kind:     "expr",
		Expected: src,
		Actual:   truncate(outcome.Output, 200),
		Passed:   passed,
		Message:  msg,
	}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
