package expect

import (
	"strings"
	"testing"

	"github.com/arvelex/veriplan/pkg/backend"
)

func outcome(output string) *backend.Outcome {
	return &backend.Outcome{Output: output}
}

func TestContains(t *testing.T) {
	res, err := Evaluate("Welcome back", outcome("header: Welcome back, qa-bot"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Passed || res.Kind != "contains" {
		t.Errorf("result = %+v", res)
	}

	res, err = Evaluate("Welcome back", outcome("access denied"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Passed {
		t.Error("substring mismatch passed")
	}
	if !strings.Contains(res.Message, "does not contain") {
		t.Errorf("message = %q", res.Message)
	}
}

func TestMatches(t *testing.T) {
	res, err := Evaluate("re:session \\d+ established", outcome("session 4211 established"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Passed || res.Kind != "matches" {
		t.Errorf("result = %+v", res)
	}
}

func TestMatchesBadPattern(t *testing.T) {
	if _, err := Evaluate("re:session [", outcome("whatever")); err == nil {
		t.Fatal("expected compile error for bad pattern")
	}
}

func TestExpr(t *testing.T) {
	out := &backend.Outcome{
		Output:   "done",
		Captures: map[string]string{"title": "Dashboard"},
	}
	res, err := Evaluate(`expr: captures["title"] == "Dashboard" && !failed`, out)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Passed || res.Kind != "expr" {
		t.Errorf("result = %+v", res)
	}
}

func TestExprFalseIsMismatchNotError(t *testing.T) {
	res, err := Evaluate(`expr: output == "other"`, outcome("done"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Passed {
		t.Error("false expression passed")
	}
}

func TestExprCompileError(t *testing.T) {
	if _, err := Evaluate("expr: output ==", outcome("done")); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestExprNilCaptures(t *testing.T) {
	res, err := Evaluate(`expr: len(captures) == 0`, outcome("x"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Passed {
		t.Error("nil captures should read as empty map")
	}
}

func TestActualTruncated(t *testing.T) {
	res, err := Evaluate("needle", outcome(strings.Repeat("x", 500)))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Actual) > 210 {
		t.Errorf("actual not truncated: %d chars", len(res.Actual))
	}
}
