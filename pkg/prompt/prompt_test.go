package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

// scriptedModel replays canned completions in order.
type scriptedModel struct {
	replies []string
	calls   int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	i := m.calls
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	m.calls++
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.replies[i]}},
	}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, nil)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func TestInterpretBareCaseID(t *testing.T) {
	model := &scriptedModel{replies: []string{`should never be called`}}
	in := NewInterpreter(model)

	inv, err := in.Interpret(context.Background(), " VPL-42 ")
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if inv.Action != "run" || inv.CaseID != "VPL-42" || inv.Project != "VPL" {
		t.Errorf("invocation = %+v", inv)
	}
	if model.calls != 0 {
		t.Errorf("model was consulted %d times for a bare id", model.calls)
	}
}

func TestInterpretNaturalLanguage(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"```json\n{\"action\": \"run\", \"project\": \"VPL\", \"case_id\": \"VPL-7\"}\n```",
	}}
	inv, err := NewInterpreter(model).Interpret(context.Background(), "please execute the login test VPL-7")
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if inv.CaseID != "VPL-7" || inv.Action != "run" {
		t.Errorf("invocation = %+v", inv)
	}
}

func TestInterpretReasksOnGarbage(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"Sure! I'd be happy to help with that.",
		`{"action": "report", "project": "", "case_id": "VPL-9"}`,
	}}
	inv, err := NewInterpreter(model).Interpret(context.Background(), "show me the last report for VPL-9")
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2 (one re-ask)", model.calls)
	}
	if inv.Action != "report" || inv.Project != "VPL" {
		t.Errorf("invocation = %+v, want report with backfilled project", inv)
	}
}

func TestInterpretGivesUpAfterBudget(t *testing.T) {
	model := &scriptedModel{replies: []string{"not json"}}
	in := NewInterpreter(model)
	_, err := in.Interpret(context.Background(), "do something vague")
	if err == nil {
		t.Fatal("expected error after exhausting re-asks")
	}
	if model.calls != in.MaxAsks {
		t.Errorf("model calls = %d, want %d", model.calls, in.MaxAsks)
	}
	if !strings.Contains(err.Error(), "never produced") {
		t.Errorf("err = %v", err)
	}
}

func TestParseInvocationRejectsUnknownAction(t *testing.T) {
	if _, err := parseInvocation(`{"action": "destroy"}`); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestParseInvocationDefaultsAction(t *testing.T) {
	inv, err := parseInvocation(`{"case_id": "VPL-1"}`)
	if err != nil {
		t.Fatalf("parseInvocation: %v", err)
	}
	if inv.Action != "run" {
		t.Errorf("action = %q, want run default", inv.Action)
	}
}
