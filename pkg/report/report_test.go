package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arvelex/veriplan/pkg/model"
)

func plan() *model.Plan {
	return &model.Plan{TestCaseID: "VPL-42", Steps: []model.Step{
		{Index: 1, Description: "a"},
		{Index: 2, Description: "b"},
	}}
}

func TestAggregateOverall(t *testing.T) {
	now := time.Now()
	passed := []model.StepResult{
		{StepIndex: 1, Status: model.StatusPassed, Attempts: 1},
		{StepIndex: 2, Status: model.StatusPassed, Attempts: 2},
	}
	cases := []struct {
		name    string
		results []model.StepResult
		aborted bool
		want    model.RunStatus
	}{
		{"all passed", passed, false, model.RunPassed},
		{"one failed", []model.StepResult{passed[0], {StepIndex: 2, Status: model.StatusFailed, Attempts: 1}}, false, model.RunFailed},
		{"one errored", []model.StepResult{passed[0], {StepIndex: 2, Status: model.StatusError, Attempts: 3}}, false, model.RunFailed},
		{"aborted wins", passed, true, model.RunAborted},
		{"no results", nil, false, model.RunFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep := Aggregate(plan(), "r1", tc.results, now, now.Add(time.Second), tc.aborted)
			if rep.Overall != tc.want {
				t.Errorf("overall = %s, want %s", rep.Overall, tc.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	rep := Aggregate(plan(), "r1", []model.StepResult{
		{StepIndex: 1, Status: model.StatusPassed},
		{StepIndex: 2, Status: model.StatusSkipped},
	}, time.Now(), time.Now(), true)
	s := rep.Summarize()
	if s.Total != 2 || s.Passed != 1 || s.Skipped != 1 {
		t.Errorf("summary = %+v", s)
	}
}

type stubSink struct {
	name  string
	err   error
	calls int
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Publish(ctx context.Context, rep *model.RunReport) error {
	s.calls++
	return s.err
}

func TestDispatchIsolatesFailures(t *testing.T) {
	ok := &stubSink{name: "ok"}
	bad := &stubSink{name: "bad", err: errors.New("boom")}
	after := &stubSink{name: "after"}

	rep := Aggregate(plan(), "r1", nil, time.Now(), time.Now(), false)
	warnings := Dispatch(context.Background(), rep, []Sink{ok, bad, after})

	if len(warnings) != 1 || warnings[0].Sink != "bad" {
		t.Errorf("warnings = %v", warnings)
	}
	if ok.calls != 1 || bad.calls != 1 || after.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want each sink invoked once", ok.calls, bad.calls, after.calls)
	}
}

func TestRenderMarkdown(t *testing.T) {
	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	rep := &model.RunReport{
		RunID:      "r1",
		TestCaseID: "VPL-42",
		Overall:    model.RunFailed,
		StartedAt:  started,
		EndedAt:    started.Add(3 * time.Second),
		Results: []model.StepResult{
			{StepIndex: 1, Status: model.StatusPassed, Attempts: 1},
			{StepIndex: 2, Status: model.StatusFailed, Attempts: 2, ErrorDetail: "bad | pipe", ArtifactRefs: []string{"a.png"}},
		},
	}
	md := RenderMarkdown(rep)
	if !strings.Contains(md, "# Test run VPL-42 — FAILED") {
		t.Errorf("header missing:\n%s", md)
	}
	if !strings.Contains(md, "2 steps: 1 passed, 1 failed") {
		t.Errorf("summary missing:\n%s", md)
	}
	if !strings.Contains(md, `bad \| pipe`) {
		t.Errorf("pipe not escaped in table:\n%s", md)
	}
	if !strings.Contains(md, "1 artifact(s)") {
		t.Errorf("artifact count missing:\n%s", md)
	}
}

func TestRenderText(t *testing.T) {
	rep := &model.RunReport{
		RunID:      "r1",
		TestCaseID: "VPL-42",
		Overall:    model.RunPassed,
		Results: []model.StepResult{
			{StepIndex: 1, Status: model.StatusPassed, Attempts: 1, ArtifactRefs: []string{"artifacts/shot.png"}},
			{StepIndex: 2, Status: model.StatusError, Attempts: 3, ErrorDetail: strings.Repeat("long detail ", 30)},
		},
	}
	text := RenderText(rep)
	if !strings.Contains(text, "artifact: artifacts/shot.png") {
		t.Errorf("artifact line missing:\n%s", text)
	}
	for _, line := range strings.Split(text, "\n") {
		if len([]rune(line)) > 121 {
			t.Errorf("line exceeds width cap: %q", line)
		}
	}
}
