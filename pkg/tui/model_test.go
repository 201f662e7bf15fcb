package tui

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arvelex/veriplan/pkg/model"
	"github.com/arvelex/veriplan/pkg/orchestrator"
)

func watchPlan() *model.Plan {
	return &model.Plan{
		TestCaseID: "VPL-42",
		Steps: []model.Step{
			{Index: 1, Description: "log in", Target: model.TargetWeb},
			{Index: 2, Description: "read log", Target: model.TargetEmbedded},
		},
	}
}

func TestModelInitFromPlan(t *testing.T) {
	m := NewModel(watchPlan(), "trace.jsonl")
	if len(m.steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(m.steps))
	}
	if m.steps[0].Description != "log in" || m.steps[0].Status != model.StatusPending {
		t.Errorf("step[0] = %+v", m.steps[0])
	}
	if m.status != "waiting" {
		t.Errorf("status = %q, want waiting", m.status)
	}
}

func TestModelTracksStepResults(t *testing.T) {
	m := NewModel(watchPlan(), "trace.jsonl")

	start := time.Now()
	m.applyEvent(orchestrator.TraceEvent{
		Type: "step_result",
		Result: &model.StepResult{
			StepIndex: 1, Status: model.StatusPassed, Attempts: 2,
			StartedAt: start, EndedAt: start.Add(100 * time.Millisecond),
		},
	})
	if m.steps[0].Status != model.StatusPassed || m.steps[0].Attempts != 2 {
		t.Errorf("step[0] = %+v", m.steps[0])
	}
	if m.steps[0].Duration.Milliseconds() != 100 {
		t.Errorf("duration = %v, want 100ms", m.steps[0].Duration)
	}
	if m.status != "running" {
		t.Errorf("status = %q, want running", m.status)
	}

	m.applyEvent(orchestrator.TraceEvent{
		Type: "step_result",
		Result: &model.StepResult{
			StepIndex: 2, Status: model.StatusFailed, Attempts: 1,
			ErrorDetail: "verdict fail",
		},
	})
	if m.status != "done" || m.overall != model.RunFailed {
		t.Errorf("status = %q overall = %q, want done/failed", m.status, m.overall)
	}
	if m.steps[1].Detail != "verdict fail" {
		t.Errorf("detail = %q", m.steps[1].Detail)
	}
}

func TestTraceTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	tail := newTraceTail(path)

	// Missing file is fine before the run starts.
	events, err := tail.next()
	if err != nil || events != nil {
		t.Fatalf("next before file = %v, %v", events, err)
	}

	line := `{"type":"step_result","run_id":"r1","result":{"step_index":1,"status":"passed","attempts":1,"started_at":"2026-03-14T10:00:00Z","ended_at":"2026-03-14T10:00:01Z"}}` + "\n"
	if err := os.WriteFile(path, []byte(line), 0644); err != nil {
		t.Fatal(err)
	}
	events, err = tail.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(events) != 1 || events[0].Result.StepIndex != 1 {
		t.Fatalf("events = %+v", events)
	}

	// Appended lines only; previously read events are not replayed.
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	f.WriteString(`{"type":"step_result","run_id":"r1","result":{"step_index":2,"status":"failed","attempts":1}}` + "\n")
	f.Close()
	events, err = tail.next()
	if err != nil || len(events) != 1 {
		t.Fatalf("incremental read = %+v, %v", events, err)
	}
	if events[0].Result.StepIndex != 2 {
		t.Errorf("event = %+v, want step 2", events[0])
	}
}
