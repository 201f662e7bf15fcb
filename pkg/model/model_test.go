package model

import (
	"errors"
	"testing"
	"time"
)

func TestNewStep(t *testing.T) {
	s, err := NewStep(0, "open page", TargetWeb)
	if err != nil {
		t.Fatalf("NewStep: %v", err)
	}
	if s.Target != TargetWeb || s.Description != "open page" {
		t.Errorf("step = %+v", s)
	}

	var verr *ValidationError
	if _, err := NewStep(-1, "x", TargetWeb); !errors.As(err, &verr) {
		t.Errorf("negative index: err = %v", err)
	}
	if _, err := NewStep(0, "", TargetWeb); !errors.As(err, &verr) {
		t.Errorf("empty description: err = %v", err)
	}

	s, err = NewStep(0, "x", "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Target != TargetUnknown {
		t.Errorf("empty target = %s, want unknown", s.Target)
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusPassed, StatusFailed, StatusError, StatusSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestPlanValidate(t *testing.T) {
	valid := &Plan{TestCaseID: "VPL-1", Steps: []Step{
		{Index: 0, Description: "a"},
		{Index: 1, Description: "b"},
	}}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid plan rejected: %v", err)
	}

	cases := []struct {
		name string
		plan *Plan
	}{
		{"empty id", &Plan{Steps: []Step{{Index: 0, Description: "a"}}}},
		{"no steps", &Plan{TestCaseID: "VPL-1"}},
		{"duplicate index", &Plan{TestCaseID: "VPL-1", Steps: []Step{
			{Index: 0, Description: "a"}, {Index: 0, Description: "b"},
		}}},
		{"decreasing index", &Plan{TestCaseID: "VPL-1", Steps: []Step{
			{Index: 2, Description: "a"}, {Index: 1, Description: "b"},
		}}},
		{"blank description", &Plan{TestCaseID: "VPL-1", Steps: []Step{
			{Index: 0, Description: ""},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.plan.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTimeoutDuration(t *testing.T) {
	s := Step{Index: 0, Description: "x", Timeout: "90s"}
	d, err := s.TimeoutDuration()
	if err != nil || d != 90*time.Second {
		t.Errorf("TimeoutDuration = %v, %v", d, err)
	}

	s.Timeout = ""
	if d, err := s.TimeoutDuration(); err != nil || d != 0 {
		t.Errorf("unset timeout = %v, %v", d, err)
	}

	s.Timeout = "soon"
	if _, err := s.TimeoutDuration(); err == nil {
		t.Error("expected error for bad timeout")
	}
}

func TestSummarize(t *testing.T) {
	r := &RunReport{Results: []StepResult{
		{Status: StatusPassed},
		{Status: StatusPassed},
		{Status: StatusFailed},
		{Status: StatusError},
		{Status: StatusSkipped},
	}}
	s := r.Summarize()
	if s.Total != 5 || s.Passed != 2 || s.Failed != 1 || s.Errored != 1 || s.Skipped != 1 {
		t.Errorf("summary = %+v", s)
	}
}
