// Package model defines the canonical data types shared by the resolver,
// the orchestrator and the report layer: Step, Plan, StepResult and RunReport.
package model

import (
	"fmt"
	"time"
)

// TargetKind classifies which execution backend a step belongs to.
type TargetKind string

const (
	TargetWeb      TargetKind = "web"
	TargetEmbedded TargetKind = "embedded"
	TargetUnknown  TargetKind = "unknown"
)

// Status is the lifecycle state of a single step.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status is final for a step.
func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusError, StatusSkipped:
		return true
	}
	return false
}

// RunStatus is the aggregate verdict over one plan execution.
type RunStatus string

const (
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
	RunAborted RunStatus = "aborted"
)

// Step is one unit of work inside a Plan.
type Step struct {
	Index        int               `yaml:"index"                  json:"index"`
	Description  string            `yaml:"description"            json:"description"            jsonschema:"required"`
	Target       TargetKind        `yaml:"target,omitempty"       json:"target,omitempty"       jsonschema:"enum=web,enum=embedded,enum=unknown"`
	Parameters   map[string]string `yaml:"parameters,omitempty"   json:"parameters,omitempty"`
	Expected     string            `yaml:"expected,omitempty"     json:"expected,omitempty"`
	Precondition bool              `yaml:"precondition,omitempty" json:"precondition,omitempty"`
	Timeout      string            `yaml:"timeout,omitempty"      json:"timeout,omitempty"      jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`
}

// NewStep builds a validated Step. The target defaults to TargetUnknown when
// empty; unknown targets are rejected later by the router, never here.
func NewStep(index int, description string, target TargetKind) (Step, error) {
	if index < 0 {
		return Step{}, &ValidationError{Path: fmt.Sprintf("steps[%d].index", index), Message: "index must not be negative"}
	}
	if description == "" {
		return Step{}, &ValidationError{Path: fmt.Sprintf("steps[%d].description", index), Message: "description must not be empty"}
	}
	if target == "" {
		target = TargetUnknown
	}
	return Step{Index: index, Description: description, Target: target}, nil
}

// TimeoutDuration parses the per-step timeout, returning 0 when unset.
func (s Step) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, &ValidationError{Path: fmt.Sprintf("steps[%d].timeout", s.Index), Message: err.Error()}
	}
	return d, nil
}

// Plan is the ordered, immutable sequence of steps for one test case.
// A re-run always constructs a fresh Plan; a running Plan is never mutated.
type Plan struct {
	TestCaseID string `yaml:"test_case_id" json:"test_case_id" jsonschema:"required"`
	Steps      []Step `yaml:"steps"        json:"steps"        jsonschema:"required"`
}

// Validate checks the Plan invariants: non-empty, step descriptions present,
// indices unique and monotonically increasing.
func (p *Plan) Validate() error {
	if p.TestCaseID == "" {
		return &ValidationError{Path: "test_case_id", Message: "test case id must not be empty"}
	}
	if len(p.Steps) == 0 {
		return &ValidationError{Path: "steps", Message: "plan must contain at least one step"}
	}
	prev := -1
	for i, s := range p.Steps {
		if s.Index < 0 {
			return &ValidationError{Path: fmt.Sprintf("steps[%d].index", i), Message: "index must not be negative"}
		}
		if s.Index <= prev {
			return &ValidationError{Path: fmt.Sprintf("steps[%d].index", i), Message: fmt.Sprintf("index %d is not increasing (previous %d)", s.Index, prev)}
		}
		if s.Description == "" {
			return &ValidationError{Path: fmt.Sprintf("steps[%d].description", i), Message: "description must not be empty"}
		}
		prev = s.Index
	}
	return nil
}

// StepResult is the finalized outcome of executing one Step.
// It is mutated only by the orchestrator goroutine driving the step and is
// read-only once the status is terminal.
type StepResult struct {
	StepIndex    int       `yaml:"step_index"              json:"step_index"`
	Status       Status    `yaml:"status"                  json:"status"`
	Attempts     int       `yaml:"attempts"                json:"attempts"`
	StartedAt    time.Time `yaml:"started_at"              json:"started_at"`
	EndedAt      time.Time `yaml:"ended_at"                json:"ended_at"`
	ArtifactRefs []string  `yaml:"artifact_refs,omitempty" json:"artifact_refs,omitempty"`
	ErrorDetail  string    `yaml:"error_detail,omitempty"  json:"error_detail,omitempty"`
	Output       string    `yaml:"-"                       json:"output,omitempty"`
}

// RunReport aggregates the StepResults of one Plan execution.
// Results are always in ascending step-index order. Never mutated after the
// aggregator builds it.
type RunReport struct {
	RunID      string       `yaml:"run_id"       json:"run_id"`
	TestCaseID string       `yaml:"test_case_id" json:"test_case_id"`
	Overall    RunStatus    `yaml:"overall"      json:"overall"`
	StartedAt  time.Time    `yaml:"started_at"   json:"started_at"`
	EndedAt    time.Time    `yaml:"ended_at"     json:"ended_at"`
	Results    []StepResult `yaml:"results"      json:"results"`
}

// Summary counts step results by terminal status.
type Summary struct {
	Total   int `yaml:"total"   json:"total"`
	Passed  int `yaml:"passed"  json:"passed"`
	Failed  int `yaml:"failed"  json:"failed"`
	Errored int `yaml:"errored" json:"errored"`
	Skipped int `yaml:"skipped" json:"skipped"`
}

// Summarize folds the report's results into per-status counts.
func (r *RunReport) Summarize() Summary {
	var s Summary
	for _, res := range r.Results {
		s.Total++
		switch res.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusError:
			s.Errored++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// ValidationError reports malformed Step or Plan input. Fatal to resolution,
// never retried.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
