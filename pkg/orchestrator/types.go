// Package orchestrator drives a Plan against routed backends: sequencing,
// retries, timeouts, abort-on-fatal, artifact capture.
package orchestrator

import (
	"time"

	"github.com/arvelex/veriplan/pkg/model"
)

// BackoffKind selects how the delay between retry attempts grows.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// maxBackoff caps the exponential schedule.
const maxBackoff = time.Minute

// RetryPolicy controls per-step retry behavior. The zero value is normalized
// to one attempt, fixed backoff, retry on ERROR only. FAILED is an assertion
// mismatch, not a transient fault, and is never retried unless RetryOn says
// so explicitly.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffKind
	Interval    time.Duration
	RetryOn     []model.Status
	StepTimeout time.Duration // default per-attempt bound; 0 = unbounded
}

// normalize fills defaults in place.
func (p *RetryPolicy) normalize() {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Backoff == "" {
		p.Backoff = BackoffFixed
	}
	if p.Interval <= 0 {
		p.Interval = 2 * time.Second
	}
	if p.RetryOn == nil {
		p.RetryOn = []model.Status{model.StatusError}
	}
}

// retryable reports whether a terminal attempt status is eligible for retry.
func (p RetryPolicy) retryable(s model.Status) bool {
	for _, r := range p.RetryOn {
		if r == s {
			return true
		}
	}
	return false
}

// delay returns how long to wait after the given attempt number (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff != BackoffExponential {
		return p.Interval
	}
	d := p.Interval
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// GateDecision is the operator's choice at an interactive step gate.
type GateDecision int

const (
	GateContinue GateDecision = iota
	GateSkip
	GateAbort
)

// GateFunc is consulted before each step when the run is interactive.
type GateFunc func(step model.Step) (GateDecision, error)

// RunState is the execution state snapshotted after every step boundary.
type RunState struct {
	RunID            string             `json:"run_id"`
	TestCaseID       string             `json:"test_case_id"`
	StartedAt        time.Time          `json:"started_at"`
	CurrentStepIndex int                `json:"current_step_index"`
	Results          []model.StepResult `json:"results"`
}

// TraceEvent wraps a StepResult for JSONL trace output.
type TraceEvent struct {
	Type      string            `json:"type"` // step_result
	Timestamp time.Time         `json:"timestamp"`
	RunID     string            `json:"run_id"`
	Result    *model.StepResult `json:"result"`
}

// RunManifest records the complete metadata for a plan execution.
// Written as run.yaml once the run completes or aborts.
type RunManifest struct {
	RunID      string          `yaml:"run_id"`
	TestCaseID string          `yaml:"test_case_id"`
	Overall    model.RunStatus `yaml:"overall"`
	StartedAt  string          `yaml:"started_at"`
	EndedAt    string          `yaml:"ended_at"`
	Steps      model.Summary   `yaml:"steps"`
	Artifacts  []string        `yaml:"artifacts,omitempty"`
}
