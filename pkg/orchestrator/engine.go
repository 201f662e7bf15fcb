package orchestrator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/arvelex/veriplan/pkg/backend"
	"github.com/arvelex/veriplan/pkg/expect"
	"github.com/arvelex/veriplan/pkg/model"
	"github.com/arvelex/veriplan/pkg/report"
)

// DefaultRunsRoot is where run directories are created unless overridden.
const DefaultRunsRoot = ".veriplan/runs"

// defaultArtifactTimeout bounds artifact capture so a wedged backend cannot
// stall the run after the step verdict is already known.
const defaultArtifactTimeout = 30 * time.Second

// GenerateRunID creates a run ID in format YYYYMMDDTHHmmss-xxxx.
func GenerateRunID() string {
	ts := time.Now().Format("20060102T150405")
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}

// Engine drives one Plan execution. It owns the step sequence, the retry
// loop, artifact capture, trace and snapshot persistence, and the router's
// capability lifecycle. One Engine per run; not reusable.
type Engine struct {
	Plan     *model.Plan
	Router   *backend.Router
	Policy   RetryPolicy
	RunID    string
	BaseDir  string // <runs root>/<run_id>/
	Trace    *TraceWriter
	Gate     GateFunc  // nil = non-interactive
	DryRun   bool      // skip expectation evaluation
	Progress io.Writer // human progress lines; nil = discard

	// Sleep is called between retry attempts. Overridable for tests.
	Sleep func(time.Duration)

	state RunState
}

// NewEngine validates the plan and prepares the run directory layout
// (artifacts/, snapshots/, trace.jsonl) under root, which defaults to
// DefaultRunsRoot.
func NewEngine(plan *model.Plan, router *backend.Router, policy RetryPolicy, root string) (*Engine, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	policy.normalize()
	if root == "" {
		root = DefaultRunsRoot
	}
	runID := GenerateRunID()
	baseDir := filepath.Join(root, runID)
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "artifacts"), filepath.Join(baseDir, "snapshots")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create run directory: %w", err)
		}
	}
	trace, err := NewTraceWriter(filepath.Join(baseDir, "trace.jsonl"), runID)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Plan:    plan,
		Router:  router,
		Policy:  policy,
		RunID:   runID,
		BaseDir: baseDir,
		Trace:   trace,
		Sleep:   time.Sleep,
		state: RunState{
			RunID:      runID,
			TestCaseID: plan.TestCaseID,
		},
	}, nil
}

// ArtifactDir is where backends should write captured artifacts.
func (e *Engine) ArtifactDir() string {
	return filepath.Join(e.BaseDir, "artifacts")
}

// Execute runs the plan to completion or abort. Cancellation is honored at
// step boundaries only: the in-flight attempt finishes (or times out) before
// the remaining steps are marked SKIPPED. Capabilities are released on every
// exit path. The returned report carries exactly one result per plan step.
func (e *Engine) Execute(ctx context.Context) (*model.RunReport, error) {
	started := time.Now()
	e.state.StartedAt = started
	defer func() {
		if err := e.Router.ReleaseAll(); err != nil {
			e.progressf("warning: %v\n", err)
		}
		if e.Trace != nil {
			e.Trace.Close()
		}
	}()

	aborted := false
	for _, step := range e.Plan.Steps {
		if !aborted && ctx.Err() != nil {
			aborted = true
			e.progressf("run canceled before step %d\n", step.Index)
		}
		if aborted {
			e.record(skippedResult(step))
			continue
		}
		if decision, err := e.consultGate(step); err != nil || decision == GateAbort {
			if err != nil {
				e.progressf("step gate: %v\n", err)
			}
			aborted = true
			e.record(skippedResult(step))
			continue
		} else if decision == GateSkip {
			e.record(skippedResult(step))
			continue
		}

		e.progressf("▶ step %d: %s\n", step.Index, step.Description)
		result, fatal := e.executeStep(ctx, step)
		e.record(result)
		e.progressf("  %s step %d (%d attempt(s))%s\n",
			statusMark(result.Status), step.Index, result.Attempts, detailSuffix(result))
		if fatal {
			aborted = true
		}
	}

	ended := time.Now()
	rep := report.Aggregate(e.Plan, e.RunID, e.state.Results, started, ended, aborted)
	if err := e.writeManifest(rep); err != nil {
		e.progressf("warning: write manifest: %v\n", err)
	}
	return rep, nil
}

// executeStep runs one step through the retry loop and returns its finalized
// result plus whether the run must abort (routing failure or a broken
// precondition).
func (e *Engine) executeStep(ctx context.Context, step model.Step) (model.StepResult, bool) {
	result := model.StepResult{
		StepIndex: step.Index,
		StartedAt: time.Now(),
	}

	kind, err := e.Router.Route(step)
	if err != nil {
		// Unroutable work is a plan defect, not a step flake. Fatal.
		result.Status = model.StatusError
		result.Attempts = 1
		result.ErrorDetail = err.Error()
		result.EndedAt = time.Now()
		return result, true
	}

	var outcome *backend.Outcome
	for attempt := 1; ; attempt++ {
		result.Attempts = attempt
		var status model.Status
		var detail string
		status, detail, outcome = e.runAttempt(ctx, kind, step)
		result.Status = status
		result.ErrorDetail = detail
		if status == model.StatusPassed || attempt >= e.Policy.MaxAttempts || !e.Policy.retryable(status) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		delay := e.Policy.delay(attempt)
		e.progressf("  ↻ step %d attempt %d ended %s: %s (retrying in %s)\n",
			step.Index, attempt, status, detail, delay)
		e.Sleep(delay)
	}
	if outcome != nil {
		result.Output = outcome.Output
	}

	if result.Status == model.StatusFailed || result.Status == model.StatusError {
		e.captureArtifact(kind, &result)
	}
	result.EndedAt = time.Now()

	fatal := step.Precondition && result.Status != model.StatusPassed
	if fatal {
		e.progressf("  precondition step %d did not pass, aborting run\n", step.Index)
	}
	return result, fatal
}

// runAttempt performs a single bounded attempt and classifies its outcome.
// A transport or backend error is ERROR, a backend-declared failure or an
// expectation mismatch is FAILED, and an expectation that cannot be
// evaluated is ERROR.
func (e *Engine) runAttempt(ctx context.Context, kind model.TargetKind, step model.Step) (model.Status, string, *backend.Outcome) {
	cap, err := e.Router.Acquire(ctx, kind)
	if err != nil {
		return model.StatusError, err.Error(), nil
	}

	timeout, err := step.TimeoutDuration()
	if err != nil {
		return model.StatusError, fmt.Sprintf("invalid timeout: %v", err), nil
	}
	if timeout <= 0 {
		timeout = e.Policy.StepTimeout
	}
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome, err := cap.Run(attemptCtx, step)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
			return model.StatusError, fmt.Sprintf("attempt timed out after %s", timeout), outcome
		}
		return model.StatusError, err.Error(), outcome
	}
	if outcome == nil {
		return model.StatusError, "backend returned no outcome", nil
	}
	if outcome.Failed {
		detail := outcome.Detail
		if detail == "" {
			detail = "backend reported failure"
		}
		return model.StatusFailed, detail, outcome
	}
	if e.DryRun || step.Expected == "" {
		return model.StatusPassed, "", outcome
	}
	eval, err := expect.Evaluate(step.Expected, outcome)
	if err != nil {
		return model.StatusError, fmt.Sprintf("evaluate expectation: %v", err), outcome
	}
	if !eval.Passed {
		return model.StatusFailed, eval.Message, outcome
	}
	return model.StatusPassed, "", outcome
}

// captureArtifact asks the step's backend for diagnostic evidence. Capture
// failures are logged and never change the step verdict.
func (e *Engine) captureArtifact(kind model.TargetKind, result *model.StepResult) {
	cap, ok := e.Router.Open(kind)
	if !ok {
		return
	}
	capCtx, cancel := context.WithTimeout(context.Background(), defaultArtifactTimeout)
	defer cancel()
	ref, err := cap.CaptureArtifact(capCtx)
	if err != nil {
		e.progressf("  warning: artifact capture for step %d failed: %v\n", result.StepIndex, err)
		return
	}
	if ref != "" {
		result.ArtifactRefs = append(result.ArtifactRefs, ref)
	}
}

// record appends a finalized result, traces it, and snapshots run state.
func (e *Engine) record(result model.StepResult) {
	e.state.Results = append(e.state.Results, result)
	e.state.CurrentStepIndex = result.StepIndex
	if e.Trace != nil {
		if err := e.Trace.Write(TraceEvent{Type: "step_result", Result: &result}); err != nil {
			e.progressf("warning: %v\n", err)
		}
	}
	if err := e.saveSnapshot(); err != nil {
		e.progressf("warning: %v\n", err)
	}
}

func (e *Engine) consultGate(step model.Step) (GateDecision, error) {
	if e.Gate == nil {
		return GateContinue, nil
	}
	return e.Gate(step)
}

func (e *Engine) progressf(format string, args ...any) {
	if e.Progress != nil {
		fmt.Fprintf(e.Progress, format, args...)
	}
}

// skippedResult builds the result for a step that never ran. Attempts stays
// zero and no error detail is recorded.
func skippedResult(step model.Step) model.StepResult {
	now := time.Now()
	return model.StepResult{
		StepIndex: step.Index,
		Status:    model.StatusSkipped,
		StartedAt: now,
		EndedAt:   now,
	}
}

func statusMark(s model.Status) string {
	switch s {
	case model.StatusPassed:
		return "✓"
	case model.StatusFailed:
		return "✗"
	case model.StatusError:
		return "!"
	default:
		return "·"
	}
}

func detailSuffix(r model.StepResult) string {
	if r.ErrorDetail == "" {
		return ""
	}
	return ": " + r.ErrorDetail
}
