// Package backend defines the Capability interface implemented by each
// execution backend, plus the router that selects one per step.
package backend

import (
	"context"
	"fmt"

	"github.com/arvelex/veriplan/pkg/model"
)

// Outcome is the raw result of one execution attempt. The orchestrator, not
// the capability, turns it into a terminal step status: a non-nil error from
// Run is a transient backend fault (ERROR), Failed is a backend-asserted
// assertion failure (FAILED), and everything else is judged against the
// step's expected text.
type Outcome struct {
	Output   string
	Captures map[string]string
	Failed   bool
	Detail   string
}

// Capability executes steps against one backend. Instances are owned by a
// single run and must be released on every exit path.
type Capability interface {
	// Run executes one attempt of a step. The context bounds the attempt.
	Run(ctx context.Context, step model.Step) (*Outcome, error)

	// CaptureArtifact collects a diagnostic artifact (screenshot, log
	// snapshot) and returns an opaque reference, or "" when the backend
	// has nothing to offer.
	CaptureArtifact(ctx context.Context) (string, error)

	// Release closes the backend session. Safe to call more than once.
	Release() error
}

// Factory opens a capability for one run.
type Factory func(ctx context.Context) (Capability, error)

// RoutingError reports that no backend exists for a step's target kind.
// The orchestrator converts it to a step-level ERROR; it never crashes a run.
type RoutingError struct {
	StepIndex int
	Kind      model.TargetKind
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no backend for step %d (target %q)", e.StepIndex, e.Kind)
}
