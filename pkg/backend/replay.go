package backend

import (
	"context"
	"fmt"

	"github.com/arvelex/veriplan/pkg/model"
)

// ScriptedOutcome is one pre-recorded attempt result for a ReplayCapability.
type ScriptedOutcome struct {
	Output   string
	Captures map[string]string
	Failed   bool
	Detail   string
	Err      error
}

// ReplayCapability replays scripted outcomes in order. Used by tests and by
// replay fixtures; once the script is exhausted the last entry repeats.
type ReplayCapability struct {
	Script   []ScriptedOutcome
	Artifact string // returned by CaptureArtifact, "" disables capture

	calls    int
	released bool
}

// Run pops the next scripted outcome.
func (c *ReplayCapability) Run(ctx context.Context, step model.Step) (*Outcome, error) {
	if len(c.Script) == 0 {
		return nil, fmt.Errorf("replay: empty script for step %d", step.Index)
	}
	i := c.calls
	if i >= len(c.Script) {
		i = len(c.Script) - 1
	}
	c.calls++

	s := c.Script[i]
	if s.Err != nil {
		return nil, s.Err
	}
	return &Outcome{Output: s.Output, Captures: s.Captures, Failed: s.Failed, Detail: s.Detail}, nil
}

// Calls reports how many attempts ran against this capability.
func (c *ReplayCapability) Calls() int { return c.calls }

// Released reports whether the run closed this capability.
func (c *ReplayCapability) Released() bool { return c.released }

func (c *ReplayCapability) CaptureArtifact(ctx context.Context) (string, error) {
	return c.Artifact, nil
}

func (c *ReplayCapability) Release() error {
	c.released = true
	return nil
}

// DryRunCapability acknowledges every step without touching any backend.
// Paired with the orchestrator's dry-run mode, which skips expectation
// checks against the placeholder output.
type DryRunCapability struct{}

func (DryRunCapability) Run(ctx context.Context, step model.Step) (*Outcome, error) {
	return &Outcome{Output: "<dry-run>"}, nil
}

func (DryRunCapability) CaptureArtifact(ctx context.Context) (string, error) { return "", nil }

func (DryRunCapability) Release() error { return nil }
