// Package prompt turns free-form operator requests into structured test
// invocations using an LLM, with a deterministic fast path for inputs that
// are already a tracker id.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Invocation is what an operator asked for, normalized.
type Invocation struct {
	Action  string `json:"action"`  // run | resolve | report
	Project string `json:"project"` // tracker project key, may be empty
	CaseID  string `json:"case_id"` // full tracker id, e.g. VPL-42
}

// caseIDRe matches a bare tracker id, e.g. "VPL-42".
var caseIDRe = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}-\d+$`)

// embeddedIDRe finds a tracker id inside a longer utterance.
var embeddedIDRe = regexp.MustCompile(`\b([A-Z][A-Z0-9]{1,9})-(\d+)\b`)

const systemPrompt = `You convert QA operator requests into a JSON invocation.
Respond with ONLY a JSON object, no prose, shaped exactly like:
{"action": "run", "project": "VPL", "case_id": "VPL-42"}
action is one of: run, resolve, report. If the request names a test case id,
copy it verbatim into case_id and its project prefix into project. If a field
is unknown, use an empty string.`

// Interpreter resolves operator utterances via a model. MaxAsks bounds the
// number of corrective re-asks after a malformed response.
type Interpreter struct {
	Model   llms.Model
	MaxAsks int
}

// NewInterpreter wires an interpreter with the default re-ask budget.
func NewInterpreter(model llms.Model) *Interpreter {
	return &Interpreter{Model: model, MaxAsks: 3}
}

// Interpret normalizes an utterance into an Invocation. A bare tracker id
// never reaches the model.
func (in *Interpreter) Interpret(ctx context.Context, utterance string) (*Invocation, error) {
	trimmed := strings.TrimSpace(utterance)
	if caseIDRe.MatchString(trimmed) {
		return &Invocation{
			Action:  "run",
			Project: trimmed[:strings.Index(trimmed, "-")],
			CaseID:  trimmed,
		}, nil
	}

	asks := in.MaxAsks
	if asks < 1 {
		asks = 1
	}
	userPrompt := trimmed
	var lastErr error
	for i := 0; i < asks; i++ {
		resp, err := llms.GenerateFromSinglePrompt(ctx, in.Model,
			systemPrompt+"\n\nRequest: "+userPrompt)
		if err != nil {
			return nil, fmt.Errorf("interpret request: %w", err)
		}
		inv, err := parseInvocation(resp)
		if err != nil {
			lastErr = err
			userPrompt = trimmed + "\n\nYour previous reply was not valid JSON (" +
				err.Error() + "). Reply with only the JSON object."
			continue
		}
		fillFromUtterance(inv, trimmed)
		return inv, nil
	}
	return nil, fmt.Errorf("interpret request: model never produced a valid invocation: %w", lastErr)
}

// parseInvocation decodes the model reply, tolerating a wrapping code fence.
func parseInvocation(resp string) (*Invocation, error) {
	cleaned := stripOuterCodeFence(resp)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	var inv Invocation
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &inv); err != nil {
		return nil, fmt.Errorf("decode invocation: %w", err)
	}
	switch inv.Action {
	case "run", "resolve", "report":
	case "":
		inv.Action = "run"
	default:
		return nil, fmt.Errorf("unknown action %q", inv.Action)
	}
	return &inv, nil
}

// fillFromUtterance backfills the case id from the raw request when the
// model dropped it, and the project from the case id prefix.
func fillFromUtterance(inv *Invocation, utterance string) {
	if inv.CaseID == "" {
		if m := embeddedIDRe.FindString(utterance); m != "" {
			inv.CaseID = m
		}
	}
	if inv.Project == "" && inv.CaseID != "" {
		if idx := strings.Index(inv.CaseID, "-"); idx > 0 {
			inv.Project = inv.CaseID[:idx]
		}
	}
}

// stripOuterCodeFence removes a wrapping ```...``` code fence if present.
func stripOuterCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.Index(trimmed, "\n"); idx != -1 {
			trimmed = trimmed[idx+1:]
		}
		if last := strings.LastIndex(trimmed, "```"); last != -1 {
			trimmed = trimmed[:last]
		}
	}
	return trimmed
}
