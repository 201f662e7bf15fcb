// Package resolver normalizes heterogeneous test-plan sources — issue-tracker
// case steps plus optional tabular test data — into one canonical Plan.
package resolver

import (
	"fmt"
	"strings"

	"github.com/arvelex/veriplan/pkg/model"
)

// CaseStep is one description/expected pair as fetched from the issue tracker.
type CaseStep struct {
	Description string
	Expected    string
}

// Row is one record of tabular test data keyed by test case id.
type Row struct {
	CaseID     string
	Target     string
	Expected   string
	Parameters map[string]string
}

// ResolutionError reports an empty or unresolvable plan. Fatal before any
// step executes.
type ResolutionError struct {
	TestCaseID string
	Message    string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %s", e.TestCaseID, e.Message)
}

// Resolve merges case steps with tabular rows into a Plan.
//
// Rows are first filtered to those whose CaseID equals testCaseID, then
// joined to steps by position — never by text similarity. Surplus rows are
// ignored; steps beyond the last row keep empty parameters. A plan is always
// executable with partial data, never blocked by it.
func Resolve(testCaseID string, caseSteps []CaseStep, rows []Row) (*model.Plan, error) {
	if testCaseID == "" {
		return nil, &ResolutionError{TestCaseID: testCaseID, Message: "test case id must not be empty"}
	}
	if len(caseSteps) == 0 {
		return nil, &ResolutionError{TestCaseID: testCaseID, Message: "no test steps found"}
	}

	matched := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.CaseID == testCaseID {
			matched = append(matched, r)
		}
	}

	plan := &model.Plan{TestCaseID: testCaseID, Steps: make([]model.Step, 0, len(caseSteps))}
	for i, cs := range caseSteps {
		desc, target, precondition := ParseMarkers(cs.Description)

		step, err := model.NewStep(i, desc, target)
		if err != nil {
			return nil, err
		}
		step.Expected = cs.Expected
		step.Precondition = precondition

		if i < len(matched) {
			row := matched[i]
			if len(row.Parameters) > 0 {
				step.Parameters = make(map[string]string, len(row.Parameters))
				for k, v := range row.Parameters {
					step.Parameters[k] = v
				}
			}
			if row.Expected != "" {
				step.Expected = row.Expected
			}
			if kind, ok := classify(row.Target); ok {
				step.Target = kind
			}
		}

		plan.Steps = append(plan.Steps, step)
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// ParseMarkers strips leading [marker] tags from a step description and
// returns the cleaned text, the target kind they select, and whether the
// step is a hard precondition. Unrecognized markers yield TargetUnknown;
// text without any target marker does too — a step's backend is declared,
// never inferred.
func ParseMarkers(description string) (desc string, target model.TargetKind, precondition bool) {
	desc = strings.TrimSpace(description)
	target = model.TargetUnknown

	for strings.HasPrefix(desc, "[") {
		end := strings.Index(desc, "]")
		if end < 0 {
			break
		}
		marker := strings.ToLower(strings.TrimSpace(desc[1:end]))
		desc = strings.TrimSpace(desc[end+1:])

		if kind, ok := classify(marker); ok {
			target = kind
			continue
		}
		switch marker {
		case "setup", "login", "precondition":
			precondition = true
		default:
			// Unrecognized marker: the step stays UNKNOWN unless another
			// marker resolves it. The marker itself is already consumed.
		}
	}
	return desc, target, precondition
}

// classify maps a marker or row target value to a TargetKind.
func classify(marker string) (model.TargetKind, bool) {
	switch strings.ToLower(strings.TrimSpace(marker)) {
	case "web", "browser", "portal":
		return model.TargetWeb, true
	case "dut", "embedded", "firmware", "device":
		return model.TargetEmbedded, true
	}
	return model.TargetUnknown, false
}
