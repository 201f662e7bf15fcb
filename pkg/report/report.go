// Package report folds per-step outcomes into a RunReport and hands it to
// external sinks (issue update, artifact upload, notification).
package report

import (
	"time"

	"github.com/arvelex/veriplan/pkg/model"
)

// Aggregate builds the run-level report from finalized step results. It is a
// pure fold: step outcomes are never recomputed here.
//
// Overall status: ABORTED when the run was cut short, PASSED when every step
// passed, FAILED otherwise.
func Aggregate(plan *model.Plan, runID string, results []model.StepResult, startedAt, endedAt time.Time, aborted bool) *model.RunReport {
	report := &model.RunReport{
		RunID:      runID,
		TestCaseID: plan.TestCaseID,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Results:    results,
	}

	switch {
	case aborted:
		report.Overall = model.RunAborted
	case allPassed(results):
		report.Overall = model.RunPassed
	default:
		report.Overall = model.RunFailed
	}
	return report
}

func allPassed(results []model.StepResult) bool {
	for _, r := range results {
		if r.Status != model.StatusPassed {
			return false
		}
	}
	return len(results) > 0
}
