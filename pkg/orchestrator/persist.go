package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/arvelex/veriplan/pkg/model"
	"gopkg.in/yaml.v3"
)

// saveSnapshot writes the current run state as a per-step JSON snapshot, so
// an interrupted run leaves a usable record of everything that completed.
func (e *Engine) saveSnapshot() error {
	path := filepath.Join(e.BaseDir, "snapshots", fmt.Sprintf("step-%04d.json", e.state.CurrentStepIndex))
	data, err := json.MarshalIndent(e.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// writeManifest persists run.yaml once the report is final.
func (e *Engine) writeManifest(rep *model.RunReport) error {
	manifest := RunManifest{
		RunID:      rep.RunID,
		TestCaseID: rep.TestCaseID,
		Overall:    rep.Overall,
		StartedAt:  rep.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		EndedAt:    rep.EndedAt.Format("2006-01-02T15:04:05Z07:00"),
		Steps:      rep.Summarize(),
	}
	for _, r := range rep.Results {
		manifest.Artifacts = append(manifest.Artifacts, r.ArtifactRefs...)
	}
	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(e.BaseDir, "run.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadReport reconstructs a RunReport from a run directory's manifest and
// trace. The trace may contain several events per step after retries within
// a resumed run; the last event wins.
func LoadReport(runDir string) (*model.RunReport, error) {
	m, err := LoadManifest(runDir)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(runDir, "trace.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	byIndex := make(map[int]model.StepResult)
	var order []int
	dec := json.NewDecoder(f)
	for dec.More() {
		var evt TraceEvent
		if err := dec.Decode(&evt); err != nil {
			return nil, fmt.Errorf("parse trace: %w", err)
		}
		if evt.Type != "step_result" || evt.Result == nil {
			continue
		}
		if _, seen := byIndex[evt.Result.StepIndex]; !seen {
			order = append(order, evt.Result.StepIndex)
		}
		byIndex[evt.Result.StepIndex] = *evt.Result
	}

	rep := &model.RunReport{
		RunID:      m.RunID,
		TestCaseID: m.TestCaseID,
		Overall:    m.Overall,
	}
	rep.StartedAt, _ = time.Parse(time.RFC3339, m.StartedAt)
	rep.EndedAt, _ = time.Parse(time.RFC3339, m.EndedAt)
	for _, idx := range order {
		rep.Results = append(rep.Results, byIndex[idx])
	}
	sort.Slice(rep.Results, func(i, j int) bool {
		return rep.Results[i].StepIndex < rep.Results[j].StepIndex
	})
	return rep, nil
}

// LoadManifest reads a run.yaml back from a run directory.
func LoadManifest(runDir string) (*RunManifest, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "run.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m RunManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
