// Package store publishes finished runs to durable storage. Every store is a
// report sink; the run directory on disk stays the source of truth.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arvelex/veriplan/pkg/model"
	"github.com/arvelex/veriplan/pkg/report"
)

// LocalStore exports a run's report into a directory, one subdirectory per
// run id, as report.json and report.md.
type LocalStore struct {
	Dir string
}

func (s *LocalStore) Name() string { return "local" }

// Publish writes the rendered report files.
func (s *LocalStore) Publish(ctx context.Context, rep *model.RunReport) error {
	dir := filepath.Join(s.Dir, rep.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.json"), data, 0644); err != nil {
		return fmt.Errorf("write report.json: %w", err)
	}
	md := report.RenderMarkdown(rep)
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(md), 0644); err != nil {
		return fmt.Errorf("write report.md: %w", err)
	}
	return nil
}
