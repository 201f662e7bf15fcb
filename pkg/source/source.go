// Package source fetches test cases and tabular test data from their systems
// of record. The resolver consumes its output; nothing here executes steps.
package source

import (
	"context"

	"github.com/arvelex/veriplan/pkg/resolver"
)

// Case is a test case as fetched from the issue tracker.
type Case struct {
	ID            string
	Summary       string
	Project       string
	Steps         []resolver.CaseStep
	AttachmentURL string // first tabular attachment, "" when none
}

// IssueSource fetches a test case by its tracker id.
type IssueSource interface {
	FetchCase(ctx context.Context, id string) (*Case, error)
}

// TabularSource fetches test-data rows for a case.
type TabularSource interface {
	FetchRows(ctx context.Context, caseID string) ([]resolver.Row, error)
}
