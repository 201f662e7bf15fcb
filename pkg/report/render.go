package report

import (
	"fmt"
	"strings"

	runewidth "github.com/mattn/go-runewidth"

	"github.com/arvelex/veriplan/pkg/model"
)

// RenderMarkdown formats a report as markdown, suitable for issue comments,
// mail bodies and terminal rendering.
func RenderMarkdown(r *model.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Test run %s — %s\n\n", r.TestCaseID, strings.ToUpper(string(r.Overall)))
	fmt.Fprintf(&b, "Run `%s`, %s → %s (%s)\n\n",
		r.RunID,
		r.StartedAt.Format("2006-01-02 15:04:05"),
		r.EndedAt.Format("15:04:05"),
		r.EndedAt.Sub(r.StartedAt).Round(1e6))

	s := r.Summarize()
	fmt.Fprintf(&b, "%d steps: %d passed, %d failed, %d errored, %d skipped\n\n",
		s.Total, s.Passed, s.Failed, s.Errored, s.Skipped)

	b.WriteString("| # | Status | Attempts | Detail |\n")
	b.WriteString("|---|--------|----------|--------|\n")
	for _, res := range r.Results {
		detail := res.ErrorDetail
		if len(res.ArtifactRefs) > 0 {
			if detail != "" {
				detail += " — "
			}
			detail += fmt.Sprintf("%d artifact(s)", len(res.ArtifactRefs))
		}
		fmt.Fprintf(&b, "| %d | %s | %d | %s |\n",
			res.StepIndex, statusGlyph(res.Status)+" "+string(res.Status), res.Attempts,
			strings.ReplaceAll(detail, "|", "\\|"))
	}

	return b.String()
}

// RenderText formats a report as a plain fixed-width table for terminals and
// mail clients that do not render markdown.
func RenderText(r *model.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Test run %s — %s (run %s)\n", r.TestCaseID, strings.ToUpper(string(r.Overall)), r.RunID)
	s := r.Summarize()
	fmt.Fprintf(&b, "%d steps: %d passed, %d failed, %d errored, %d skipped\n\n",
		s.Total, s.Passed, s.Failed, s.Errored, s.Skipped)

	for _, res := range r.Results {
		line := fmt.Sprintf("  %s step %-3d %-8s attempts=%d", statusGlyph(res.Status), res.StepIndex, res.Status, res.Attempts)
		if res.ErrorDetail != "" {
			line += "  " + res.ErrorDetail
		}
		b.WriteString(runewidth.Truncate(line, 120, "…"))
		b.WriteString("\n")
		for _, ref := range res.ArtifactRefs {
			fmt.Fprintf(&b, "      artifact: %s\n", ref)
		}
	}
	return b.String()
}

func statusGlyph(s model.Status) string {
	switch s {
	case model.StatusPassed:
		return "✓"
	case model.StatusFailed:
		return "✗"
	case model.StatusError:
		return "!"
	case model.StatusSkipped:
		return "⊘"
	case model.StatusRunning:
		return "◉"
	default:
		return "○"
	}
}
