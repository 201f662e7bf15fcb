package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arvelex/veriplan/pkg/resolver"
)

// Reserved header names. Every other column becomes a step parameter.
const (
	colCase     = "case"
	colTarget   = "target"
	colExpected = "expected"
)

// ParseRows reads tabular test data. The first record is the header; the
// case column keys rows to a test case, target and expected override the
// issue's values, and all remaining columns become parameters. Rows shorter
// than the header are padded, consistent with hand-edited spreadsheets.
func ParseRows(r io.Reader) ([]resolver.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse test data: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var rows []resolver.Row
	for _, record := range records[1:] {
		row := resolver.Row{Parameters: make(map[string]string)}
		for i, name := range header {
			var val string
			if i < len(record) {
				val = strings.TrimSpace(record[i])
			}
			switch name {
			case colCase:
				row.CaseID = val
			case colTarget:
				row.Target = val
			case colExpected:
				row.Expected = val
			default:
				if name != "" && val != "" {
					row.Parameters[name] = val
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FileTabularSource reads rows from a local CSV file.
type FileTabularSource struct {
	Path string
}

// FetchRows loads and filters rows for the given case.
func (s *FileTabularSource) FetchRows(ctx context.Context, caseID string) ([]resolver.Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open test data: %w", err)
	}
	defer f.Close()
	rows, err := ParseRows(f)
	if err != nil {
		return nil, err
	}
	return forCase(rows, caseID), nil
}

// AttachmentTabularSource downloads a case's CSV attachment through the
// tracker client.
type AttachmentTabularSource struct {
	Client *JiraClient
	URL    string
}

func (s *AttachmentTabularSource) FetchRows(ctx context.Context, caseID string) ([]resolver.Row, error) {
	if s.URL == "" {
		return nil, nil
	}
	data, err := s.Client.Download(ctx, s.URL)
	if err != nil {
		return nil, err
	}
	rows, err := ParseRows(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return forCase(rows, caseID), nil
}

// forCase narrows parsed rows to one case. Rows with an empty case column
// apply to every case.
func forCase(rows []resolver.Row, caseID string) []resolver.Row {
	var out []resolver.Row
	for _, r := range rows {
		if r.CaseID == "" {
			r.CaseID = caseID
		}
		if r.CaseID == caseID {
			out = append(out, r)
		}
	}
	return out
}
