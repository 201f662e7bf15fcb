package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Real Jira REST v2 response shape, trimmed to the fields we read.
const sampleIssueJSON = `{
	"key": "VPL-42",
	"fields": {
		"summary": "Portal login regression",
		"project": {"key": "VPL"},
		"description": "Verify the portal login flow.\n\n1. [setup][web] open the login page => Login\n2. [web] enter credentials and submit => Welcome\n3. [dut] read session log => session established",
		"attachment": [
			{"filename": "notes.txt", "content": "https://jira.example.com/attach/1"},
			{"filename": "testdata.csv", "content": "https://jira.example.com/attach/2"}
		]
	}
}`

func TestParseSteps(t *testing.T) {
	steps := ParseSteps("preamble text\n1. open page => Login\n2) click things\nnot a step\n3. verify => done")
	if len(steps) != 3 {
		t.Fatalf("parsed %d steps, want 3", len(steps))
	}
	if steps[0].Description != "open page" || steps[0].Expected != "Login" {
		t.Errorf("step 1 = %+v", steps[0])
	}
	if steps[1].Description != "click things" || steps[1].Expected != "" {
		t.Errorf("step 2 = %+v", steps[1])
	}
	if steps[2].Expected != "done" {
		t.Errorf("step 3 expected = %q, want done", steps[2].Expected)
	}
}

func TestParseStepsEmptyDescription(t *testing.T) {
	if steps := ParseSteps(""); steps != nil {
		t.Errorf("empty description produced steps: %v", steps)
	}
}

func TestFetchCase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/rest/api/2/issue/VPL-42") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		user, _, ok := r.BasicAuth()
		if !ok || user != "bot@example.com" {
			t.Error("missing basic auth")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleIssueJSON))
	}))
	defer srv.Close()

	client := NewJiraClient(srv.URL, "bot@example.com", "token")
	cs, err := client.FetchCase(context.Background(), "VPL-42")
	if err != nil {
		t.Fatalf("FetchCase: %v", err)
	}
	if cs.ID != "VPL-42" || cs.Project != "VPL" {
		t.Errorf("case = %s in %s, want VPL-42 in VPL", cs.ID, cs.Project)
	}
	if len(cs.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(cs.Steps))
	}
	if cs.Steps[1].Expected != "Welcome" {
		t.Errorf("step 2 expected = %q, want Welcome", cs.Steps[1].Expected)
	}
	if cs.AttachmentURL != "https://jira.example.com/attach/2" {
		t.Errorf("attachment = %q, want the csv", cs.AttachmentURL)
	}
}

func TestFetchCaseHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such issue", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewJiraClient(srv.URL, "bot@example.com", "token")
	if _, err := client.FetchCase(context.Background(), "VPL-404"); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestAddComment(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || !strings.HasSuffix(r.URL.Path, "/comment") {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewJiraClient(srv.URL, "bot@example.com", "token")
	if err := client.AddComment(context.Background(), "VPL-42", "run passed"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if got["body"] != "run passed" {
		t.Errorf("comment body = %q", got["body"])
	}
}

const sampleCSV = `case,target,expected,url,input.username,input.password
VPL-42,web,,https://portal.example.com/login,qa-bot,hunter2
VPL-42,web,Welcome back,,,
VPL-99,dut,,,,
`

func TestParseRows(t *testing.T) {
	rows, err := ParseRows(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	r := rows[0]
	if r.CaseID != "VPL-42" || r.Target != "web" {
		t.Errorf("row 0 = %+v", r)
	}
	if r.Parameters["url"] != "https://portal.example.com/login" {
		t.Errorf("url param = %q", r.Parameters["url"])
	}
	if r.Parameters["input.username"] != "qa-bot" {
		t.Errorf("username param = %q", r.Parameters["input.username"])
	}
	if rows[1].Expected != "Welcome back" {
		t.Errorf("row 1 expected = %q", rows[1].Expected)
	}
	// Empty cells do not become parameters.
	if _, ok := rows[1].Parameters["url"]; ok {
		t.Error("empty url cell became a parameter")
	}
}

func TestFileTabularSourceFiltersByCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testdata.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0644); err != nil {
		t.Fatal(err)
	}
	src := &FileTabularSource{Path: path}
	rows, err := src.FetchRows(context.Background(), "VPL-42")
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows for VPL-42 = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r.CaseID != "VPL-42" {
			t.Errorf("leaked row for %s", r.CaseID)
		}
	}
}

func TestAttachmentTabularSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("case,expected\n,always matches\n"))
	}))
	defer srv.Close()

	client := NewJiraClient(srv.URL, "bot@example.com", "token")
	src := &AttachmentTabularSource{Client: client, URL: srv.URL + "/attach/2"}
	rows, err := src.FetchRows(context.Background(), "VPL-42")
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	// A row with no case column applies to the requested case.
	if len(rows) != 1 || rows[0].CaseID != "VPL-42" {
		t.Fatalf("rows = %+v, want one row adopted by VPL-42", rows)
	}
}
