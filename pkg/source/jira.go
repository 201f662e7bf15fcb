package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/arvelex/veriplan/pkg/resolver"
)

// JiraClient is a minimal Jira REST v2 client covering what plan resolution
// needs: fetch an issue's steps and attachments, and post a result comment.
type JiraClient struct {
	BaseURL    string
	Email      string
	Token      string
	HTTPClient *http.Client
}

// NewJiraClient creates a client with default settings.
func NewJiraClient(baseURL, email, token string) *JiraClient {
	return &JiraClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Email:      email,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Project     struct {
			Key string `json:"key"`
		} `json:"project"`
		Attachment []struct {
			Filename string `json:"filename"`
			Content  string `json:"content"`
		} `json:"attachment"`
	} `json:"fields"`
}

// FetchCase retrieves an issue and parses its description into case steps.
func (c *JiraClient) FetchCase(ctx context.Context, id string) (*Case, error) {
	uri := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=summary,description,project,attachment", c.BaseURL, id)

	body, err := c.do(ctx, "GET", uri, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch case %s: %w", id, err)
	}

	var issue jiraIssue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("fetch case %s: parse response: %w", id, err)
	}

	cs := &Case{
		ID:      issue.Key,
		Summary: issue.Fields.Summary,
		Project: issue.Fields.Project.Key,
		Steps:   ParseSteps(issue.Fields.Description),
	}
	if cs.ID == "" {
		cs.ID = id
	}
	for _, att := range issue.Fields.Attachment {
		if strings.HasSuffix(strings.ToLower(att.Filename), ".csv") {
			cs.AttachmentURL = att.Content
			break
		}
	}
	return cs, nil
}

// AddComment posts a comment on an issue. Used to publish run results back
// to the tracker.
func (c *JiraClient) AddComment(ctx context.Context, id, text string) error {
	uri := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", c.BaseURL, id)
	payload, err := json.Marshal(map[string]string{"body": text})
	if err != nil {
		return fmt.Errorf("comment on %s: %w", id, err)
	}
	if _, err := c.do(ctx, "POST", uri, payload); err != nil {
		return fmt.Errorf("comment on %s: %w", id, err)
	}
	return nil
}

// Download fetches an attachment by its content URL.
func (c *JiraClient) Download(ctx context.Context, uri string) ([]byte, error) {
	body, err := c.do(ctx, "GET", uri, nil)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	return body, nil
}

// do performs an authenticated request and returns the response body.
func (c *JiraClient) do(ctx context.Context, method, uri string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, reqBody)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.Email, c.Token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 300))
	}
	return body, nil
}

// stepLineRe matches a numbered step line: "1. do the thing".
var stepLineRe = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.*)$`)

// ParseSteps extracts ordered steps from an issue description. A step is a
// numbered line; everything after " => " on the line is its expected result.
// Lines before the first numbered line are preamble and ignored.
func ParseSteps(description string) []resolver.CaseStep {
	var steps []resolver.CaseStep
	for _, line := range strings.Split(description, "\n") {
		m := stepLineRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[2])
		var expected string
		if idx := strings.Index(text, " => "); idx >= 0 {
			expected = strings.TrimSpace(text[idx+4:])
			text = strings.TrimSpace(text[:idx])
		}
		if text == "" {
			continue
		}
		steps = append(steps, resolver.CaseStep{Description: text, Expected: expected})
	}
	return steps
}

func truncate(b []byte, max int) string {
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
