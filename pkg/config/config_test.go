package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `runs_root: /var/lib/veriplan/runs
tracker:
  base_url: https://jira.example.com
  email: qa-bot@example.com
model:
  provider: openai
  model: gpt-4o-mini
web:
  headless: true
  resolution: 1080p
runner:
  endpoint: ws://bench-3.lab:9100
  device_id: dut-17
retry:
  max_attempts: 3
  backoff: exponential
  interval: 2s
  step_timeout: 90s
store:
  s3_bucket: qa-runs
  s3_prefix: veriplan
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "veriplan.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracker.BaseURL != "https://jira.example.com" {
		t.Errorf("tracker url = %q", cfg.Tracker.BaseURL)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Backoff != "exponential" {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if d, err := cfg.RetryInterval(); err != nil || d != 2*time.Second {
		t.Errorf("interval = %v, %v", d, err)
	}
	if d, err := cfg.StepTimeout(); err != nil || d != 90*time.Second {
		t.Errorf("step timeout = %v, %v", d, err)
	}
	if !cfg.Web.Headless || cfg.Runner.DeviceID != "dut-17" {
		t.Errorf("web = %+v, runner = %+v", cfg.Web, cfg.Runner)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	if _, err := Load(writeConfig(t, "tracker:\n  base_urll: oops\n")); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("VERIPLAN_TRACKER_TOKEN", "env-secret")
	cfg, err := Load(writeConfig(t, "tracker:\n  token: file-secret\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracker.Token != "env-secret" {
		t.Errorf("token = %q, want env override", cfg.Tracker.Token)
	}
}

func TestInvalidDuration(t *testing.T) {
	cfg := &Config{Retry: RetryConfig{Interval: "soon"}}
	if _, err := cfg.RetryInterval(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}
