// Package config loads engine configuration from a YAML file plus
// environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration. Credentials may be left out
// of the file and supplied via environment variables instead.
type Config struct {
	RunsRoot string       `yaml:"runs_root"`
	Tracker  TrackerConfig `yaml:"tracker"`
	Model    ModelConfig  `yaml:"model"`
	Web      WebConfig    `yaml:"web"`
	Runner   RunnerConfig `yaml:"runner"`
	Retry    RetryConfig  `yaml:"retry"`
	Store    StoreConfig  `yaml:"store"`
	Mail     MailConfig   `yaml:"mail"`
}

// TrackerConfig points at the issue tracker holding test cases.
type TrackerConfig struct {
	BaseURL string `yaml:"base_url"`
	Email   string `yaml:"email"`
	Token   string `yaml:"token"`
}

// ModelConfig selects the LLM used for request interpretation.
type ModelConfig struct {
	Provider string `yaml:"provider"` // openai | openrouter
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// WebConfig configures the browser backend.
type WebConfig struct {
	Headless   bool   `yaml:"headless"`
	Resolution string `yaml:"resolution"` // named preset, e.g. "1080p"
}

// RunnerConfig configures the embedded device runner backend.
type RunnerConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	DeviceID string `yaml:"device_id"`
}

// RetryConfig mirrors the orchestrator retry policy.
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Backoff     string `yaml:"backoff"` // fixed | exponential
	Interval    string `yaml:"interval"`
	StepTimeout string `yaml:"step_timeout"`
}

// StoreConfig selects where finished runs are published.
type StoreConfig struct {
	LocalDir string `yaml:"local_dir"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
}

// MailConfig configures result mail delivery.
type MailConfig struct {
	Host     string   `yaml:"host"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// Load reads a YAML config file. Unknown keys are rejected so typos fail
// loudly instead of silently using defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return &cfg, nil
}

// Default returns a config usable without any file, filled from env.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	return cfg
}

// applyEnv overlays credentials and endpoints from the environment. Env
// always wins over the file so secrets never need to live in YAML.
func (c *Config) applyEnv() {
	overlay(&c.Tracker.BaseURL, "VERIPLAN_TRACKER_URL")
	overlay(&c.Tracker.Email, "VERIPLAN_TRACKER_EMAIL")
	overlay(&c.Tracker.Token, "VERIPLAN_TRACKER_TOKEN")
	overlay(&c.Model.APIKey, "VERIPLAN_MODEL_API_KEY")
	overlay(&c.Model.Model, "VERIPLAN_MODEL_NAME")
	overlay(&c.Model.BaseURL, "VERIPLAN_MODEL_BASE_URL")
	overlay(&c.Runner.Endpoint, "VERIPLAN_RUNNER_ENDPOINT")
	overlay(&c.Runner.Token, "VERIPLAN_RUNNER_TOKEN")
	overlay(&c.Store.S3Bucket, "VERIPLAN_S3_BUCKET")
	overlay(&c.Mail.Password, "VERIPLAN_MAIL_PASSWORD")
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// RetryInterval parses the configured interval, 0 when unset.
func (c *Config) RetryInterval() (time.Duration, error) {
	return parseOptionalDuration(c.Retry.Interval)
}

// StepTimeout parses the configured default per-attempt timeout.
func (c *Config) StepTimeout() (time.Duration, error) {
	return parseOptionalDuration(c.Retry.StepTimeout)
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
