package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arvelex/veriplan/pkg/model"
)

// RunnerConfig configures the remote-test-runner capability.
type RunnerConfig struct {
	Endpoint    string // ws:// or http(s):// URL of the DUT harness
	Token       string // bearer token, optional
	DeviceID    string
	ArtifactDir string
	DialTimeout time.Duration
}

// commandFrame is one request to the harness.
type commandFrame struct {
	ID        int               `json:"id"`
	Command   string            `json:"command"`
	Params    map[string]string `json:"params,omitempty"`
	TimeoutMS int64             `json:"timeout_ms,omitempty"`
}

// resultFrame is the harness's reply. Verdict is the DUT-side judgement:
// pass, fail, or error.
type resultFrame struct {
	ID      int    `json:"id"`
	Verdict string `json:"verdict"`
	Output  string `json:"output,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// RunnerCapability drives an embedded/firmware target through its harness
// over a single websocket connection. The connection is owned by one run and
// closed when the run ends.
type RunnerCapability struct {
	cfg  RunnerConfig
	conn *websocket.Conn
	seq  int
	logs int
}

// NewRunnerCapability dials the harness.
func NewRunnerCapability(ctx context.Context, cfg RunnerConfig) (*RunnerCapability, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("runner endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	if cfg.DeviceID != "" {
		q := u.Query()
		q.Set("device", cfg.DeviceID)
		u.RawQuery = q.Encode()
	}

	dialer := *websocket.DefaultDialer
	if cfg.DialTimeout > 0 {
		dialer.HandshakeTimeout = cfg.DialTimeout
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, fmt.Errorf("dial runner %s (status %d): %w", u.String(), status, err)
	}

	return &RunnerCapability{cfg: cfg, conn: conn}, nil
}

// RunnerFactory returns a Factory that dials one harness connection per run.
func RunnerFactory(cfg RunnerConfig) Factory {
	return func(ctx context.Context) (Capability, error) {
		return NewRunnerCapability(ctx, cfg)
	}
}

// Run dispatches the step as a harness command and waits for the matching
// result frame.
func (r *RunnerCapability) Run(ctx context.Context, step model.Step) (*Outcome, error) {
	var timeoutMS int64
	if dl, ok := ctx.Deadline(); ok {
		timeoutMS = time.Until(dl).Milliseconds()
	}

	r.seq++
	frame := commandFrame{
		ID:        r.seq,
		Command:   step.Description,
		Params:    step.Parameters,
		TimeoutMS: timeoutMS,
	}

	result, err := r.roundTrip(ctx, frame)
	if err != nil {
		return nil, err
	}

	switch result.Verdict {
	case "pass":
		return &Outcome{Output: result.Output}, nil
	case "fail":
		return &Outcome{Output: result.Output, Failed: true, Detail: result.Detail}, nil
	default:
		detail := result.Detail
		if detail == "" {
			detail = result.Output
		}
		return nil, fmt.Errorf("harness error on step %d: %s", step.Index, detail)
	}
}

// roundTrip sends a frame and reads until the reply with the same id. Frames
// for other ids (stale replies after a timeout) are discarded.
func (r *RunnerCapability) roundTrip(ctx context.Context, frame commandFrame) (*resultFrame, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = r.conn.SetWriteDeadline(dl)
		_ = r.conn.SetReadDeadline(dl)
	} else {
		_ = r.conn.SetWriteDeadline(time.Time{})
		_ = r.conn.SetReadDeadline(time.Time{})
	}

	if err := r.conn.WriteJSON(frame); err != nil {
		return nil, fmt.Errorf("send command %d: %w", frame.ID, err)
	}

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read result %d: %w", frame.ID, err)
		}
		var result resultFrame
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode result %d: %w", frame.ID, err)
		}
		if result.ID == frame.ID {
			return &result, nil
		}
	}
}

// CaptureArtifact requests a log snapshot from the harness and writes it to
// the artifact directory.
func (r *RunnerCapability) CaptureArtifact(ctx context.Context) (string, error) {
	r.seq++
	result, err := r.roundTrip(ctx, commandFrame{ID: r.seq, Command: "log_snapshot"})
	if err != nil {
		return "", err
	}
	if result.Verdict != "pass" {
		return "", fmt.Errorf("log snapshot: %s", result.Detail)
	}

	r.logs++
	path := filepath.Join(r.cfg.ArtifactDir, fmt.Sprintf("dut-log-%03d.txt", r.logs))
	if err := os.MkdirAll(r.cfg.ArtifactDir, 0755); err != nil {
		return "", fmt.Errorf("artifact dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(result.Output), 0644); err != nil {
		return "", fmt.Errorf("write log snapshot: %w", err)
	}
	return path, nil
}

// Release closes the harness connection.
func (r *RunnerCapability) Release() error {
	if r.conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := r.conn.Close()
	r.conn = nil
	return err
}
