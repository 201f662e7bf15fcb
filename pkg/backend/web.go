package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/arvelex/veriplan/pkg/model"
)

// Viewport presets selectable via the web backend config.
var resolutions = map[string][2]int{
	"hd":      {1280, 720},
	"full_hd": {1920, 1080},
	"2k":      {2560, 1440},
	"laptop":  {1366, 768},
	"tablet":  {1024, 768},
	"mobile":  {390, 844},
}

// WebConfig configures the browser-automation capability.
type WebConfig struct {
	Headless    bool
	Resolution  string // key into the preset table, default full_hd
	ArtifactDir string // where screenshots are written
	SettleDelay time.Duration
}

// WebCapability drives a Chrome session over the DevTools protocol. One
// browser context lives for the whole run so later steps can rely on state
// (login session, open page) left by earlier ones.
type WebCapability struct {
	cfg         WebConfig
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	shots       int
}

// NewWebCapability launches the browser session.
func NewWebCapability(ctx context.Context, cfg WebConfig) (*WebCapability, error) {
	if cfg.Resolution == "" {
		cfg.Resolution = "full_hd"
	}
	res, ok := resolutions[strings.ToLower(cfg.Resolution)]
	if !ok {
		return nil, fmt.Errorf("unknown resolution %q", cfg.Resolution)
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(res[0], res[1]),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &WebCapability{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
	}, nil
}

// WebFactory returns a Factory that opens one browser session per run.
func WebFactory(cfg WebConfig) Factory {
	return func(ctx context.Context) (Capability, error) {
		return NewWebCapability(ctx, cfg)
	}
}

// Run translates the step's parameters into browser actions and returns the
// visible page text for expectation matching.
//
// Recognized parameter keys, applied in this order:
//
//	url                        navigate
//	input.<selector-suffix>    fill an input (placeholder, name, or raw selector)
//	textarea.<selector-suffix> fill a textarea
//	click                      click a CSS selector
//	button                     click button[name="..."]
//
// Within the input/textarea group keys are applied in sorted order so a run
// is deterministic regardless of map iteration.
func (w *WebCapability) Run(ctx context.Context, step model.Step) (*Outcome, error) {
	actions, err := w.buildActions(step)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := mergeDeadline(w.browserCtx, ctx)
	defer cancel()

	var pageText string
	actions = append(actions,
		chromedp.Sleep(w.cfg.SettleDelay),
		chromedp.Text("body", &pageText, chromedp.ByQuery),
	)
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, fmt.Errorf("browser step %d: %w", step.Index, err)
	}

	var title string
	_ = chromedp.Run(runCtx, chromedp.Title(&title))

	return &Outcome{
		Output:   pageText,
		Captures: map[string]string{"title": title},
	}, nil
}

func (w *WebCapability) buildActions(step model.Step) ([]chromedp.Action, error) {
	var actions []chromedp.Action

	if url, ok := step.Parameters["url"]; ok {
		actions = append(actions, chromedp.Navigate(url))
	}

	var fillKeys []string
	for k := range step.Parameters {
		if strings.HasPrefix(k, "input.") || strings.HasPrefix(k, "textarea.") {
			fillKeys = append(fillKeys, k)
		}
	}
	sort.Strings(fillKeys)
	for _, k := range fillKeys {
		sel, err := fillSelector(k)
		if err != nil {
			return nil, err
		}
		actions = append(actions, chromedp.SendKeys(sel, step.Parameters[k], chromedp.ByQuery))
	}

	if sel, ok := step.Parameters["click"]; ok {
		actions = append(actions, chromedp.Click(sel, chromedp.ByQuery))
	}
	if name, ok := step.Parameters["button"]; ok {
		actions = append(actions, chromedp.Click(fmt.Sprintf("button[name=%q]", name), chromedp.ByQuery))
	}

	if len(actions) == 0 {
		return nil, fmt.Errorf("web step %d has no recognized parameters", step.Index)
	}
	return actions, nil
}

// fillSelector turns a parameter key into a CSS selector:
//
//	input.placeholder.Email  →  input[placeholder="Email"]
//	input.username           →  input[name="username"]
//	input.#login             →  input#login (raw suffix)
func fillSelector(key string) (string, error) {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) < 2 || parts[1] == "" {
		return "", fmt.Errorf("malformed fill parameter %q", key)
	}
	elem := parts[0]
	if len(parts) == 3 && parts[1] == "placeholder" {
		return fmt.Sprintf("%s[placeholder=%q]", elem, parts[2]), nil
	}
	rest := strings.Join(parts[1:], ".")
	if strings.HasPrefix(rest, "#") || strings.HasPrefix(rest, "[") {
		return elem + rest, nil
	}
	return fmt.Sprintf("%s[name=%q]", elem, rest), nil
}

// CaptureArtifact takes a full-page screenshot and returns its path.
func (w *WebCapability) CaptureArtifact(ctx context.Context) (string, error) {
	runCtx, cancel := mergeDeadline(w.browserCtx, ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}

	w.shots++
	path := filepath.Join(w.cfg.ArtifactDir, fmt.Sprintf("screenshot-%03d.png", w.shots))
	if err := os.MkdirAll(w.cfg.ArtifactDir, 0755); err != nil {
		return "", fmt.Errorf("screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// Release tears down the browser and allocator contexts.
func (w *WebCapability) Release() error {
	if w.browserStop != nil {
		w.browserStop()
		w.browserStop = nil
	}
	if w.allocCancel != nil {
		w.allocCancel()
		w.allocCancel = nil
	}
	return nil
}

// mergeDeadline runs browser actions on the session context while honoring
// the attempt context's deadline and cancellation.
func mergeDeadline(session, attempt context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := attempt.Deadline(); ok {
		return context.WithDeadline(session, dl)
	}
	ctx, cancel := context.WithCancel(session)
	stop := context.AfterFunc(attempt, cancel)
	return ctx, func() { stop(); cancel() }
}
