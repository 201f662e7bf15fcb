package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/openai"
	"gopkg.in/yaml.v3"

	"github.com/arvelex/veriplan/pkg/backend"
	"github.com/arvelex/veriplan/pkg/config"
	"github.com/arvelex/veriplan/pkg/console"
	"github.com/arvelex/veriplan/pkg/model"
	"github.com/arvelex/veriplan/pkg/notify"
	"github.com/arvelex/veriplan/pkg/orchestrator"
	"github.com/arvelex/veriplan/pkg/prompt"
	"github.com/arvelex/veriplan/pkg/report"
	"github.com/arvelex/veriplan/pkg/resolver"
	"github.com/arvelex/veriplan/pkg/source"
	"github.com/arvelex/veriplan/pkg/store"
	"github.com/arvelex/veriplan/pkg/tui"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var configPath string

func main() {
	godotenv.Load() // .env is gitignored; absence is fine
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "veriplan",
	Short: "Plan resolution and execution orchestration engine",
	Long:  "veriplan — resolves test cases into ordered step plans and drives them against browser and embedded-device backends.",
}

func loadConfig() *config.Config {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v (continuing with env only)\n", err)
			return config.Default()
		}
		return cfg
	}
	if _, err := os.Stat("veriplan.yaml"); err == nil {
		if cfg, err := config.Load("veriplan.yaml"); err == nil {
			return cfg
		}
	}
	return config.Default()
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [plan.yaml]",
	Short: "Validate a plan YAML file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, errs := model.ValidateFile(args[0])

	var fatal []*model.DocumentError
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "    at: %s\n", e.Path)
			}
			continue
		}
		fatal = append(fatal, e)
	}
	if len(fatal) > 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(fatal))
		for i, e := range fatal {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("%s is not a valid plan", args[0])
	}
	fmt.Printf("✓ %s is valid (%d steps)\n", doc.Case.ID, len(doc.Steps))
	return nil
}

// --- resolve ---

var (
	resolveData string
	resolveOut  string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [case-id]",
	Short: "Fetch a test case from the tracker and resolve it into a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	doc, err := resolveCase(cmd.Context(), cfg, args[0], resolveData)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if resolveOut == "" {
		fmt.Print(string(data))
		return nil
	}
	if err := os.WriteFile(resolveOut, data, 0644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	fmt.Printf("✓ resolved %s into %s (%d steps)\n", args[0], resolveOut, len(doc.Steps))
	return nil
}

// resolveCase fetches a case plus its tabular data and merges them.
func resolveCase(ctx context.Context, cfg *config.Config, caseID, dataPath string) (*model.Document, error) {
	if cfg.Tracker.BaseURL == "" {
		return nil, fmt.Errorf("no tracker configured: set tracker.base_url or VERIPLAN_TRACKER_URL")
	}
	client := source.NewJiraClient(cfg.Tracker.BaseURL, cfg.Tracker.Email, cfg.Tracker.Token)
	cs, err := client.FetchCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	var rows []resolver.Row
	switch {
	case dataPath != "":
		src := &source.FileTabularSource{Path: dataPath}
		rows, err = src.FetchRows(ctx, cs.ID)
	case cs.AttachmentURL != "":
		src := &source.AttachmentTabularSource{Client: client, URL: cs.AttachmentURL}
		rows, err = src.FetchRows(ctx, cs.ID)
	}
	if err != nil {
		return nil, err
	}

	plan, err := resolver.Resolve(cs.ID, cs.Steps, rows)
	if err != nil {
		return nil, err
	}
	return &model.Document{
		APIVersion: "plan/v1",
		Case:       model.CaseMeta{ID: cs.ID, Title: cs.Summary, Project: cs.Project},
		Steps:      plan.Steps,
	}, nil
}

// --- run ---

var (
	runMode        string
	runDry         bool
	runStep        bool
	runData        string
	runNoNotify    bool
	runMaxAttempts int
	runBackoff     string
	runRetryOn     string
	runTimeout     string
	runParams      []string
)

var runCmd = &cobra.Command{
	Use:   "run [plan.yaml | case-id]",
	Short: "Execute a plan against its backends",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if runDry {
		runMode = "dry-run"
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := loadPlanArg(ctx, cfg, args[0])
	if err != nil {
		return err
	}
	if err := applyParamOverrides(plan, runParams); err != nil {
		return err
	}

	policy, err := buildPolicy(cfg)
	if err != nil {
		return err
	}

	// The artifact dir lives inside the run dir, which only exists once the
	// engine is built. Factories run lazily, so a late bind is safe.
	var artifactDir string
	router := buildRouter(cfg, runMode, &artifactDir)

	eng, err := orchestrator.NewEngine(plan, router, policy, cfg.RunsRoot)
	if err != nil {
		return err
	}
	artifactDir = eng.ArtifactDir()
	eng.Progress = os.Stdout
	eng.DryRun = runMode == "dry-run"

	if runStep {
		gate, err := console.NewGate(len(plan.Steps))
		if err != nil {
			return err
		}
		defer gate.Close()
		eng.Gate = gate.Decide
	}

	fmt.Printf("run %s: %s (%d steps, mode=%s)\n", eng.RunID, plan.TestCaseID, len(plan.Steps), runMode)
	rep, err := eng.Execute(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(report.RenderText(rep))

	if !runNoNotify && runMode != "dry-run" {
		publish(ctx, cfg, eng.BaseDir, rep)
	}

	if rep.Overall != model.RunPassed {
		return fmt.Errorf("run %s: %s", rep.RunID, rep.Overall)
	}
	return nil
}

// loadPlanArg accepts either a plan YAML path or a tracker case id.
func loadPlanArg(ctx context.Context, cfg *config.Config, arg string) (*model.Plan, error) {
	if strings.HasSuffix(arg, ".yaml") || strings.HasSuffix(arg, ".yml") {
		doc, errs := model.ValidateFile(arg)
		for _, e := range errs {
			if e.Severity == "error" {
				return nil, fmt.Errorf("invalid plan %s: [%s] %s", arg, e.Phase, e.Message)
			}
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
		}
		return doc.Plan()
	}
	doc, err := resolveCase(ctx, cfg, arg, runData)
	if err != nil {
		return nil, err
	}
	return doc.Plan()
}

// buildPolicy layers run flags over the config file's retry section.
func buildPolicy(cfg *config.Config) (orchestrator.RetryPolicy, error) {
	interval, err := cfg.RetryInterval()
	if err != nil {
		return orchestrator.RetryPolicy{}, err
	}
	stepTimeout, err := cfg.StepTimeout()
	if err != nil {
		return orchestrator.RetryPolicy{}, err
	}
	policy := orchestrator.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     orchestrator.BackoffKind(cfg.Retry.Backoff),
		Interval:    interval,
		StepTimeout: stepTimeout,
	}

	if runMaxAttempts > 0 {
		policy.MaxAttempts = runMaxAttempts
	}
	if runBackoff != "" {
		policy.Backoff = orchestrator.BackoffKind(runBackoff)
	}
	if runTimeout != "" {
		d, err := time.ParseDuration(runTimeout)
		if err != nil {
			return orchestrator.RetryPolicy{}, fmt.Errorf("--timeout: %w", err)
		}
		policy.StepTimeout = d
	}
	if runRetryOn != "" {
		statuses, err := parseRetryOn(runRetryOn)
		if err != nil {
			return orchestrator.RetryPolicy{}, err
		}
		policy.RetryOn = statuses
	}
	return policy, nil
}

func parseRetryOn(spec string) ([]model.Status, error) {
	var statuses []model.Status
	for _, name := range strings.Split(spec, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "error":
			statuses = append(statuses, model.StatusError)
		case "failed":
			statuses = append(statuses, model.StatusFailed)
		case "":
		default:
			return nil, fmt.Errorf("--retry-on: unknown status %q (want error or failed)", name)
		}
	}
	return statuses, nil
}

// applyParamOverrides merges --params key=value pairs into every step, taking
// precedence over resolved parameters. Used for run-scoped values such as
// credentials that never belong in a plan file.
func applyParamOverrides(plan *model.Plan, pairs []string) error {
	if len(pairs) == 0 {
		return nil
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("--params: %q is not key=value", pair)
		}
		for i := range plan.Steps {
			if plan.Steps[i].Parameters == nil {
				plan.Steps[i].Parameters = map[string]string{}
			}
			plan.Steps[i].Parameters[key] = value
		}
	}
	return nil
}

func buildRouter(cfg *config.Config, mode string, artifactDir *string) *backend.Router {
	if mode == "dry-run" {
		dry := func(ctx context.Context) (backend.Capability, error) {
			return backend.DryRunCapability{}, nil
		}
		return backend.NewRouter(map[model.TargetKind]backend.Factory{
			model.TargetWeb:      dry,
			model.TargetEmbedded: dry,
		})
	}
	return backend.NewRouter(map[model.TargetKind]backend.Factory{
		model.TargetWeb: func(ctx context.Context) (backend.Capability, error) {
			return backend.NewWebCapability(ctx, backend.WebConfig{
				Headless:    cfg.Web.Headless,
				Resolution:  cfg.Web.Resolution,
				ArtifactDir: *artifactDir,
			})
		},
		model.TargetEmbedded: func(ctx context.Context) (backend.Capability, error) {
			return backend.NewRunnerCapability(ctx, backend.RunnerConfig{
				Endpoint:    cfg.Runner.Endpoint,
				Token:       cfg.Runner.Token,
				DeviceID:    cfg.Runner.DeviceID,
				ArtifactDir: *artifactDir,
			})
		},
	})
}

// publish pushes the finished run to every configured sink. Sink failures
// are warnings; the run verdict is already settled.
func publish(ctx context.Context, cfg *config.Config, runDir string, rep *model.RunReport) {
	var sinks []report.Sink
	if cfg.Store.LocalDir != "" {
		sinks = append(sinks, &store.LocalStore{Dir: cfg.Store.LocalDir})
	}
	if cfg.Store.S3Bucket != "" {
		s3Store, err := store.NewS3Store(ctx, cfg.Store.S3Bucket, cfg.Store.S3Prefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: s3: %v\n", err)
		} else {
			s3Store.RunDir = runDir
			sinks = append(sinks, s3Store)
		}
	}
	if cfg.Mail.Host != "" {
		sinks = append(sinks, notify.NewMailer(cfg.Mail.Host, cfg.Mail.From, cfg.Mail.To, cfg.Mail.Username, cfg.Mail.Password))
	}
	if cfg.Tracker.BaseURL != "" {
		client := source.NewJiraClient(cfg.Tracker.BaseURL, cfg.Tracker.Email, cfg.Tracker.Token)
		sinks = append(sinks, &trackerSink{client: client})
	}

	for _, w := range report.Dispatch(ctx, rep, sinks) {
		fmt.Fprintf(os.Stderr, "warning: publish %s: %v\n", w.Sink, w.Err)
	}
}

// trackerSink posts the run summary back on the originating issue.
type trackerSink struct {
	client *source.JiraClient
}

func (s *trackerSink) Name() string { return "tracker" }

func (s *trackerSink) Publish(ctx context.Context, rep *model.RunReport) error {
	return s.client.AddComment(ctx, rep.TestCaseID, report.RenderMarkdown(rep))
}

// --- report ---

var reportPlain bool

var reportCmd = &cobra.Command{
	Use:   "report [run-dir]",
	Short: "Render the report of a finished run",
	Long:  "Render the report of a finished run. With no argument, the most recent run is used.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	runDir := ""
	if len(args) == 1 {
		runDir = args[0]
	} else {
		latest, err := latestRunDir(cfg)
		if err != nil {
			return err
		}
		runDir = latest
	}

	rep, err := orchestrator.LoadReport(runDir)
	if err != nil {
		return err
	}
	md := report.RenderMarkdown(rep)

	if reportPlain {
		fmt.Print(md)
		return nil
	}
	rendered, err := glamour.Render(md, "dark")
	if err != nil {
		fmt.Print(md)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

func latestRunDir(cfg *config.Config) (string, error) {
	root := cfg.RunsRoot
	if root == "" {
		root = orchestrator.DefaultRunsRoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("no runs found under %s: %w", root, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no runs found under %s", root)
	}
	// Run IDs start with a sortable timestamp.
	sort.Strings(ids)
	return filepath.Join(root, ids[len(ids)-1]), nil
}

// --- watch ---

var watchRunDir string

var watchCmd = &cobra.Command{
	Use:   "watch [plan.yaml]",
	Short: "Live view of a run, tailing its trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	doc, errs := model.ValidateFile(args[0])
	if model.HasErrors(errs) {
		return fmt.Errorf("invalid plan %s", args[0])
	}
	plan, err := doc.Plan()
	if err != nil {
		return err
	}

	runDir := watchRunDir
	if runDir == "" {
		if runDir, err = latestRunDir(cfg); err != nil {
			return err
		}
	}

	m := tui.NewModel(plan, filepath.Join(runDir, "trace.jsonl"))
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask [request...]",
	Short: "Interpret a free-form request and run the matching test case",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	utterance := strings.Join(args, " ")

	interp, err := buildInterpreter(cfg)
	if err != nil {
		return err
	}
	inv, err := interp.Interpret(cmd.Context(), utterance)
	if err != nil {
		return err
	}
	if inv.CaseID == "" {
		return fmt.Errorf("could not determine a test case from %q", utterance)
	}
	fmt.Printf("→ %s %s\n", inv.Action, inv.CaseID)

	switch inv.Action {
	case "resolve":
		return runResolve(cmd, []string{inv.CaseID})
	case "report":
		return runReport(cmd, nil)
	default:
		return runRun(cmd, []string{inv.CaseID})
	}
}

func buildInterpreter(cfg *config.Config) (*prompt.Interpreter, error) {
	if cfg.Model.APIKey == "" {
		return nil, fmt.Errorf("no model configured: set model.api_key or VERIPLAN_MODEL_API_KEY")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.Model.APIKey),
	}
	if cfg.Model.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model.Model))
	}
	if cfg.Model.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Model.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	return prompt.NewInterpreter(llm), nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema utilities",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the plan document JSON Schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := model.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("veriplan %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: ./veriplan.yaml if present)")

	resolveCmd.Flags().StringVar(&resolveData, "data", "", "Path to a CSV of test data rows (default: the case's attachment)")
	resolveCmd.Flags().StringVar(&resolveOut, "out", "", "Write the resolved plan to this file instead of stdout")

	runCmd.Flags().StringVar(&runMode, "mode", "real", "Execution mode: real or dry-run")
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "Shorthand for --mode dry-run")
	runCmd.Flags().BoolVar(&runStep, "step", false, "Confirm each step interactively before it runs")
	runCmd.Flags().StringVar(&runData, "data", "", "Path to a CSV of test data rows (case-id runs only)")
	runCmd.Flags().BoolVar(&runNoNotify, "no-notify", false, "Skip publishing the report to configured sinks")
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", 0, "Override retry.max_attempts from the config")
	runCmd.Flags().StringVar(&runBackoff, "backoff", "", "Override retry.backoff: fixed or exponential")
	runCmd.Flags().StringVar(&runRetryOn, "retry-on", "", "Statuses to retry, comma separated (error, failed)")
	runCmd.Flags().StringVar(&runTimeout, "timeout", "", "Override the default per-attempt timeout, e.g. 45s")
	runCmd.Flags().StringSliceVar(&runParams, "params", nil, "Run-scoped parameter overrides, key=value")

	reportCmd.Flags().BoolVar(&reportPlain, "plain", false, "Print raw markdown without terminal rendering")

	watchCmd.Flags().StringVar(&watchRunDir, "run-dir", "", "Run directory to watch (default: most recent)")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
