package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arvelex/veriplan/pkg/backend"
	"github.com/arvelex/veriplan/pkg/model"
	"github.com/arvelex/veriplan/pkg/orchestrator"
)

// HandleValidate implements the veriplan/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	doc, errs := model.ValidateFile(path)
	if model.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d steps)", doc.Case.ID, len(doc.Steps))), nil
}

// HandleResolve implements the veriplan/resolve MCP tool.
func HandleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	plan, err := loadPlan(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	data, _ := json.MarshalIndent(plan, "", "  ")
	return textResult(string(data)), nil
}

// HandleRun implements the veriplan/run MCP tool. Execution is always
// dry-run here; real backends need credentials and a terminal, which an
// agent session does not have.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	plan, err := loadPlan(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	router := backend.NewRouter(map[model.TargetKind]backend.Factory{
		model.TargetWeb:      dryFactory,
		model.TargetEmbedded: dryFactory,
	})
	eng, err := orchestrator.NewEngine(plan, router, orchestrator.RetryPolicy{}, "")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	eng.DryRun = true

	rep, err := eng.Execute(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	response := map[string]any{
		"run_id":  rep.RunID,
		"overall": rep.Overall,
		"steps":   rep.Summarize(),
		"run_dir": eng.BaseDir,
		"mode":    "dry-run",
	}
	data, _ := json.MarshalIndent(response, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: rep.Overall != model.RunPassed,
	}, nil
}

// HandleReport implements the veriplan/report MCP tool.
func HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	runDir, _ := args["run_dir"].(string)
	if runDir == "" {
		return errorResult("run_dir argument is required"), nil
	}

	manifest, err := orchestrator.LoadManifest(runDir)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	data, _ := json.MarshalIndent(manifest, "", "  ")
	return textResult(string(data)), nil
}

// HandleSchema implements the veriplan/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := model.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func loadPlan(path string) (*model.Plan, error) {
	doc, errs := model.ValidateFile(path)
	if model.HasErrors(errs) {
		return nil, fmt.Errorf("%s", formatErrors(errs))
	}
	return doc.Plan()
}

func formatErrors(errs []*model.DocumentError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func dryFactory(ctx context.Context) (backend.Capability, error) {
	return backend.DryRunCapability{}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
