package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/wrapper-eval/internal/compare"
	"github.com/giantswarm/wrapper-eval/internal/registry"
	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/selection"
	"github.com/giantswarm/wrapper-eval/internal/server"
	"github.com/giantswarm/wrapper-eval/internal/summary"
	"github.com/giantswarm/wrapper-eval/internal/validate"
)

func registerRunTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	s.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List evaluation runs with provider, model and headline indicator means"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListRuns(ctx, request, sc)
	})

	s.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get the config, summary, selection and comparison of one run"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run directory name, e.g. 'search_1a2b3c4d_eval'"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetRun(ctx, request, sc)
	})

	s.AddTool(mcp.NewTool("summarize_run",
		mcp.WithDescription("Recompute summary.csv of a scored run and return the per-wrapper metrics"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run directory name"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSummarizeRun(ctx, request, sc)
	})

	s.AddTool(mcp.NewTool("validate_run",
		mcp.WithDescription("Check a run directory for missing artifacts and signals"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run directory name"),
		),
		mcp.WithBoolean("allow_partial",
			mcp.Description("Allow generations and scores to differ (default: false)"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleValidateRun(ctx, request, sc)
	})

	s.AddTool(mcp.NewTool("compare_runs",
		mcp.WithDescription("Compare the summaries of two runs per wrapper and metric"),
		mcp.WithString("baseline_run",
			mcp.Required(),
			mcp.Description("Baseline run directory name"),
		),
		mcp.WithString("candidate_run",
			mcp.Required(),
			mcp.Description("Candidate run directory name"),
		),
		mcp.WithArray("wrappers",
			mcp.Description("Wrapper ids to compare (default: wrappers present in both runs)"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("metrics",
			mcp.Description("Summary metrics to compare (default: all but coverage)"),
			mcp.WithStringItems(),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCompareRuns(ctx, request, sc)
	})

	return nil
}

func handleListRuns(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	entries, err := registry.Scan(sc.RunsDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	if entries == nil {
		entries = []registry.Entry{}
	}
	return jsonResult(entries)
}

// openRun resolves the run_id argument to an existing run.
func openRun(request mcp.CallToolRequest, sc *server.ServerContext, key string) (*runs.Run, error) {
	runID, _ := request.GetArguments()[key].(string)
	if runID == "" {
		return nil, fmt.Errorf("%s is required", key)
	}
	dir, err := resolveRunPath(sc.RunsDir, runID)
	if err != nil {
		return nil, err
	}
	run, err := runs.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("run %q not found", runID)
	}
	return run, nil
}

type runView struct {
	RunID      string                `json:"run_id"`
	Config     *runs.Config          `json:"config,omitempty"`
	Files      []string              `json:"files"`
	Summary    []map[string]any      `json:"summary,omitempty"`
	Selection  *selection.Selection  `json:"selection,omitempty"`
	Comparison *selection.Comparison `json:"comparison,omitempty"`
}

func handleGetRun(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	run, err := openRun(request, sc, "run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	view := runView{RunID: run.ID, Files: []string{}}
	dirents, err := os.ReadDir(run.Dir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read run: %v", err)), nil
	}
	for _, d := range dirents {
		if !d.IsDir() {
			view.Files = append(view.Files, d.Name())
		}
	}

	if run.Has(runs.ConfigFile) {
		if view.Config, err = run.ReadConfig(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read config: %v", err)), nil
		}
	}
	if run.Has(runs.SummaryFile) {
		rows, err := summary.ReadRun(run)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read summary: %v", err)), nil
		}
		view.Summary = rowsView(rows)
	}
	if run.Has(runs.SelectionFile) {
		sel, err := selection.ReadSelection(run)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read selection: %v", err)), nil
		}
		view.Selection = &sel
	}
	if run.Has(runs.ComparisonFile) {
		var c selection.Comparison
		if err := runs.ReadJSON(run.Path(runs.ComparisonFile), &c); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read comparison: %v", err)), nil
		}
		view.Comparison = &c
	}
	return jsonResult(view)
}

func handleSummarizeRun(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	run, err := openRun(request, sc, "run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rows, err := summary.SummarizeRun(run)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("summarize failed: %v", err)), nil
	}

	result := map[string]any{"run_id": run.ID, "summary": rowsView(rows)}
	if best := summary.Best(rows, 1); len(best) > 0 {
		result["best_wrapper"] = best[0].WrapperID
	}
	return jsonResult(result)
}

func handleValidateRun(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	run, err := openRun(request, sc, "run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	allowPartial, _ := request.GetArguments()["allow_partial"].(bool)

	err = validate.Run(run.Dir, allowPartial)
	var invalid *validate.Error
	switch {
	case err == nil:
		return jsonResult(map[string]any{"run_id": run.ID, "valid": true})
	case errors.As(err, &invalid):
		return jsonResult(map[string]any{"run_id": run.ID, "valid": false, "problems": invalid.Problems})
	default:
		return mcp.NewToolResultError(err.Error()), nil
	}
}

func handleCompareRuns(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	baseline, err := openRun(request, sc, "baseline_run")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	candidate, err := openRun(request, sc, "candidate_run")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	wrappers, err := stringList(args, "wrappers")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	metrics, err := stringList(args, "metrics")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := compare.Runs(baseline, candidate, wrappers, metrics)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compare failed: %v", err)), nil
	}
	return jsonResult(report)
}

// rowsView renders summary rows with their artifact column names.
func rowsView(rows []summary.Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		m := map[string]any{summary.ColumnWrapperID: r.WrapperID}
		for _, name := range summary.MetricNames {
			v, _ := r.Metric(name)
			m[name] = v
		}
		out = append(out, m)
	}
	return out
}
