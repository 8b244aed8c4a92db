package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/kserve"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
	"github.com/giantswarm/wrapper-eval/internal/search"
	"github.com/giantswarm/wrapper-eval/internal/selection"
	"github.com/giantswarm/wrapper-eval/internal/server"
)

func registerSearchTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	s.AddTool(mcp.NewTool("run_search",
		mcp.WithDescription("Run a two-stage wrapper search: rank strategy candidates on train prompts, then evaluate the frozen selection against baselines on held-out and control prompts. With model_uri the subject model is deployed via KServe for the duration of the search."),
		mcp.WithArray("base_wrappers",
			mcp.Description("Base wrapper ids the strategies are appended to (default: ['neutral'])"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("strategies",
			mcp.Description("Catalog strategy ids (default: all)"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("styles",
			mcp.Description("Catalog style shift ids applied in the eval stage (default: none)"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("baselines",
			mcp.Description("Baseline wrapper ids (default: ['neutral'])"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of wrappers to select (default: 1)"),
		),
		mcp.WithBoolean("include_base",
			mcp.Description("Also rank the unmodified base wrappers (default: false)"),
		),
		mcp.WithString("model_uri",
			mcp.Description("Deploy this model (e.g. 'hf://org/model') as the subject for the search"),
		),
		mcp.WithString("model_name",
			mcp.Description("InferenceService name for the deployed subject (default: derived from the group id)"),
		),
		mcp.WithNumber("gpu_count",
			mcp.Description("GPUs for the deployed subject (default: 1)"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRunSearch(ctx, request, sc)
	})
	return nil
}

type searchResult struct {
	GroupID    string                `json:"group_id"`
	TrainRun   string                `json:"train_run"`
	EvalRun    string                `json:"eval_run"`
	Selected   []selection.Choice    `json:"selected"`
	Comparison *selection.Comparison `json:"comparison,omitempty"`
	Examples   int                   `json:"examples"`
}

func handleRunSearch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	baseIDs, err := stringList(args, "base_wrappers")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	strategies, err := stringList(args, "strategies")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	styles, err := stringList(args, "styles")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	baselines, err := stringList(args, "baselines")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	subject := selection.Subject{Provider: sc.Provider, Deployer: sc.Deployer}
	if uri, _ := args["model_uri"].(string); uri != "" {
		if sc.Deployer == nil {
			return mcp.NewToolResultError("KServe is not configured; cannot deploy model_uri"), nil
		}
		name, _ := args["model_name"].(string)
		model := kserve.NewSubjectModel(name, uri)
		if gpus, ok := args["gpu_count"].(float64); ok && gpus > 0 {
			model.GPUCount = int(gpus)
		}
		subject.Model = &model
	}

	prompts, err := battery.LoadPrompts(sc.PromptsPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bases, err := battery.LoadWrappers(sc.WrappersPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	catalog, err := search.LoadCatalog(sc.CatalogPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cfg := selection.Config{
		OutRoot:      sc.RunsDir,
		GroupID:      selection.NewGroupID("search"),
		Prompts:      prompts,
		Bases:        bases,
		Baselines:    baselines,
		PromptsPath:  sc.PromptsPath,
		WrappersPath: sc.WrappersPath,
	}
	if k, ok := args["top_k"].(float64); ok && k > 0 {
		cfg.TopK = int(k)
	}
	includeBase, _ := args["include_base"].(bool)
	opts := selection.SearchOptions{
		Catalog:      catalog,
		BaseWrappers: baseIDs,
		Strategies:   strategies,
		Styles:       styles,
		IncludeBase:  includeBase,
	}
	if err := opts.Apply(&cfg); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if subject.Model != nil && subject.Model.Name == "" {
		subject.Model.Name = cfg.GroupID + "-subject"
	}

	sc2, err := scorer.FromConfig(sc.Judges)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := selection.RunSubject(ctx, subject, sc2, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	return jsonResult(searchResult{
		GroupID:    res.GroupID,
		TrainRun:   res.TrainRun.ID,
		EvalRun:    res.EvalRun.ID,
		Selected:   res.Selection.Selected,
		Comparison: res.Comparison,
		Examples:   len(res.Examples),
	})
}
