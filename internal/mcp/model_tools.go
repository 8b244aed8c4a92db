package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/wrapper-eval/internal/kserve"
	"github.com/giantswarm/wrapper-eval/internal/server"
)

const errNoDeployer = "KServe manager is not configured. Start the server with --kserve to manage subject models."

func registerModelTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	s.AddTool(mcp.NewTool("deploy_model",
		mcp.WithDescription("Deploy a subject model as a KServe InferenceService and wait until it is ready"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("InferenceService name"),
		),
		mcp.WithString("model_uri",
			mcp.Required(),
			mcp.Description("Model storage URI, e.g. 'hf://mistralai/Mistral-7B-Instruct-v0.3'"),
		),
		mcp.WithString("runtime",
			mcp.Description("Serving runtime (default: kserve-vllm)"),
		),
		mcp.WithNumber("gpu_count",
			mcp.Description("GPUs per replica (default: 1)"),
		),
		mcp.WithString("group",
			mcp.Description("Group label, e.g. the selection group id"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDeployModel(ctx, request, sc)
	})

	s.AddTool(mcp.NewTool("teardown_model",
		mcp.WithDescription("Delete a subject model InferenceService"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("InferenceService name"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleTeardownModel(ctx, request, sc)
	})

	s.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List deployed subject models"),
		mcp.WithString("group",
			mcp.Description("Only models with this group label"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListModels(ctx, request, sc)
	})

	return nil
}

func handleDeployModel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Deployer == nil {
		return mcp.NewToolResultError(errNoDeployer), nil
	}

	args := request.GetArguments()
	name, _ := args["name"].(string)
	uri, _ := args["model_uri"].(string)
	if name == "" || uri == "" {
		return mcp.NewToolResultError("name and model_uri are required"), nil
	}

	model := kserve.NewSubjectModel(name, uri)
	if runtime, ok := args["runtime"].(string); ok && runtime != "" {
		model.Runtime = runtime
	}
	if gpus, ok := args["gpu_count"].(float64); ok && gpus > 0 {
		model.GPUCount = int(gpus)
	}
	model.Group, _ = args["group"].(string)

	d, err := sc.Deployer.Deploy(ctx, model)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("deploy failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"deployment":    d,
		"chat_endpoint": d.ChatEndpoint(),
	})
}

func handleTeardownModel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Deployer == nil {
		return mcp.NewToolResultError(errNoDeployer), nil
	}
	name, _ := request.GetArguments()["name"].(string)
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	if err := sc.Deployer.Teardown(ctx, name); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("teardown failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Model %s torn down", name)), nil
}

func handleListModels(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Deployer == nil {
		return mcp.NewToolResultError(errNoDeployer), nil
	}
	group, _ := request.GetArguments()["group"].(string)
	models, err := sc.Deployer.List(ctx, group)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if models == nil {
		models = []kserve.Deployment{}
	}
	return jsonResult(models)
}
