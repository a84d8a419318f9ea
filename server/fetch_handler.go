package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cnosuke/report-scraper/config"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// RegisterFetchPostsTool - Register the fetch_posts tool
func RegisterFetchPostsTool(mcpServer *server.MCPServer, p PostFetcher, cfg *config.Config) error {
	zap.S().Debugw("registering fetch_posts tool")

	tool := mcp.NewTool("fetch_posts",
		mcp.WithDescription(fmt.Sprintf("Lists a user's submissions through the configured proxies, falling back to a direct connection when allow_direct_fallback is set. Default username is %s.", cfg.Target.Username)),
		mcp.WithString("username",
			mcp.Description("Account whose submissions to list"),
		),
		mcp.WithNumber("max_items",
			mcp.Description("Maximum number of posts to return; 0 for all"),
		),
	)

	mcpServer.AddTool(tool, fetchPostsHandler(p, cfg))
	return nil
}

func fetchPostsHandler(p PostFetcher, cfg *config.Config) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, _ := request.Params.Arguments["username"].(string)
		if username == "" {
			username = cfg.Target.Username
		}

		maxItems := cfg.Fetch.MaxItems
		if v, ok := request.Params.Arguments["max_items"].(float64); ok {
			maxItems = int(v)
		}
		if maxItems < 0 {
			return mcp.NewToolResultError("max_items must not be negative"), nil
		}

		zap.S().Infow("executing fetch_posts",
			"username", username,
			"max_items", maxItems)

		posts, err := p.FetchPosts(ctx, username, maxItems)
		if err != nil {
			zap.S().Errorw("failed to fetch posts",
				"username", username,
				"error", err)
			return mcp.NewToolResultError(fmt.Sprintf("failed to fetch posts: %s", err.Error())), nil
		}

		return jsonResult(posts)
	}
}

// jsonResult marshals v as the text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonResponse, err := json.Marshal(v)
	if err != nil {
		zap.S().Errorw("failed to marshal response to JSON",
			"error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response to JSON: %s", err.Error())), nil
	}
	return mcp.NewToolResultText(string(jsonResponse)), nil
}
