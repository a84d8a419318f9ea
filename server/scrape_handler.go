package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// RegisterCheckProxiesTool - Register the check_proxies tool
func RegisterCheckProxiesTool(mcpServer *server.MCPServer, c ProxyChecker) error {
	zap.S().Debugw("registering check_proxies tool")

	tool := mcp.NewTool("check_proxies",
		mcp.WithDescription("Probes the configured gateway or proxy pool and reports which endpoints are healthy."),
	)

	mcpServer.AddTool(tool, checkProxiesHandler(c))
	return nil
}

func checkProxiesHandler(c ProxyChecker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		zap.S().Infow("executing check_proxies")

		resp, err := c.CheckProxies(ctx)
		if err != nil {
			zap.S().Errorw("failed to check proxies", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("failed to check proxies: %s", err.Error())), nil
		}
		return jsonResult(resp)
	}
}

// RegisterScrapeTool - Register the scrape_reports tool
func RegisterScrapeTool(mcpServer *server.MCPServer, s Scraper) error {
	zap.S().Debugw("registering scrape_reports tool")

	tool := mcp.NewTool("scrape_reports",
		mcp.WithDescription("Fetches the weekly market reports, parses new ones and stores them. Returns a run summary."),
	)

	mcpServer.AddTool(tool, scrapeHandler(s))
	return nil
}

func scrapeHandler(s Scraper) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		zap.S().Infow("executing scrape_reports")

		summary, err := s.Scrape(ctx)
		if err != nil {
			zap.S().Errorw("scrape failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("scrape failed: %s", err.Error())), nil
		}
		return jsonResult(summary)
	}
}
