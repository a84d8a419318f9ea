package server

import (
	"github.com/cnosuke/report-scraper/config"
	"github.com/mark3labs/mcp-go/server"
)

// Backend - Everything the tools call into
type Backend interface {
	PostFetcher
	ProxyChecker
	Scraper
}

// RegisterAllTools - Register all tools with the server
func RegisterAllTools(mcpServer *server.MCPServer, b Backend, cfg *config.Config) error {
	// Register fetch_posts tool
	if err := RegisterFetchPostsTool(mcpServer, b, cfg); err != nil {
		return err
	}

	// Register check_proxies tool
	if err := RegisterCheckProxiesTool(mcpServer, b); err != nil {
		return err
	}

	// Register scrape_reports tool
	if err := RegisterScrapeTool(mcpServer, b); err != nil {
		return err
	}

	return nil
}
