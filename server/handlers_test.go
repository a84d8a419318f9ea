package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cnosuke/report-scraper/config"
	"github.com/cnosuke/report-scraper/proxy"
	"github.com/cnosuke/report-scraper/types"
	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockBackend for testing
type MockBackend struct {
	posts    []types.PostSummary
	check    *types.ProxyCheckResponse
	summary  *types.ScrapeSummary
	err      error
	username string
	maxItems int
}

// FetchPosts - Mock implementation
func (m *MockBackend) FetchPosts(ctx context.Context, username string, maxItems int) ([]types.PostSummary, error) {
	m.username, m.maxItems = username, maxItems
	if m.err != nil {
		return nil, m.err
	}
	posts := m.posts
	if maxItems > 0 && len(posts) > maxItems {
		posts = posts[:maxItems]
	}
	return posts, nil
}

// CheckProxies - Mock implementation
func (m *MockBackend) CheckProxies(ctx context.Context) (*types.ProxyCheckResponse, error) {
	return m.check, m.err
}

// Scrape - Mock implementation
func (m *MockBackend) Scrape(ctx context.Context) (*types.ScrapeSummary, error) {
	return m.summary, m.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Target.Username = "ottawaagent"
	return cfg
}

func callTool(t *testing.T, h server.ToolHandlerFunc, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", res.Content[0])
	return ""
}

// TestFetchPostsHandler tests argument handling of fetch_posts
func TestFetchPostsHandler(t *testing.T) {
	backend := &MockBackend{posts: []types.PostSummary{
		{ID: "c", Title: "Week In Review", Subreddit: "ottawa", Date: "2024-01-20"},
		{ID: "b", Title: "Week In Review", Subreddit: "ottawa", Date: "2024-01-13"},
		{ID: "a", Title: "Week In Review", Subreddit: "ottawa", Date: "2024-01-06"},
	}}
	h := fetchPostsHandler(backend, testConfig())

	// Test 1: defaults
	res := callTool(t, h, map[string]any{})
	assert.False(t, res.IsError)
	assert.Equal(t, "ottawaagent", backend.username)
	assert.Equal(t, 0, backend.maxItems)

	var posts []types.PostSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &posts))
	assert.Len(t, posts, 3)

	// Test 2: explicit username and cap
	res = callTool(t, h, map[string]any{"username": "someone", "max_items": float64(2)})
	assert.False(t, res.IsError)
	assert.Equal(t, "someone", backend.username)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &posts))
	assert.Len(t, posts, 2)
	assert.Equal(t, "c", posts[0].ID)

	// Test 3: negative cap
	res = callTool(t, h, map[string]any{"max_items": float64(-1)})
	assert.True(t, res.IsError)
}

// TestFetchPostsHandler_Error tests that fetch failures become tool errors
func TestFetchPostsHandler_Error(t *testing.T) {
	backend := &MockBackend{err: errors.Wrap(proxy.ErrNoProxiesAvailable, "0 of 3 candidates passed validation")}

	res := callTool(t, fetchPostsHandler(backend, testConfig()), map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "no proxies available")
}

// TestCheckProxiesHandler tests the check_proxies result
func TestCheckProxiesHandler(t *testing.T) {
	backend := &MockBackend{check: &types.ProxyCheckResponse{
		Mode:    "pool",
		Checked: 3,
		Healthy: []string{"http://10.0.0.1:8080"},
	}}

	res := callTool(t, checkProxiesHandler(backend), nil)
	assert.False(t, res.IsError)

	var resp types.ProxyCheckResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.Equal(t, 3, resp.Checked)
	assert.Equal(t, []string{"http://10.0.0.1:8080"}, resp.Healthy)
}

// TestScrapeHandler tests the scrape_reports result and error paths
func TestScrapeHandler(t *testing.T) {
	backend := &MockBackend{summary: &types.ScrapeSummary{RunID: "run-1", Fetched: 10, Matched: 3, Inserted: 2, Skipped: 1}}

	res := callTool(t, scrapeHandler(backend), nil)
	assert.False(t, res.IsError)

	var summary types.ScrapeSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.Inserted)

	backend.err = errors.New("fetch exhausted")
	res = callTool(t, scrapeHandler(backend), nil)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "scrape failed")
}

// TestRegisterAllTools tests that every tool registers
func TestRegisterAllTools(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "0.0.0")
	assert.NoError(t, RegisterAllTools(mcpServer, &MockBackend{}, testConfig()))
}
