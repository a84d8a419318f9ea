package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 100, cfg.Fetch.PageSize)
	assert.Equal(t, 30, cfg.Fetch.Timeout)
	assert.Equal(t, 0, cfg.Fetch.MaxItems)
	assert.True(t, cfg.Fetch.AllowDirectFallback)
	assert.Equal(t, "gateway", cfg.Proxy.Mode)
	assert.Equal(t, 5, cfg.Proxy.Concurrency)
	assert.Equal(t, 15, cfg.Proxy.ProbeTimeout)
	assert.Equal(t, "ottawaagent", cfg.Target.Username)

	assert.Equal(t, "The Ottawa Real Estate Market: Week In Review", cfg.Report.TitleMarker)
	assert.Equal(t, "ottawa", cfg.Report.Subreddit)
	assert.Equal(t, "2024-01-01", cfg.Report.CutoffDate)
	assert.Equal(t, 0, cfg.Report.MaxPosts)
	assert.Equal(t, 3, cfg.Report.PostDelayMin)
	assert.Equal(t, 7, cfg.Report.PostDelayMax)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "reports.db", cfg.Database.DSN)
	assert.Equal(t, "report-scraper", cfg.Server.Name)
}

func TestLoadConfig_EveryDefault(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.False(t, cfg.Log.Debug)
	assert.Equal(t, "https://old.reddit.com", cfg.Target.BaseURL)
	assert.Equal(t, 1000, cfg.Fetch.MaxPages)
	assert.Equal(t, 3, cfg.Fetch.JitterMin)
	assert.Equal(t, 8, cfg.Fetch.JitterMax)
	assert.Equal(t, 5, cfg.Fetch.BackoffMin)
	assert.Equal(t, 10, cfg.Fetch.BackoffMax)
	assert.Equal(t, 60, cfg.Fetch.RateLimitWait)
	assert.True(t, cfg.Proxy.Validate)
	assert.Equal(t, "http://httpbin.org/ip", cfg.Proxy.EchoURL)
	assert.False(t, cfg.Proxy.TLSBypass)

	// Fields declared after the title marker still receive their defaults.
	assert.NotEmpty(t, cfg.Report.TitleMarker)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "report-scraper", cfg.Server.Name)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := `
fetch:
  max_retries: 5
  page_size: 25
proxy:
  mode: pool
  addresses:
    - 10.0.0.1:8080
    - user:pass@10.0.0.2:3128
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("FETCH_PAGE_SIZE", "50")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Fetch.MaxRetries)
	assert.Equal(t, 50, cfg.Fetch.PageSize)
	assert.Equal(t, "pool", cfg.Proxy.Mode)
	assert.Equal(t, []string{"10.0.0.1:8080", "user:pass@10.0.0.2:3128"}, cfg.Proxy.Addresses)
}
