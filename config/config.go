package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/jinzhu/configor"
	"github.com/joho/godotenv"
)

// Config - Application configuration
type Config struct {
	Log struct {
		Debug bool   `yaml:"debug" default:"false" env:"LOG_DEBUG"`
		Path  string `yaml:"path" default:"" env:"LOG_PATH"` // empty means stderr
	} `yaml:"log"`

	Target struct {
		Username string `yaml:"username" default:"ottawaagent" env:"TARGET_USERNAME"`
		BaseURL  string `yaml:"base_url" default:"https://old.reddit.com" env:"TARGET_BASE_URL"`
	} `yaml:"target"`

	Fetch struct {
		MaxRetries          int  `yaml:"max_retries" default:"3" env:"FETCH_MAX_RETRIES"` // attempts per page
		PageSize            int  `yaml:"page_size" default:"100" env:"FETCH_PAGE_SIZE"`
		MaxItems            int  `yaml:"max_items" default:"0" env:"FETCH_MAX_ITEMS"` // 0 = no cap
		Timeout             int  `yaml:"timeout" default:"30" env:"FETCH_TIMEOUT"`    // seconds per request
		MaxPages            int  `yaml:"max_pages" default:"1000" env:"FETCH_MAX_PAGES"`
		RequestsPerMinute   int  `yaml:"requests_per_minute" default:"0" env:"FETCH_REQUESTS_PER_MINUTE"`
		JitterMin           int  `yaml:"jitter_min" default:"3" env:"FETCH_JITTER_MIN"`
		JitterMax           int  `yaml:"jitter_max" default:"8" env:"FETCH_JITTER_MAX"`
		BackoffMin          int  `yaml:"backoff_min" default:"5" env:"FETCH_BACKOFF_MIN"`
		BackoffMax          int  `yaml:"backoff_max" default:"10" env:"FETCH_BACKOFF_MAX"`
		RateLimitWait       int  `yaml:"rate_limit_wait" default:"60" env:"FETCH_RATE_LIMIT_WAIT"`
		AllowDirectFallback bool `yaml:"allow_direct_fallback" default:"true" env:"FETCH_ALLOW_DIRECT_FALLBACK"`
	} `yaml:"fetch"`

	Proxy struct {
		Mode string `yaml:"mode" default:"gateway" env:"PROXY_MODE"` // gateway, pool or none

		// Rotating gateway credentials. URL wins over the split fields.
		URL      string `yaml:"url" default:"" env:"PROXY_URL"`
		Host     string `yaml:"host" default:"" env:"WEBSHARE_PROXY_HOST"`
		Port     string `yaml:"port" default:"" env:"WEBSHARE_PROXY_PORT"`
		Username string `yaml:"username" default:"" env:"WEBSHARE_PROXY_USERNAME"`
		Password string `yaml:"password" default:"" env:"WEBSHARE_PROXY_PASSWORD"`

		Addresses    []string `yaml:"addresses" env:"PROXY_ADDRESSES"`
		ListFile     string   `yaml:"list_file" default:"" env:"PROXY_LIST_FILE"`
		ListURL      string   `yaml:"list_url" default:"" env:"PROXY_LIST_URL"`
		ListSelector string   `yaml:"list_selector" default:"" env:"PROXY_LIST_SELECTOR"`

		Validate     bool   `yaml:"validate" default:"true" env:"PROXY_VALIDATE"`
		Concurrency  int    `yaml:"concurrency" default:"5" env:"PROXY_CONCURRENCY"`
		ProbeTimeout int    `yaml:"probe_timeout" default:"15" env:"PROXY_PROBE_TIMEOUT"` // seconds
		EchoURL      string `yaml:"echo_url" default:"http://httpbin.org/ip" env:"PROXY_ECHO_URL"`
		TLSBypass    bool   `yaml:"tls_bypass" default:"false" env:"PROXY_TLS_BYPASS"`
	} `yaml:"proxy"`

	Report struct {
		TitleMarker  string `yaml:"title_marker" default:"'The Ottawa Real Estate Market: Week In Review'" env:"REPORT_TITLE_MARKER"`
		Subreddit    string `yaml:"subreddit" default:"ottawa" env:"REPORT_SUBREDDIT"`
		CutoffDate   string `yaml:"cutoff_date" default:"'2024-01-01'" env:"CUTOFF_DATE"`
		MaxPosts     int    `yaml:"max_posts" default:"0" env:"MAX_POSTS"`
		PostDelayMin int    `yaml:"post_delay_min" default:"3" env:"REPORT_POST_DELAY_MIN"`
		PostDelayMax int    `yaml:"post_delay_max" default:"7" env:"REPORT_POST_DELAY_MAX"`
	} `yaml:"report"`

	Database struct {
		Driver string `yaml:"driver" default:"sqlite" env:"DATABASE_DRIVER"` // sqlite or postgres
		DSN    string `yaml:"dsn" default:"reports.db" env:"DATABASE_URL"`
	} `yaml:"database"`

	Server struct {
		Name string `yaml:"name" default:"report-scraper" env:"SERVER_NAME"`
	} `yaml:"server"`
}

// LoadConfig - Load configuration file. A .env file next to the working
// directory is read first so its values are visible to the env tags.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	cfg := &Config{}
	files := []string{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}

	err := configor.New(&configor.Config{
		Debug:      false,
		Verbose:    false,
		Silent:     true,
		AutoReload: false,
	}).Load(cfg, files...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}
