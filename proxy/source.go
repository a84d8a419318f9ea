package proxy

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SourceConfig lists where candidate proxies come from.
type SourceConfig struct {
	Addresses []string
	ListFile  string
	ListURL   string
	// ListSelector, when set, treats ListURL as an HTML page and reads
	// host and port from the first two cells of every matched row.
	ListSelector string
	Timeout      time.Duration
}

// LoadCandidates merges every configured source into one deduplicated list
// of endpoints. Unparseable entries are logged and skipped.
func LoadCandidates(ctx context.Context, cfg SourceConfig) ([]Endpoint, error) {
	raws := append([]string{}, cfg.Addresses...)

	if cfg.ListFile != "" {
		f, err := os.Open(cfg.ListFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open proxy list %s", cfg.ListFile)
		}
		lines, err := readLines(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read proxy list %s", cfg.ListFile)
		}
		raws = append(raws, lines...)
	}

	if cfg.ListURL != "" {
		lines, err := fetchRemoteList(ctx, cfg)
		if err != nil {
			return nil, err
		}
		raws = append(raws, lines...)
	}

	endpoints, errs := ParseEndpoints(raws)
	for _, err := range errs {
		zap.S().Warnw("skipping proxy candidate", "error", err)
	}

	seen := make(map[string]struct{}, len(endpoints))
	out := endpoints[:0]
	for _, ep := range endpoints {
		if _, dup := seen[ep.Key()]; dup {
			continue
		}
		seen[ep.Key()] = struct{}{}
		out = append(out, ep)
	}

	zap.S().Infow("loaded proxy candidates",
		"count", len(out),
		"rejected", len(errs))
	return out, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func fetchRemoteList(ctx context.Context, cfg SourceConfig) ([]string, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	resp, err := resty.New().
		SetTimeout(timeout).
		R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(cfg.ListURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch proxy list %s", cfg.ListURL)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return nil, errors.Newf("proxy list %s returned status %d", cfg.ListURL, resp.StatusCode())
	}

	if cfg.ListSelector == "" {
		return readLines(body)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse proxy list %s", cfg.ListURL)
	}
	var lines []string
	doc.Find(cfg.ListSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		host := strings.TrimSpace(cells.Eq(0).Text())
		port := strings.TrimSpace(cells.Eq(1).Text())
		if host == "" || port == "" {
			return
		}
		lines = append(lines, net.JoinHostPort(host, port))
	})
	return lines, nil
}
