package report

import (
	"bytes"
	"context"
	"html"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/cnosuke/report-scraper/types"
	"github.com/cockroachdb/errors"
	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// ErrNoBody is returned for a post with neither text nor a resolvable link.
var ErrNoBody = errors.New("post has no body")

// DocumentFetcher retrieves a linked page.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, rawURL string) ([]byte, error)
}

// Resolver turns a post into the markdown text Parse reads.
type Resolver struct {
	fetcher   DocumentFetcher
	converter *md.Converter
}

// NewResolver creates a Resolver. A nil fetcher disables link resolution.
func NewResolver(fetcher DocumentFetcher) *Resolver {
	return &Resolver{
		fetcher:   fetcher,
		// Section headings are bold italics; keep them as asterisks.
		converter: md.NewConverter("", true, &md.Options{EmDelimiter: "*", StrongDelimiter: "**"}),
	}
}

// Body returns the post's selftext, else its rendered selftext_html
// converted back to markdown, else the readable content of the linked page.
func (r *Resolver) Body(ctx context.Context, post *types.Post) (string, error) {
	if strings.TrimSpace(post.Selftext) != "" {
		return post.Selftext, nil
	}

	if post.SelftextHTML != nil && strings.TrimSpace(*post.SelftextHTML) != "" {
		// The listing escapes the rendered HTML once more.
		text, err := r.converter.ConvertString(html.UnescapeString(*post.SelftextHTML))
		if err != nil {
			return "", errors.Wrap(err, "failed to convert selftext_html to markdown")
		}
		return text, nil
	}

	if post.IsSelf || post.URL == "" || r.fetcher == nil {
		return "", errors.Wrapf(ErrNoBody, "post %s", post.ID)
	}
	return r.resolveLink(ctx, post.URL)
}

func (r *Resolver) resolveLink(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse URL")
	}

	zap.S().Infow("resolving linked article", "url", rawURL)
	body, err := r.fetcher.FetchDocument(ctx, rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch linked article %s", rawURL)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		zap.S().Warnw("failed to extract content with readability, falling back to basic conversion",
			"url", rawURL,
			"error", err)
		text, convErr := r.converter.ConvertString(string(body))
		if convErr != nil {
			return "", errors.Wrap(convErr, "failed to convert linked article to markdown")
		}
		return text, nil
	}

	text, err := r.converter.ConvertString(article.Content)
	if err != nil {
		return "", errors.Wrap(err, "failed to convert extracted content to markdown")
	}

	zap.S().Debugw("resolved linked article",
		"url", rawURL,
		"title", article.Title,
		"length", len(text))
	return text, nil
}
