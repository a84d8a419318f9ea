// Package report selects weekly market posts and extracts their figures.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/cnosuke/report-scraper/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Criteria selects which posts are weekly reports.
type Criteria struct {
	TitleMarker string
	Subreddit   string    // compared case-insensitively
	Cutoff      time.Time // zero keeps every post
	MaxPosts    int       // 0 = no limit
}

// ParseCutoff parses a YYYY-MM-DD date as midnight UTC. An empty string
// yields the zero time.
func ParseCutoff(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid cutoff date %q", s)
	}
	return t, nil
}

// Filter decodes records and keeps the posts matching c, newest first.
// Undecodable records are logged and dropped.
func Filter(records []types.Record, c Criteria) []*types.Post {
	var posts []*types.Post
	for i, rec := range records {
		post, err := rec.Post()
		if err != nil {
			zap.S().Warnw("skipping undecodable record", "index", i, "kind", rec.Kind, "error", err)
			continue
		}
		if !c.matches(post) {
			continue
		}
		posts = append(posts, post)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedUTC > posts[j].CreatedUTC
	})
	if c.MaxPosts > 0 && len(posts) > c.MaxPosts {
		posts = posts[:c.MaxPosts]
	}

	zap.S().Infow("filtered report posts",
		"records", len(records),
		"matched", len(posts),
		"max_posts", c.MaxPosts)
	return posts
}

func (c Criteria) matches(p *types.Post) bool {
	if c.TitleMarker != "" && !strings.Contains(p.Title, c.TitleMarker) {
		return false
	}
	if c.Subreddit != "" && !strings.EqualFold(p.Subreddit, c.Subreddit) {
		return false
	}
	if !c.Cutoff.IsZero() && p.Created().Before(c.Cutoff) {
		return false
	}
	return true
}
