package types

import (
	"encoding/json"
	"time"
)

// Listing - Envelope of one page of the submitted-listing endpoint
type Listing struct {
	Kind string      `json:"kind"`
	Data ListingData `json:"data"`
}

// ListingData - Page body. After is nil when there are no further pages.
type ListingData struct {
	Children []Record `json:"children"`
	After    *string  `json:"after"`
}

// Record - One raw child of a listing page. Data is kept verbatim so the
// fetcher never depends on the shape of a post.
type Record struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Post decodes the fields the report pipeline reads from a record.
func (r Record) Post() (*Post, error) {
	p := &Post{}
	if err := json.Unmarshal(r.Data, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Post - Subset of a submission used by the report pipeline
type Post struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Subreddit    string  `json:"subreddit"`
	CreatedUTC   float64 `json:"created_utc"`
	Selftext     string  `json:"selftext"`
	SelftextHTML *string `json:"selftext_html"`
	URL          string  `json:"url"`
	IsSelf       bool    `json:"is_self"`
}

// Created returns the creation time in UTC.
func (p *Post) Created() time.Time {
	return time.Unix(int64(p.CreatedUTC), 0).UTC()
}

// Date returns the creation day formatted as YYYY-MM-DD, the key of stored reports.
func (p *Post) Date() string {
	return p.Created().Format(time.DateOnly)
}

// PostSummary - Tool response entry for a fetched post
type PostSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Subreddit string `json:"subreddit"`
	Date      string `json:"date"`
}

// ProxyCheckResponse - Tool response of a pool validation
type ProxyCheckResponse struct {
	Mode      string   `json:"mode"`
	Checked   int      `json:"checked"`
	Healthy   []string `json:"healthy"` // redacted endpoint URLs
	Exhausted bool     `json:"exhausted"`
}

// ScrapeSummary - Outcome of one orchestrated run
type ScrapeSummary struct {
	RunID    string `json:"run_id"`
	Fetched  int    `json:"fetched"`
	Matched  int    `json:"matched"`
	Skipped  int    `json:"skipped"`
	Inserted int    `json:"inserted"`
	Failed   int    `json:"failed"`
	Direct   bool   `json:"direct"` // true when the proxied session degraded to a direct connection
}
