// Package disguise produces browser-like request fingerprints.
package disguise

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
)

// Family is a browser engine family.
type Family string

const (
	Chromium Family = "chromium"
	Gecko    Family = "gecko"
	WebKit   Family = "webkit"
)

// Agent is one catalog entry.
type Agent struct {
	UserAgent string
	Family    Family
	Brand     string // "Google Chrome" or "Microsoft Edge"; empty outside Chromium
	Platform  string // Windows, macOS or Linux
}

// DefaultCatalog spans three engine families on three operating systems.
var DefaultCatalog = []Agent{
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", Family: Chromium, Brand: "Google Chrome", Platform: "Windows"},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36", Family: Chromium, Brand: "Google Chrome", Platform: "Windows"},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36", Family: Chromium, Brand: "Google Chrome", Platform: "Windows"},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0", Family: Chromium, Brand: "Microsoft Edge", Platform: "Windows"},
	{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", Family: Chromium, Brand: "Google Chrome", Platform: "macOS"},
	{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36", Family: Chromium, Brand: "Google Chrome", Platform: "macOS"},
	{UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", Family: Chromium, Brand: "Google Chrome", Platform: "Linux"},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0", Family: Gecko, Platform: "Windows"},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0", Family: Gecko, Platform: "Windows"},
	{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0", Family: Gecko, Platform: "macOS"},
	{UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", Family: Gecko, Platform: "Linux"},
	{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15", Family: WebKit, Platform: "macOS"},
}

var (
	chromeVersion = regexp.MustCompile(`Chrome/(\d+)`)
	edgeVersion   = regexp.MustCompile(`Edg/(\d+)`)
)

// Profile is one fingerprint. Its headers are derived together from a
// single catalog entry so they never contradict each other.
type Profile struct {
	agent   Agent
	headers map[string]string
}

// Family returns the engine family of the profile's user agent.
func (p Profile) Family() Family { return p.agent.Family }

// UserAgent returns the User-Agent header value.
func (p Profile) UserAgent() string { return p.agent.UserAgent }

// Headers returns a copy of every header of the profile.
func (p Profile) Headers() map[string]string {
	out := make(map[string]string, len(p.headers))
	for k, v := range p.headers {
		out[k] = v
	}
	return out
}

// Supplier generates a fresh profile per request attempt.
type Supplier struct {
	catalog []Agent
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewSupplier returns a supplier over catalog, or DefaultCatalog when empty.
func NewSupplier(catalog []Agent) *Supplier {
	if len(catalog) == 0 {
		catalog = DefaultCatalog
	}
	return &Supplier{
		catalog: catalog,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Generate picks a catalog entry uniformly at random and builds its headers.
func (s *Supplier) Generate() Profile {
	s.mu.Lock()
	a := s.catalog[s.rng.IntN(len(s.catalog))]
	s.mu.Unlock()
	return Build(a)
}

// Build derives the header set of an agent.
func Build(a Agent) Profile {
	h := map[string]string{
		"User-Agent":                a.UserAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Accept-Encoding":           "gzip, deflate, br",
		"Connection":                "keep-alive",
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Cache-Control":             "max-age=0",
	}

	switch a.Family {
	case Chromium:
		if hint := clientHint(a); hint != "" {
			h["sec-ch-ua"] = hint
			h["sec-ch-ua-mobile"] = "?0"
			h["sec-ch-ua-platform"] = fmt.Sprintf("%q", a.Platform)
		}
	case Gecko:
		h["Accept"] = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
		h["Accept-Language"] = "en-US,en;q=0.5"
		h["Sec-Fetch-User"] = "?1"
	case WebKit:
		// Safari sends neither DNT nor the fetch metadata headers.
		h["Accept"] = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
		delete(h, "DNT")
		delete(h, "Sec-Fetch-Dest")
		delete(h, "Sec-Fetch-Mode")
		delete(h, "Sec-Fetch-Site")
		delete(h, "Cache-Control")
	}
	return Profile{agent: a, headers: h}
}

// clientHint renders the sec-ch-ua brand list. The Chromium version comes
// from the UA itself so the hint and the UA agree.
func clientHint(a Agent) string {
	m := chromeVersion.FindStringSubmatch(a.UserAgent)
	if m == nil {
		return ""
	}
	chromium := m[1]

	brand, brandVersion := a.Brand, chromium
	if brand == "" {
		brand = "Google Chrome"
	}
	if strings.Contains(a.UserAgent, "Edg/") {
		brand = "Microsoft Edge"
		if e := edgeVersion.FindStringSubmatch(a.UserAgent); e != nil {
			brandVersion = e[1]
		}
	}
	return fmt.Sprintf(`"Not_A Brand";v="8", "Chromium";v="%s", "%s";v="%s"`, chromium, brand, brandVersion)
}
