package proxy

import (
	"net"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidEndpoint is returned when a candidate address cannot be parsed.
var ErrInvalidEndpoint = errors.New("invalid proxy endpoint")

var supportedSchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// Endpoint is one parsed proxy. It is immutable once constructed; accessors
// return copies.
type Endpoint struct {
	u *url.URL
}

// ParseEndpoint normalises "host:port", "user:pass@host:port" or a full URL
// into an Endpoint. Bare forms default to the http scheme.
func ParseEndpoint(raw string) (Endpoint, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Endpoint{}, errors.Wrap(ErrInvalidEndpoint, "empty address")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, errors.Wrapf(ErrInvalidEndpoint, "%s", redactRaw(raw))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if !supportedSchemes[u.Scheme] {
		return Endpoint{}, errors.Wrapf(ErrInvalidEndpoint, "unsupported scheme %q", u.Scheme)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil || host == "" || port == "" {
		return Endpoint{}, errors.Wrapf(ErrInvalidEndpoint, "%s: missing host or port", redactRaw(raw))
	}

	return Endpoint{u: &url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host}}, nil
}

// GatewayEndpoint builds the authenticated URL of a rotating gateway.
func GatewayEndpoint(host, port, username, password string) (Endpoint, error) {
	if host == "" || port == "" || username == "" || password == "" {
		return Endpoint{}, errors.Wrap(ErrInvalidEndpoint, "all gateway credentials must be provided: host, port, username, password")
	}
	u := &url.URL{
		Scheme: "http",
		User:   url.UserPassword(username, password),
		Host:   net.JoinHostPort(host, port),
	}
	return ParseEndpoint(u.String())
}

// Address returns host:port.
func (e Endpoint) Address() string {
	if e.u == nil {
		return ""
	}
	return e.u.Host
}

// Scheme returns the proxy protocol.
func (e Endpoint) Scheme() string {
	if e.u == nil {
		return ""
	}
	return e.u.Scheme
}

// Key identifies the endpoint inside a pool. Credentials are not part of it.
func (e Endpoint) Key() string {
	return e.Scheme() + "://" + e.Address()
}

// URL returns a copy of the connection URL including credentials.
func (e Endpoint) URL() *url.URL {
	if e.u == nil {
		return nil
	}
	c := *e.u
	if e.u.User != nil {
		user := *e.u.User
		c.User = &user
	}
	return &c
}

// Redacted returns the connection URL with the password masked, for logs.
func (e Endpoint) Redacted() string {
	if e.u == nil {
		return "direct"
	}
	return e.u.Redacted()
}

// String implements fmt.Stringer without leaking credentials.
func (e Endpoint) String() string {
	return e.Redacted()
}

// ParseEndpoints parses every candidate, returning the valid ones and the
// errors of the rejected ones.
func ParseEndpoints(raws []string) ([]Endpoint, []error) {
	var out []Endpoint
	var errs []error
	for _, raw := range raws {
		ep, err := ParseEndpoint(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, ep)
	}
	return out, errs
}

func redactRaw(raw string) string {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return raw
	}
	prefix := raw[:at]
	scheme := ""
	if i := strings.Index(prefix, "://"); i >= 0 {
		scheme = prefix[:i+3]
		prefix = prefix[i+3:]
	}
	user := prefix
	if i := strings.Index(prefix, ":"); i >= 0 {
		user = prefix[:i]
	}
	return scheme + user + ":xxxxx" + raw[at:]
}
