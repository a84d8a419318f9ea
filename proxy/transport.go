package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/cockroachdb/errors"
	xproxy "golang.org/x/net/proxy"
)

// TransportOptions tune the round tripper built for an endpoint.
type TransportOptions struct {
	DialTimeout time.Duration
	// TLSBypass wraps the transport with a browser-like TLS configuration.
	TLSBypass bool
}

// NewTransport returns a round tripper that egresses through ep, or directly
// when ep is nil. http(s) proxies use CONNECT/absolute-form requests; socks5
// proxies dial through golang.org/x/net/proxy.
func NewTransport(ep *Endpoint, opts TransportOptions) (http.RoundTripper, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 30 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	t := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.DialTimeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if ep != nil {
		switch ep.Scheme() {
		case "http", "https":
			t.Proxy = http.ProxyURL(ep.URL())
		case "socks5", "socks5h":
			d, err := xproxy.FromURL(ep.URL(), dialer)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to create socks dialer for %s", ep.Redacted())
			}
			cd, ok := d.(xproxy.ContextDialer)
			if !ok {
				return nil, errors.Newf("socks dialer for %s does not support contexts", ep.Redacted())
			}
			t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return cd.DialContext(ctx, network, addr)
			}
		default:
			return nil, errors.Wrapf(ErrInvalidEndpoint, "unsupported scheme %q", ep.Scheme())
		}
	}

	if opts.TLSBypass {
		return cloudflarebp.AddCloudFlareByPass(t), nil
	}
	return t, nil
}
