package fetcher

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Outcome classifies one request attempt.
type Outcome int

const (
	Success Outcome = iota
	RateLimited
	Forbidden
	ProxyFailure
	Timeout
	OtherRequestError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case Forbidden:
		return "forbidden"
	case ProxyFailure:
		return "proxy_failure"
	case Timeout:
		return "timeout"
	case OtherRequestError:
		return "other_request_error"
	default:
		return "unknown"
	}
}

type attemptResult struct {
	outcome    Outcome
	status     int
	retryAfter time.Duration
	body       []byte
	err        error
}

// classify maps a transport error to an outcome. Failures establishing the
// proxy tunnel are proxy failures; deadlines are timeouts.
func classify(err error) Outcome {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return ProxyFailure
	}
	msg := err.Error()
	if strings.Contains(msg, "proxyconnect") || strings.Contains(msg, "socks connect") {
		return ProxyFailure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	return OtherRequestError
}
