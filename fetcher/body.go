package fetcher

import (
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
)

// maxBodySize bounds one decoded response.
const maxBodySize = 32 << 20

// readBody decodes a response body according to its Content-Encoding. The
// disguise headers advertise gzip, deflate and br themselves, so the
// transport does not decompress transparently.
func readBody(encoding string, body io.Reader) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		r = body
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open gzip body")
		}
		defer gz.Close()
		r = gz
	case "deflate":
		zr, err := zlib.NewReader(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open deflate body")
		}
		defer zr.Close()
		r = zr
	case "br":
		r = brotli.NewReader(body)
	default:
		return nil, errors.Newf("unsupported content encoding %q", encoding)
	}

	b, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	return b, nil
}
