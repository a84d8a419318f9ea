package disguise

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_Coverage(t *testing.T) {
	families := map[Family]bool{}
	platforms := map[string]bool{}
	for _, a := range DefaultCatalog {
		families[a.Family] = true
		platforms[a.Platform] = true
	}
	assert.Len(t, families, 3)
	assert.GreaterOrEqual(t, len(platforms), 2)
}

func TestGenerate_NeverMixesClientHints(t *testing.T) {
	s := NewSupplier(nil)
	for i := 0; i < 100; i++ {
		p := s.Generate()
		h := p.Headers()
		ua := h["User-Agent"]
		require.NotEmpty(t, ua)

		if p.Family() != Chromium {
			assert.NotContains(t, h, "sec-ch-ua", ua)
			assert.NotContains(t, h, "sec-ch-ua-platform", ua)
			assert.NotContains(t, h, "sec-ch-ua-mobile", ua)
			assert.NotContains(t, ua, "Chrome/")
			continue
		}
		assert.Contains(t, ua, "Chrome/")
		assert.Contains(t, h, "sec-ch-ua")
	}
}

func TestBuild_ChromeHintMatchesUA(t *testing.T) {
	p := Build(Agent{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		Family:    Chromium,
		Brand:     "Google Chrome",
		Platform:  "macOS",
	})
	h := p.Headers()
	assert.Equal(t, `"Not_A Brand";v="8", "Chromium";v="119", "Google Chrome";v="119"`, h["sec-ch-ua"])
	assert.Equal(t, `"macOS"`, h["sec-ch-ua-platform"])
	assert.Equal(t, "?0", h["sec-ch-ua-mobile"])
}

func TestBuild_EdgeHint(t *testing.T) {
	p := Build(DefaultCatalog[3])
	hint := p.Headers()["sec-ch-ua"]
	assert.Contains(t, hint, `"Microsoft Edge";v="120"`)
	assert.Contains(t, hint, `"Chromium";v="120"`)
	assert.NotContains(t, hint, "Google Chrome")
}

func TestBuild_AuxiliaryHeaders(t *testing.T) {
	for _, a := range DefaultCatalog {
		h := Build(a).Headers()
		for _, k := range []string{"User-Agent", "Accept", "Accept-Language", "Accept-Encoding", "Connection"} {
			assert.NotEmpty(t, h[k], "%s missing for %s", k, a.UserAgent)
		}
		assert.Equal(t, "keep-alive", h["Connection"])
	}
}

func TestBuild_SafariHasNoFetchMetadata(t *testing.T) {
	var safari Agent
	for _, a := range DefaultCatalog {
		if a.Family == WebKit {
			safari = a
		}
	}
	require.NotEmpty(t, safari.UserAgent)

	h := Build(safari).Headers()
	for k := range h {
		assert.False(t, strings.HasPrefix(strings.ToLower(k), "sec-"), k)
	}
}

func TestProfile_HeadersIsACopy(t *testing.T) {
	p := Build(DefaultCatalog[0])
	h := p.Headers()
	h["User-Agent"] = "changed"
	assert.NotEqual(t, "changed", p.UserAgent())
	assert.NotEqual(t, "changed", p.Headers()["User-Agent"])
}
