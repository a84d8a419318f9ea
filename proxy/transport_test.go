package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransport(t *testing.T) {
	direct, err := NewTransport(nil, TransportOptions{})
	require.NoError(t, err)
	tr, ok := direct.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, tr.Proxy)

	ep, err := ParseEndpoint("u:p@10.0.0.1:8080")
	require.NoError(t, err)
	proxied, err := NewTransport(&ep, TransportOptions{})
	require.NoError(t, err)
	tr, ok = proxied.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, tr.Proxy)

	req, err := http.NewRequest(http.MethodGet, "https://old.reddit.com/", nil)
	require.NoError(t, err)
	u, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "http://u:p@10.0.0.1:8080", u.String())
}

func TestNewTransport_Socks(t *testing.T) {
	ep, err := ParseEndpoint("socks5://10.0.0.1:1080")
	require.NoError(t, err)

	rt, err := NewTransport(&ep, TransportOptions{})
	require.NoError(t, err)
	tr, ok := rt.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, tr.Proxy)
	assert.NotNil(t, tr.DialContext)
}
