package httpx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTarget(t *testing.T) {
	cases := []struct {
		name   string
		target string
		host   string
		want   string
	}{
		{"relative uses host header", "/foo", "example.com", "http://example.com:80/foo"},
		{"relative keeps host port", "/foo?q=1", "example.com:8080", "http://example.com:8080/foo?q=1"},
		{"relative falls back to default", "/", "", "http://wo.10010.com:80/"},
		{"absolute wins", "http://other.net:81/x", "example.com", "http://other.net:81/x"},
		{"https default port", "https://secure.net", "", "https://secure.net:443/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &Request{Method: "GET", Target: tc.target, Proto: "HTTP/1.1"}
			if tc.host != "" {
				req.Headers.Set("Host", tc.host)
			}
			u, err := ResolveTarget(req, "wo.10010.com")
			require.NoError(t, err)
			assert.Equal(t, tc.want, u.String())
		})
	}
}

func TestResolveTargetRejectsScheme(t *testing.T) {
	_, err := ResolveTarget(&Request{Target: "ftp://files.net/a"}, "wo.10010.com")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestConnectTarget(t *testing.T) {
	host, port, err := ConnectTarget("example.com:8443")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, "8443", port)

	host, port, err = ConnectTarget("example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, "443", port)

	_, _, err = ConnectTarget("")
	assert.Error(t, err)
}
