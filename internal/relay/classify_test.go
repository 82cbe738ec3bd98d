package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		raw    []byte
		kind   MessageKind
		target string
	}{
		{"empty", nil, KindEmpty, ""},
		{"request", []byte("GET /foo HTTP/1.1\r\nHost: example.com\r\n\r\n"), KindRequest, "/foo"},
		{"connect", []byte("CONNECT example.com:443 HTTP/1.1\r\n\r\n"), KindConnect, "example.com:443"},
		{"tls client hello", []byte{0x16, 0x03, 0x01, 0x00, 0xa5, 0x01}, KindOpaque, ""},
		{"missing request line", []byte("Host: example.com\r\n\r\n"), KindOpaque, ""},
		{"handshake byte", []byte{0x01}, KindOpaque, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Classify(tc.raw)
			assert.Equal(t, tc.kind, m.Kind, m.Kind.String())
			assert.Equal(t, tc.target, m.Target)
		})
	}
}

func TestCheckHandshake(t *testing.T) {
	assert.True(t, CheckHandshake([]byte{0x01}))
	assert.True(t, CheckHandshake([]byte("anything")))
	assert.False(t, CheckHandshake(nil))
	assert.False(t, CheckHandshake([]byte{}))
}
