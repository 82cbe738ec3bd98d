package relay

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameResponse(t *testing.T) {
	r := &UpstreamResponse{
		StatusCode: 404,
		StatusText: "Not Found",
		Header:     http.Header{"X-B": {"2"}, "Content-Type": {"text/html"}, "Set-Cookie": {"a=1", "b=2"}},
		Body:       []byte("<h1>gone</h1>"),
	}
	want := "HTTP/1.1 404 Not Found\r\n" +
		"Content-Type: text/html\r\n" +
		"Set-Cookie: a=1\r\n" +
		"Set-Cookie: b=2\r\n" +
		"X-B: 2\r\n" +
		"\r\n" +
		"<h1>gone</h1>"
	assert.Equal(t, want, string(FrameResponse(r)))
}

func TestFrameResponseEmpty(t *testing.T) {
	r := &UpstreamResponse{StatusCode: 204, StatusText: "No Content"}
	assert.Equal(t, "HTTP/1.1 204 No Content\r\n\r\n", string(FrameResponse(r)))
}

func TestFixedFrames(t *testing.T) {
	assert.Equal(t, []byte{0x05, 0x00}, HandshakeAck)
	assert.Equal(t, "HTTP/1.1 200 Connection Established\r\n\r\n", string(TunnelAck))
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n联通免流代理响应", string(GreetingFrame))
	assert.Equal(t, "HTTP/1.1 500 Internal Server Error\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n服务器内部错误", string(ErrorFrame))
}
