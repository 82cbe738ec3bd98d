package relay

import (
	"bytes"
	"net/http"
	"sort"
	"strconv"
)

// Fixed frames written back on the stream.
var (
	HandshakeAck   = []byte{0x05, 0x00}
	TunnelAck      = []byte("HTTP/1.1 200 Connection Established\r\n\r\n")
	GreetingFrame  = []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n联通免流代理响应")
	ErrorFrame     = []byte("HTTP/1.1 500 Internal Server Error\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n服务器内部错误")
	RateLimitFrame = []byte("HTTP/1.1 429 Too Many Requests\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\nToo Many Requests")
)

// UpstreamResponse is a fully buffered upstream reply.
type UpstreamResponse struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       []byte
}

// FrameResponse serializes r as raw HTTP/1.1 bytes. Header keys are written as received,
// sorted, one line per value.
func FrameResponse(r *UpstreamResponse) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(r.StatusCode))
	if r.StatusText != "" {
		b.WriteByte(' ')
		b.WriteString(r.StatusText)
	}
	b.WriteString("\r\n")
	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range r.Header[k] {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	b.WriteString("\r\n")
	b.Write(r.Body)
	return b.Bytes()
}
