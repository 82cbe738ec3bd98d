package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrBadRequestLine is returned when a message does not start with METHOD SP TARGET SP VERSION CRLF.
var ErrBadRequestLine = errors.New("bad request line")

var requestLineRe = regexp.MustCompile("^([!#$%&'*+.^_`|~0-9A-Za-z-]+) ([^ \r\n]+) (HTTP/[0-9](?:\\.[0-9])?)$")

// Request is an HTTP request reconstructed from a single stream message.
type Request struct {
	Method  string
	Target  string
	Proto   string
	Headers Headers
	Body    []byte
}

// RequestLine reports whether b starts with a well formed, CRLF terminated request line
// and returns its parts.
func RequestLine(b []byte) (method, target, proto string, ok bool) {
	end := bytes.Index(b, []byte("\r\n"))
	if end <= 0 {
		return "", "", "", false
	}
	line := b[:end]
	if !utf8.Valid(line) {
		return "", "", "", false
	}
	m := requestLineRe.FindSubmatch(line)
	if m == nil {
		return "", "", "", false
	}
	return string(m[1]), string(m[2]), string(m[3]), true
}

// ParseMessage reconstructs an embedded request. Header lines lacking ": " are skipped;
// everything after the first blank line is the body.
func ParseMessage(b []byte) (*Request, error) {
	method, target, proto, ok := RequestLine(b)
	if !ok {
		return nil, ErrBadRequestLine
	}
	head, body, found := bytes.Cut(b, []byte("\r\n\r\n"))
	if !found {
		head, body = bytes.TrimSuffix(b, []byte("\r\n")), nil
	}
	lines := strings.Split(string(head), "\r\n")
	req := &Request{Method: method, Target: target, Proto: proto}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ": ")
		if !ok || name == "" {
			continue // skip malformed
		}
		req.Headers.Set(name, value)
	}
	if len(body) > 0 {
		req.Body = append([]byte{}, body...)
	}
	return req, nil
}

// WriteTo serializes the request back into wire form.
func (r *Request) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(b []byte) error {
		n, err := w.Write(b)
		total += int64(n)
		return err
	}
	if err := write([]byte(fmt.Sprintf("%s %s %s\r\n", r.Method, r.Target, r.Proto))); err != nil {
		return total, err
	}
	for _, h := range r.Headers {
		if err := write([]byte(h.Name + ": " + h.Value + "\r\n")); err != nil {
			return total, err
		}
	}
	if err := write([]byte("\r\n")); err != nil {
		return total, err
	}
	if len(r.Body) > 0 {
		if err := write(r.Body); err != nil {
			return total, err
		}
	}
	return total, nil
}
