package httpx

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrUnsupportedScheme is returned for absolute targets that are neither http nor https.
var ErrUnsupportedScheme = errors.New("unsupported target scheme")

// ResolveTarget derives the upstream URL for an embedded request. An absolute target wins;
// otherwise the host comes from the client's Host header and finally from defaultHost.
// A missing port defaults to 80, or 443 for https.
func ResolveTarget(r *Request, defaultHost string) (*url.URL, error) {
	u, err := url.Parse(r.Target)
	if err != nil {
		return nil, fmt.Errorf("parse target %q: %w", r.Target, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "":
		scheme = "http"
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	host, port := u.Hostname(), u.Port()
	if host == "" {
		host, port = splitHost(r.Headers.GetFold("Host"))
	}
	if host == "" {
		host, port = splitHost(defaultHost)
	}
	if host == "" {
		return nil, errors.New("no target host")
	}
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}
	out := &url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(host, port),
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}
	if out.Path == "" {
		out.Path = "/"
	}
	return out, nil
}

// ConnectTarget splits an authority-form CONNECT target. The port defaults to 443.
func ConnectTarget(target string) (host, port string, err error) {
	host, port = splitHost(target)
	if host == "" {
		return "", "", fmt.Errorf("bad connect target %q", target)
	}
	if port == "" {
		port = "443"
	}
	return host, port, nil
}

func splitHost(hostport string) (string, string) {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return "", ""
	}
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(h, "[]"), p
	}
	return strings.Trim(hostport, "[]"), ""
}
