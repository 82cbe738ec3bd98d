package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matst80/unirelay/internal/httpx"
	"github.com/matst80/unirelay/internal/obs"
	"golang.org/x/net/proxy"
)

// ErrResponseTooLarge is returned when an upstream body exceeds the buffering cap.
var ErrResponseTooLarge = errors.New("upstream response too large")

// UpstreamOptions configures the upstream client.
type UpstreamOptions struct {
	Timeout          time.Duration
	MaxResponseBytes int64
	// DefaultHost is used when neither the target nor the Host header name a host.
	DefaultHost string
	Identity    httpx.Headers
	Dialer      proxy.ContextDialer
}

// Upstream executes embedded requests against their targets.
type Upstream struct {
	client   *http.Client
	maxBody  int64
	host     string
	identity httpx.Headers
}

// NewUpstream builds an upstream client. Redirects are returned to the peer, not followed.
func NewUpstream(opts UpstreamOptions) *Upstream {
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 8 << 20
	}
	if opts.DefaultHost == "" {
		opts.DefaultHost = CarrierHost
	}
	if opts.Identity == nil {
		opts.Identity = Identity
	}
	tr := &http.Transport{
		Proxy:               nil,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if opts.Dialer != nil {
		tr.DialContext = opts.Dialer.DialContext
	}
	return &Upstream{
		client: &http.Client{
			Transport: tr,
			Timeout:   opts.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxBody:  opts.MaxResponseBytes,
		host:     opts.DefaultHost,
		identity: opts.Identity,
	}
}

// Do sends req to the upstream it names and buffers the whole response.
func (u *Upstream) Do(ctx context.Context, req *httpx.Request) (*UpstreamResponse, error) {
	target, err := httpx.ResolveTarget(req, u.host)
	if err != nil {
		return nil, err
	}
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for _, h := range req.Headers.Overlay(u.identity) {
		switch {
		case strings.EqualFold(h.Name, "Host"):
			out.Host = h.Value
		case strings.EqualFold(h.Name, "Content-Length"), strings.EqualFold(h.Name, "Transfer-Encoding"):
			// recomputed from the buffered body
		default:
			out.Header[h.Name] = append(out.Header[h.Name], h.Value)
		}
	}

	start := time.Now()
	resp, err := u.client.Do(out)
	obs.UpstreamDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("upstream %s %s: %w", req.Method, target.Host, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(data)) > u.maxBody {
		return nil, ErrResponseTooLarge
	}
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &UpstreamResponse{
		StatusCode: resp.StatusCode,
		StatusText: text,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
