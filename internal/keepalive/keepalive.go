// Package keepalive keeps the process awake on hosting platforms that suspend idle apps.
package keepalive

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/matst80/unirelay/internal/obs"
)

// Platform names a hosting environment.
type Platform string

const (
	None    Platform = ""
	Glitch  Platform = "glitch"
	Render  Platform = "render"
	Railway Platform = "railway"
	Replit  Platform = "replit"
	Heroku  Platform = "heroku"
)

// Detect inspects the environment through getenv.
func Detect(getenv func(string) string) Platform {
	switch {
	case getenv("GLITCH_EDITOR_VERSION") != "" || getenv("PROJECT_DOMAIN") != "":
		return Glitch
	case getenv("RENDER") != "" || getenv("RENDER_EXTERNAL_HOSTNAME") != "":
		return Render
	case getenv("RAILWAY_STATIC_URL") != "":
		return Railway
	case getenv("REPL_ID") != "" || getenv("REPL_SLUG") != "":
		return Replit
	case getenv("HEROKU_APP_ID") != "" || getenv("HEROKU_APP_NAME") != "":
		return Heroku
	}
	return None
}

// PublicHost returns the externally reachable host for p, or "" when unknown.
func PublicHost(p Platform, getenv func(string) string) string {
	switch p {
	case Glitch:
		if d := getenv("PROJECT_DOMAIN"); d != "" {
			return d + ".glitch.me"
		}
	case Render:
		return getenv("RENDER_EXTERNAL_HOSTNAME")
	case Railway:
		u := getenv("RAILWAY_STATIC_URL")
		u = strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
		return strings.TrimSuffix(u, "/")
	case Replit:
		slug, owner := getenv("REPL_SLUG"), getenv("REPL_OWNER")
		if slug != "" && owner != "" {
			return slug + "." + owner + ".repl.co"
		}
	case Heroku:
		if n := getenv("HEROKU_APP_NAME"); n != "" {
			return n + ".herokuapp.com"
		}
	}
	return ""
}

// Counter reports the live connection count.
type Counter interface {
	ActiveConnectionCount() int
}

// Pinger periodically fetches the public status URL.
type Pinger struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
	Counter  Counter
}

// NewPinger returns nil when there is no public host to ping.
func NewPinger(host string, interval time.Duration, c Counter) *Pinger {
	if host == "" || interval <= 0 {
		return nil
	}
	return &Pinger{
		URL:      "http://" + host + "/status",
		Interval: interval,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Counter:  c,
	}
}

// Run pings until ctx is done. A nil Pinger returns immediately.
func (p *Pinger) Run(ctx context.Context) {
	if p == nil {
		return
	}
	obs.Info("keepalive.start", obs.Fields{"url": p.URL, "interval": p.Interval.String()})
	t := time.NewTicker(p.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.ping(ctx)
		}
	}
}

func (p *Pinger) ping(ctx context.Context) {
	f := obs.Fields{"url": p.URL}
	if p.Counter != nil {
		f["connections"] = p.Counter.ActiveConnectionCount()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		f["err"] = err.Error()
		obs.Error("keepalive.ping", f)
		return
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		f["err"] = err.Error()
		obs.Error("keepalive.ping", f)
		return
	}
	resp.Body.Close()
	f["status"] = resp.StatusCode
	obs.Debug("keepalive.ping", f)
}
