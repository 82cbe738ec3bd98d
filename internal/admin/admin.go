// Package admin serves the human and machine readable endpoints next to the relay path.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matst80/unirelay/internal/obs"
	"github.com/matst80/unirelay/internal/proto"
	"github.com/matst80/unirelay/internal/web"
)

// RelayState is the read-only view of the hub the endpoints report on.
type RelayState interface {
	Identifier() string
	ActiveConnectionCount() int
	ClusterConnectionCount(ctx context.Context) (int, error)
	Uptime() time.Duration
}

// Options configures NewRouter.
type Options struct {
	Path        string
	Version     string
	CarrierHost string
	State       RelayState
	// Ready reports readiness for /readyz. Nil means always ready.
	Ready func() bool
}

type server struct {
	opts    Options
	created time.Time
}

// NewRouter mounts relay at opts.Path and the administrative routes around it.
func NewRouter(opts Options, relay http.Handler) chi.Router {
	s := &server{opts: opts, created: time.Now().UTC()}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle(opts.Path, relay)
	r.Get("/", s.index)
	r.Get("/config", s.config)
	r.Get("/status", s.status)
	r.Get("/client-config", s.clientConfig)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.readyz)
	return r
}

func (s *server) index(w http.ResponseWriter, r *http.Request) {
	st := s.opts.State
	data := map[string]any{
		"Title":       "中国联通",
		"Version":     s.opts.Version,
		"UUID":        st.Identifier(),
		"Path":        s.opts.Path,
		"Connections": st.ActiveConnectionCount(),
		"Uptime":      st.Uptime().Truncate(time.Second).String(),
	}
	s.page(w, "index", data)
}

func (s *server) config(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, proto.Config{
		UUID:        s.opts.State.Identifier(),
		Path:        s.opts.Path,
		Host:        r.Host,
		Created:     s.created.Format(time.RFC3339),
		Status:      "active",
		Version:     s.opts.Version,
		Connections: s.opts.State.ActiveConnectionCount(),
	})
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, collectStatus(r.Context(), s.opts.State, s.opts.Version))
}

func (s *server) clientConfig(w http.ResponseWriter, r *http.Request) {
	profile := proto.NewVMess(s.opts.State.Identifier(), s.opts.Path, r.Host, s.opts.CarrierHost, isTLS(r))
	link, err := profile.Link()
	if err != nil {
		obs.Error("admin.client_config", obs.Fields{"err": err.Error()})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.page(w, "client_config", map[string]any{
		"Title":   "联通免流配置",
		"Version": s.opts.Version,
		"Link":    link,
		"Profile": profile,
	})
}

func (s *server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil && !s.opts.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *server) page(w http.ResponseWriter, name string, data map[string]any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := web.Render(w, name, data); err != nil {
		obs.Error("admin.render", obs.Fields{"page": name, "err": err.Error()})
	}
}

func isTLS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
