package relay

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matst80/unirelay/internal/obs"
)

var importantHeaders = []string{
	"Host", "User-Agent", "X-Forwarded-For", "Upgrade",
	"Connection", "Sec-WebSocket-Key", "Sec-WebSocket-Version",
}

// Handler upgrades requests on the relay path and serves one Session per connection.
type Handler struct {
	ctx      context.Context
	hub      *Hub
	eng      *Engine
	upgrader websocket.Upgrader
}

// NewHandler returns the upgrade endpoint. Sessions are children of ctx.
func NewHandler(ctx context.Context, hub *Hub, eng *Engine) *Handler {
	return &Handler{
		ctx: ctx,
		hub: hub,
		eng: eng,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   32 * 1024,
			WriteBufferSize:  32 * 1024,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remote := r.RemoteAddr
	ip := remote
	if host, _, err := net.SplitHostPort(remote); err == nil {
		ip = host
	}
	if !h.eng.Limiter.AllowUpgrade(ip) {
		obs.ErrorsTotal.WithLabelValues("upgrade_rate_limited").Inc()
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	seen := obs.Fields{"remote": remote}
	for _, k := range importantHeaders {
		if v := r.Header.Get(k); v != "" {
			seen[k] = v
		}
	}
	obs.Info("upgrade.request", seen)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obs.Error("upgrade.failed", obs.Fields{"remote": remote, "err": err.Error()})
		obs.ErrorsTotal.WithLabelValues("upgrade").Inc()
		return
	}
	s := NewSession(conn, remote, h.hub, h.eng)
	if err := s.Run(h.ctx); err != nil {
		obs.Debug("session.error", obs.Fields{"session": s.ID(), "remote": remote, "err": err.Error()})
	}
}
