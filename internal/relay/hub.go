package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matst80/unirelay/internal/obs"
	"github.com/matst80/unirelay/internal/ratelimit"
	"github.com/matst80/unirelay/internal/state"
)

// ErrHubClosed is returned when registering a session on a hub that is shutting down.
var ErrHubClosed = errors.New("hub closed")

// Hub tracks the live sessions of this process and owns its advertised identifier.
type Hub struct {
	id         string
	instanceID string
	started    time.Time
	store      state.Store
	limiter    *ratelimit.Limiter

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
}

// NewHub resolves the identifier and returns an empty hub. A configured identifier is used
// as is; otherwise the store's shared identifier is adopted, or a new UUID is generated.
func NewHub(ctx context.Context, store state.Store, configuredID string, limiter *ratelimit.Limiter) (*Hub, error) {
	if store == nil {
		store = state.NewMemory()
	}
	id := configuredID
	if id == "" {
		var err error
		if id, err = store.Identifier(ctx, uuid.NewString()); err != nil {
			return nil, fmt.Errorf("resolve identifier: %w", err)
		}
	} else if _, err := store.Identifier(ctx, id); err != nil {
		obs.Error("hub.identifier.share", obs.Fields{"err": err.Error()})
	}
	return &Hub{
		id:         id,
		instanceID: uuid.NewString(),
		started:    time.Now(),
		store:      store,
		limiter:    limiter,
		sessions:   make(map[*Session]struct{}),
	}, nil
}

// Identifier returns the process identifier.
func (h *Hub) Identifier() string { return h.id }

// Uptime returns the time since the hub was created.
func (h *Hub) Uptime() time.Duration { return time.Since(h.started) }

// ActiveConnectionCount returns the number of registered sessions.
func (h *Hub) ActiveConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// ClusterConnectionCount returns the connection count summed over every instance sharing the store.
func (h *Hub) ClusterConnectionCount(ctx context.Context) (int, error) {
	return h.store.ClusterConnections(ctx)
}

// Register adds s to the live set.
func (h *Hub) Register(s *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return ErrHubClosed
	}
	h.sessions[s] = struct{}{}
	obs.ActiveSessions.Set(float64(len(h.sessions)))
	return nil
}

// Deregister removes s. Removing an unknown session is a no-op.
func (h *Hub) Deregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	obs.ActiveSessions.Set(float64(len(h.sessions)))
	h.mu.Unlock()
}

// Close refuses new sessions and closes every live one.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closing = true
	live := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		live = append(live, s)
	}
	h.mu.Unlock()
	for _, s := range live {
		s.Close()
	}
	obs.Info("hub.closed", obs.Fields{"sessions": len(live)})
}

// Maintain publishes the live count to the store and sweeps idle rate-limit buckets every
// interval until ctx is done, then withdraws this instance.
func (h *Hub) Maintain(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	h.publish(ctx)
	for {
		select {
		case <-ctx.Done():
			wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := h.store.Withdraw(wctx, h.instanceID); err != nil {
				obs.Error("hub.withdraw", obs.Fields{"err": err.Error()})
			}
			cancel()
			return
		case <-t.C:
			h.publish(ctx)
			if n := h.limiter.Sweep(h.activeAddrs(), interval); n > 0 {
				obs.Debug("hub.ratelimit.sweep", obs.Fields{"removed": n})
			}
		}
	}
}

func (h *Hub) publish(ctx context.Context) {
	if err := h.store.Publish(ctx, h.instanceID, h.ActiveConnectionCount()); err != nil && ctx.Err() == nil {
		obs.Error("hub.publish", obs.Fields{"err": err.Error()})
	}
}

func (h *Hub) activeAddrs() map[string]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]bool, len(h.sessions))
	for s := range h.sessions {
		out[s.remoteIP()] = true
	}
	return out
}
