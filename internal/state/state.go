// Package state holds the small amount of relay state that may be shared between
// instances: the advertised identifier and per-instance live connection counts.
package state

import (
	"context"
	"time"

	"github.com/matst80/unirelay/internal/obs"
)

// Store abstracts relay state so several instances can advertise one identifier
// and report a combined connection count.
type Store interface {
	// Identifier returns the stored identifier, adopting candidate when none exists yet.
	Identifier(ctx context.Context, candidate string) (string, error)
	// Publish records the live connection count of one instance.
	Publish(ctx context.Context, instanceID string, connections int) error
	// Withdraw removes the entry of one instance.
	Withdraw(ctx context.Context, instanceID string) error
	// ClusterConnections sums the counts of every live instance.
	ClusterConnections(ctx context.Context) (int, error)
	Close() error
}

// Options selects and configures the backend.
type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// EntryTTL bounds how long a published count survives without a refresh.
	EntryTTL time.Duration
}

// New creates either an in-memory or Redis-backed store based on configuration.
func New(opts Options) (Store, error) {
	if opts.RedisAddr == "" {
		obs.Info("state.backend", obs.Fields{"type": "in-memory"})
		return NewMemory(), nil
	}
	obs.Info("state.backend", obs.Fields{"type": "redis", "addr": opts.RedisAddr})
	return NewRedis(opts)
}
