// Package ratelimit throttles stream upgrades and embedded requests per remote address.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     int
	capacity   int
	rate       int // tokens per second
	lastRefill time.Time
	lastUsed   time.Time
}

// NewTokenBucket creates a full bucket with the given rate and capacity.
func NewTokenBucket(rate, capacity int) *TokenBucket {
	now := time.Now()
	return &TokenBucket{tokens: capacity, capacity: capacity, rate: rate, lastRefill: now, lastUsed: now}
}

// Allow consumes a token when one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.lastUsed = now
	if add := int(now.Sub(tb.lastRefill).Seconds() * float64(tb.rate)); add > 0 {
		tb.tokens = min(tb.tokens+add, tb.capacity)
		tb.lastRefill = now
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastUsed
}

// Limiter keeps per-address buckets for stream upgrades and embedded requests.
// A rate of 0 disables the corresponding limit.
type Limiter struct {
	mu        sync.Mutex
	upgrades  map[string]*TokenBucket
	requests  map[string]*TokenBucket
	upRate    int
	reqRate   int
	burstSize int
}

// New creates a limiter. burst is the bucket capacity shared by both kinds.
func New(upgradeRate, requestRate, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		upgrades:  make(map[string]*TokenBucket),
		requests:  make(map[string]*TokenBucket),
		upRate:    upgradeRate,
		reqRate:   requestRate,
		burstSize: burst,
	}
}

// AllowUpgrade reports whether addr may open another stream.
func (l *Limiter) AllowUpgrade(addr string) bool {
	if l == nil || l.upRate <= 0 {
		return true
	}
	return l.bucket(l.upgrades, addr, l.upRate).Allow()
}

// AllowRequest reports whether addr may send another embedded request.
func (l *Limiter) AllowRequest(addr string) bool {
	if l == nil || l.reqRate <= 0 {
		return true
	}
	return l.bucket(l.requests, addr, l.reqRate).Allow()
}

func (l *Limiter) bucket(m map[string]*TokenBucket, addr string, rate int) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := m[addr]
	if !ok {
		b = NewTokenBucket(rate, l.burstSize)
		m[addr] = b
	}
	return b
}

// Sweep drops buckets of addresses that are not active and were idle for at least maxIdle.
// It returns the number of buckets removed.
func (l *Limiter) Sweep(active map[string]bool, maxIdle time.Duration) int {
	if l == nil {
		return 0
	}
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for _, m := range []map[string]*TokenBucket{l.upgrades, l.requests} {
		for addr, b := range m {
			if !active[addr] && !b.idleSince().After(cutoff) {
				delete(m, addr)
				removed++
			}
		}
	}
	return removed
}
