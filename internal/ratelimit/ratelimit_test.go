package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	bucket := NewTokenBucket(2, 5) // 2 tokens per second, capacity of 5

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("Expected initial request %d to be allowed", i)
		}
	}
	if bucket.Allow() {
		t.Error("Expected request to be denied when bucket is empty")
	}

	time.Sleep(1100 * time.Millisecond)

	if !bucket.Allow() {
		t.Error("Expected request to be allowed after token refill")
	}
	if !bucket.Allow() {
		t.Error("Expected second request to be allowed after token refill")
	}
	if bucket.Allow() {
		t.Error("Expected third request to be denied")
	}
}

func TestLimiterPerAddress(t *testing.T) {
	l := New(2, 5, 3)
	addr := "10.0.0.1"

	for i := 0; i < 3; i++ {
		if !l.AllowUpgrade(addr) {
			t.Errorf("Expected upgrade %d to be allowed for %s", i, addr)
		}
	}
	if l.AllowUpgrade(addr) {
		t.Error("Expected upgrade to be denied after burst")
	}

	// request buckets are independent of upgrade buckets
	for i := 0; i < 3; i++ {
		if !l.AllowRequest(addr) {
			t.Errorf("Expected request %d to be allowed for %s", i, addr)
		}
	}
	if l.AllowRequest(addr) {
		t.Error("Expected request to be denied after burst")
	}

	other := "10.0.0.2"
	if !l.AllowUpgrade(other) || !l.AllowRequest(other) {
		t.Error("Expected a different address to have its own buckets")
	}
}

func TestLimiterSweep(t *testing.T) {
	l := New(1, 1, 1)
	l.AllowUpgrade("a")
	l.AllowUpgrade("b")
	l.AllowRequest("a")
	l.AllowRequest("b")

	if removed := l.Sweep(map[string]bool{"a": true}, 0); removed != 2 {
		t.Errorf("Expected 2 buckets removed, got %d", removed)
	}
	if _, ok := l.upgrades["a"]; !ok {
		t.Error("Expected active address upgrade bucket to remain")
	}
	if _, ok := l.requests["b"]; ok {
		t.Error("Expected inactive address request bucket to be removed")
	}
	if removed := l.Sweep(nil, time.Hour); removed != 0 {
		t.Errorf("Expected recently used buckets to survive, removed %d", removed)
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0, 0, 5)
	for i := 0; i < 100; i++ {
		if !l.AllowUpgrade("x") || !l.AllowRequest("x") {
			t.Fatalf("Expected call %d to be allowed when limits disabled", i)
		}
	}
	var nilLimiter *Limiter
	if !nilLimiter.AllowRequest("x") {
		t.Error("Expected nil limiter to allow everything")
	}
}
