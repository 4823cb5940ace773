package http

import (
	"testing"
	"time"
)

func TestRateLimiterPerUserBudget(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2)
	rl.now = func() time.Time { return now }

	if !rl.allow(1) || !rl.allow(1) {
		t.Fatal("first two calls should pass")
	}
	if rl.allow(1) {
		t.Fatal("third call should be rejected")
	}
	if !rl.allow(2) {
		t.Fatal("other users have their own budget")
	}

	now = now.Add(time.Minute)
	if !rl.allow(1) || !rl.allow(1) {
		t.Fatal("budget should refill after a minute")
	}
}

func TestRateLimiterNoBurstAcrossBoundary(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(4)
	rl.now = func() time.Time { return now }

	// user 2 touches the limiter first so any shared window would start here
	rl.allow(2)

	now = now.Add(59 * time.Second)
	for i := range 4 {
		if !rl.allow(1) {
			t.Fatalf("call %d should pass", i)
		}
	}

	// one second later only a fraction of a token has refilled
	now = now.Add(time.Second)
	if rl.allow(1) {
		t.Fatal("budget must not reset for user 1 one second after it was spent")
	}

	now = now.Add(15 * time.Second)
	if !rl.allow(1) {
		t.Fatal("one token should be back after a quarter minute")
	}
	if rl.allow(1) {
		t.Fatal("only one token should have refilled")
	}
}

func TestRateLimiterDropsIdleUsers(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1)
	rl.now = func() time.Time { return now }

	rl.allow(1)
	rl.allow(2)
	now = now.Add(limiterIdleTTL + time.Minute)
	rl.allow(2)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.limiters[1]; ok {
		t.Fatal("idle user should be dropped")
	}
	if len(rl.limiters) != 1 {
		t.Fatalf("expected 1 tracked user, got %d", len(rl.limiters))
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0)
	for range 1000 {
		if !rl.allow(1) {
			t.Fatal("disabled limiter must allow everything")
		}
	}
	var nilLimiter *rateLimiter
	if !nilLimiter.allow(1) {
		t.Fatal("nil limiter must allow")
	}
}
