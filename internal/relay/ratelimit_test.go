package relay

import (
	"errors"
	"testing"

	"github.com/leonletto/figlink/internal/config"
)

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: false, MessagesPerSecond: 1, Burst: 1})
	for i := 0; i < 100; i++ {
		if err := rl.Allow("conn-1"); err != nil {
			t.Fatalf("disabled limiter rejected frame %d: %v", i, err)
		}
	}
	if rl.Tracked() != 0 {
		t.Errorf("Tracked() = %d, want 0", rl.Tracked())
	}
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, MessagesPerSecond: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		if err := rl.Allow("conn-1"); err != nil {
			t.Fatalf("frame %d within burst rejected: %v", i, err)
		}
	}

	err := rl.Allow("conn-1")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rle.ConnID != "conn-1" {
		t.Errorf("ConnID = %q, want conn-1", rle.ConnID)
	}

	// Budgets are per connection.
	if err := rl.Allow("conn-2"); err != nil {
		t.Errorf("other connection rejected: %v", err)
	}
}

func TestRateLimiter_Forget(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true})
	_ = rl.Allow("a")
	_ = rl.Allow("b")
	if rl.Tracked() != 2 {
		t.Fatalf("Tracked() = %d, want 2", rl.Tracked())
	}
	rl.Forget("a")
	if rl.Tracked() != 1 {
		t.Errorf("Tracked() after Forget = %d, want 1", rl.Tracked())
	}
}

func TestRateLimiter_Nil(t *testing.T) {
	var rl *RateLimiter
	if err := rl.Allow("x"); err != nil {
		t.Errorf("nil limiter should allow: %v", err)
	}
	rl.Forget("x")
}
