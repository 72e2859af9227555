package relay

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/leonletto/figlink/internal/config"
)

// Default rate limit constants
const (
	DefaultMessagesPerSecond = 50
	DefaultBurst             = 100
)

// RateLimiter bounds the number of inbound frames per relay connection.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter // keyed by connection ID
	cfg      config.RateLimitConfig
}

// NewRateLimiter creates a limiter from cfg. Zero values fall back to defaults.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.MessagesPerSecond == 0 {
		cfg.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if cfg.Burst == 0 {
		cfg.Burst = DefaultBurst
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
	}
}

// Allow reports whether connID may send another frame now.
// Returns nil if allowed or a *RateLimitError if over budget.
func (r *RateLimiter) Allow(connID string) error {
	if r == nil || !r.cfg.Enabled {
		return nil
	}
	if !r.limiter(connID).Allow() {
		return &RateLimitError{ConnID: connID, Limit: r.cfg.MessagesPerSecond}
	}
	return nil
}

// Forget drops the limiter state for a closed connection.
func (r *RateLimiter) Forget(connID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.limiters, connID)
	r.mu.Unlock()
}

// Tracked returns the number of connections with limiter state.
func (r *RateLimiter) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

func (r *RateLimiter) limiter(connID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[connID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.cfg.MessagesPerSecond), r.cfg.Burst)
		r.limiters[connID] = l
	}
	return l
}

// RateLimitError is returned when a connection exceeds its frame budget.
type RateLimitError struct {
	ConnID string
	Limit  float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%.0f messages/s)", e.Limit)
}
