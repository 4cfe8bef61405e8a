package status

import (
	"sync"
	"time"

	"github.com/kc2rpt/annunciator/internal/app/clock"
)

// RateLimiter suppresses repeats of the same display event inside a fixed
// window. The message-gate rejection notice uses it so a stuck controller
// upstream cannot flood the status display.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	clk    clock.Clock
}

// NewRateLimiter creates a RateLimiter with the given window.
func NewRateLimiter(window time.Duration, clk clock.Clock) *RateLimiter {
	return &RateLimiter{window: window, last: make(map[string]time.Time), clk: clk}
}

// Reset drops all charged windows. The worker calls it when a new command
// is accepted so a pending suppression never outlives the event it covered.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	r.last = make(map[string]time.Time)
	r.mu.Unlock()
}

// Allow reports whether the keyed event may be shown now, and if so charges
// the window.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clk.Now()
	if t, ok := r.last[key]; ok && now.Sub(t) < r.window {
		return false
	}
	r.last[key] = now
	return true
}
