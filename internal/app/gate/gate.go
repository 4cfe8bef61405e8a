// Package gate implements the message timer: a minimum-replay interval for
// message-flagged commands, independent of any section scheduler interval.
package gate

import (
	"sync"
	"time"

	"github.com/kc2rpt/annunciator/internal/app/clock"
)

// MessageGate tracks the last accepted play per key. Keys are command codes,
// or the whole series text for a message-gated Join.
//
// Three configurations exist: disabled (the timer is "N", message commands
// never play), always-open (zero window), and a minute window.
type MessageGate struct {
	mu       sync.Mutex
	window   time.Duration
	disabled bool
	last     map[string]time.Time
	clk      clock.Clock
}

// New creates a MessageGate.
func New(window time.Duration, disabled bool, clk clock.Clock) *MessageGate {
	return &MessageGate{
		window:   window,
		disabled: disabled,
		last:     make(map[string]time.Time),
		clk:      clk,
	}
}

// Allow reports whether the keyed message may play now. A permitted play is
// charged immediately; the caller is expected to follow through.
func (g *MessageGate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disabled {
		return false
	}
	if g.window <= 0 {
		return true
	}

	now := g.clk.Now()
	if t, ok := g.last[key]; ok && now.Sub(t) < g.window {
		return false
	}
	g.last[key] = now
	return true
}
