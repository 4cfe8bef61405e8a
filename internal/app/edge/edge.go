// Package edge watches the sense line for transitions and fans the falling
// edge out to interested components.
package edge

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/clock"
)

// Sense is the line being watched.
type Sense interface {
	Active() bool
}

// Monitor polls the sense line, remembers when it last went active, and
// runs registered hooks when it drops.
type Monitor struct {
	sense Sense
	clk   clock.Clock

	mu         sync.Mutex
	lastActive time.Time
	onFall     []func()
}

// NewMonitor creates a Monitor.
func NewMonitor(sense Sense, clk clock.Clock) *Monitor {
	return &Monitor{sense: sense, clk: clk}
}

// OnFall registers a hook invoked on every falling edge. Register before
// Run; hooks run on the monitor goroutine.
func (m *Monitor) OnFall(fn func()) {
	m.mu.Lock()
	m.onFall = append(m.onFall, fn)
	m.mu.Unlock()
}

// ActiveWithin reports whether the line is active now or went active inside
// the last d.
func (m *Monitor) ActiveWithin(d time.Duration) bool {
	if m.sense.Active() {
		return true
	}
	m.mu.Lock()
	last := m.lastActive
	m.mu.Unlock()
	return !last.IsZero() && m.clk.Now().Sub(last) <= d
}

// Run polls until the context ends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := m.sense.Active()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := m.sense.Active()
		if now && !prev {
			m.mu.Lock()
			m.lastActive = m.clk.Now()
			m.mu.Unlock()
		}
		if prev && !now {
			zlog.Debug().Msg("sense line dropped")
			m.fire()
		}
		prev = now
	}
}

func (m *Monitor) fire() {
	m.mu.Lock()
	hooks := make([]func(), len(m.onFall))
	copy(hooks, m.onFall)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
