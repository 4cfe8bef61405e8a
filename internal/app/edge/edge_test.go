package edge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kc2rpt/annunciator/internal/app/clock"
)

type toggleSense struct {
	mu     sync.Mutex
	active bool
}

func (s *toggleSense) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *toggleSense) set(v bool) {
	s.mu.Lock()
	s.active = v
	s.mu.Unlock()
}

func TestFallingEdgeFiresHooks(t *testing.T) {
	sense := &toggleSense{active: true}
	m := NewMonitor(sense, clock.Real{})

	var fired atomic.Int32
	m.OnFall(func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, time.Millisecond)

	// Let the Run goroutine record the initial active state before the
	// line drops, so the first falling edge is observable.
	time.Sleep(10 * time.Millisecond)

	sense.set(false)
	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, time.Millisecond)

	// No edge, no extra firing.
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())

	sense.set(true)
	time.Sleep(10 * time.Millisecond)
	sense.set(false)
	assert.Eventually(t, func() bool { return fired.Load() == 2 },
		time.Second, time.Millisecond)
}

func TestActiveWithin(t *testing.T) {
	sense := &toggleSense{}
	clk := &clock.Mock{Time: time.Unix(90000, 0)}
	m := NewMonitor(sense, clk)

	assert.False(t, m.ActiveWithin(10*time.Second), "never active")

	sense.set(true)
	assert.True(t, m.ActiveWithin(10*time.Second), "active right now")

	// Simulate the rising-edge stamp the Run loop would record.
	m.mu.Lock()
	m.lastActive = clk.Now()
	m.mu.Unlock()
	sense.set(false)

	clk.Advance(5 * time.Second)
	assert.True(t, m.ActiveWithin(10*time.Second))
	clk.Advance(10 * time.Second)
	assert.False(t, m.ActiveWithin(10*time.Second))
}
