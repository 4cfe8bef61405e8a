// Package tot implements the transmission time-out timer: TOT arms it while
// the sense line is keyed, the falling edge stops it, and TOP speaks how
// long the transmission ran.
package tot

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/activity"
	"github.com/kc2rpt/annunciator/internal/app/clock"
)

// Sense is the line whose keyed time is measured.
type Sense interface {
	Active() bool
}

// Timer measures the span between an arm and the next sense falling edge.
type Timer struct {
	mu        sync.Mutex
	clk       clock.Clock
	sense     Sense
	startedAt time.Time
	armed     bool
	last      time.Duration
	has       bool
}

// New creates a Timer.
func New(clk clock.Clock, sense Sense) *Timer {
	return &Timer{clk: clk, sense: sense}
}

// Start arms the timer from now. The command only makes sense during a
// keyed transmission, so it is ignored while the line is inactive.
func (t *Timer) Start() bool {
	if t.sense != nil && !t.sense.Active() {
		zlog.Debug().Msg("tot start ignored, sense inactive")
		return false
	}
	t.mu.Lock()
	t.startedAt = t.clk.Now()
	t.armed = true
	t.mu.Unlock()
	return true
}

// Stop records the measurement. The sense-edge monitor calls it when the
// line drops; a Stop with no armed timer is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return
	}
	t.last = t.clk.Now().Sub(t.startedAt)
	t.armed = false
	t.has = true
	zlog.Info().Dur("measured", t.last).Msg("tot timer stopped")
}

// Report returns the last completed measurement. Repeated reports speak the
// same value; ok is false when nothing was ever measured.
func (t *Timer) Report() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.has
}

// ReportFiles returns the voice files speaking d in whole seconds, framed
// by the time-out announcement prompts.
func ReportFiles(d time.Duration) []string {
	out := []string{"to1.wav"}
	out = append(out, activity.NumberWavs(int(d.Seconds()))...)
	return append(out, "seconds.wav", "to2.wav")
}
