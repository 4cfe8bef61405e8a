package scheduler

import (
	"regexp"
	"sync"
	"time"

	"github.com/kc2rpt/annunciator/internal/domain/command"
)

// overrideMarkerRe matches filenames tagged as replaceable during an alert:
// a code, optional suffix letters, then the -CT marker.
var overrideMarkerRe = regexp.MustCompile(`^\d{4}[A-Z]*-CT\b`)

// HasOverrideMarker reports whether a track filename opts into alert
// substitution.
func HasOverrideMarker(name string) bool {
	return overrideMarkerRe.MatchString(name)
}

// AlertOverride is the time-bounded substitution window. The weather alert
// monitor opens it; selection consults it. It has its own lock because the
// monitor runs on a different goroutine than the worker.
type AlertOverride struct {
	mu     sync.Mutex
	code   int
	flags  command.Flags
	window time.Duration
	until  time.Time
}

// NewAlertOverride creates the override with its substitute code, the suffix
// applied to the substitute, and the window opened per activation.
func NewAlertOverride(code int, suffix string, window time.Duration) *AlertOverride {
	return &AlertOverride{
		code:   code,
		flags:  command.ParseFlags(suffix),
		window: window,
	}
}

// Activate opens (or extends) the override window from now.
func (a *AlertOverride) Activate(now time.Time) {
	a.mu.Lock()
	a.until = now.Add(a.window)
	a.mu.Unlock()
}

// Open reports whether the window is currently open.
func (a *AlertOverride) Open(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return now.Before(a.until)
}

// Code returns the substitute code.
func (a *AlertOverride) Code() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.code
}

// Flags returns the substitute's playback flags.
func (a *AlertOverride) Flags() command.Flags {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flags
}
