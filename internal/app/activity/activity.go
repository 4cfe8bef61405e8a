// Package activity accumulates channel-occupied minutes per day and keeps
// the newest-first activity log.
package activity

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/clock"
)

// dateLayout is the per-day key in the activity log.
const dateLayout = "01/02/06"

// Sense is the occupancy input sampled by the accumulator.
type Sense interface {
	Active() bool
}

// Accumulator counts seconds of sense activity and folds them into minutes
// per calendar day. Day rollover flushes the finished day to the log.
type Accumulator struct {
	mu      sync.Mutex
	logPath string
	clk     clock.Clock

	day     string
	seconds int
}

// New creates an Accumulator writing to logPath.
func New(logPath string, clk clock.Clock) *Accumulator {
	a := &Accumulator{logPath: logPath, clk: clk}
	a.day = clk.Now().Format(dateLayout)
	return a
}

// Run samples the sense line once per interval until the context ends. The
// log is flushed once a minute so a power cut loses little.
func (a *Accumulator) Run(ctx context.Context, sense Sense, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := a.Flush(); err != nil {
				zlog.Warn().Err(err).Msg("activity log final flush failed")
			}
			return
		case <-ticker.C:
			a.Tick(sense.Active())
			if a.clk.Now().Second() == 0 {
				if err := a.Flush(); err != nil {
					zlog.Warn().Err(err).Msg("activity log flush failed")
				}
			}
		}
	}
}

// Tick records one sample. Exposed for tests.
func (a *Accumulator) Tick(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked()
	if active {
		a.seconds++
	}
}

// TodayMinutes returns the minutes accumulated so far today.
func (a *Accumulator) TodayMinutes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked()
	return a.seconds / 60
}

// Reset zeroes today's count and rewrites the log entry.
func (a *Accumulator) Reset() error {
	a.mu.Lock()
	a.rolloverLocked()
	a.seconds = 0
	a.mu.Unlock()
	return a.Flush()
}

// Flush upserts today's entry at the head of the log: any existing line for
// today is removed, then the fresh line is prepended, newest first.
func (a *Accumulator) Flush() error {
	a.mu.Lock()
	day := a.day
	minutes := a.seconds / 60
	a.mu.Unlock()
	return upsert(a.logPath, day, minutes)
}

// rolloverLocked flushes and resets when the calendar day changes.
func (a *Accumulator) rolloverLocked() {
	today := a.clk.Now().Format(dateLayout)
	if today == a.day {
		return
	}
	if err := upsert(a.logPath, a.day, a.seconds/60); err != nil {
		zlog.Warn().Err(err).Msg("activity log rollover flush failed")
	}
	a.day = today
	a.seconds = 0
}

func upsert(path, day string, minutes int) error {
	var kept []string
	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, day+",") {
				continue
			}
			kept = append(kept, line)
		}
	}

	lines := append([]string{fmt.Sprintf("%s,%d minutes", day, minutes)}, kept...)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "failed to write activity log")
	}
	return nil
}
