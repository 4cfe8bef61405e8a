// Package series implements the Join and Alternate sequence orchestrators.
package series

import (
	"strings"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/gate"
	"github.com/kc2rpt/annunciator/internal/app/status"
	"github.com/kc2rpt/annunciator/internal/domain/command"
	"github.com/kc2rpt/annunciator/internal/infra/hardware"
)

// Dispatcher resolves and plays one code through the ordinary single-command
// path, scheduler included. The command worker implements it.
type Dispatcher interface {
	PlayCode(code int, flags command.Flags)
}

// Runner owns the series state: the per-series Alternate pointers, plus the
// shared busy holder and message gate that Join needs.
type Runner struct {
	busy    *hardware.BusyHolder
	gate    *gate.MessageGate
	limiter *status.RateLimiter
	pub     *status.Publisher

	mu       sync.Mutex
	pointers map[string]int
}

// NewRunner creates a Runner.
func NewRunner(busy *hardware.BusyHolder, g *gate.MessageGate, limiter *status.RateLimiter, pub *status.Publisher) *Runner {
	return &Runner{
		busy:     busy,
		gate:     g,
		limiter:  limiter,
		pub:      pub,
		pointers: make(map[string]int),
	}
}

// RunJoin plays every segment of a Join series back-to-back. Busy is held
// across the whole series so the gap between segments never reads as idle. A
// message-gated series that has not aged past the timer is skipped entirely.
func (r *Runner) RunJoin(cmd command.Command, d Dispatcher) {
	key := seriesKey(cmd.Raw)
	if cmd.JoinGate && !r.gate.Allow(key) {
		if r.limiter.Allow("join-gate:" + key) {
			r.pub.SetInfo("message timer not elapsed, series skipped")
		}
		zlog.Debug().Str("series", key).Msg("join series gated by message timer")
		return
	}

	r.busy.Hold()
	defer r.busy.Release()

	for _, seg := range cmd.Join {
		d.PlayCode(seg.Code, seg.Flags)
	}
}

// NextAlternate returns the one segment this invocation of an Alternate
// series should play, advancing the persistent pointer. The pointer is keyed
// by the uppercased series text, so case differences in transmission do not
// fork the rotation.
func (r *Runner) NextAlternate(cmd command.Command) (command.Command, bool) {
	if len(cmd.Segments) == 0 {
		return command.Command{}, false
	}
	key := seriesKey(cmd.Raw)

	r.mu.Lock()
	idx := r.pointers[key] % len(cmd.Segments)
	r.pointers[key] = idx + 1
	r.mu.Unlock()

	seg := command.Parse(cmd.Segments[idx])
	if seg.Kind == command.KindNone {
		zlog.Warn().Str("segment", cmd.Segments[idx]).Msg("alternate segment failed to parse")
		return command.Command{}, false
	}
	return seg, true
}

// seriesKey normalizes a series literal for state keying. Lowercase 'i'
// interrupt markers inside segments are preserved by the parser; for
// identity purposes the whole text is folded.
func seriesKey(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
