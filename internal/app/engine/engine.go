// Package engine implements the playback state machine: the single place
// that renders or captures audio against the hardware sense and busy lines.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/status"
	"github.com/kc2rpt/annunciator/internal/domain/command"
	"github.com/kc2rpt/annunciator/internal/domain/track"
	"github.com/kc2rpt/annunciator/internal/infra/audio"
	"github.com/kc2rpt/annunciator/internal/infra/hardware"
)

// State is the engine's current mode.
type State int

const (
	Idle State = iota
	Normal
	Interruptible
	Repeat
	Pause
	WaitForCOS
	EchoTest
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Interruptible:
		return "interruptible"
	case Repeat:
		return "repeat"
	case Pause:
		return "pause"
	case WaitForCOS:
		return "wait_for_cos"
	case EchoTest:
		return "echo_test"
	default:
		return "idle"
	}
}

// Result reports how a session ended.
type Result int

const (
	ResultCompleted   Result = iota // rendered to the end
	ResultInterrupted               // stopped early by the sense line
	ResultSuperseded                // preempted by a newer session
	ResultSkipped                   // never started (device missing, start failure)
)

// Sense is the debounced channel-occupied input as the engine sees it.
type Sense interface {
	Active() bool
}

// Config holds the engine tunables.
type Config struct {
	Poll       time.Duration // render-loop poll cadence
	Grace      time.Duration // delay after preemption before a new session starts
	Debounce   time.Duration // continuous-inactive window for "channel clear"
	StopGrace  time.Duration // wait after Terminate before Kill
	RestartCap int           // repeat/pause restarts per invocation
}

// Engine runs playback sessions. Sessions execute synchronously on the
// caller's goroutine; every accepted session first supersedes whatever was
// running via the monotonic token, so at most one session renders at a time.
type Engine struct {
	device audio.Device
	sense  Sense
	busy   *hardware.BusyHolder
	pub    *status.Publisher
	cfg    Config

	// token is the preemption mechanism: each accepted session bumps it and
	// remembers its own value; a running session exits as soon as the global
	// value moves past its own. A bare bump is a stop request.
	token atomic.Uint64

	mu    sync.Mutex
	state State
}

// New creates an Engine.
func New(device audio.Device, sense Sense, busy *hardware.BusyHolder, pub *status.Publisher, cfg Config) *Engine {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 500 * time.Millisecond
	}
	return &Engine{device: device, sense: sense, busy: busy, pub: pub, cfg: cfg}
}

// State returns the current mode.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Preempt stops any running session without starting a new one.
func (e *Engine) Preempt() {
	e.token.Add(1)
}

// Play renders one track under the given mode flags. It blocks until the
// session ends and reports how it ended.
func (e *Engine) Play(t track.Track, f command.Flags) Result {
	tok, ok := e.acquire(stateFor(f))
	if !ok {
		return ResultSkipped
	}
	defer e.release()

	e.pub.SetStatus("Playing", t.Name())

	if f.WaitForCOS {
		if !e.waitClear(tok) {
			return ResultSuperseded
		}
	}

	var res Result
	switch {
	case f.Repeat:
		res = e.playRepeat(tok, t)
	case f.Pause:
		res = e.playPause(tok, t)
	default:
		res = e.playOnce(tok, t, f.Interruptible)
	}
	return res
}

// stateFor maps mode flags to the published engine state.
func stateFor(f command.Flags) State {
	switch {
	case f.Repeat:
		return Repeat
	case f.Pause:
		return Pause
	case f.WaitForCOS:
		return WaitForCOS
	case f.Interruptible:
		return Interruptible
	default:
		return Normal
	}
}

// acquire supersedes the running session, waits out the grace delay, and
// asserts busy. It returns this session's token.
func (e *Engine) acquire(s State) (uint64, bool) {
	if e.device.Missing() {
		zlog.Warn().Msg("audio device missing, skipping session")
		return 0, false
	}

	tok := e.token.Add(1)
	if e.cfg.Grace > 0 {
		time.Sleep(e.cfg.Grace)
	}
	if e.superseded(tok) {
		return 0, false
	}

	e.busy.Hold()
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	return tok, true
}

// release is the guaranteed cleanup path: busy deasserted and state back to
// Idle on every exit.
func (e *Engine) release() {
	e.mu.Lock()
	e.state = Idle
	e.mu.Unlock()
	e.busy.Release()
	e.pub.SetIdle()
}

func (e *Engine) superseded(tok uint64) bool {
	return e.token.Load() != tok
}

// playOnce renders the file a single time. When interruptible, a sense
// activation ends the session early.
func (e *Engine) playOnce(tok uint64, t track.Track, interruptible bool) Result {
	h, err := e.device.Play(t.Path)
	if err != nil {
		zlog.Error().Err(err).Str("track", t.Name()).Msg("failed to start render")
		return ResultSkipped
	}

	for h.Running() {
		if e.superseded(tok) {
			e.stop(h)
			return ResultSuperseded
		}
		if interruptible && e.sense.Active() {
			zlog.Debug().Str("track", t.Name()).Msg("sense active, interrupting render")
			e.stop(h)
			return ResultInterrupted
		}
		time.Sleep(e.cfg.Poll)
	}
	return ResultCompleted
}

// playRepeat re-renders the file whenever the sense line fires, up to the
// restart cap. Each restart waits for the channel to clear first, so one
// continuous activation costs one restart. Once the cap is reached sense
// activity is ignored so the final pass runs to the end.
func (e *Engine) playRepeat(tok uint64, t track.Track) Result {
	restarts := 0
	for {
		final := restarts >= e.cfg.RestartCap
		res := e.playOnce(tok, t, !final)
		switch res {
		case ResultInterrupted:
			restarts++
			zlog.Debug().Str("track", t.Name()).Int("restarts", restarts).Msg("repeat restart")
			if !e.waitClear(tok) {
				return ResultSuperseded
			}
		default:
			return res
		}
	}
}

// playPause renders with resumable pausing: a sense activation stops the
// segment and banks the elapsed time; after the channel clears, rendering
// resumes from the accumulated offset. Hitting the restart cap abandons the
// remainder and counts as completion.
func (e *Engine) playPause(tok uint64, t track.Track) Result {
	total, err := audio.Duration(t.Path)
	if err != nil {
		// Without a known length we cannot tell when the offset runs past
		// the end; resume anyway and let the render finish naturally.
		zlog.Debug().Err(err).Str("track", t.Name()).Msg("wav duration unknown")
		total = 0
	}

	var played time.Duration
	restarts := 0
	for {
		h, err := e.device.PlayFrom(t.Path, played)
		if err != nil {
			zlog.Error().Err(err).Str("track", t.Name()).Msg("failed to start render")
			return ResultSkipped
		}
		segStart := time.Now()

		paused := false
		for h.Running() {
			if e.superseded(tok) {
				e.stop(h)
				return ResultSuperseded
			}
			if e.sense.Active() {
				e.stop(h)
				played += time.Since(segStart)
				paused = true
				break
			}
			time.Sleep(e.cfg.Poll)
		}
		if !paused {
			return ResultCompleted
		}

		restarts++
		if restarts > e.cfg.RestartCap {
			zlog.Info().Str("track", t.Name()).Msg("pause restart cap reached, abandoning remainder")
			return ResultCompleted
		}
		if total > 0 && played >= total {
			return ResultCompleted
		}
		if !e.waitClear(tok) {
			return ResultSuperseded
		}
	}
}

// waitClear blocks until the sense line has been continuously inactive for
// the debounce window, re-arming whenever it flickers active. It reports
// false if the session was superseded while waiting.
func (e *Engine) waitClear(tok uint64) bool {
	clearSince := time.Now()
	armed := !e.sense.Active()
	for {
		if e.superseded(tok) {
			return false
		}
		if e.sense.Active() {
			armed = false
		} else {
			if !armed {
				armed = true
				clearSince = time.Now()
			}
			if time.Since(clearSince) >= e.cfg.Debounce {
				return true
			}
		}
		time.Sleep(e.cfg.Poll)
	}
}

// stop ends a render gracefully, falling back to a hard kill.
func (e *Engine) stop(h audio.Handle) {
	h.Terminate()
	deadline := time.Now().Add(e.cfg.StopGrace)
	for h.Running() && time.Now().Before(deadline) {
		time.Sleep(e.cfg.Poll)
	}
	if h.Running() {
		h.Kill()
	}
	h.Wait()
}
