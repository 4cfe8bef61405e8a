package engine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/domain/track"
)

const (
	echoStartTimeout = 5 * time.Second
	echoCaptureCap   = 60 * time.Second
)

// EchoPrompts are the optional voice prompts around an echo test. A nil
// entry skips that prompt.
type EchoPrompts struct {
	Start   *track.Track
	Timeout *track.Track
	End     *track.Track
}

// EchoConfig holds the echo-test tunables.
type EchoConfig struct {
	Prompts    EchoPrompts
	CaptureDir string
	MinBytes   int // smallest capture considered a real transmission

	// startTimeout/captureCap exist for tests; zero means the protocol
	// values (5s / 60s).
	startTimeout time.Duration
	captureCap   time.Duration
}

// RunEchoTest performs the full echo test: wait for a clear channel, prompt,
// wait for the caller to key up, capture until they stop, then play the
// capture back. Any failure aborts this test only.
func (e *Engine) RunEchoTest(cfg EchoConfig) Result {
	tok, ok := e.acquire(EchoTest)
	if !ok {
		return ResultSkipped
	}
	defer e.release()

	e.pub.SetStatus("Echo test", "")

	startTimeout := cfg.startTimeout
	if startTimeout <= 0 {
		startTimeout = echoStartTimeout
	}
	captureCap := cfg.captureCap
	if captureCap <= 0 {
		captureCap = echoCaptureCap
	}

	if !e.waitClear(tok) {
		return ResultSuperseded
	}

	if cfg.Prompts.Start != nil {
		if res := e.playOnce(tok, *cfg.Prompts.Start, false); res != ResultCompleted {
			return res
		}
	}

	// The caller has startTimeout to key up, or the test is abandoned.
	if !e.waitActive(tok, startTimeout) {
		if e.superseded(tok) {
			return ResultSuperseded
		}
		zlog.Info().Msg("echo test: no transmission within timeout")
		if cfg.Prompts.Timeout != nil {
			e.playOnce(tok, *cfg.Prompts.Timeout, false)
		}
		return ResultSkipped
	}

	capturePath := filepath.Join(cfg.CaptureDir, "echo-"+uuid.NewString()+".wav")
	defer os.Remove(capturePath)

	if res := e.capture(tok, capturePath, captureCap); res != ResultCompleted {
		return res
	}

	info, err := os.Stat(capturePath)
	if err != nil || info.Size() < int64(cfg.MinBytes) {
		zlog.Warn().Err(err).Str("path", capturePath).Msg("echo test: capture missing or too small, aborting")
		return ResultSkipped
	}

	playback := track.Track{Path: capturePath}
	if res := e.playOnce(tok, playback, false); res != ResultCompleted {
		return res
	}

	if cfg.Prompts.End != nil {
		e.playOnce(tok, *cfg.Prompts.End, false)
	}
	return ResultCompleted
}

// waitActive blocks until the sense line goes active, reporting false on
// timeout or supersession.
func (e *Engine) waitActive(tok uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.superseded(tok) {
			return false
		}
		if e.sense.Active() {
			return true
		}
		time.Sleep(e.cfg.Poll)
	}
	return false
}

// capture records until the channel has been clear for the debounce window
// or the absolute cap is reached.
func (e *Engine) capture(tok uint64, path string, limit time.Duration) Result {
	h, err := e.device.Record(path)
	if err != nil {
		zlog.Error().Err(err).Msg("echo test: failed to start capture")
		return ResultSkipped
	}

	started := time.Now()
	clearSince := time.Time{}
	for h.Running() {
		if e.superseded(tok) {
			e.stop(h)
			return ResultSuperseded
		}
		if time.Since(started) >= limit {
			break
		}
		if e.sense.Active() {
			clearSince = time.Time{}
		} else {
			if clearSince.IsZero() {
				clearSince = time.Now()
			}
			if time.Since(clearSince) >= e.cfg.Debounce {
				break
			}
		}
		time.Sleep(e.cfg.Poll)
	}
	e.stop(h)
	return ResultCompleted
}
