package audio

import (
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ExecDevice renders with aplay, captures with arecord, and resumes
// mid-file with sox (aplay cannot seek). A failure to even start a utility
// marks the device missing; subsequent operations fail fast until restart.
type ExecDevice struct {
	playDevice   string
	recordDevice string
	missing      atomic.Bool
}

// NewExecDevice creates an ExecDevice for the named ALSA devices.
func NewExecDevice(playDevice, recordDevice string) *ExecDevice {
	return &ExecDevice{playDevice: playDevice, recordDevice: recordDevice}
}

// Play implements Device.
func (d *ExecDevice) Play(path string) (Handle, error) {
	return d.start(exec.Command("aplay", "-q", "-D", d.playDevice, path))
}

// PlayFrom implements Device.
func (d *ExecDevice) PlayFrom(path string, offset time.Duration) (Handle, error) {
	if offset <= 0 {
		return d.Play(path)
	}
	trim := fmt.Sprintf("%.2f", offset.Seconds())
	return d.start(exec.Command("sox", "-q", path, "-t", "alsa", d.playDevice, "trim", trim))
}

// Record implements Device.
func (d *ExecDevice) Record(path string) (Handle, error) {
	return d.start(exec.Command("arecord", "-q", "-D", d.recordDevice, "-f", "cd", path))
}

// Missing implements Device.
func (d *ExecDevice) Missing() bool {
	return d.missing.Load()
}

func (d *ExecDevice) start(cmd *exec.Cmd) (Handle, error) {
	if d.missing.Load() {
		return nil, errors.New("audio device marked missing")
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			d.missing.Store(true)
			zlog.Error().Err(err).Str("cmd", cmd.Path).Msg("audio utility not found, marking device missing")
		}
		return nil, errors.Wrapf(err, "failed to start %s", cmd.Path)
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	stopMu sync.Mutex
}

func (h *execHandle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *execHandle) Terminate() {
	h.signal(syscall.SIGTERM)
}

func (h *execHandle) Kill() {
	h.signal(syscall.SIGKILL)
}

func (h *execHandle) signal(sig syscall.Signal) {
	h.stopMu.Lock()
	defer h.stopMu.Unlock()
	if !h.Running() {
		return
	}
	if err := h.cmd.Process.Signal(sig); err != nil {
		zlog.Debug().Err(err).Msg("failed to signal audio process")
	}
}

func (h *execHandle) Wait() error {
	<-h.done
	return h.err
}
