// Package serial ingests command tokens from the control port.
package serial

import (
	"context"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/kc2rpt/annunciator/internal/domain/command"
)

// Port is the subset of the serial port the reader needs.
type Port interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// OpenFunc opens the port; injectable for tests.
type OpenFunc func(name string, baud int, readTimeout time.Duration) (Port, error)

// DefaultOpen opens a real serial port.
func DefaultOpen(name string, baud int, readTimeout time.Duration) (Port, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// Config holds the reader settings.
type Config struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
	JunkIdle    time.Duration
	Open        OpenFunc
}

// Reader owns the ingestion loop: read bytes, extract tokens, hand them to
// the worker. A vanished port sets a persistent missing flag and keeps
// retrying in the background; commands simply stop arriving until the port
// returns.
type Reader struct {
	cfg     Config
	submit  func(string) bool
	missing atomic.Bool
}

// NewReader creates a Reader feeding tokens into submit.
func NewReader(cfg Config, submit func(string) bool) *Reader {
	if cfg.Open == nil {
		cfg.Open = DefaultOpen
	}
	return &Reader{cfg: cfg, submit: submit}
}

// Missing reports whether the port is currently unavailable.
func (r *Reader) Missing() bool {
	return r.missing.Load()
}

// Run reads until the context ends, reconnecting with backoff on failure.
func (r *Reader) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		port, err := r.cfg.Open(r.cfg.Name, r.cfg.Baud, r.cfg.ReadTimeout)
		if err != nil {
			if !r.missing.Swap(true) {
				zlog.Error().Err(err).Str("port", r.cfg.Name).Msg("serial port unavailable")
			}
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		if r.missing.Swap(false) {
			zlog.Info().Str("port", r.cfg.Name).Msg("serial port recovered")
		}
		backoff = time.Second
		r.readLoop(ctx, port)
		port.Close()
	}
}

// readLoop pumps one open port until it fails or the context ends.
func (r *Reader) readLoop(ctx context.Context, port Port) {
	extractor := command.NewExtractor(r.cfg.JunkIdle)
	buf := make([]byte, 256)
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			zlog.Warn().Err(err).Msg("serial read failed, reopening port")
			return
		}
		now := time.Now()
		if n > 0 {
			for _, token := range extractor.Feed(buf[:n], now) {
				zlog.Debug().Str("token", token).Msg("serial token")
				r.submit(token)
			}
		}
		// A zero-byte read is the read timeout; use it to age out junk.
		extractor.Tick(now)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
