// Package status provides the thread-safe status hub consumed by dashboards
// and legacy display mirrors.
package status

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/clock"
)

// infoTTL is how long a transient info string stays visible unless
// refreshed.
const infoTTL = 5 * time.Second

// Snapshot is the single shared status document. It is replaced wholesale on
// every update; readers never see a half-written state.
type Snapshot struct {
	Status    string    `json:"status"`
	Playing   string    `json:"playing"`
	Section   string    `json:"section,omitempty"`
	Info      string    `json:"info,omitempty"`
	InfoAt    time.Time `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sink receives every snapshot update synchronously. A sink that panics is
// logged and skipped; it never aborts the update or the caller.
type Sink interface {
	StatusUpdated(Snapshot)
}

// Publisher owns the snapshot and the registered sinks.
type Publisher struct {
	mu    sync.RWMutex
	snap  Snapshot
	sinks []Sink
	clk   clock.Clock
}

// NewPublisher creates a Publisher using the real clock.
func NewPublisher() *Publisher {
	return NewPublisherWithClock(clock.Real{})
}

// NewPublisherWithClock creates a Publisher with an injected time source.
func NewPublisherWithClock(clk clock.Clock) *Publisher {
	return &Publisher{clk: clk}
}

// Register adds a sink. Registration happens at startup, before updates
// begin.
func (p *Publisher) Register(s Sink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

// SetStatus replaces the status and currently-playing labels.
func (p *Publisher) SetStatus(status, playing string) {
	p.update(func(s *Snapshot) {
		s.Status = status
		s.Playing = playing
	})
}

// SetIdle resets to the idle status, clearing the playing label and section
// context.
func (p *Publisher) SetIdle() {
	p.update(func(s *Snapshot) {
		s.Status = "Idle"
		s.Playing = ""
		s.Section = ""
	})
}

// SetSection tags the snapshot with a section context independent of the
// main label.
func (p *Publisher) SetSection(section string) {
	p.update(func(s *Snapshot) {
		s.Section = section
	})
}

// SetInfo publishes a transient info string; it expires from later
// snapshots after five seconds unless refreshed.
func (p *Publisher) SetInfo(info string) {
	p.update(func(s *Snapshot) {
		s.Info = info
		s.InfoAt = p.clk.Now()
	})
}

// Snapshot returns the current status, with expired transient info already
// cleared.
func (p *Publisher) Snapshot() Snapshot {
	p.mu.RLock()
	snap := p.snap
	p.mu.RUnlock()
	if snap.Info != "" && p.clk.Now().Sub(snap.InfoAt) > infoTTL {
		snap.Info = ""
	}
	return snap
}

func (p *Publisher) update(mutate func(*Snapshot)) {
	p.mu.Lock()
	mutate(&p.snap)
	p.snap.UpdatedAt = p.clk.Now()
	snap := p.snap
	sinks := make([]Sink, len(p.sinks))
	copy(sinks, p.sinks)
	p.mu.Unlock()

	for _, s := range sinks {
		notify(s, snap)
	}
}

func notify(s Sink, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Interface("panic", r).Msg("status sink panicked, skipping")
		}
	}()
	s.StatusUpdated(snap)
}
