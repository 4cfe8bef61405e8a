// Package hardware provides the sense-input and busy-output line boundary.
//
// The core treats both lines as opaque collaborators: a binary sense input
// revealing channel occupancy and a binary busy output asserted while audio
// renders. Hardware failures never propagate; a sense read failure reads as
// inactive and a busy write failure is skipped, both logged, so a flaky line
// degrades announcements rather than crashing the controller.
package hardware

import (
	"sync"
	"sync/atomic"

	zlog "github.com/rs/zerolog/log"
)

// SenseLine reads the channel-occupied input.
type SenseLine interface {
	// Active reports whether the channel is currently occupied.
	Active() (bool, error)
}

// BusyLine drives the remote-busy output.
type BusyLine interface {
	Set(active bool) error
}

// ResilientSense wraps a SenseLine with the recovery rule: a read failure is
// logged once per failure streak and reported as inactive. Active is called
// from several goroutines at once, so the streak flag is atomic.
type ResilientSense struct {
	line    SenseLine
	failing atomic.Bool
}

// NewResilientSense wraps line.
func NewResilientSense(line SenseLine) *ResilientSense {
	return &ResilientSense{line: line}
}

// Active reads the line, mapping failures to inactive.
func (s *ResilientSense) Active() bool {
	active, err := s.line.Active()
	if err != nil {
		if !s.failing.Swap(true) {
			zlog.Warn().Err(err).Msg("sense line read failed, treating as inactive")
		}
		return false
	}
	if s.failing.Swap(false) {
		zlog.Info().Msg("sense line recovered")
	}
	return active
}

// BusyHolder drives the busy output with a hold count so nested holders (a
// Join series around its individual segments) never toggle the hardware
// line twice. The line is asserted on the first Hold and released on the
// last Release.
type BusyHolder struct {
	mu    sync.Mutex
	line  BusyLine
	count int
}

// NewBusyHolder creates a BusyHolder over line.
func NewBusyHolder(line BusyLine) *BusyHolder {
	return &BusyHolder{line: line}
}

// Hold asserts busy if this is the outermost hold.
func (b *BusyHolder) Hold() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	if b.count == 1 {
		b.set(true)
	}
}

// Release deasserts busy when the last hold is released. Release without a
// matching Hold is ignored.
func (b *BusyHolder) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return
	}
	b.count--
	if b.count == 0 {
		b.set(false)
	}
}

// Held reports whether busy is currently asserted.
func (b *BusyHolder) Held() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > 0
}

func (b *BusyHolder) set(active bool) {
	if err := b.line.Set(active); err != nil {
		zlog.Warn().Err(err).Bool("active", active).Msg("busy line write failed, skipping")
	}
}
