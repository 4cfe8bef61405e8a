// Package scheduler implements track selection for configured announcement
// ranges ("bases") under the Random, Rotation, and SudoRandom policies.
//
// All base state lives in one Scheduler owned by the command worker; nothing
// here is touched from another goroutine except the alert override window,
// which carries its own lock.
package scheduler

import (
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/clock"
	"github.com/kc2rpt/annunciator/internal/domain/command"
	"github.com/kc2rpt/annunciator/internal/domain/track"
	"github.com/kc2rpt/annunciator/internal/infra/config"
)

// Policy selects how a base picks among its candidates.
type Policy int

const (
	Random     Policy = iota // uniform pick once per interval
	Rotation                 // ordered advance, one step per interval
	SudoRandom               // random without repeats until the cycle is spent
)

// ParsePolicy maps a configuration string to a Policy. Unknown strings fall
// back to Random.
func ParsePolicy(s string) Policy {
	switch s {
	case "rotation":
		return Rotation
	case "sudorandom":
		return SudoRandom
	default:
		return Random
	}
}

func (p Policy) String() string {
	switch p {
	case Rotation:
		return "rotation"
	case SudoRandom:
		return "sudorandom"
	default:
		return "random"
	}
}

// Base is one configured range with its selection state. The candidate set
// is re-derived from the library on every trigger so file changes take
// effect without a restart.
type Base struct {
	Name     string
	Code     int
	End      int
	Policy   Policy
	Interval time.Duration

	lastAt  time.Time
	current track.Track
	rotIdx  int
	seeded  bool
	played  map[int]bool
}

// Selection is the outcome of one trigger.
type Selection struct {
	Track      track.Track
	Flags      command.Flags // populated only on an alert substitution
	Overridden bool
	Fresh      bool // a genuinely new pick; the interval was restamped
}

// Scheduler owns every Base plus the shared alert override window.
type Scheduler struct {
	lib   *track.Library
	bases map[int]*Base
	alert *AlertOverride
	clk   clock.Clock
	rng   *rand.Rand
}

// New creates a Scheduler from base configuration.
func New(lib *track.Library, cfgs []config.BaseConfig, alert *AlertOverride, clk clock.Clock) *Scheduler {
	bases := make(map[int]*Base, len(cfgs))
	for _, c := range cfgs {
		bases[c.Base] = &Base{
			Name:     c.Name,
			Code:     c.Base,
			End:      c.End,
			Policy:   ParsePolicy(c.Policy),
			Interval: c.Interval(),
			played:   make(map[int]bool),
		}
	}
	return &Scheduler{
		lib:   lib,
		bases: bases,
		alert: alert,
		clk:   clk,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Lookup returns the base registered at code, if any. A command code that is
// a base code triggers scheduled selection; any other code resolves
// directly.
func (s *Scheduler) Lookup(code int) (*Base, bool) {
	b, ok := s.bases[code]
	return b, ok
}

// Bases returns every configured base, for state reporting.
func (s *Scheduler) Bases() []*Base {
	out := make([]*Base, 0, len(s.bases))
	for _, b := range s.bases {
		out = append(out, b)
	}
	return out
}

// Select runs one trigger of the base's policy, applying the alert override
// afterwards.
func (s *Scheduler) Select(b *Base) (Selection, error) {
	candidates := s.lib.InRange(b.Code, b.End)
	if len(candidates) == 0 {
		return Selection{}, errors.Newf("base %d-%d has no candidate tracks", b.Code, b.End)
	}

	var sel Selection
	switch b.Policy {
	case Rotation:
		sel = s.selectRotation(b, candidates)
	case SudoRandom:
		sel = s.selectSudoRandom(b, candidates)
	default:
		sel = s.selectRandom(b, candidates)
	}

	return s.applyOverride(sel), nil
}

// ApplyOverride exposes the alert substitution for direct-code resolution,
// which bypasses the policies but is still subject to the override window.
func (s *Scheduler) ApplyOverride(t track.Track) Selection {
	return s.applyOverride(Selection{Track: t})
}

func (s *Scheduler) selectRandom(b *Base, candidates []track.Track) Selection {
	now := s.clk.Now()
	if valid, cur := currentIn(b, candidates); valid && now.Sub(b.lastAt) < b.Interval {
		// Replay the standing selection without restamping.
		return Selection{Track: cur}
	}
	pick := candidates[s.rng.Intn(len(candidates))]
	b.current = pick
	b.lastAt = now
	return Selection{Track: pick, Fresh: true}
}

func (s *Scheduler) selectRotation(b *Base, candidates []track.Track) Selection {
	now := s.clk.Now()
	if !b.seeded {
		// First trigger seeds the position without consuming an interval.
		b.seeded = true
		b.rotIdx = 0
		b.lastAt = now
		b.current = candidates[0]
		return Selection{Track: b.current, Fresh: true}
	}

	if valid, _ := currentIn(b, candidates); !valid {
		// Selection vanished from the candidate set; take the current
		// position afresh rather than silently replaying a ghost.
		b.rotIdx = b.rotIdx % len(candidates)
		b.current = candidates[b.rotIdx]
		b.lastAt = now
		return Selection{Track: b.current, Fresh: true}
	}

	if now.Sub(b.lastAt) < b.Interval {
		return Selection{Track: b.current}
	}

	b.rotIdx = (b.rotIdx + 1) % len(candidates)
	b.current = candidates[b.rotIdx]
	b.lastAt = now
	return Selection{Track: b.current, Fresh: true}
}

func (s *Scheduler) selectSudoRandom(b *Base, candidates []track.Track) Selection {
	now := s.clk.Now()
	if valid, cur := currentIn(b, candidates); valid && now.Sub(b.lastAt) < b.Interval {
		return Selection{Track: cur}
	}

	unplayed := make([]track.Track, 0, len(candidates))
	for _, c := range candidates {
		if !b.played[c.Code] {
			unplayed = append(unplayed, c)
		}
	}
	if len(unplayed) == 0 {
		// Cycle complete; start a new one.
		b.played = make(map[int]bool)
		unplayed = candidates
	}

	pick := unplayed[s.rng.Intn(len(unplayed))]
	b.played[pick.Code] = true
	b.current = pick
	b.lastAt = now
	return Selection{Track: pick, Fresh: true}
}

func (s *Scheduler) applyOverride(sel Selection) Selection {
	if s.alert == nil || !s.alert.Open(s.clk.Now()) {
		return sel
	}
	if !HasOverrideMarker(sel.Track.Name()) {
		return sel
	}

	alt, ok := s.lib.Resolve(track.FormatCode(s.alert.Code()))
	if !ok {
		zlog.Warn().Int("code", s.alert.Code()).Msg("alert override track missing, playing natural selection")
		return sel
	}
	zlog.Info().Str("natural", sel.Track.Name()).Str("override", alt.Name()).Msg("alert override substituting selection")
	sel.Track = alt
	sel.Flags = s.alert.Flags()
	sel.Overridden = true
	return sel
}

// currentIn reports whether the base's current selection is still a valid
// candidate, returning the matching (freshly re-resolved) track.
func currentIn(b *Base, candidates []track.Track) (bool, track.Track) {
	if b.current.Path == "" {
		return false, track.Track{}
	}
	for _, c := range candidates {
		if c.Code == b.current.Code {
			return true, c
		}
	}
	return false, track.Track{}
}
