package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kc2rpt/annunciator/internal/app/clock"
	"github.com/kc2rpt/annunciator/internal/domain/track"
	"github.com/kc2rpt/annunciator/internal/infra/config"
)

func newTestLibrary(t *testing.T, names ...string) *track.Library {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	return track.NewLibrary(dir, ".wav")
}

func newTestScheduler(lib *track.Library, clk clock.Clock, alert *AlertOverride, bases ...config.BaseConfig) *Scheduler {
	return New(lib, bases, alert, clk)
}

func TestRotation(t *testing.T) {
	lib := newTestLibrary(t, "5301.wav", "5302.wav", "5303.wav")
	clk := &clock.Mock{Time: time.Unix(100000, 0)}
	s := newTestScheduler(lib, clk, nil,
		config.BaseConfig{Base: 5300, End: 5303, Policy: "rotation", IntervalSec: 60})

	b, ok := s.Lookup(5300)
	require.True(t, ok)

	// First trigger seeds the first candidate without charging the interval.
	sel, err := s.Select(b)
	require.NoError(t, err)
	assert.Equal(t, 5301, sel.Track.Code)
	assert.True(t, sel.Fresh)

	// Before the interval elapses the same selection replays.
	clk.Advance(30 * time.Second)
	sel, err = s.Select(b)
	require.NoError(t, err)
	assert.Equal(t, 5301, sel.Track.Code)
	assert.False(t, sel.Fresh)

	// Past the interval it advances one position.
	clk.Advance(31 * time.Second)
	sel, err = s.Select(b)
	require.NoError(t, err)
	assert.Equal(t, 5302, sel.Track.Code)

	clk.Advance(61 * time.Second)
	sel, err = s.Select(b)
	require.NoError(t, err)
	assert.Equal(t, 5303, sel.Track.Code)

	// Past the last candidate it wraps to the first.
	clk.Advance(61 * time.Second)
	sel, err = s.Select(b)
	require.NoError(t, err)
	assert.Equal(t, 5301, sel.Track.Code)
}

func TestSudoRandom_NoRepeatsWithinCycle(t *testing.T) {
	lib := newTestLibrary(t, "6001.wav", "6002.wav", "6003.wav")
	clk := &clock.Mock{Time: time.Unix(100000, 0)}
	s := newTestScheduler(lib, clk, nil,
		config.BaseConfig{Base: 6000, End: 6003, Policy: "sudorandom", IntervalSec: 0})

	b, _ := s.Lookup(6000)

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		sel, err := s.Select(b)
		require.NoError(t, err)
		assert.False(t, seen[sel.Track.Code], "code %d repeated within a cycle", sel.Track.Code)
		seen[sel.Track.Code] = true
		clk.Advance(time.Second)
	}
	assert.Len(t, seen, 3)

	// Fourth trigger starts a new cycle; any candidate is fair game.
	sel, err := s.Select(b)
	require.NoError(t, err)
	assert.True(t, seen[sel.Track.Code])
}

func TestSudoRandom_ReplaysWithinInterval(t *testing.T) {
	lib := newTestLibrary(t, "6001.wav", "6002.wav")
	clk := &clock.Mock{Time: time.Unix(100000, 0)}
	s := newTestScheduler(lib, clk, nil,
		config.BaseConfig{Base: 6000, End: 6002, Policy: "sudorandom", IntervalSec: 60})

	b, _ := s.Lookup(6000)
	first, err := s.Select(b)
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	again, err := s.Select(b)
	require.NoError(t, err)
	assert.Equal(t, first.Track.Code, again.Track.Code)
	assert.False(t, again.Fresh)
}

func TestRandom_ReplaysWithinInterval(t *testing.T) {
	lib := newTestLibrary(t, "7001.wav", "7002.wav", "7003.wav")
	clk := &clock.Mock{Time: time.Unix(100000, 0)}
	s := newTestScheduler(lib, clk, nil,
		config.BaseConfig{Base: 7000, End: 7003, Policy: "random", IntervalSec: 300})

	b, _ := s.Lookup(7000)
	first, err := s.Select(b)
	require.NoError(t, err)
	assert.True(t, first.Fresh)

	clk.Advance(time.Minute)
	again, err := s.Select(b)
	require.NoError(t, err)
	assert.Equal(t, first.Track.Code, again.Track.Code)
	assert.False(t, again.Fresh, "interval not restamped on replay")
}

func TestRandom_VanishedSelectionForcesFreshPick(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"7001.wav", "7002.wav"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	lib := track.NewLibrary(dir, ".wav")
	clk := &clock.Mock{Time: time.Unix(100000, 0)}
	s := newTestScheduler(lib, clk, nil,
		config.BaseConfig{Base: 7000, End: 7002, Policy: "random", IntervalSec: 3600})

	b, _ := s.Lookup(7000)
	first, err := s.Select(b)
	require.NoError(t, err)

	// Remove the selected file; the next trigger must not replay a ghost.
	require.NoError(t, os.Remove(first.Track.Path))
	sel, err := s.Select(b)
	require.NoError(t, err)
	assert.NotEqual(t, first.Track.Code, sel.Track.Code)
	assert.True(t, sel.Fresh)
}

func TestSelect_EmptyBase(t *testing.T) {
	lib := newTestLibrary(t)
	s := newTestScheduler(lib, &clock.Mock{Time: time.Unix(100000, 0)}, nil,
		config.BaseConfig{Base: 8000, End: 8010, Policy: "random"})

	b, _ := s.Lookup(8000)
	_, err := s.Select(b)
	assert.Error(t, err)
}

func TestAlertOverride_Substitution(t *testing.T) {
	lib := newTestLibrary(t, "5301-CT Timed Announcement.wav", "2801.wav")
	clk := &clock.Mock{Time: time.Unix(100000, 0)}
	alert := NewAlertOverride(2801, "R", time.Hour)
	s := newTestScheduler(lib, clk, alert,
		config.BaseConfig{Base: 5300, End: 5301, Policy: "rotation", IntervalSec: 60})

	b, _ := s.Lookup(5300)

	// Window closed: natural selection plays.
	sel, err := s.Select(b)
	require.NoError(t, err)
	assert.Equal(t, 5301, sel.Track.Code)
	assert.False(t, sel.Overridden)

	// Window open and the filename carries the marker: substitute.
	alert.Activate(clk.Now())
	sel, err = s.Select(b)
	require.NoError(t, err)
	assert.True(t, sel.Overridden)
	assert.Equal(t, 2801, sel.Track.Code)
	assert.True(t, sel.Flags.Repeat)

	// Window expired: back to natural selection.
	clk.Advance(2 * time.Hour)
	sel, err = s.Select(b)
	require.NoError(t, err)
	assert.False(t, sel.Overridden)
}

func TestAlertOverride_UnmarkedFileNotSubstituted(t *testing.T) {
	lib := newTestLibrary(t, "5301.wav", "2801.wav")
	clk := &clock.Mock{Time: time.Unix(100000, 0)}
	alert := NewAlertOverride(2801, "", time.Hour)
	s := newTestScheduler(lib, clk, alert,
		config.BaseConfig{Base: 5300, End: 5301, Policy: "random", IntervalSec: 60})

	alert.Activate(clk.Now())
	b, _ := s.Lookup(5300)
	sel, err := s.Select(b)
	require.NoError(t, err)
	assert.False(t, sel.Overridden)
	assert.Equal(t, 5301, sel.Track.Code)
}

func TestHasOverrideMarker(t *testing.T) {
	assert.True(t, HasOverrideMarker("5301-CT Hourly.wav"))
	assert.True(t, HasOverrideMarker("5301R-CT.wav"))
	assert.False(t, HasOverrideMarker("5301.wav"))
	assert.False(t, HasOverrideMarker("5301-CTX.wav"))
}
