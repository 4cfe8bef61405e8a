package dtmf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kc2rpt/annunciator/internal/app/clock"
)

func TestFeed_RecognizesDigitReports(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(70000, 0)}
	l := New(filepath.Join(t.TempDir(), "dtmf.log"), 30*time.Second, clk)

	assert.True(t, l.Feed("1D5"))
	assert.True(t, l.Feed("2D*"))
	assert.True(t, l.Feed("3D#"))
	assert.False(t, l.Feed("P1234"))
	assert.False(t, l.Feed("4D5"), "only decoders 1-3 exist")
	assert.False(t, l.Feed("1DE"))
}

func TestFlush_GroupsSequencePerDecoder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtmf.log")
	clk := &clock.Mock{Time: time.Unix(70000, 0)}
	l := New(path, 30*time.Second, clk)

	l.Feed("1D5")
	clk.Advance(time.Second)
	l.Feed("1D5")
	clk.Advance(time.Second)
	l.Feed("1D0")
	l.Feed("2D9")
	l.Flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Port 1: 550")
	assert.Contains(t, string(data), "Port 2: 9")

	// Buffers were cleared; a second flush adds nothing.
	l.Flush()
	again, _ := os.ReadFile(path)
	assert.Equal(t, data, again)
}

func TestFlushIdle_OnlyAfterQuietWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtmf.log")
	clk := &clock.Mock{Time: time.Unix(70000, 0)}
	l := New(path, 30*time.Second, clk)

	l.Feed("1D7")

	clk.Advance(10 * time.Second)
	l.FlushIdle()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	clk.Advance(30 * time.Second)
	l.FlushIdle()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Port 1: 7")
}

func TestFlush_PrependsNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtmf.log")
	clk := &clock.Mock{Time: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l := New(path, 30*time.Second, clk)

	l.Feed("1D1")
	l.Flush()
	clk.Advance(time.Hour)
	l.Feed("1D2")
	l.Flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Port 1: 2")
	assert.Contains(t, lines[1], "Port 1: 1")
}

func TestFlush_ArchivesPreviousMonth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dtmf.log")
	clk := &clock.Mock{Time: time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)}
	l := New(path, 30*time.Second, clk)

	l.Feed("1D1")
	l.Flush()

	clk.Time = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l.Feed("2D8")
	l.Flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Port 1: 1", "old month rolled out of the live log")
	assert.Contains(t, string(data), "Port 2: 8")

	archived, err := os.ReadFile(path + ".2026-02")
	require.NoError(t, err)
	assert.Contains(t, string(archived), "Port 1: 1")
}
