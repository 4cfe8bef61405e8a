package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kc2rpt/annunciator/internal/app/clock"
	"github.com/kc2rpt/annunciator/internal/app/gate"
	"github.com/kc2rpt/annunciator/internal/app/status"
	"github.com/kc2rpt/annunciator/internal/domain/command"
	"github.com/kc2rpt/annunciator/internal/infra/hardware"
)

type recordingDispatcher struct {
	codes    []int
	flags    []command.Flags
	busyHeld []bool
	busy     *hardware.BusyHolder
}

func (r *recordingDispatcher) PlayCode(code int, flags command.Flags) {
	r.codes = append(r.codes, code)
	r.flags = append(r.flags, flags)
	if r.busy != nil {
		r.busyHeld = append(r.busyHeld, r.busy.Held())
	}
}

func newTestRunner(clk clock.Clock, window time.Duration, disabled bool) (*Runner, *hardware.BusyHolder) {
	busy := hardware.NewBusyHolder(&hardware.StubLine{})
	g := gate.New(window, disabled, clk)
	limiter := status.NewRateLimiter(5*time.Second, clk)
	pub := status.NewPublisherWithClock(clk)
	return NewRunner(busy, g, limiter, pub), busy
}

func TestRunJoin_DispatchesSequentiallyUnderOneBusyHold(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(50000, 0)}
	r, busy := newTestRunner(clk, 0, false)
	d := &recordingDispatcher{busy: busy}

	cmd := command.Parse("P1000IJ2000J3000R")
	require.Equal(t, command.KindJoin, cmd.Kind)

	r.RunJoin(cmd, d)

	assert.Equal(t, []int{1000, 2000, 3000}, d.codes)
	assert.True(t, d.flags[0].Interruptible)
	assert.True(t, d.flags[2].Repeat)
	assert.Equal(t, []bool{true, true, true}, d.busyHeld, "busy held across every segment")
	assert.False(t, busy.Held(), "busy released after the series")
}

func TestRunJoin_MessageGateSkipsWholeSeries(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(50000, 0)}
	r, _ := newTestRunner(clk, 10*time.Minute, false)
	d := &recordingDispatcher{}

	cmd := command.Parse("P1000J2000M")
	require.True(t, cmd.JoinGate)

	r.RunJoin(cmd, d)
	assert.Equal(t, []int{1000, 2000}, d.codes, "first run passes the gate")

	d.codes = nil
	clk.Advance(5 * time.Minute)
	r.RunJoin(cmd, d)
	assert.Empty(t, d.codes, "second run inside the window is skipped entirely")

	clk.Advance(6 * time.Minute)
	r.RunJoin(cmd, d)
	assert.Equal(t, []int{1000, 2000}, d.codes)
}

func TestNextAlternate_RoundRobin(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(50000, 0)}
	r, _ := newTestRunner(clk, 0, false)

	cmd := command.Parse("P1000A2000A3000")
	require.Equal(t, command.KindAlternate, cmd.Kind)

	want := []int{1000, 2000, 3000, 1000}
	for i, code := range want {
		seg, ok := r.NextAlternate(cmd)
		require.True(t, ok)
		assert.Equal(t, code, seg.Code, "invocation %d", i)
	}
}

func TestNextAlternate_CaseFoldedIdentity(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(50000, 0)}
	r, _ := newTestRunner(clk, 0, false)

	first, ok := r.NextAlternate(command.Parse("P1000A2000"))
	require.True(t, ok)
	assert.Equal(t, 1000, first.Code)

	// The same series transmitted in lowercase continues the rotation.
	second, ok := r.NextAlternate(command.Parse("p1000A2000"))
	require.True(t, ok)
	assert.Equal(t, 2000, second.Code)
}

func TestNextAlternate_InterruptSegment(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(50000, 0)}
	r, _ := newTestRunner(clk, 0, false)

	cmd := command.Parse("P1000i1111A2000")
	require.Equal(t, command.KindAlternate, cmd.Kind)

	seg, ok := r.NextAlternate(cmd)
	require.True(t, ok)
	assert.Equal(t, command.KindInterruptTo, seg.Kind)
	assert.Equal(t, 1000, seg.Code)
	assert.Equal(t, 1111, seg.AltCode)
}
