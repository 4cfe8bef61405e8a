package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kc2rpt/annunciator/internal/app/clock"
)

type recordingSink struct {
	snaps []Snapshot
}

func (r *recordingSink) StatusUpdated(s Snapshot) {
	r.snaps = append(r.snaps, s)
}

type panickySink struct{}

func (panickySink) StatusUpdated(Snapshot) {
	panic("display broke")
}

func TestPublisher_SetStatusNotifiesSinks(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(1000, 0)}
	p := NewPublisherWithClock(clk)
	sink := &recordingSink{}
	p.Register(sink)

	p.SetStatus("Playing", "5301 Station ID")

	snap := p.Snapshot()
	assert.Equal(t, "Playing", snap.Status)
	assert.Equal(t, "5301 Station ID", snap.Playing)
	assert.Len(t, sink.snaps, 1)
}

func TestPublisher_PanickySinkDoesNotAbortUpdate(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(1000, 0)}
	p := NewPublisherWithClock(clk)
	good := &recordingSink{}
	p.Register(panickySink{})
	p.Register(good)

	p.SetStatus("Playing", "x")

	assert.Len(t, good.snaps, 1, "sinks after the panicking one still run")
	assert.Equal(t, "Playing", p.Snapshot().Status)
}

func TestPublisher_InfoExpires(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(1000, 0)}
	p := NewPublisherWithClock(clk)

	p.SetInfo("message timer not elapsed")
	assert.Equal(t, "message timer not elapsed", p.Snapshot().Info)

	clk.Advance(4 * time.Second)
	assert.Equal(t, "message timer not elapsed", p.Snapshot().Info)

	clk.Advance(2 * time.Second)
	assert.Empty(t, p.Snapshot().Info, "transient info expires after 5s")
}

func TestPublisher_SetIdleClearsSection(t *testing.T) {
	p := NewPublisherWithClock(&clock.Mock{Time: time.Unix(1000, 0)})
	p.SetStatus("Playing", "x")
	p.SetSection("5300-5303")
	p.SetIdle()

	snap := p.Snapshot()
	assert.Equal(t, "Idle", snap.Status)
	assert.Empty(t, snap.Playing)
	assert.Empty(t, snap.Section)
}

func TestRateLimiter(t *testing.T) {
	clk := &clock.Mock{Time: time.Unix(1000, 0)}
	r := NewRateLimiter(5*time.Second, clk)

	assert.True(t, r.Allow("gate"))
	assert.False(t, r.Allow("gate"))

	clk.Advance(3 * time.Second)
	assert.False(t, r.Allow("gate"))
	assert.True(t, r.Allow("other"), "keys are independent")

	clk.Advance(3 * time.Second)
	assert.True(t, r.Allow("gate"))
}
