// Package state assembles the read-only controller state document polled by
// external consumers.
package state

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/activity"
	"github.com/kc2rpt/annunciator/internal/app/clock"
	"github.com/kc2rpt/annunciator/internal/app/engine"
	"github.com/kc2rpt/annunciator/internal/app/scheduler"
	"github.com/kc2rpt/annunciator/internal/app/status"
	"github.com/kc2rpt/annunciator/internal/app/worker"
	"github.com/kc2rpt/annunciator/internal/domain/track"
	"github.com/kc2rpt/annunciator/internal/infra/audio"
	"github.com/kc2rpt/annunciator/internal/infra/hardware"
)

// MissingFlag reports a resource's standing missing state.
type MissingFlag interface {
	Missing() bool
}

// QueueInfo reports the command queue depth.
type QueueInfo interface {
	QueueDepth() int
}

// Sense reports the current sense line state.
type Sense interface {
	Active() bool
}

// HistorySource returns the recent accepted commands.
type HistorySource interface {
	History() []worker.HistoryEntry
}

// BaseInfo is one scheduled range in the state document.
type BaseInfo struct {
	Name   string `json:"name,omitempty"`
	Code   string `json:"code"`
	End    string `json:"end"`
	Policy string `json:"policy"`
}

// Doc is the full state document.
type Doc struct {
	Status        status.Snapshot       `json:"status"`
	Engine        string                `json:"engine"`
	SenseActive   bool                  `json:"sense_active"`
	BusyHeld      bool                  `json:"busy_held"`
	AudioMissing  bool                  `json:"audio_missing"`
	SerialMissing bool                  `json:"serial_missing"`
	TodayMinutes  int                   `json:"today_minutes"`
	QueueDepth    int                   `json:"queue_depth"`
	Bases         []BaseInfo            `json:"bases"`
	History       []worker.HistoryEntry `json:"history"`
	UptimeSec     int64                 `json:"uptime_sec"`
	Version       string                `json:"version,omitempty"`
	GeneratedAt   time.Time             `json:"generated_at"`
}

// Sources are the components the collector reads from.
type Sources struct {
	Pub    *status.Publisher
	Eng    *engine.Engine
	Busy   *hardware.BusyHolder
	Audio  audio.Device
	Serial MissingFlag
	Act    *activity.Accumulator
	Queue  QueueInfo
	Sched  *scheduler.Scheduler
	Sense  Sense
	Hist   HistorySource

	StartedAt time.Time
	Version   string
}

// Collector periodically rebuilds the document and caches it for readers.
type Collector struct {
	src Sources
	clk clock.Clock

	mu  sync.RWMutex
	doc Doc
}

// NewCollector creates a Collector.
func NewCollector(src Sources, clk clock.Clock) *Collector {
	c := &Collector{src: src, clk: clk}
	c.doc = c.Collect()
	return c
}

// Collect builds a fresh document.
func (c *Collector) Collect() Doc {
	now := c.clk.Now()
	doc := Doc{
		Status:      c.src.Pub.Snapshot(),
		Engine:      c.src.Eng.State().String(),
		BusyHeld:    c.src.Busy.Held(),
		Version:     c.src.Version,
		GeneratedAt: now,
	}
	if !c.src.StartedAt.IsZero() {
		doc.UptimeSec = int64(now.Sub(c.src.StartedAt).Seconds())
	}
	if c.src.Sense != nil {
		doc.SenseActive = c.src.Sense.Active()
	}
	if c.src.Hist != nil {
		doc.History = c.src.Hist.History()
	}
	if c.src.Audio != nil {
		doc.AudioMissing = c.src.Audio.Missing()
	}
	if c.src.Serial != nil {
		doc.SerialMissing = c.src.Serial.Missing()
	}
	if c.src.Act != nil {
		doc.TodayMinutes = c.src.Act.TodayMinutes()
	}
	if c.src.Queue != nil {
		doc.QueueDepth = c.src.Queue.QueueDepth()
	}
	if c.src.Sched != nil {
		for _, b := range c.src.Sched.Bases() {
			doc.Bases = append(doc.Bases, BaseInfo{
				Name:   b.Name,
				Code:   track.FormatCode(b.Code),
				End:    track.FormatCode(b.End),
				Policy: b.Policy.String(),
			})
		}
	}
	return doc
}

// Current returns the cached document.
func (c *Collector) Current() Doc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc
}

// Run refreshes the cache until the context ends.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			doc := c.Collect()
			c.mu.Lock()
			c.doc = doc
			c.mu.Unlock()
		}
	}
}

// LogMirror is the legacy display mirror: every status update becomes a log
// line, the modern stand-in for the character display the controller used to
// drive.
type LogMirror struct{}

// StatusUpdated implements status.Sink.
func (LogMirror) StatusUpdated(s status.Snapshot) {
	ev := zlog.Info().Str("status", s.Status)
	if s.Playing != "" {
		ev = ev.Str("playing", s.Playing)
	}
	if s.Section != "" {
		ev = ev.Str("section", s.Section)
	}
	if s.Info != "" {
		ev = ev.Str("info", s.Info)
	}
	ev.Msg("display")
}
