// Package worker runs the single-consumer command loop: every token, whether
// from the serial port or the control API, funnels through one queue and is
// executed in arrival order.
package worker

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/activity"
	"github.com/kc2rpt/annunciator/internal/app/dtmf"
	"github.com/kc2rpt/annunciator/internal/app/engine"
	"github.com/kc2rpt/annunciator/internal/app/gate"
	"github.com/kc2rpt/annunciator/internal/app/scheduler"
	"github.com/kc2rpt/annunciator/internal/app/series"
	"github.com/kc2rpt/annunciator/internal/app/status"
	"github.com/kc2rpt/annunciator/internal/app/tot"
	"github.com/kc2rpt/annunciator/internal/app/wx"
	"github.com/kc2rpt/annunciator/internal/domain/command"
	"github.com/kc2rpt/annunciator/internal/domain/track"
	"github.com/kc2rpt/annunciator/internal/infra/hardware"
)

var (
	commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "annunciator_commands_total",
		Help: "Commands processed, by parsed kind.",
	}, []string{"kind"})
	queueDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annunciator_queue_drops_total",
		Help: "Commands dropped because the queue was full.",
	})
)

func init() {
	prometheus.MustRegister(commandsTotal, queueDrops)
}

// RecentSense reports whether the sense line was keyed recently, for the
// conditions-report redirect.
type RecentSense interface {
	ActiveWithin(d time.Duration) bool
}

// Config holds worker paths and report settings.
type Config struct {
	ScriptsDir string
	WxDataPath string
	WxMaxAge   time.Duration
	Echo       engine.EchoConfig
	Recent     RecentSense
	QueueSize  int
}

// HistoryEntry is one accepted command, kept for the state document.
type HistoryEntry struct {
	At     time.Time `json:"ts"`
	Source string    `json:"src"`
	Text   string    `json:"cmd"`
}

const historyCap = 10

type item struct {
	raw    string
	source string
}

// Worker owns the command queue and routes each command to the scheduler,
// the orchestrators, or the engine directly.
type Worker struct {
	cfg    Config
	queue  chan item
	lib    *track.Library
	sched  *scheduler.Scheduler
	eng    *engine.Engine
	series *series.Runner
	gate   *gate.MessageGate
	limit  *status.RateLimiter
	pub    *status.Publisher
	busy   *hardware.BusyHolder
	act    *activity.Accumulator
	tot    *tot.Timer
	dtmf   *dtmf.Logger

	histMu  sync.Mutex
	history []HistoryEntry
}

// New creates a Worker.
func New(cfg Config, lib *track.Library, sched *scheduler.Scheduler, eng *engine.Engine,
	run *series.Runner, g *gate.MessageGate, limit *status.RateLimiter, pub *status.Publisher,
	busy *hardware.BusyHolder, act *activity.Accumulator, tt *tot.Timer, dt *dtmf.Logger) *Worker {

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	return &Worker{
		cfg:    cfg,
		queue:  make(chan item, cfg.QueueSize),
		lib:    lib,
		sched:  sched,
		eng:    eng,
		series: run,
		gate:   g,
		limit:  limit,
		pub:    pub,
		busy:   busy,
		act:    act,
		tot:    tt,
		dtmf:   dt,
	}
}

// Submit queues one raw token from the serial stream.
func (w *Worker) Submit(raw string) bool {
	return w.SubmitFrom(raw, "serial")
}

// SubmitFrom queues one raw token with its origin tag. Digit reports are
// diverted to the DTMF log instead. A full queue drops the token with a
// warning; blocking the ingestion loop would be worse.
func (w *Worker) SubmitFrom(raw, source string) bool {
	if w.dtmf != nil && w.dtmf.Feed(strings.TrimSpace(raw)) {
		return true
	}
	select {
	case w.queue <- item{raw: raw, source: source}:
		return true
	default:
		queueDrops.Inc()
		zlog.Warn().Str("token", raw).Msg("command queue full, dropping")
		return false
	}
}

// QueueDepth returns the number of queued commands, for state reporting.
func (w *Worker) QueueDepth() int {
	return len(w.queue)
}

// History returns the most recent accepted commands, newest first.
func (w *Worker) History() []HistoryEntry {
	w.histMu.Lock()
	defer w.histMu.Unlock()
	out := make([]HistoryEntry, len(w.history))
	copy(out, w.history)
	return out
}

func (w *Worker) record(raw, source string) {
	w.histMu.Lock()
	defer w.histMu.Unlock()
	w.history = append([]HistoryEntry{{At: time.Now(), Source: source, Text: raw}}, w.history...)
	if len(w.history) > historyCap {
		w.history = w.history[:historyCap]
	}
}

// Run consumes the queue until the context ends. A fault in one command
// never takes the loop down.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-w.queue:
			cmd := command.Parse(it.raw)
			if cmd.Kind != command.KindNone {
				// An accepted command cancels any pending display
				// suppression and enters the history ring.
				w.limit.Reset()
				w.record(it.raw, it.source)
			}
			w.handleSafe(cmd)
		}
	}
}

func (w *Worker) handleSafe(cmd command.Command) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Interface("panic", r).Str("raw", cmd.Raw).Msg("command handler panicked, recovered")
		}
	}()
	w.handle(cmd)
}

func (w *Worker) handle(cmd command.Command) {
	commandsTotal.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case command.KindNone:
		// Malformed input is dropped silently, never surfaced as an error.
		zlog.Debug().Str("raw", cmd.Raw).Msg("unrecognized token dropped")

	case command.KindSimple:
		if cmd.Flags.Message && !w.gate.Allow(track.FormatCode(cmd.Code)) {
			w.gateRejected(track.FormatCode(cmd.Code))
			return
		}
		w.PlayCode(cmd.Code, cmd.Flags)

	case command.KindInterruptTo:
		if w.playCode(cmd.Code, command.Flags{Interruptible: true}) == engine.ResultInterrupted {
			w.playCode(cmd.AltCode, command.Flags{})
		}

	case command.KindJoin:
		w.series.RunJoin(cmd, w)

	case command.KindAlternate:
		if seg, ok := w.series.NextAlternate(cmd); ok {
			w.handle(seg)
		}

	case command.KindEchoTest:
		w.eng.RunEchoTest(w.cfg.Echo)

	case command.KindScript:
		w.runScript(cmd.Name)

	case command.KindDirectFile:
		if tr, ok := w.lib.ResolveFile(cmd.Name); ok {
			w.eng.Play(tr, command.Flags{})
		} else {
			zlog.Warn().Str("file", cmd.Name).Msg("direct file not found in library")
		}

	case command.KindWeather:
		w.playWeather(cmd.Weather)

	case command.KindActivity:
		w.playFiles(activity.ReportFiles(w.act.TodayMinutes()))

	case command.KindActivityReset:
		if err := w.act.Reset(); err != nil {
			zlog.Warn().Err(err).Msg("activity reset failed")
		}
		w.pub.SetInfo("activity counter reset")

	case command.KindTimeOutStart:
		if w.tot.Start() {
			w.pub.SetStatus("Time Out Timer", "TOT Active")
		}

	case command.KindTimeOutReport:
		// A report with no measurement speaks zero seconds.
		d, _ := w.tot.Report()
		w.pub.SetStatus("Time Out Seconds", "Timed "+strconv.Itoa(int(d.Seconds()))+" seconds")
		w.playFiles(tot.ReportFiles(d))
	}
}

// PlayCode implements series.Dispatcher.
func (w *Worker) PlayCode(code int, flags command.Flags) {
	w.playCode(code, flags)
}

// playCode resolves one code through the scheduler when it names a base, or
// directly otherwise, then renders it.
func (w *Worker) playCode(code int, flags command.Flags) engine.Result {
	if base, ok := w.sched.Lookup(code); ok {
		sel, err := w.sched.Select(base)
		if err != nil {
			zlog.Warn().Err(err).Int("base", code).Msg("selection failed")
			return engine.ResultSkipped
		}
		w.pub.SetSection(sectionLabel(base))
		if sel.Overridden {
			flags = sel.Flags
		}
		return w.eng.Play(sel.Track, flags)
	}

	tr, ok := w.lib.Resolve(track.FormatCode(code))
	if !ok {
		zlog.Debug().Int("code", code).Msg("no file for code")
		return engine.ResultSkipped
	}
	if sel := w.sched.ApplyOverride(tr); sel.Overridden {
		return w.eng.Play(sel.Track, sel.Flags)
	}
	return w.eng.Play(tr, flags)
}

// playFiles renders a sequence of library files back-to-back under one busy
// hold, for the spoken reports.
func (w *Worker) playFiles(files []string) {
	w.busy.Hold()
	defer w.busy.Release()
	for _, f := range files {
		tr, ok := w.lib.ResolveFile(f)
		if !ok {
			zlog.Warn().Str("file", f).Msg("report file missing, skipping")
			continue
		}
		w.eng.Play(tr, command.Flags{})
	}
}

func (w *Worker) playWeather(v command.WeatherVariant) {
	// A conditions request right after a transmission gets the short
	// temperature report instead; the full rundown would talk over the
	// next key-up.
	if v == command.WeatherConditions && w.cfg.Recent != nil && w.cfg.Recent.ActiveWithin(10*time.Second) {
		v = command.WeatherTemperature
	}
	d, err := wx.Load(w.cfg.WxDataPath)
	if err != nil {
		zlog.Warn().Err(err).Msg("weather data unavailable")
		w.pub.SetInfo("weather data unavailable")
		return
	}
	files := wx.Files(d, v, time.Now(), w.cfg.WxMaxAge)
	if len(files) == 0 {
		w.pub.SetInfo("no weather report available")
		return
	}
	w.playFiles(files)
}

// runScript executes an operator script asynchronously. The name must be a
// bare filename inside the scripts directory.
func (w *Worker) runScript(name string) {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		zlog.Warn().Str("name", name).Msg("script name rejected")
		return
	}
	path := filepath.Join(w.cfg.ScriptsDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		zlog.Warn().Str("script", name).Msg("script missing or not executable")
		w.pub.SetInfo("script " + name + " not available")
		return
	}
	w.pub.SetInfo("script " + name + " started")
	go func() {
		out, err := exec.Command(path).CombinedOutput()
		if err != nil {
			zlog.Warn().Err(err).Str("script", name).Msg("script failed")
			return
		}
		zlog.Info().Str("script", name).Str("output", strings.TrimSpace(string(out))).Msg("script finished")
	}()
}

func (w *Worker) gateRejected(key string) {
	if w.limit.Allow("gate:" + key) {
		w.pub.SetInfo("message timer not elapsed")
	}
	zlog.Debug().Str("code", key).Msg("message gated")
}

func sectionLabel(b *scheduler.Base) string {
	if b.Name != "" {
		return b.Name
	}
	return track.FormatCode(b.Code) + "-" + track.FormatCode(b.End)
}
