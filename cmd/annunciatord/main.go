// Package main provides the annunciator daemon entry point.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/api"
	"github.com/kc2rpt/annunciator/internal/app/activity"
	"github.com/kc2rpt/annunciator/internal/app/clock"
	"github.com/kc2rpt/annunciator/internal/app/dtmf"
	"github.com/kc2rpt/annunciator/internal/app/edge"
	"github.com/kc2rpt/annunciator/internal/app/engine"
	"github.com/kc2rpt/annunciator/internal/app/gate"
	"github.com/kc2rpt/annunciator/internal/app/scheduler"
	"github.com/kc2rpt/annunciator/internal/app/series"
	"github.com/kc2rpt/annunciator/internal/app/state"
	"github.com/kc2rpt/annunciator/internal/app/status"
	"github.com/kc2rpt/annunciator/internal/app/tot"
	"github.com/kc2rpt/annunciator/internal/app/worker"
	"github.com/kc2rpt/annunciator/internal/app/wx"
	"github.com/kc2rpt/annunciator/internal/domain/track"
	"github.com/kc2rpt/annunciator/internal/infra/audio"
	"github.com/kc2rpt/annunciator/internal/infra/config"
	"github.com/kc2rpt/annunciator/internal/infra/hardware"
	"github.com/kc2rpt/annunciator/internal/infra/logger"
	"github.com/kc2rpt/annunciator/internal/infra/serial"
)

const version = "1.0.0"

var (
	app        = kingpin.New("annunciatord", "repeater announcement controller").Version(version)
	configPath = app.Flag("config", "Path to config file").Default("config/annunciator.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// Config problems are warnings, never fatal; the controller must come
	// up unattended with whatever it can salvage.
	cfg, warnings := config.Load(*configPath)

	level := cfg.Log.Level
	if *verbose {
		level = "debug"
	}
	logger.Init(logger.Config{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	zlog.Info().Str("config", *configPath).Msg("annunciator starting")
	for _, w := range warnings {
		zlog.Warn().Msg(w)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Err(err).Msg("controller error")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real{}
	lib := track.NewLibrary(cfg.Library.Dir, cfg.Library.Ext)

	// Hardware lines. A bad provider config degrades to stubs so startup
	// still succeeds.
	senseLine, err := hardware.NewSenseFromConfig(cfg.Hardware.Sense.Type, cfg.Hardware.Sense.Settings)
	if err != nil {
		zlog.Warn().Err(err).Msg("sense line config invalid, using stub")
		senseLine = &hardware.StubLine{}
	}
	busyLine, err := hardware.NewBusyFromConfig(cfg.Hardware.Busy.Type, cfg.Hardware.Busy.Settings)
	if err != nil {
		zlog.Warn().Err(err).Msg("busy line config invalid, using stub")
		busyLine = &hardware.StubLine{}
	}
	sense := hardware.NewResilientSense(senseLine)
	busy := hardware.NewBusyHolder(busyLine)

	pub := status.NewPublisher()
	pub.Register(state.LogMirror{})
	pub.SetIdle()

	device := audio.NewExecDevice(cfg.Audio.PlayDevice, cfg.Audio.RecordDevice)
	eng := engine.New(device, sense, busy, pub, engine.Config{
		Poll:       cfg.PollInterval(),
		Grace:      cfg.GraceDelay(),
		Debounce:   cfg.Debounce(),
		RestartCap: cfg.Playback.RestartCap,
	})

	window, disabled := cfg.Message.Window()
	msgGate := gate.New(window, disabled, clk)
	limiter := status.NewRateLimiter(5*time.Second, clk)
	runner := series.NewRunner(busy, msgGate, limiter, pub)

	alert := scheduler.NewAlertOverride(cfg.Alert.Code, cfg.Alert.Suffix,
		time.Duration(cfg.Alert.WindowMinutes)*time.Minute)
	sched := scheduler.New(lib, cfg.Bases, alert, clk)

	act := activity.New(cfg.Activity.LogPath, clk)
	totTimer := tot.New(clk, sense)
	dtmfLog := dtmf.New(cfg.DTMF.LogPath, time.Duration(cfg.DTMF.FlushSec)*time.Second, clk)

	// The edge monitor closes out anything tied to a keyed transmission.
	monitor := edge.NewMonitor(sense, clk)
	monitor.OnFall(totTimer.Stop)
	monitor.OnFall(dtmfLog.Flush)

	w := worker.New(worker.Config{
		ScriptsDir: cfg.Scripts.Dir,
		WxDataPath: cfg.Weather.DataPath,
		WxMaxAge:   time.Duration(cfg.Weather.MaxAgeHr) * time.Hour,
		Echo:       buildEchoConfig(cfg, lib),
		Recent:     monitor,
	}, lib, sched, eng, runner, msgGate, limiter, pub, busy, act, totTimer, dtmfLog)

	reader := serial.NewReader(serial.Config{
		Name:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: time.Duration(cfg.Serial.ReadTimeoutMs) * time.Millisecond,
		JunkIdle:    time.Duration(cfg.Serial.JunkIdleSec) * time.Second,
	}, w.Submit)

	collector := state.NewCollector(state.Sources{
		Pub:       pub,
		Eng:       eng,
		Busy:      busy,
		Audio:     device,
		Serial:    reader,
		Act:       act,
		Queue:     w,
		Sched:     sched,
		Sense:     sense,
		Hist:      w,
		StartedAt: clk.Now(),
		Version:   version,
	}, clk)

	// Long-running loops, one goroutine each.
	go w.Run(ctx)
	go monitor.Run(ctx, cfg.PollInterval())
	go reader.Run(ctx)
	go act.Run(ctx, sense, time.Second)
	go collector.Run(ctx, time.Second)
	go wx.MonitorAlerts(ctx, cfg.Weather.DataPath, time.Minute, alert)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dtmfLog.FlushIdle()
			}
		}
	}()

	server := api.New(collector, w, cfg.Log.Level == "debug")
	httpServer := &http.Server{Addr: cfg.API.Addr, Handler: server.Handler()}
	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Str("addr", cfg.API.Addr).Msg("status server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zlog.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErrCh:
		return errors.Wrap(err, "status server failed")
	}

	// Stop any running session, then drain the loops.
	eng.Preempt()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("status server shutdown failed")
	}
	if err := act.Flush(); err != nil {
		zlog.Warn().Err(err).Msg("activity log final flush failed")
	}

	zlog.Info().Msg("controller stopped")
	return nil
}

// buildEchoConfig resolves the optional echo-test prompts once at startup.
func buildEchoConfig(cfg *config.Config, lib *track.Library) engine.EchoConfig {
	resolve := func(code int) *track.Track {
		if code == 0 {
			return nil
		}
		if tr, ok := lib.Resolve(track.FormatCode(code)); ok {
			return &tr
		}
		zlog.Warn().Int("code", code).Msg("echo prompt track missing")
		return nil
	}
	return engine.EchoConfig{
		Prompts: engine.EchoPrompts{
			Start:   resolve(cfg.Playback.EchoStartCode),
			Timeout: resolve(cfg.Playback.EchoTimeoutCode),
			End:     resolve(cfg.Playback.EchoEndCode),
		},
		CaptureDir: cfg.Audio.CaptureDir,
		MinBytes:   cfg.Playback.EchoMinBytes,
	}
}
