// Package wx reads the weather data file maintained by the external fetcher
// and turns it into spoken reports.
//
// The file is simple key=value lines; each report key holds a
// comma-separated list of voice files:
//
//	updated=1767100200
//	conditions=clear.wav,winds.wav,calm.wav
//	temperature=72.wav,degrees.wav
//	alerts=severe-thunderstorm.wav
//
// The core never fetches weather itself; acquisition and formatting live
// outside the controller.
package wx

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/scheduler"
	"github.com/kc2rpt/annunciator/internal/domain/command"
)

// Data is one parsed weather snapshot.
type Data struct {
	Updated     time.Time
	Conditions  []string
	Temperature []string
	Alerts      []string
}

// Load parses the weather data file.
func Load(path string) (Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Data{}, errors.Wrap(err, "failed to read weather data")
	}

	var d Data
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "updated":
			if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
				d.Updated = time.Unix(ts, 0)
			}
		case "conditions":
			d.Conditions = splitFiles(value)
		case "temperature":
			d.Temperature = splitFiles(value)
		case "alerts":
			d.Alerts = splitFiles(value)
		}
	}
	return d, nil
}

func splitFiles(value string) []string {
	var out []string
	for _, f := range strings.Split(value, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Fresh reports whether the snapshot is recent enough to speak as current
// conditions.
func (d Data) Fresh(now time.Time, maxAge time.Duration) bool {
	return !d.Updated.IsZero() && now.Sub(d.Updated) <= maxAge
}

// Files returns the voice files for the requested report variant. Stale
// conditions redirect W1 to the temperature report, which ages better; W1F
// forces conditions regardless.
func Files(d Data, v command.WeatherVariant, now time.Time, maxAge time.Duration) []string {
	switch v {
	case command.WeatherConditions:
		if !d.Fresh(now, maxAge) {
			zlog.Debug().Time("updated", d.Updated).Msg("weather conditions stale, redirecting to temperature")
			return d.Temperature
		}
		return d.Conditions
	case command.WeatherForcedConditions:
		return d.Conditions
	case command.WeatherTemperature:
		return d.Temperature
	case command.WeatherAlerts:
		return d.Alerts
	default:
		return nil
	}
}

// MonitorAlerts polls the weather file and opens the alert override window
// whenever an alert is present. The window keeps extending while the alert
// persists and closes on its own afterwards.
func MonitorAlerts(ctx context.Context, path string, interval time.Duration, override *scheduler.AlertOverride) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d, err := Load(path)
			if err != nil {
				continue
			}
			if len(d.Alerts) > 0 {
				override.Activate(time.Now())
			}
		}
	}
}
