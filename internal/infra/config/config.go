// Package config provides configuration loading from YAML files.
//
// Loading never aborts the process: a missing or malformed file, or any
// invalid field, falls back to documented defaults and is reported as a
// warning for the caller to log. An unattended controller must come up with
// whatever configuration it can salvage.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Library  LibraryConfig  `yaml:"library"`
	Serial   SerialConfig   `yaml:"serial"`
	Audio    AudioConfig    `yaml:"audio"`
	Hardware HardwareConfig `yaml:"hardware"`
	Playback PlaybackConfig `yaml:"playback"`
	Bases    []BaseConfig   `yaml:"bases"`
	Message  MessageConfig  `yaml:"message"`
	Alert    AlertConfig    `yaml:"alert"`
	Activity ActivityConfig `yaml:"activity"`
	Weather  WeatherConfig  `yaml:"weather"`
	Scripts  ScriptsConfig  `yaml:"scripts"`
	DTMF     DTMFConfig     `yaml:"dtmf"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
}

// LibraryConfig locates the announcement sound library.
type LibraryConfig struct {
	Dir string `yaml:"dir" default:"/var/lib/annunciator/sounds"`
	Ext string `yaml:"ext" default:".wav"`
}

// SerialConfig represents the command input port.
type SerialConfig struct {
	Port          string `yaml:"port" default:"/dev/ttyUSB0"`
	Baud          int    `yaml:"baud" default:"9600" validate:"gt=0"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" default:"200" validate:"gt=0"`
	JunkIdleSec   int    `yaml:"junk_idle_sec" default:"10" validate:"gt=0"`
}

// AudioConfig names the render and capture devices handed to the external
// audio utilities.
type AudioConfig struct {
	PlayDevice   string `yaml:"play_device" default:"default"`
	RecordDevice string `yaml:"record_device" default:"default"`
	CaptureDir   string `yaml:"capture_dir" default:"/tmp"`
}

// HardwareConfig configures the sense input and busy output lines.
type HardwareConfig struct {
	Sense      LineConfig `yaml:"sense"`
	Busy       LineConfig `yaml:"busy"`
	DebounceMs int        `yaml:"debounce_ms" default:"1500" validate:"gt=0"`
	PollMs     int        `yaml:"poll_ms" default:"50" validate:"gt=0"`
}

// LineConfig represents a single hardware line provider.
type LineConfig struct {
	Type     string         `yaml:"type" default:"stub" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// PlaybackConfig represents playback state-machine tunables.
type PlaybackConfig struct {
	PollMs          int `yaml:"poll_ms" default:"50" validate:"gt=0"`
	GraceDelayMs    int `yaml:"grace_delay_ms" default:"250" validate:"gte=0"`
	RestartCap      int `yaml:"restart_cap" default:"3" validate:"gte=0"`
	EchoStartCode   int `yaml:"echo_start_code" validate:"gte=0,lte=9999"`
	EchoTimeoutCode int `yaml:"echo_timeout_code" validate:"gte=0,lte=9999"`
	EchoEndCode     int `yaml:"echo_end_code" validate:"gte=0,lte=9999"`
	EchoMinBytes    int `yaml:"echo_min_bytes" default:"4096" validate:"gt=0"`
}

// BaseConfig represents one scheduled announcement range.
type BaseConfig struct {
	Name        string `yaml:"name"`
	Base        int    `yaml:"base" validate:"gte=0,lte=9999"`
	End         int    `yaml:"end" validate:"gte=0,lte=9999,gtfield=Base"`
	Policy      string `yaml:"policy" default:"random" validate:"oneof=random rotation sudorandom"`
	IntervalSec int    `yaml:"interval_sec" default:"60" validate:"gte=0"`
}

// Interval returns the base's selection interval.
func (b BaseConfig) Interval() time.Duration {
	return time.Duration(b.IntervalSec) * time.Second
}

// MessageConfig represents the message timer gate. Timer is "N" (message
// playback disabled), "0" (always allowed), or a minute count (minimum gap
// between message-flagged plays).
type MessageConfig struct {
	Timer string `yaml:"timer" default:"N"`
}

// Window decodes the timer. disabled means message playback is off entirely;
// otherwise window is the minimum gap (zero = always allowed).
func (m MessageConfig) Window() (window time.Duration, disabled bool) {
	t := strings.TrimSpace(strings.ToUpper(m.Timer))
	if t == "" || t == "N" {
		return 0, true
	}
	n, err := strconv.Atoi(t)
	if err != nil || n < 0 {
		return 0, true
	}
	return time.Duration(n) * time.Minute, false
}

// AlertConfig represents the alert-override substitution.
type AlertConfig struct {
	Code          int    `yaml:"code" validate:"gte=0,lte=9999"`
	Suffix        string `yaml:"suffix"`
	WindowMinutes int    `yaml:"window_minutes" default:"60" validate:"gt=0"`
}

// ActivityConfig represents the channel-activity accumulator.
type ActivityConfig struct {
	LogPath string `yaml:"log_path" default:"/var/lib/annunciator/activity.log"`
}

// WeatherConfig represents the externally-maintained weather data file.
type WeatherConfig struct {
	DataPath string `yaml:"data_path" default:"/var/lib/annunciator/wx_data"`
	MaxAgeHr int    `yaml:"max_age_hr" default:"2" validate:"gt=0"`
}

// ScriptsConfig locates operator scripts runnable via S-commands.
type ScriptsConfig struct {
	Dir string `yaml:"dir" default:"/var/lib/annunciator/scripts"`
}

// DTMFConfig represents DTMF digit logging.
type DTMFConfig struct {
	LogPath  string `yaml:"log_path" default:"/var/lib/annunciator/dtmf.log"`
	FlushSec int    `yaml:"flush_sec" default:"30" validate:"gt=0"`
}

// APIConfig represents the read-only status server.
type APIConfig struct {
	Addr string `yaml:"addr" default:":8090"`
}

// LogConfig represents logging output.
type LogConfig struct {
	Level      string `yaml:"level" default:"info"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"10" validate:"gt=0"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
}

// Load loads configuration from a YAML file. It always returns a usable
// Config; problems encountered along the way come back as warnings.
func Load(path string) (*Config, []string) {
	var warnings []string
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("config file unreadable, using defaults: %v", err))
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		cfg = Config{}
		warnings = append(warnings, fmt.Sprintf("config file malformed, using defaults: %v", err))
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		warnings = append(warnings, fmt.Sprintf("failed to set defaults: %v", err))
	}

	warnings = append(warnings, cfg.sanitize()...)
	return &cfg, warnings
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ANNUNCIATOR_SERIAL_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("ANNUNCIATOR_LIBRARY_DIR"); v != "" {
		c.Library.Dir = v
	}
	if v := os.Getenv("ANNUNCIATOR_API_ADDR"); v != "" {
		c.API.Addr = v
	}
}

// sanitize validates the configuration and repairs what it can. Scalar
// violations revert to their defaults; invalid base entries are dropped.
// Every repair produces a warning.
func (c *Config) sanitize() []string {
	var warnings []string
	validate := validator.New()

	if err := validate.StructExcept(c, "Bases"); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				warnings = append(warnings, fmt.Sprintf(
					"config field %s invalid (%s=%v), reverting to default",
					fe.Namespace(), fe.Tag(), fe.Value()))
			}
			c.revertDefaults(verrs)
		} else {
			warnings = append(warnings, fmt.Sprintf("config validation failed: %v", err))
		}
	}

	kept := c.Bases[:0]
	for i, b := range c.Bases {
		if err := validate.Struct(b); err != nil {
			warnings = append(warnings, fmt.Sprintf("base entry %d invalid, dropped: %v", i, err))
			continue
		}
		kept = append(kept, b)
	}
	c.Bases = kept

	return warnings
}

// revertDefaults resets the fields named by validation errors back to their
// struct-tag defaults by re-running defaults.Set over a zeroed copy and
// copying the repaired sections wholesale. Section granularity is fine here:
// a bad value in one section does not disturb another.
func (c *Config) revertDefaults(verrs validator.ValidationErrors) {
	var fresh Config
	_ = defaults.Set(&fresh)
	for _, fe := range verrs {
		parts := strings.Split(fe.Namespace(), ".")
		if len(parts) < 2 {
			continue
		}
		switch parts[1] {
		case "Serial":
			c.Serial = fresh.Serial
		case "Audio":
			c.Audio = fresh.Audio
		case "Hardware":
			c.Hardware.DebounceMs = fresh.Hardware.DebounceMs
			c.Hardware.PollMs = fresh.Hardware.PollMs
		case "Playback":
			c.Playback = fresh.Playback
		case "Alert":
			c.Alert = fresh.Alert
		case "Weather":
			c.Weather = fresh.Weather
		case "DTMF":
			c.DTMF = fresh.DTMF
		case "Log":
			c.Log = fresh.Log
		}
	}
}

// Debounce returns the sense debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Hardware.DebounceMs) * time.Millisecond
}

// PollInterval returns the playback poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Playback.PollMs) * time.Millisecond
}

// GraceDelay returns the preemption grace delay.
func (c *Config) GraceDelay() time.Duration {
	return time.Duration(c.Playback.GraceDelayMs) * time.Millisecond
}
