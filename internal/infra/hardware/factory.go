package hardware

import (
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// NewSenseFromConfig creates a sense line from a provider type and its
// settings map.
func NewSenseFromConfig(lineType string, settings map[string]any) (SenseLine, error) {
	switch lineType {
	case "gpio":
		return newGPIOLine(settings)
	case "file":
		return newFileLine(settings)
	case "stub", "":
		return &StubLine{}, nil
	default:
		return nil, errors.Newf("unsupported sense line type: %s", lineType)
	}
}

// NewBusyFromConfig creates a busy line from a provider type and its
// settings map.
func NewBusyFromConfig(lineType string, settings map[string]any) (BusyLine, error) {
	switch lineType {
	case "gpio":
		return newGPIOLine(settings)
	case "stub", "":
		return &StubLine{}, nil
	default:
		return nil, errors.Newf("unsupported busy line type: %s", lineType)
	}
}

// gpioLineConfig represents sysfs GPIO line settings.
type gpioLineConfig struct {
	Path      string `mapstructure:"path" validate:"required"`
	ActiveLow bool   `mapstructure:"active_low"`
}

// GPIOLine reads and writes a sysfs-style value file: a single character,
// "1" active and "0" inactive (inverted when active_low).
type GPIOLine struct {
	path      string
	activeLow bool
}

func newGPIOLine(settings map[string]any) (*GPIOLine, error) {
	var cfg gpioLineConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode gpio line settings")
	}
	if cfg.Path == "" {
		return nil, errors.New("gpio line requires a path")
	}
	zlog.Debug().Str("path", cfg.Path).Bool("active_low", cfg.ActiveLow).Msg("gpio line configured")
	return &GPIOLine{path: cfg.Path, activeLow: cfg.ActiveLow}, nil
}

// Active implements SenseLine.
func (g *GPIOLine) Active() (bool, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return false, errors.Wrap(err, "failed to read gpio value")
	}
	raw := strings.TrimSpace(string(data)) == "1"
	return raw != g.activeLow, nil
}

// Set implements BusyLine.
func (g *GPIOLine) Set(active bool) error {
	v := "0"
	if active != g.activeLow {
		v = "1"
	}
	if err := os.WriteFile(g.path, []byte(v), 0o644); err != nil {
		return errors.Wrap(err, "failed to write gpio value")
	}
	return nil
}

// fileLineConfig represents the override-file sense provider: the line reads
// active while the named file exists. Useful as a debug hook to force the
// channel busy from a shell.
type fileLineConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// FileLine treats the existence of a file as sense-active.
type FileLine struct {
	path string
}

func newFileLine(settings map[string]any) (*FileLine, error) {
	var cfg fileLineConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode file line settings")
	}
	if cfg.Path == "" {
		return nil, errors.New("file line requires a path")
	}
	return &FileLine{path: cfg.Path}, nil
}

// Active implements SenseLine.
func (f *FileLine) Active() (bool, error) {
	_, err := os.Stat(f.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "failed to stat sense override file")
}

// StubLine is an inert line for bench setups with no hardware attached.
type StubLine struct {
	mu     sync.Mutex
	active bool
}

// Active implements SenseLine.
func (s *StubLine) Active() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, nil
}

// Set implements BusyLine.
func (s *StubLine) Set(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
	return nil
}
