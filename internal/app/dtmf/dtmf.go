// Package dtmf logs DTMF digit reports arriving on the serial stream.
//
// Decoder boards report digits as "<decoder>D<digit>", e.g. "1D5" or "2D*".
// Digits are buffered per decoder and written as one newest-first log line
// when the sense line drops, so a dialed sequence lands as a single entry.
package dtmf

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/kc2rpt/annunciator/internal/app/clock"
)

var digitRe = regexp.MustCompile(`^([123])D([0-9A-D*#])$`)

const stampLayout = "2006-01-02 15:04:05"

// Logger buffers and persists decoder digit reports.
type Logger struct {
	mu         sync.Mutex
	path       string
	flushAfter time.Duration
	clk        clock.Clock

	buffers map[string]*buffer
}

type buffer struct {
	digits string
	lastAt time.Time
}

// New creates a Logger writing to path.
func New(path string, flushAfter time.Duration, clk clock.Clock) *Logger {
	return &Logger{
		path:       path,
		flushAfter: flushAfter,
		clk:        clk,
		buffers:    make(map[string]*buffer),
	}
}

// Feed offers one token from the serial stream. It reports whether the
// token was consumed as a digit report.
func (l *Logger) Feed(token string) bool {
	m := digitRe.FindStringSubmatch(token)
	if m == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	decoder, digit := m[1], m[2]
	b, ok := l.buffers[decoder]
	if !ok {
		b = &buffer{}
		l.buffers[decoder] = b
	}
	b.digits += digit
	b.lastAt = l.clk.Now()
	return true
}

// Flush writes out every buffered sequence. The sense-edge monitor calls it
// when the line drops, closing off whatever was dialed during the keyed
// transmission.
func (l *Logger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked(func(*buffer) bool { return true })
}

// FlushIdle writes out any decoder buffer that has been quiet past the
// flush window, a backstop for digits arriving without a matching sense
// edge.
func (l *Logger) FlushIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clk.Now()
	l.flushLocked(func(b *buffer) bool { return now.Sub(b.lastAt) >= l.flushAfter })
}

func (l *Logger) flushLocked(due func(*buffer) bool) {
	now := l.clk.Now()
	var lines []string
	for decoder, b := range l.buffers {
		if b.digits == "" || !due(b) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s Port %s: %s", now.Format(stampLayout), decoder, b.digits))
		delete(l.buffers, decoder)
	}
	if len(lines) == 0 {
		return
	}
	sort.Strings(lines)
	if err := l.prepend(lines, now); err != nil {
		zlog.Warn().Err(err).Msg("dtmf log write failed")
	}
}

// prepend writes lines newest-first, rolling the file into a monthly
// archive when the newest existing entry is from a previous month.
func (l *Logger) prepend(lines []string, now time.Time) error {
	prev, err := os.ReadFile(l.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to read dtmf log")
	}
	if month := now.Format("2006-01"); len(prev) >= len(month) && string(prev[:len(month)]) != month {
		archive := l.path + "." + string(prev[:len(month)])
		if err := os.Rename(l.path, archive); err == nil {
			prev = nil
		}
	}
	body := strings.Join(lines, "\n") + "\n" + string(prev)
	return errors.Wrap(os.WriteFile(l.path, []byte(body), 0o644), "failed to write dtmf log")
}
