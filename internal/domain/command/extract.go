package command

import (
	"regexp"
	"strings"
	"time"
)

// Stream extraction patterns, tried in order against the unterminated
// buffer. Keyword tokens are word-bounded so a W1 inside W1F is not taken.
var streamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bW1F\b`),
	regexp.MustCompile(`\b(TOT|TOP|ARST|A1|W1|W2|W3)\b`),
	regexp.MustCompile(`RE\d{4}`),
	regexp.MustCompile(`P\d{4}[A-Z]*(J\d{4}[A-Z]*)+`),
	regexp.MustCompile(`P\d{4}(i\d{4}|[IPRWM]*)(A\d{4}(i\d{4}|[IPRWM]*))+`),
	regexp.MustCompile(`P\d{4}(i\d{4}|[IPRWM]*)`),
}

const (
	maxBufferLen  = 1000
	keepBufferLen = 500
)

// Extractor assembles command tokens from a raw byte stream. Commands are
// pattern-matched with no explicit terminator; complete lines are also
// emitted whole so free-form tokens (scripts, filenames) survive. Stray
// bytes that never match anything are discarded after an idle timeout so the
// buffer cannot grow without bound.
type Extractor struct {
	IdleTimeout time.Duration

	buf      string
	lastData time.Time
}

// NewExtractor creates an Extractor with the given junk-idle timeout.
func NewExtractor(idleTimeout time.Duration) *Extractor {
	return &Extractor{IdleTimeout: idleTimeout}
}

// Feed appends raw bytes and returns every token recognized so far, oldest
// first.
func (e *Extractor) Feed(p []byte, now time.Time) []string {
	e.buf += string(p)
	e.lastData = now

	var tokens []string

	// Complete lines are tokens in their own right.
	for {
		i := strings.IndexByte(e.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(e.buf[:i])
		e.buf = e.buf[i+1:]
		if line != "" {
			tokens = append(tokens, line)
		}
	}

	// Pattern-scan the unterminated remainder.
	for {
		matched := false
		for _, re := range streamPatterns {
			loc := re.FindStringIndex(e.buf)
			if loc == nil {
				continue
			}
			tokens = append(tokens, e.buf[loc[0]:loc[1]])
			e.buf = strings.TrimLeft(e.buf[:loc[0]]+e.buf[loc[1]:], " \t\r")
			matched = true
			break
		}
		if !matched {
			break
		}
	}

	if len(e.buf) > maxBufferLen {
		e.buf = e.buf[len(e.buf)-keepBufferLen:]
	}
	return tokens
}

// Tick discards buffered junk that has not produced a token within the idle
// timeout.
func (e *Extractor) Tick(now time.Time) {
	if e.buf == "" || e.IdleTimeout <= 0 {
		return
	}
	if now.Sub(e.lastData) > e.IdleTimeout {
		e.buf = ""
	}
}

// Pending returns the current unmatched buffer, for diagnostics.
func (e *Extractor) Pending() string {
	return e.buf
}
