package command

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	echoRe      = regexp.MustCompile(`^RE(\d{4})$`)
	interruptRe = regexp.MustCompile(`^[Pp](\d{4})i(\d{4})`)
	simpleRe    = regexp.MustCompile(`^[Pp](\d{4})([IPRWM]*)$`)
	joinPartRe  = regexp.MustCompile(`^(\d{4})([A-Za-z]*)$`)
	altSegRe    = regexp.MustCompile(`^[Pp]\d{4}(i\d{4}|[IPRWM]*)$`)
)

// Parse turns one raw token into a Command. Unrecognized input yields
// Kind == KindNone; it is never an error, malformed commands are dropped
// silently by the caller.
//
// Interpretation order mirrors the wire protocol: fixed keywords first, then
// echo test, script, direct filename, Join series, Alternate series, and
// finally the single-code forms.
func Parse(raw string) Command {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Command{Kind: KindNone, Raw: raw}
	}
	upper := strings.ToUpper(trimmed)

	switch upper {
	case "TOT":
		return Command{Kind: KindTimeOutStart, Raw: trimmed}
	case "TOP":
		return Command{Kind: KindTimeOutReport, Raw: trimmed}
	case "A1":
		return Command{Kind: KindActivity, Raw: trimmed}
	case "ARST":
		return Command{Kind: KindActivityReset, Raw: trimmed}
	case "W1":
		return Command{Kind: KindWeather, Raw: trimmed, Weather: WeatherConditions}
	case "W1F":
		return Command{Kind: KindWeather, Raw: trimmed, Weather: WeatherForcedConditions}
	case "W2":
		return Command{Kind: KindWeather, Raw: trimmed, Weather: WeatherTemperature}
	case "W3":
		return Command{Kind: KindWeather, Raw: trimmed, Weather: WeatherAlerts}
	}

	if m := echoRe.FindStringSubmatch(upper); m != nil {
		code, _ := strconv.Atoi(m[1])
		return Command{Kind: KindEchoTest, Raw: trimmed, Code: code}
	}

	if len(trimmed) > 1 && (trimmed[0] == 'S' || trimmed[0] == 's') && !strings.ContainsAny(trimmed, " \t") {
		// Script names are free-form; anything S-prefixed that is not a
		// recognized keyword above runs as a script.
		return Command{Kind: KindScript, Raw: trimmed, Name: strings.TrimSpace(trimmed[1:])}
	}

	if strings.HasSuffix(strings.ToLower(trimmed), ".wav") {
		return Command{Kind: KindDirectFile, Raw: trimmed, Name: trimmed}
	}

	if cmd, ok := parseJoin(trimmed); ok {
		return cmd
	}

	if cmd, ok := parseAlternate(trimmed); ok {
		return cmd
	}

	if m := interruptRe.FindStringSubmatch(trimmed); m != nil {
		code, _ := strconv.Atoi(m[1])
		alt, _ := strconv.Atoi(m[2])
		// No suffixes are honored after the second code.
		return Command{Kind: KindInterruptTo, Raw: trimmed, Code: code, AltCode: alt}
	}

	if m := simpleRe.FindStringSubmatch(trimmed); m != nil {
		code, _ := strconv.Atoi(m[1])
		return Command{Kind: KindSimple, Raw: trimmed, Code: code, Flags: ParseFlags(m[2])}
	}

	return Command{Kind: KindNone, Raw: trimmed}
}

// parseJoin parses a J-chained series such as P1001JR2002IM or
// P1001J2002J3003M. The uppercase J is the separator; a trailing M after the
// last segment gates the whole series rather than the last code.
func parseJoin(raw string) (Command, bool) {
	if !strings.Contains(raw, "J") {
		return Command{}, false
	}
	body := strings.TrimPrefix(strings.TrimPrefix(raw, "P"), "p")
	parts := strings.Split(body, "J")
	if len(parts) < 2 {
		return Command{}, false
	}

	segments := make([]JoinSegment, 0, len(parts))
	suffixes := make([]string, 0, len(parts))
	for _, part := range parts {
		m := joinPartRe.FindStringSubmatch(part)
		if m == nil {
			return Command{}, false
		}
		code, _ := strconv.Atoi(m[1])
		segments = append(segments, JoinSegment{Code: code})
		suffixes = append(suffixes, strings.ToUpper(m[2]))
	}

	gate := false
	last := suffixes[len(suffixes)-1]
	if strings.HasSuffix(last, "M") {
		gate = true
		suffixes[len(suffixes)-1] = strings.TrimSuffix(last, "M")
	}
	for i := range segments {
		segments[i].Flags = ParseFlags(suffixes[i])
	}

	return Command{Kind: KindJoin, Raw: raw, Join: segments, JoinGate: gate}, true
}

// parseAlternate splits an A-chained series such as P5300RA5400i6000A2801P
// into standalone segments. Each invocation of the identical series text
// plays exactly one segment; the pointer lives with the series state, not
// here. Every segment must itself be a valid single command or the series is
// rejected and other interpretations are attempted by the caller.
func parseAlternate(raw string) (Command, bool) {
	if len(raw) == 0 || (raw[0] != 'P' && raw[0] != 'p') {
		return Command{}, false
	}
	if !strings.Contains(raw[1:], "A") {
		return Command{}, false
	}

	var segments []string
	curr := strings.Builder{}
	curr.WriteByte('P')
	for _, c := range raw[1:] {
		if c == 'A' {
			segments = append(segments, curr.String())
			curr.Reset()
			curr.WriteByte('P')
			continue
		}
		curr.WriteRune(c)
	}
	segments = append(segments, curr.String())

	if len(segments) < 2 {
		return Command{}, false
	}
	for _, seg := range segments {
		if !altSegRe.MatchString(seg) {
			return Command{}, false
		}
	}

	return Command{Kind: KindAlternate, Raw: raw, Segments: segments}, true
}
