package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Command
	}{
		{
			name: "simple play",
			raw:  "P1234",
			want: Command{Kind: KindSimple, Raw: "P1234", Code: 1234},
		},
		{
			name: "simple with interruptible flag",
			raw:  "P1234I",
			want: Command{Kind: KindSimple, Raw: "P1234I", Code: 1234, Flags: Flags{Interruptible: true}},
		},
		{
			name: "simple with repeat flag",
			raw:  "P1234R",
			want: Command{Kind: KindSimple, Raw: "P1234R", Code: 1234, Flags: Flags{Repeat: true}},
		},
		{
			name: "pause beats repeat",
			raw:  "P1234PR",
			want: Command{Kind: KindSimple, Raw: "P1234PR", Code: 1234, Flags: Flags{Pause: true}},
		},
		{
			name: "wait for carrier drop",
			raw:  "P1234W",
			want: Command{Kind: KindSimple, Raw: "P1234W", Code: 1234, Flags: Flags{WaitForCOS: true}},
		},
		{
			name: "message gated",
			raw:  "P1234M",
			want: Command{Kind: KindSimple, Raw: "P1234M", Code: 1234, Flags: Flags{Message: true}},
		},
		{
			name: "lowercase prefix accepted",
			raw:  "p1234",
			want: Command{Kind: KindSimple, Raw: "p1234", Code: 1234},
		},
		{
			name: "interrupt then play",
			raw:  "P1234i5678",
			want: Command{Kind: KindInterruptTo, Raw: "P1234i5678", Code: 1234, AltCode: 5678},
		},
		{
			name: "join series",
			raw:  "P1000J2000J3000",
			want: Command{
				Kind: KindJoin,
				Raw:  "P1000J2000J3000",
				Join: []JoinSegment{{Code: 1000}, {Code: 2000}, {Code: 3000}},
			},
		},
		{
			name: "join with per-segment flags",
			raw:  "P1000IJ2000R",
			want: Command{
				Kind: KindJoin,
				Raw:  "P1000IJ2000R",
				Join: []JoinSegment{
					{Code: 1000, Flags: Flags{Interruptible: true}},
					{Code: 2000, Flags: Flags{Repeat: true}},
				},
			},
		},
		{
			name: "join trailing M gates whole series",
			raw:  "P1000J2000M",
			want: Command{
				Kind:     KindJoin,
				Raw:      "P1000J2000M",
				Join:     []JoinSegment{{Code: 1000}, {Code: 2000}},
				JoinGate: true,
			},
		},
		{
			name: "alternate series",
			raw:  "P1000A2000A3000",
			want: Command{
				Kind:     KindAlternate,
				Raw:      "P1000A2000A3000",
				Segments: []string{"P1000", "P2000", "P3000"},
			},
		},
		{
			name: "alternate with interrupt segment keeps case",
			raw:  "P1000i1111A2000",
			want: Command{
				Kind:     KindAlternate,
				Raw:      "P1000i1111A2000",
				Segments: []string{"P1000i1111", "P2000"},
			},
		},
		{
			name: "echo test",
			raw:  "RE5150",
			want: Command{Kind: KindEchoTest, Raw: "RE5150", Code: 5150},
		},
		{
			name: "timeout start",
			raw:  "TOT",
			want: Command{Kind: KindTimeOutStart, Raw: "TOT"},
		},
		{
			name: "timeout report",
			raw:  "TOP",
			want: Command{Kind: KindTimeOutReport, Raw: "TOP"},
		},
		{
			name: "activity report",
			raw:  "A1",
			want: Command{Kind: KindActivity, Raw: "A1"},
		},
		{
			name: "activity reset",
			raw:  "ARST",
			want: Command{Kind: KindActivityReset, Raw: "ARST"},
		},
		{
			name: "weather conditions",
			raw:  "W1",
			want: Command{Kind: KindWeather, Raw: "W1", Weather: WeatherConditions},
		},
		{
			name: "weather forced conditions",
			raw:  "W1F",
			want: Command{Kind: KindWeather, Raw: "W1F", Weather: WeatherForcedConditions},
		},
		{
			name: "weather temperature",
			raw:  "W2",
			want: Command{Kind: KindWeather, Raw: "W2", Weather: WeatherTemperature},
		},
		{
			name: "weather alerts",
			raw:  "W3",
			want: Command{Kind: KindWeather, Raw: "W3", Weather: WeatherAlerts},
		},
		{
			name: "script token",
			raw:  "Sbackup",
			want: Command{Kind: KindScript, Raw: "Sbackup", Name: "backup"},
		},
		{
			name: "direct wav file",
			raw:  "herald.wav",
			want: Command{Kind: KindDirectFile, Raw: "herald.wav", Name: "herald.wav"},
		},
		{
			name: "unrecognized token",
			raw:  "XQZZY",
			want: Command{Kind: KindNone, Raw: "XQZZY"},
		},
		{
			name: "empty token",
			raw:  "",
			want: Command{Kind: KindNone, Raw: ""},
		},
		{
			name: "too-short code rejected",
			raw:  "P123",
			want: Command{Kind: KindNone, Raw: "P123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_ScriptRejectsWhitespace(t *testing.T) {
	got := Parse("Sback up")
	assert.Equal(t, KindNone, got.Kind)
}

func TestExtractor_CompleteLines(t *testing.T) {
	e := NewExtractor(10 * time.Second)
	now := time.Now()

	tokens := e.Feed([]byte("P1234\nherald.wav\n"), now)
	require.Len(t, tokens, 2)
	assert.Equal(t, "P1234", tokens[0])
	assert.Equal(t, "herald.wav", tokens[1])
	assert.Empty(t, e.Pending())
}

func TestExtractor_PatternScan(t *testing.T) {
	e := NewExtractor(10 * time.Second)
	now := time.Now()

	// No newline; the token is recognized by pattern alone, with junk
	// around it.
	tokens := e.Feed([]byte("zzRE5150zz"), now)
	require.Len(t, tokens, 1)
	assert.Equal(t, "RE5150", tokens[0])
}

func TestExtractor_KeywordBoundaries(t *testing.T) {
	e := NewExtractor(10 * time.Second)
	now := time.Now()

	// W1F must win over W1.
	tokens := e.Feed([]byte(" W1F "), now)
	require.Len(t, tokens, 1)
	assert.Equal(t, "W1F", tokens[0])
}

func TestExtractor_JunkIdleTimeout(t *testing.T) {
	e := NewExtractor(5 * time.Second)
	now := time.Now()

	e.Feed([]byte("garbage"), now)
	assert.NotEmpty(t, e.Pending())

	e.Tick(now.Add(2 * time.Second))
	assert.NotEmpty(t, e.Pending(), "junk kept before the timeout")

	e.Tick(now.Add(6 * time.Second))
	assert.Empty(t, e.Pending(), "junk discarded after the timeout")
}

func TestExtractor_SplitAcrossFeeds(t *testing.T) {
	e := NewExtractor(10 * time.Second)
	now := time.Now()

	tokens := e.Feed([]byte("RE51"), now)
	assert.Empty(t, tokens)

	tokens = e.Feed([]byte("50"), now.Add(time.Second))
	require.Len(t, tokens, 1)
	assert.Equal(t, "RE5150", tokens[0])
}

func TestExtractor_BufferCap(t *testing.T) {
	e := NewExtractor(0)
	now := time.Now()

	big := make([]byte, maxBufferLen+100)
	for i := range big {
		big[i] = 'x'
	}
	e.Feed(big, now)
	assert.LessOrEqual(t, len(e.Pending()), keepBufferLen)
}
