// Package command provides the typed command model and the serial protocol
// parser for the announcement controller.
package command

// Kind discriminates the command union.
type Kind int

const (
	KindNone          Kind = iota // Unrecognized input, dropped silently
	KindSimple                    // P#### with optional suffix flags
	KindInterruptTo               // P####i#### interrupt-to-another
	KindJoin                      // J-chained series played back-to-back
	KindAlternate                 // A-chained series, one segment per invocation
	KindEchoTest                  // RE#### record-and-playback test
	KindScript                    // S<name> executable script
	KindDirectFile                // Literal .wav filename
	KindWeather                   // W1/W1F/W2/W3 report
	KindActivity                  // A1 spoken activity report
	KindActivityReset             // ARST zero today's activity minutes
	KindTimeOutStart              // TOT arm the time-out timer
	KindTimeOutReport             // TOP speak the last timed duration
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSimple:
		return "simple"
	case KindInterruptTo:
		return "interrupt_to"
	case KindJoin:
		return "join"
	case KindAlternate:
		return "alternate"
	case KindEchoTest:
		return "echo_test"
	case KindScript:
		return "script"
	case KindDirectFile:
		return "direct_file"
	case KindWeather:
		return "weather"
	case KindActivity:
		return "activity"
	case KindActivityReset:
		return "activity_reset"
	case KindTimeOutStart:
		return "timeout_start"
	case KindTimeOutReport:
		return "timeout_report"
	default:
		return "unknown"
	}
}

// WeatherVariant selects the weather report form.
type WeatherVariant int

const (
	WeatherConditions       WeatherVariant = iota // W1
	WeatherForcedConditions                       // W1F, ignores recent channel activity
	WeatherTemperature                            // W2
	WeatherAlerts                                 // W3
)

// Flags are the playback mode suffixes of a simple command.
type Flags struct {
	Interruptible bool // I: terminate early when the sense line activates
	Repeat        bool // R: restart from the top on sense activation, capped
	Pause         bool // P: pause on sense activation, resume from offset
	Message       bool // M: subject to the message timer gate
	WaitForCOS    bool // W: wait for a clear channel before rendering
}

// ParseFlags decodes a suffix string. When both Pause and Repeat are present,
// Pause wins and Repeat is discarded; this is a protocol rule, not a cleanup.
func ParseFlags(suffix string) Flags {
	var f Flags
	for _, c := range suffix {
		switch c {
		case 'I':
			f.Interruptible = true
		case 'R':
			f.Repeat = true
		case 'P':
			f.Pause = true
		case 'M':
			f.Message = true
		case 'W':
			f.WaitForCOS = true
		}
	}
	if f.Pause && f.Repeat {
		f.Repeat = false
	}
	return f
}

// JoinSegment is one element of a Join series.
type JoinSegment struct {
	Code  int
	Flags Flags
}

// Command is the parsed form of one protocol token. Fields are populated
// according to Kind; zero values elsewhere.
type Command struct {
	Kind     Kind
	Raw      string // Original token text (series identity for Alternate)
	Code     int    // Simple/InterruptTo/EchoTest target code
	AltCode  int    // InterruptTo: code rendered after a sense interruption
	Flags    Flags
	Join     []JoinSegment
	JoinGate bool     // Trailing M on a Join applies to the whole series
	Segments []string // Alternate: raw single-command segments
	Name     string   // Script or direct-file name
	Weather  WeatherVariant
}
