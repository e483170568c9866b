package health

import "time"

// State selects the blink pattern.
type State int32

// Health states.
const (
	Booting State = iota
	AwaitingConfig
	Connecting
	Normal
	Error
)

func (s State) String() string {
	switch s {
	case Booting:
		return "booting"
	case AwaitingConfig:
		return "awaiting-config"
	case Connecting:
		return "connecting"
	case Normal:
		return "normal"
	case Error:
		return "error"
	}
	return "unknown"
}

// Color is an RGB color.
type Color struct {
	R, G, B uint8
}

// Colors
var (
	Off    = Color{}
	Red    = Color{R: 0xff}
	Green  = Color{G: 0xff}
	Blue   = Color{B: 0xff}
	Yellow = Color{R: 0xff, G: 0xff}
	Cyan   = Color{G: 0xff, B: 0xff}
)

// Timing
const (
	ShortBlink = 100 * time.Millisecond
	LongBlink  = 300 * time.Millisecond
	PulseGap   = 100 * time.Millisecond
	PulsePause = 1500 * time.Millisecond
	SlowBlink  = time.Second
	SOSPause   = 2 * time.Second
)

// Step holds the LED on or off for Duration.
type Step struct {
	On       bool
	Duration time.Duration
}

// Pattern is one full rendering of a state.
type Pattern struct {
	Color Color
	Steps []Step
}

// Period is the time one rendering takes.
func (p Pattern) Period() (d time.Duration) {
	for _, s := range p.Steps {
		d += s.Duration
	}
	return
}

var patterns = map[State]Pattern{
	Booting:        {Color: Blue, Steps: blink(ShortBlink, ShortBlink)},
	AwaitingConfig: {Color: Yellow, Steps: pulses(2)},
	Connecting:     {Color: Cyan, Steps: pulses(3)},
	Normal:         {Color: Green, Steps: blink(SlowBlink, SlowBlink)},
	Error:          {Color: Red, Steps: sos()},
}

// PatternOf returns the pattern of s. Unknown states render as Error.
func PatternOf(s State) Pattern {
	if p, ok := patterns[s]; ok {
		return p
	}
	return patterns[Error]
}

func blink(on, off time.Duration) []Step {
	return []Step{{On: true, Duration: on}, {Duration: off}}
}

func repeat(n int, on, off time.Duration) (steps []Step) {
	for i := 0; i < n; i++ {
		steps = append(steps, blink(on, off)...)
	}
	return
}

func pulses(n int) []Step {
	return append(repeat(n, ShortBlink, PulseGap), Step{Duration: PulsePause})
}

// ... --- ...
func sos() (steps []Step) {
	steps = append(steps, repeat(3, ShortBlink, PulseGap)...)
	steps = append(steps, Step{Duration: LongBlink})
	steps = append(steps, repeat(3, LongBlink, PulseGap)...)
	steps = append(steps, Step{Duration: LongBlink})
	steps = append(steps, repeat(3, ShortBlink, PulseGap)...)
	return append(steps, Step{Duration: SOSPause})
}
