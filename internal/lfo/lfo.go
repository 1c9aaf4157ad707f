package lfo

import (
	"math"

	"github.com/cbegin/midisynth-go/internal/handle"
)

const twoPi = math.Pi * 2

// LFO is a delayed sine vibrato. Depth and rate are in Hz, delay in seconds.
type LFO struct {
	enabled bool
	depth   float64
	rateHz  float64
	delay   float64
}

// Set applies one vibrato operation.
func (l *LFO) Set(op handle.VibrateOp, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	switch op {
	case handle.VibrateOff:
		l.enabled = false
	case handle.VibrateOn:
		l.enabled = true
	case handle.VibrateDelay:
		l.delay = math.Max(value, 0)
	case handle.VibrateDepth:
		l.depth = value
	case handle.VibrateFreq:
		l.rateHz = math.Max(value, 0)
	}
}

// Offset returns the frequency offset in Hz at elapsed seconds since the
// note started. The sine starts at zero once the delay has passed.
func (l *LFO) Offset(elapsed float64) float64 {
	if !l.Active() || elapsed < l.delay {
		return 0
	}
	return l.depth * math.Sin(twoPi*l.rateHz*(elapsed-l.delay))
}

// Active returns true if the LFO is enabled with non-zero depth and rate.
func (l *LFO) Active() bool {
	return l.enabled && l.depth != 0 && l.rateHz != 0
}

func (l *LFO) Depth() float64 { return l.depth }

// Reset disables the LFO and clears its parameters.
func (l *LFO) Reset() {
	*l = LFO{}
}
