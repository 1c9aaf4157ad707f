// Package envelope implements the per-part amplitude state machine.
package envelope

import (
	"math"

	"github.com/cbegin/midisynth-go/internal/handle"
)

type State int

const (
	Silence State = iota
	Attack
	Release
)

func (s State) String() string {
	switch s {
	case Attack:
		return "attack"
	case Release:
		return "release"
	default:
		return "silence"
	}
}

// Params holds segment durations in seconds and the sustain level.
type Params struct {
	Attack  float64
	Peak    float64
	Decay   float64
	Sustain float64
	Release float64
}

func DefaultParams() Params {
	return Params{
		Attack:  0.005,
		Peak:    0,
		Decay:   0,
		Sustain: 1,
		Release: 0.1,
	}
}

// Envelope is owned by a single part and is not safe for concurrent use.
// All times below are in samples.
type Envelope struct {
	sampleRate float64
	params     Params

	attack  float64
	peak    float64
	decay   float64
	sustain float64
	release float64

	state        State
	t2, t3       float64
	releaseStart float64
	t5           float64
	da, dd, dr   float64
}

func New(sampleRate int) *Envelope {
	e := &Envelope{sampleRate: float64(sampleRate)}
	e.Reset()
	return e
}

// Reset restores default parameters and silences the envelope.
func (e *Envelope) Reset() {
	e.SetParams(DefaultParams())
	e.state = Silence
}

func (e *Envelope) State() State { return e.state }

func (e *Envelope) Params() Params { return e.params }

func (e *Envelope) SetParams(p Params) {
	p.Attack = nonNegative(p.Attack)
	p.Peak = nonNegative(p.Peak)
	p.Decay = nonNegative(p.Decay)
	p.Release = nonNegative(p.Release)
	p.Sustain = clamp(p.Sustain, 0, 1)
	e.params = p

	e.attack = p.Attack * e.sampleRate
	e.peak = p.Peak * e.sampleRate
	e.decay = p.Decay * e.sampleRate
	e.release = p.Release * e.sampleRate
	e.sustain = p.Sustain
	e.recompute()
}

// Set changes one parameter. Time values are seconds.
func (e *Envelope) Set(op handle.EnvelopeOp, value float64) {
	p := e.params
	switch op {
	case handle.EnvelopeAttack:
		p.Attack = value
	case handle.EnvelopePeak:
		p.Peak = value
	case handle.EnvelopeDecay:
		p.Decay = value
	case handle.EnvelopeSustain:
		p.Sustain = value
	case handle.EnvelopeRelease:
		p.Release = value
	default:
		return
	}
	e.SetParams(p)
}

// Attack starts the envelope from the beginning of the attack segment.
func (e *Envelope) Attack() {
	e.state = Attack
	e.recompute()
}

// Release starts the release segment at sample time at. It has no effect
// unless the envelope is in the Attack state.
func (e *Envelope) Release(at int64) {
	if e.state != Attack {
		return
	}
	e.state = Release
	e.releaseStart = float64(at)
	e.recompute()
}

func (e *Envelope) Silence() {
	e.state = Silence
}

func (e *Envelope) recompute() {
	e.t2 = e.attack + e.peak
	e.t3 = e.t2 + e.decay
	e.da, e.dd, e.dr = 0, 0, 0
	if e.attack > 0 {
		e.da = 1 / e.attack
	}
	if e.decay > 0 {
		e.dd = (1 - e.sustain) / e.decay
	}
	if e.release > 0 {
		e.dr = e.sustain / e.release
	}
	e.t5 = e.releaseStart + e.release
}

// Generate writes count envelope values for sample times time..time+count-1
// into out. Reaching the end of the release segment, or the end of the
// decay segment with zero sustain, moves the envelope to Silence and
// zero-fills the rest of the block.
func (e *Envelope) Generate(time int64, out []float64, count int) {
	for i := 0; i < count; i++ {
		t := float64(time + int64(i))
		switch e.state {
		case Attack:
			switch {
			case t < e.attack:
				out[i] = t * e.da
			case t < e.t2:
				out[i] = 1
			case t < e.t3:
				out[i] = 1 - (t-e.t2)*e.dd
			default:
				out[i] = e.sustain
				if e.sustain == 0 {
					e.state = Silence
				}
			}
		case Release:
			if t < e.t5 {
				out[i] = e.sustain - (t-e.releaseStart)*e.dr
			} else {
				out[i] = 0
				e.state = Silence
			}
		default:
			out[i] = 0
		}
	}
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat32
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
