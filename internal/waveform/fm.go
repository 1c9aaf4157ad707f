package waveform

import (
	"math"

	"github.com/cbegin/midisynth-go/internal/handle"
)

// Operator holds one FM operator's parameters and its previous output.
// Send[j] is the weight of operator j's previous output in this operator's
// phase.
type Operator struct {
	Out   float64
	Amp   float64
	Ratio float64
	Send  [handle.Operators]float64

	prev float64
}

// FM is a 4-operator feedback FM generator. All operators are evaluated
// from the previous sample's outputs and then updated together.
type FM struct {
	ops        [handle.Operators]Operator
	freqFactor float64
}

// NewFM returns a two-operator patch: operator 1 at twice the frequency
// modulates operator 0, which is the only audible carrier.
func NewFM() *FM {
	f := &FM{freqFactor: 1}
	f.ops[0] = Operator{Out: 1, Amp: 1, Ratio: 1}
	f.ops[0].Send[1] = 1
	f.ops[1] = Operator{Amp: 1, Ratio: 2}
	f.ops[2] = Operator{Ratio: 1}
	f.ops[3] = Operator{Ratio: 1}
	return f
}

func (f *FM) Operator(i int) Operator { return f.ops[i] }

func (f *FM) Generate(dst, freq, phase []float64, count int) {
	var next [handle.Operators]float64
	for i := 0; i < count; i++ {
		omega := twoPi * phase[i] * freq[i] * f.freqFactor
		if !finite(omega) {
			dst[i] = 0
			continue
		}
		var sample float64
		for k := range f.ops {
			op := &f.ops[k]
			mod := 0.0
			for j := range f.ops {
				mod += op.Send[j] * f.ops[j].prev
			}
			next[k] = math.Sin(omega*op.Ratio+mod) * op.Amp
			sample += op.Out * next[k]
		}
		for k := range f.ops {
			f.ops[k].prev = next[k]
		}
		dst[i] = sample
	}
}

func (f *FM) Edit(e handle.EditWaveform) {
	if !finite(e.Value) || e.Operator < 0 || e.Operator >= handle.Operators {
		return
	}
	op := &f.ops[e.Operator]
	switch e.Param {
	case handle.EditFreqFactor:
		if e.Value > 0 {
			f.freqFactor = e.Value
		}
	case handle.EditOut:
		op.Out = e.Value
	case handle.EditAmp:
		op.Amp = e.Value
	case handle.EditRatio:
		op.Ratio = e.Value
	default:
		if j, ok := e.Param.SendTarget(); ok {
			op.Send[j] = e.Value
		}
	}
}

func (f *FM) Type() handle.WaveformType { return handle.WaveFM }
