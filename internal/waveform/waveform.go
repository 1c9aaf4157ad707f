// Package waveform implements the per-part sample generators: step-table
// oscillators, noise tables and a 4-operator FM generator.
package waveform

import (
	"math"

	"github.com/cbegin/midisynth-go/internal/handle"
)

const twoPi = math.Pi * 2

// Generator produces raw samples from per-sample frequency (Hz) and phase
// (seconds) arrays.
type Generator interface {
	Generate(dst, freq, phase []float64, count int)
	Edit(e handle.EditWaveform)
	Type() handle.WaveformType
}

// New returns a fresh generator of type t. Tables are looked up in cache,
// which may be nil.
func New(t handle.WaveformType, cache *TableCache) Generator {
	switch t {
	case handle.WaveTriangle:
		return newTriangle(cache)
	case handle.WaveShortNoise:
		return newLFSRNoise(handle.WaveShortNoise, cache)
	case handle.WaveLongNoise:
		return newLFSRNoise(handle.WaveLongNoise, cache)
	case handle.WaveRandomNoise:
		return newRandomNoise(cache)
	case handle.WaveStep:
		return newUserStep(cache)
	case handle.WaveFM:
		return NewFM()
	default:
		return newSquare(cache)
	}
}

// Normalize maps raw samples linearly so the minimum becomes -1 and the
// maximum +1. A constant input yields an all-zero table.
func Normalize(raw []byte) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo == hi {
		return out
	}
	span := float64(hi - lo)
	for i, v := range raw {
		out[i] = 2*float64(v-lo)/span - 1
	}
	return out
}

// stepTable is the lookup shared by every table generator.
type stepTable struct {
	table      []float64
	freqFactor float64
}

func (s *stepTable) generate(dst, freq, phase []float64, count int) {
	n := len(s.table)
	if n == 0 {
		clear(dst[:count])
		return
	}
	size := float64(n)
	for i := 0; i < count; i++ {
		p := phase[i] * freq[i] * s.freqFactor * size
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			dst[i] = 0
			continue
		}
		dst[i] = s.table[int(math.Mod(math.Floor(p), size))]
	}
}

// edit handles parameters common to all table generators. It reports
// whether the parameter was consumed.
func (s *stepTable) edit(e handle.EditWaveform) bool {
	if e.Param != handle.EditFreqFactor {
		return false
	}
	if e.Value > 0 && !math.IsInf(e.Value, 0) {
		s.freqFactor = e.Value
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
