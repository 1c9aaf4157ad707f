package waveform

import (
	"math"

	"github.com/cbegin/midisynth-go/internal/handle"
)

const (
	squareLength     = 64
	defaultDuty      = 0.5
	defaultSteps     = 16
	maxTriangleSteps = 128
)

type square struct {
	stepTable
	cache *TableCache
	width int
}

func newSquare(cache *TableCache) *square {
	s := &square{stepTable: stepTable{freqFactor: 1}, cache: cache}
	s.setDuty(defaultDuty)
	return s
}

// setDuty quantizes duty to a number of high entries in the 64-entry table.
func (s *square) setDuty(duty float64) {
	if !finite(duty) {
		return
	}
	width := int(math.Round(duty * squareLength))
	width = max(1, min(width, squareLength-1))
	s.width = width
	s.table = s.cache.Lookup(TableKey{Type: handle.WaveSquare, Param: width}, false, func() []float64 {
		return Normalize(squareRaw(width))
	})
}

func squareRaw(width int) []byte {
	raw := make([]byte, squareLength)
	for i := 0; i < width; i++ {
		raw[i] = 0xFF
	}
	return raw
}

func (s *square) Generate(dst, freq, phase []float64, count int) {
	s.generate(dst, freq, phase, count)
}

func (s *square) Edit(e handle.EditWaveform) {
	if s.edit(e) {
		return
	}
	if e.Param == handle.EditDuty {
		s.setDuty(e.Value)
	}
}

func (s *square) Type() handle.WaveformType { return handle.WaveSquare }

// triangle is a stepped ramp of 2*steps entries.
type triangle struct {
	stepTable
	cache *TableCache
	steps int
}

func newTriangle(cache *TableCache) *triangle {
	t := &triangle{stepTable: stepTable{freqFactor: 1}, cache: cache}
	t.setSteps(defaultSteps)
	return t
}

func (t *triangle) setSteps(steps int) {
	steps = max(2, min(steps, maxTriangleSteps))
	t.steps = steps
	t.table = t.cache.Lookup(TableKey{Type: handle.WaveTriangle, Param: steps}, false, func() []float64 {
		return Normalize(triangleRaw(steps))
	})
}

func triangleRaw(steps int) []byte {
	raw := make([]byte, 2*steps)
	for i := 0; i < steps; i++ {
		raw[i] = byte(i)
		raw[2*steps-1-i] = byte(i)
	}
	return raw
}

func (t *triangle) Generate(dst, freq, phase []float64, count int) {
	t.generate(dst, freq, phase, count)
}

func (t *triangle) Edit(e handle.EditWaveform) {
	if t.edit(e) {
		return
	}
	if e.Param == handle.EditSteps && finite(e.Value) {
		t.setSteps(int(e.Value))
	}
}

func (t *triangle) Type() handle.WaveformType { return handle.WaveTriangle }

// userStep plays a table supplied through Begin, Queue and End edits.
type userStep struct {
	stepTable
	cache   *TableCache
	pending []byte
}

func newUserStep(cache *TableCache) *userStep {
	return &userStep{stepTable: stepTable{freqFactor: 1}, cache: cache}
}

func (u *userStep) Generate(dst, freq, phase []float64, count int) {
	u.generate(dst, freq, phase, count)
}

func (u *userStep) Edit(e handle.EditWaveform) {
	if u.edit(e) {
		return
	}
	switch e.Param {
	case handle.EditBegin:
		u.pending = u.pending[:0]
	case handle.EditQueue:
		if finite(e.Value) {
			u.pending = append(u.pending, byte(max(0, min(e.Value, 255))))
		}
	case handle.EditEnd:
		raw := u.pending
		u.table = u.cache.Lookup(TableKey{Type: handle.WaveStep, Data: string(raw)}, true, func() []float64 {
			return Normalize(raw)
		})
		u.pending = nil
	}
}

func (u *userStep) Type() handle.WaveformType { return handle.WaveStep }
