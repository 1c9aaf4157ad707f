// Package part implements a single monophonic synthesizer voice.
package part

import (
	"math"

	"github.com/cbegin/midisynth-go/internal/envelope"
	"github.com/cbegin/midisynth-go/internal/handle"
	"github.com/cbegin/midisynth-go/internal/lfo"
	"github.com/cbegin/midisynth-go/internal/waveform"
)

const (
	defaultVolume          = 0.5
	defaultPortamentoSpeed = 0.01
	defaultNote            = 69
)

var noteFreq [128]float64

func init() {
	for n := range noteFreq {
		noteFreq[n] = 440 * math.Pow(2, float64(n-69)/12)
	}
}

// NoteFrequency returns the equal-tempered frequency of a MIDI note,
// clamped to 0..127.
func NoteFrequency(note int) float64 {
	return noteFreq[clampInt(note, 0, 127)]
}

// State is a comparable snapshot of a part's control values.
type State struct {
	Note       int
	Frequency  float64
	Velocity   float64
	Volume     float64
	Panpot     float64
	FineTune   float64
	KeyShift   int
	Portamento bool
	Envelope   envelope.State
	Waveform   handle.WaveformType
}

// Part renders one voice. It is mutated only from the render goroutine.
type Part struct {
	sampleRate float64
	cache      *waveform.TableCache

	env     *envelope.Envelope
	wave    waveform.Generator
	vibrato lfo.LFO

	note      int
	noteFreq  float64
	fineTune  float64
	keyShift  int
	velocity  float64
	volume    float64
	pan       float64
	panL      float64
	panR      float64
	porta     bool
	portaRate float64

	freq       float64
	phase      float64
	vibTime    float64
	sampleTime int64

	freqBuf  []float64
	phaseBuf []float64
	envBuf   []float64
	waveBuf  []float64
	out      []float32
}

// New returns a part in its reset state. Waveform tables are shared
// through cache, which may be nil.
func New(sampleRate int, cache *waveform.TableCache) *Part {
	p := &Part{
		sampleRate: float64(sampleRate),
		cache:      cache,
		env:        envelope.New(sampleRate),
	}
	p.Reset()
	return p
}

// Reset restores every control to its default without reallocating buffers.
func (p *Part) Reset() {
	p.env.Reset()
	p.wave = waveform.New(handle.WaveSquare, p.cache)
	p.vibrato.Reset()
	p.note = defaultNote
	p.noteFreq = NoteFrequency(defaultNote)
	p.fineTune = 1
	p.keyShift = 0
	p.velocity = 1
	p.volume = defaultVolume
	p.setPan(0)
	p.porta = false
	p.portaRate = defaultPortamentoSpeed
	p.freq = 0
	p.phase = 0
	p.vibTime = 0
	p.sampleTime = 0
}

// ApplyHandle applies one command. The handle's target part is ignored.
func (p *Part) ApplyHandle(h handle.Handle) {
	switch c := h.Command.(type) {
	case handle.Reset:
		p.Reset()
	case handle.Silence:
		p.env.Silence()
	case handle.Release, handle.NoteOff:
		p.env.Release(p.sampleTime)
	case handle.NoteOn:
		p.noteOn(c.Note, c.Velocity)
	case handle.ZeroGate:
		p.setNote(c.Note)
	case handle.Volume:
		if finite(c.Value) {
			p.volume = math.Max(c.Value, 0)
		}
	case handle.Panpot:
		if finite(c.Value) {
			p.setPan(c.Value)
		}
	case handle.FineTune:
		if finite(c.Value) && c.Value > 0 {
			p.fineTune = c.Value
		}
	case handle.KeyShift:
		p.keyShift = c.Semitones
	case handle.Vibrate:
		p.vibrato.Set(c.Op, c.Value)
	case handle.Portamento:
		p.setPortamento(c.Op, c.Value)
	case handle.Envelope:
		p.env.Set(c.Op, c.Value)
	case handle.Waveform:
		p.wave = waveform.New(c.Type, p.cache)
	case handle.EditWaveform:
		p.wave.Edit(c)
	}
}

func (p *Part) noteOn(note int, velocity float64) {
	p.setNote(note)
	if !finite(velocity) || velocity <= 0 {
		velocity = 1
	}
	p.velocity = math.Min(velocity, 1)
	if !p.porta || p.freq <= 0 {
		p.freq = p.noteFreq * p.fineTune
	}
	p.phase = 0
	p.vibTime = 0
	p.sampleTime = 0
	p.env.Attack()
}

func (p *Part) setNote(note int) {
	p.note = note
	p.noteFreq = NoteFrequency(note + p.keyShift)
}

func (p *Part) setPan(v float64) {
	v = clamp(v, -1, 1)
	p.pan = v
	p.panR = math.Sin(clamp((v+1)*math.Pi/2, 0, math.Pi/2))
	p.panL = math.Sin(clamp((1-v)*math.Pi/2, 0, math.Pi/2))
}

func (p *Part) setPortamento(op handle.PortamentoOp, value float64) {
	switch op {
	case handle.PortamentoOff:
		p.porta = false
	case handle.PortamentoOn:
		p.porta = true
	case handle.PortamentoSpeed:
		if finite(value) && value > 0 {
			p.portaRate = math.Min(value, 1)
		}
	}
}

// IsSounding reports whether the envelope is not silent.
func (p *Part) IsSounding() bool { return p.env.State() != envelope.Silence }

func (p *Part) State() State {
	return State{
		Note:       p.note,
		Frequency:  p.noteFreq,
		Velocity:   p.velocity,
		Volume:     p.volume,
		Panpot:     p.pan,
		FineTune:   p.fineTune,
		KeyShift:   p.keyShift,
		Portamento: p.porta,
		Envelope:   p.env.State(),
		Waveform:   p.wave.Type(),
	}
}

// Gains returns the left and right pan gains.
func (p *Part) Gains() (l, r float64) { return p.panL, p.panR }

// Output returns the interleaved stereo samples from the last Generate call.
func (p *Part) Output() []float32 { return p.out }

// Generate renders frames stereo frames into Output. It does nothing while
// the envelope is silent.
func (p *Part) Generate(frames int) {
	if frames <= 0 || !p.IsSounding() {
		p.out = p.out[:0]
		return
	}
	p.grow(frames)

	dt := 1 / p.sampleRate
	for i := 0; i < frames; i++ {
		target := p.noteFreq*p.fineTune + p.vibrato.Offset(p.vibTime)
		next := target
		if p.porta && p.freq > 0 {
			next = p.freq + (target-p.freq)*p.portaRate
		}
		if p.freq > 0 && next > 0 && next != p.freq {
			p.phase *= p.freq / next
		}
		p.freq = next
		p.freqBuf[i] = p.freq
		p.phaseBuf[i] = p.phase
		p.phase += dt
		p.vibTime += dt
	}

	p.env.Generate(p.sampleTime, p.envBuf, frames)
	p.sampleTime += int64(frames)
	p.wave.Generate(p.waveBuf, p.freqBuf, p.phaseBuf, frames)

	gain := p.volume * p.velocity
	l, r := p.panL*gain, p.panR*gain
	p.out = p.out[:2*frames]
	for i := 0; i < frames; i++ {
		s := p.waveBuf[i] * p.envBuf[i]
		p.out[2*i] = float32(s * l)
		p.out[2*i+1] = float32(s * r)
	}
}

func (p *Part) grow(frames int) {
	if cap(p.freqBuf) < frames {
		p.freqBuf = make([]float64, frames)
		p.phaseBuf = make([]float64, frames)
		p.envBuf = make([]float64, frames)
		p.waveBuf = make([]float64, frames)
	}
	p.freqBuf = p.freqBuf[:frames]
	p.phaseBuf = p.phaseBuf[:frames]
	p.envBuf = p.envBuf[:frames]
	p.waveBuf = p.waveBuf[:frames]
	if cap(p.out) < 2*frames {
		p.out = make([]float32, 2*frames)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
