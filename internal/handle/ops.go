package handle

import (
	"errors"
	"strconv"
)

var (
	ErrUnknownKind = errors.New("handle: unknown command kind")
	ErrInvalidType = errors.New("handle: invalid command type")
)

// Packed EditWaveform layout: operator index in the high nibble, parameter
// selector in the low nibble.
const (
	operatorShift = 4
	paramMask     = 0x0F

	// Operators is the number of FM operators addressable by EditWaveform.
	Operators = 4
)

type VibrateOp int

const (
	VibrateOff VibrateOp = iota
	VibrateOn
	VibrateDelay // seconds
	VibrateDepth // Hz
	VibrateFreq  // Hz
)

var vibrateNames = []string{"off", "on", "delay", "depth", "freq"}

func (o VibrateOp) valid() bool    { return o >= 0 && int(o) < len(vibrateNames) }
func (o VibrateOp) String() string { return enumName(vibrateNames, int(o)) }

type PortamentoOp int

const (
	PortamentoOff PortamentoOp = iota
	PortamentoOn
	PortamentoSpeed // blend factor per sample, (0, 1]
)

var portamentoNames = []string{"off", "on", "speed"}

func (o PortamentoOp) valid() bool    { return o >= 0 && int(o) < len(portamentoNames) }
func (o PortamentoOp) String() string { return enumName(portamentoNames, int(o)) }

type EnvelopeOp int

const (
	EnvelopeAttack EnvelopeOp = iota // seconds
	EnvelopePeak                     // seconds
	EnvelopeDecay                    // seconds
	EnvelopeSustain                  // level 0..1
	EnvelopeRelease                  // seconds
)

var envelopeNames = []string{"attack", "peak", "decay", "sustain", "release"}

func (o EnvelopeOp) valid() bool    { return o >= 0 && int(o) < len(envelopeNames) }
func (o EnvelopeOp) String() string { return enumName(envelopeNames, int(o)) }

type WaveformType int

const (
	WaveSquare WaveformType = iota
	WaveTriangle
	WaveShortNoise
	WaveLongNoise
	WaveRandomNoise
	WaveStep
	WaveFM
)

var waveformNames = []string{"square", "triangle", "shortnoise", "longnoise", "randomnoise", "step", "fm"}

func (t WaveformType) valid() bool    { return t >= 0 && int(t) < len(waveformNames) }
func (t WaveformType) String() string { return enumName(waveformNames, int(t)) }

// EditParam selects the generator parameter changed by EditWaveform.
// The step-table parameters apply to every table generator; Duty, Steps,
// Seed and Length are generator specific; Out through Send3 address one
// FM operator.
type EditParam int

const (
	EditFreqFactor EditParam = iota
	EditBegin
	EditQueue
	EditEnd
	EditDuty
	EditSteps
	EditSeed
	EditLength
	EditOut
	EditAmp
	EditRatio
	EditSend0
	EditSend1
	EditSend2
	EditSend3
)

var editNames = []string{
	"freqfactor", "begin", "queue", "end", "duty", "steps", "seed", "length",
	"out", "amp", "ratio", "send0", "send1", "send2", "send3",
}

func (p EditParam) valid() bool    { return p >= 0 && int(p) < len(editNames) }
func (p EditParam) String() string { return enumName(editNames, int(p)) }

// SendTarget returns the operator index addressed by a SendN parameter.
func (p EditParam) SendTarget() (int, bool) {
	if p < EditSend0 || p > EditSend3 {
		return 0, false
	}
	return int(p - EditSend0), true
}

func enumName(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return strconv.Itoa(v)
	}
	return names[v]
}
