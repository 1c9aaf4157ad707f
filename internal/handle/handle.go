// Package handle defines the command values applied to synthesizer parts.
//
// A Handle addresses one part (1-based) and carries one typed Command. Part 0
// is the unbound template target used by presets; WithPart rebinds it.
package handle

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	KindReset Kind = iota
	KindSilence
	KindRelease
	KindNoteOn
	KindNoteOff
	KindVolume
	KindPanpot
	KindVibrate
	KindWaveform
	KindEditWaveform
	KindEnvelope
	KindFineTune
	KindKeyShift
	KindPortamento
	KindZeroGate
)

var kindNames = [...]string{
	KindReset:        "reset",
	KindSilence:      "silence",
	KindRelease:      "release",
	KindNoteOn:       "noteon",
	KindNoteOff:      "noteoff",
	KindVolume:       "volume",
	KindPanpot:       "panpot",
	KindVibrate:      "vibrate",
	KindWaveform:     "waveform",
	KindEditWaveform: "editwaveform",
	KindEnvelope:     "envelope",
	KindFineTune:     "finetune",
	KindKeyShift:     "keyshift",
	KindPortamento:   "portamento",
	KindZeroGate:     "zerogate",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// ParseKind resolves a command name case-insensitively.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// takesType reports whether the third token of a 3-token line is a TYPE
// (integer or sub-operation) rather than a VALUE.
func (k Kind) takesType() bool {
	switch k {
	case KindNoteOn, KindZeroGate, KindKeyShift, KindWaveform, KindVibrate,
		KindPortamento, KindEnvelope, KindEditWaveform:
		return true
	}
	return false
}

// Command is the typed payload of a Handle.
type Command interface {
	Kind() Kind
	pack() (int, float64)
}

type Reset struct{}
type Silence struct{}
type Release struct{}
type NoteOff struct{}

type NoteOn struct {
	Note     int
	Velocity float64 // 0..1, <= 0 means full velocity
}

// ZeroGate retunes the part to Note without retriggering the envelope.
type ZeroGate struct {
	Note int
}

type Volume struct {
	Value float64
}

// Panpot ranges from -1 (left) to +1 (right).
type Panpot struct {
	Value float64
}

// FineTune is a frequency multiplier; 1 is untuned.
type FineTune struct {
	Value float64
}

type KeyShift struct {
	Semitones int
}

type Vibrate struct {
	Op    VibrateOp
	Value float64
}

type Portamento struct {
	Op    PortamentoOp
	Value float64
}

type Envelope struct {
	Op    EnvelopeOp
	Value float64
}

type Waveform struct {
	Type WaveformType
}

// EditWaveform changes a generator parameter. Operator is only meaningful
// for FM parameters.
type EditWaveform struct {
	Operator int
	Param    EditParam
	Value    float64
}

func (Reset) Kind() Kind        { return KindReset }
func (Silence) Kind() Kind      { return KindSilence }
func (Release) Kind() Kind      { return KindRelease }
func (NoteOff) Kind() Kind      { return KindNoteOff }
func (NoteOn) Kind() Kind       { return KindNoteOn }
func (ZeroGate) Kind() Kind     { return KindZeroGate }
func (Volume) Kind() Kind       { return KindVolume }
func (Panpot) Kind() Kind       { return KindPanpot }
func (FineTune) Kind() Kind     { return KindFineTune }
func (KeyShift) Kind() Kind     { return KindKeyShift }
func (Vibrate) Kind() Kind      { return KindVibrate }
func (Portamento) Kind() Kind   { return KindPortamento }
func (Envelope) Kind() Kind     { return KindEnvelope }
func (Waveform) Kind() Kind     { return KindWaveform }
func (EditWaveform) Kind() Kind { return KindEditWaveform }

func (Reset) pack() (int, float64)          { return 0, 0 }
func (Silence) pack() (int, float64)        { return 0, 0 }
func (Release) pack() (int, float64)        { return 0, 0 }
func (NoteOff) pack() (int, float64)        { return 0, 0 }
func (c NoteOn) pack() (int, float64)       { return c.Note, c.Velocity }
func (c ZeroGate) pack() (int, float64)     { return c.Note, 0 }
func (c Volume) pack() (int, float64)       { return 0, c.Value }
func (c Panpot) pack() (int, float64)       { return 0, c.Value }
func (c FineTune) pack() (int, float64)     { return 0, c.Value }
func (c KeyShift) pack() (int, float64)     { return c.Semitones, 0 }
func (c Vibrate) pack() (int, float64)      { return int(c.Op), c.Value }
func (c Portamento) pack() (int, float64)   { return int(c.Op), c.Value }
func (c Envelope) pack() (int, float64)     { return int(c.Op), c.Value }
func (c Waveform) pack() (int, float64)     { return int(c.Type), 0 }
func (c EditWaveform) pack() (int, float64) { return c.Operator<<operatorShift | int(c.Param), c.Value }

// Handle is an immutable command addressed to one part.
type Handle struct {
	Part    int
	Command Command
}

func New(part int, cmd Command) Handle {
	return Handle{Part: part, Command: cmd}
}

func (h Handle) Kind() Kind {
	if h.Command == nil {
		return KindReset
	}
	return h.Command.Kind()
}

// WithPart returns a copy of h addressed to part.
func (h Handle) WithPart(part int) Handle {
	h.Part = part
	return h
}

// Pack returns the packed (kind, data1, data2) form of h.
func (h Handle) Pack() (Kind, int, float64) {
	if h.Command == nil {
		return KindReset, 0, 0
	}
	d1, d2 := h.Command.pack()
	return h.Command.Kind(), d1, d2
}

// String renders h in the mini-language accepted by Parse.
func (h Handle) String() string {
	kind, d1, d2 := h.Pack()
	var typ string
	switch c := h.Command.(type) {
	case Vibrate:
		typ = c.Op.String()
	case Portamento:
		typ = c.Op.String()
	case Envelope:
		typ = c.Op.String()
	case Waveform:
		typ = c.Type.String()
	case EditWaveform:
		typ = c.Param.String()
		if c.Operator != 0 {
			typ = "op" + strconv.Itoa(c.Operator) + "," + typ
		}
	case NoteOn, ZeroGate, KeyShift:
		typ = strconv.Itoa(d1)
	}
	value := strconv.FormatFloat(d2, 'g', -1, 64)
	switch {
	case typ == "" && !kind.takesType() && d2 == 0:
		return fmt.Sprintf("%d %s", h.Part, kind)
	case typ == "" && !kind.takesType():
		return fmt.Sprintf("%d %s %s", h.Part, kind, value)
	default:
		return fmt.Sprintf("%d %s %s %s", h.Part, kind, typ, value)
	}
}

// Decode builds a typed Handle from its packed form.
func Decode(part int, kind Kind, data1 int, data2 float64) (Handle, error) {
	var cmd Command
	switch kind {
	case KindReset:
		cmd = Reset{}
	case KindSilence:
		cmd = Silence{}
	case KindRelease:
		cmd = Release{}
	case KindNoteOff:
		cmd = NoteOff{}
	case KindNoteOn:
		cmd = NoteOn{Note: data1, Velocity: data2}
	case KindZeroGate:
		cmd = ZeroGate{Note: data1}
	case KindVolume:
		cmd = Volume{Value: data2}
	case KindPanpot:
		cmd = Panpot{Value: data2}
	case KindFineTune:
		cmd = FineTune{Value: data2}
	case KindKeyShift:
		cmd = KeyShift{Semitones: data1}
	case KindVibrate:
		if !VibrateOp(data1).valid() {
			return Handle{}, fmt.Errorf("%w: vibrate operation %d", ErrInvalidType, data1)
		}
		cmd = Vibrate{Op: VibrateOp(data1), Value: data2}
	case KindPortamento:
		if !PortamentoOp(data1).valid() {
			return Handle{}, fmt.Errorf("%w: portamento operation %d", ErrInvalidType, data1)
		}
		cmd = Portamento{Op: PortamentoOp(data1), Value: data2}
	case KindEnvelope:
		if !EnvelopeOp(data1).valid() {
			return Handle{}, fmt.Errorf("%w: envelope operation %d", ErrInvalidType, data1)
		}
		cmd = Envelope{Op: EnvelopeOp(data1), Value: data2}
	case KindWaveform:
		if !WaveformType(data1).valid() {
			return Handle{}, fmt.Errorf("%w: waveform type %d", ErrInvalidType, data1)
		}
		cmd = Waveform{Type: WaveformType(data1)}
	case KindEditWaveform:
		op := (data1 >> operatorShift) & 0x0F
		param := EditParam(data1 & paramMask)
		if !param.valid() || op >= Operators {
			return Handle{}, fmt.Errorf("%w: edit parameter 0x%02x", ErrInvalidType, data1)
		}
		cmd = EditWaveform{Operator: op, Param: param, Value: data2}
	default:
		return Handle{}, fmt.Errorf("%w: kind %d", ErrUnknownKind, int(kind))
	}
	return Handle{Part: part, Command: cmd}, nil
}
