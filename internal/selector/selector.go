// Package selector maps channel-level MIDI events onto synthesizer parts.
package selector

import (
	"log/slog"
	"math"
	"sync"

	"github.com/cbegin/midisynth-go/internal/event"
	"github.com/cbegin/midisynth-go/internal/handle"
	"github.com/cbegin/midisynth-go/internal/preset"
)

const (
	Channels         = 16
	DrumChannel      = 10 // 1-based
	DrumParts        = 8
	VoicesPerChannel = 8

	MonoPartCount = Channels - 1 + DrumParts
	PolyPartCount = Channels * VoicesPerChannel

	drumIndex = DrumChannel - 1
)

// Controller numbers handled by the selectors.
const (
	ccBankMSB        = 0
	ccModulation     = 1
	ccPortamentoTime = 5
	ccVolume         = 7
	ccPan            = 10
	ccExpression     = 11
	ccBankLSB        = 32
	ccPortamentoOn   = 65
	ccAllSoundOff    = 120
	ccResetAll       = 121
	ccAllNotesOff    = 123
)

const (
	bendRangeSemitones = 2
	maxVibratoDepth    = 8.0 // Hz at full modulation
	vibratoRate        = 5.5 // Hz
)

// HandleSink receives the handles produced by a selector.
type HandleSink interface {
	Push(hs ...handle.Handle)
}

type Selector interface {
	PartCount() int
	// Reset returns every part and channel to its initial state.
	Reset()
	ProcessEvents(events ...event.Event)
}

// layout assigns parts to channels. ch is 0-based.
type layout interface {
	partCount() int
	channelParts(ch int) []int
	notePart(ch, note int) int
}

type Option func(*base)

func WithPresets(s *preset.Set) Option {
	return func(b *base) {
		b.presets = s
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

type channelState struct {
	program    int
	msb, lsb   int
	current    *preset.ProgramPreset
	volume     float64
	expression float64
}

func (c *channelState) reset() {
	*c = channelState{volume: 100.0 / 127, expression: 1}
}

// base holds the behaviour shared by Mono and Poly.
type base struct {
	mu       sync.Mutex
	sink     HandleSink
	presets  *preset.Set
	logger   *slog.Logger
	layout   layout
	channels [Channels]channelState
	out      []handle.Handle
}

func (b *base) init(sink HandleSink, l layout, opts []Option) {
	b.sink = sink
	b.layout = l
	b.logger = slog.Default()
	for _, opt := range opts {
		opt(b)
	}
	for i := range b.channels {
		b.channels[i].reset()
	}
}

func (b *base) PartCount() int { return b.layout.partCount() }

func (b *base) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetAll()
	b.flush()
}

func (b *base) resetAll() {
	for p := 1; p <= b.layout.partCount(); p++ {
		b.emit(p, handle.Reset{})
	}
	for ch := range b.channels {
		b.channels[ch].reset()
		b.setupChannel(ch)
	}
}

func (b *base) ProcessEvents(events ...event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range events {
		b.process(e)
	}
	b.flush()
}

func (b *base) flush() {
	if len(b.out) == 0 {
		return
	}
	b.sink.Push(b.out...)
	clear(b.out)
	b.out = b.out[:0]
}

func (b *base) emit(part int, c handle.Command) {
	b.out = append(b.out, handle.New(part, c))
}

func (b *base) emitAll(parts []int, c handle.Command) {
	for _, p := range parts {
		b.emit(p, c)
	}
}

func (b *base) emitTemplates(parts []int, hs []handle.Handle) {
	for _, p := range parts {
		for _, h := range hs {
			b.out = append(b.out, h.WithPart(p))
		}
	}
}

func (b *base) process(e event.Event) {
	if e.IsChannel() && (e.Channel < 0 || e.Channel >= Channels) {
		return
	}
	switch e.Type {
	case event.NoteOn:
		if e.Data2 == 0 {
			b.noteOff(e.Channel, e.Data1)
			return
		}
		b.noteOn(e.Channel, e.Data1, e.Data2)
	case event.NoteOff:
		b.noteOff(e.Channel, e.Data1)
	case event.ControlChange:
		b.control(e.Channel, e.Data1, e.Data2)
	case event.ProgramChange:
		b.programChange(e.Channel, e.Data1)
	case event.PitchBend:
		bend := float64(e.Data1) / 8192 * bendRangeSemitones
		b.emitAll(b.layout.channelParts(e.Channel), handle.FineTune{Value: math.Pow(2, bend/12)})
	case event.SysEx:
		if isGMSystemOn(e.Data) {
			b.logger.Debug("GM system on, resetting parts")
			b.resetAll()
		}
	}
}

func (b *base) noteOn(ch, note, velocity int) {
	target := b.layout.notePart(ch, note)
	vel := float64(velocity) / 127
	if ch != drumIndex {
		b.emit(target, handle.NoteOn{Note: note, Velocity: vel})
		return
	}
	d, ok := b.presets.Drum(note)
	if !ok {
		b.emit(target, handle.NoteOn{Note: note, Velocity: vel})
		return
	}
	b.emitTemplates([]int{target}, d.Init)
	b.emit(target, handle.NoteOn{Note: note, Velocity: vel})
	b.emit(target, handle.ZeroGate{Note: d.Note})
}

// noteOff releases the note's part. Drum notes with a preset are one-shots
// and ignore note off.
func (b *base) noteOff(ch, note int) {
	if ch == drumIndex {
		if _, ok := b.presets.Drum(note); ok {
			return
		}
	}
	b.emit(b.layout.notePart(ch, note), handle.NoteOff{})
}

func (b *base) control(ch, cc, value int) {
	c := &b.channels[ch]
	parts := b.layout.channelParts(ch)
	v := float64(value) / 127
	switch cc {
	case ccBankMSB:
		c.msb = value
	case ccBankLSB:
		c.lsb = value
	case ccModulation:
		if value == 0 {
			b.emitAll(parts, handle.Vibrate{Op: handle.VibrateOff})
			return
		}
		b.emitAll(parts, handle.Vibrate{Op: handle.VibrateDepth, Value: v * maxVibratoDepth})
		b.emitAll(parts, handle.Vibrate{Op: handle.VibrateFreq, Value: vibratoRate})
		b.emitAll(parts, handle.Vibrate{Op: handle.VibrateOn})
	case ccPortamentoTime:
		b.emitAll(parts, handle.Portamento{Op: handle.PortamentoSpeed, Value: portamentoSpeed(value)})
	case ccPortamentoOn:
		op := handle.PortamentoOff
		if value >= 64 {
			op = handle.PortamentoOn
		}
		b.emitAll(parts, handle.Portamento{Op: op})
	case ccVolume:
		c.volume = v
		b.emitAll(parts, handle.Volume{Value: c.volume * c.expression})
	case ccExpression:
		c.expression = v
		b.emitAll(parts, handle.Volume{Value: c.volume * c.expression})
	case ccPan:
		pan := max(-1, min(float64(value-64)/63, 1))
		b.emitAll(parts, handle.Panpot{Value: pan})
	case ccAllSoundOff:
		b.emitAll(parts, handle.Silence{})
	case ccResetAll:
		b.emitAll(parts, handle.Reset{})
		c.reset()
		b.setupChannel(ch)
	case ccAllNotesOff:
		b.emitAll(parts, handle.NoteOff{})
	}
}

// programChange pushes the outgoing preset's final handles, then the new
// preset's init handles, falling back to an FM waveform.
func (b *base) programChange(ch, program int) {
	c := &b.channels[ch]
	c.program = program
	if ch == drumIndex {
		return
	}
	parts := b.layout.channelParts(ch)
	if c.current != nil {
		b.emitTemplates(parts, c.current.Final)
	}
	p, ok := b.presets.Program(program, c.msb, c.lsb)
	if !ok {
		b.logger.Debug("no preset for program, using FM", "channel", ch+1, "program", program, "msb", c.msb, "lsb", c.lsb)
		c.current = nil
		b.emitAll(parts, handle.Waveform{Type: handle.WaveFM})
		return
	}
	c.current = p
	b.emitTemplates(parts, p.Init)
}

// setupChannel applies the initial program and volume to a freshly reset
// channel.
func (b *base) setupChannel(ch int) {
	c := &b.channels[ch]
	b.programChange(ch, c.program)
	b.emitAll(b.layout.channelParts(ch), handle.Volume{Value: c.volume * c.expression})
}

// portamentoSpeed maps CC5 to a per-sample blend factor: 0 glides
// instantly and 127 over several seconds.
func portamentoSpeed(value int) float64 {
	return math.Pow(10, -4*float64(value)/127)
}

// isGMSystemOn matches F0 7E <dev> 09 01 F7 with or without framing bytes.
func isGMSystemOn(data []byte) bool {
	if len(data) > 0 && data[0] == 0xF0 {
		data = data[1:]
	}
	return len(data) >= 4 && data[0] == 0x7E && data[2] == 0x09 && data[3] == 0x01
}
