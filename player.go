// Package midisynth plays Standard MIDI Files and live MIDI input through a
// handle-driven software synthesizer.
package midisynth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"

	intaudio "github.com/cbegin/midisynth-go/internal/audio"
	"github.com/cbegin/midisynth-go/internal/event"
	"github.com/cbegin/midisynth-go/internal/handle"
	"github.com/cbegin/midisynth-go/internal/master"
	"github.com/cbegin/midisynth-go/internal/preset"
	"github.com/cbegin/midisynth-go/internal/selector"
	intseq "github.com/cbegin/midisynth-go/internal/sequencer"
	"github.com/cbegin/midisynth-go/internal/smf"
)

// PlaybackEvent is delivered on the channel returned by Watch.
type PlaybackEvent struct {
	Kind int   // EventLoopCompleted, EventPlaybackEnded or EventFault
	Err  error // set for EventFault
}

const (
	EventLoopCompleted int = iota
	EventPlaybackEnded
	EventFault
)

// Mode selects how channels are mapped onto parts.
type Mode string

const (
	// ModeMono gives each channel one part (eight for drums).
	ModeMono Mode = "mono"
	// ModePoly gives each channel eight parts.
	ModePoly Mode = "poly"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMono:
		return ModeMono, nil
	case ModePoly:
		return ModePoly, nil
	}
	return "", fmt.Errorf("invalid mode %q (expected mono|poly)", s)
}

type Option func(*config)

type config struct {
	mode         Mode
	loopPlayback bool
	presets      *preset.Set
	sampleTap    func([]float32)
	logger       *slog.Logger
	interval     time.Duration
	tempoFactor  float64
	bufferSize   time.Duration
	masterParams master.Params
	maxDuration  time.Duration
}

func defaultConfig() config {
	return config{
		mode:         ModePoly,
		presets:      preset.Default(),
		logger:       slog.Default(),
		interval:     intseq.DefaultInterval,
		masterParams: master.DefaultParams(),
		maxDuration:  defaultMaxDuration,
	}
}

func WithMode(mode Mode) Option {
	return func(cfg *config) {
		cfg.mode = mode
	}
}

func WithLoopPlayback(enabled bool) Option {
	return func(cfg *config) {
		cfg.loopPlayback = enabled
	}
}

// WithPresets replaces the built-in presets. A nil set disables presets so
// every program falls back to FM.
func WithPresets(s *preset.Set) Option {
	return func(cfg *config) {
		cfg.presets = s
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) Option {
	return func(cfg *config) {
		cfg.sampleTap = tap
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithInterval sets the sequencer scheduling period.
func WithInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.interval = d
	}
}

// WithTempoFactor scales every tempo in the sequence.
func WithTempoFactor(f float64) Option {
	return func(cfg *config) {
		cfg.tempoFactor = f
	}
}

// WithBufferSize sets the device buffer length. Smaller buffers lower
// latency for live input.
func WithBufferSize(d time.Duration) Option {
	return func(cfg *config) {
		cfg.bufferSize = d
	}
}

func WithMasterParams(p master.Params) Option {
	return func(cfg *config) {
		cfg.masterParams = p
	}
}

// WithMasterVolume sets the gain applied ahead of the compressor. Negative
// values clamp to 0.
func WithMasterVolume(v float64) Option {
	return func(cfg *config) {
		cfg.masterParams.Volume = max(v, 0)
	}
}

// WithMaxDuration caps the length of Render output.
func WithMaxDuration(d time.Duration) Option {
	return func(cfg *config) {
		cfg.maxDuration = d
	}
}

// engine wires a selector to the master it feeds.
type engine struct {
	master *master.Master
	sel    selector.Selector
}

func newEngine(sampleRate int, cfg config) (engine, error) {
	selOpts := []selector.Option{selector.WithPresets(cfg.presets), selector.WithLogger(cfg.logger)}
	var partCount int
	switch cfg.mode {
	case ModeMono:
		partCount = selector.MonoPartCount
	case ModePoly:
		partCount = selector.PolyPartCount
	default:
		return engine{}, fmt.Errorf("unknown mode %q", cfg.mode)
	}
	m, err := master.New(sampleRate, partCount, master.WithParams(cfg.masterParams))
	if err != nil {
		return engine{}, err
	}
	var sel selector.Selector
	if cfg.mode == ModeMono {
		sel = selector.NewMono(m, selOpts...)
	} else {
		sel = selector.NewPoly(m, selOpts...)
	}
	return engine{master: m, sel: sel}, nil
}

// output is the device source: it renders the master and watches for the
// end of playback.
type output struct {
	master *master.Master
	tap    func([]float32)
	// ending is set when the sequence has ended; onSilent fires once every
	// part has faded out.
	ending   atomic.Bool
	onSilent func()
}

func (o *output) Read(buf []float32, offset, count int) int {
	n := o.master.Read(buf, offset, count)
	if o.tap != nil && n > 0 {
		o.tap(buf[offset : offset+n])
	}
	if o.ending.Load() && o.master.Pending() == 0 && o.master.Sounding() == 0 {
		if o.ending.CompareAndSwap(true, false) && o.onSilent != nil {
			o.onSilent()
		}
	}
	return n
}

// Player renders to the default audio device. One Player owns one set of
// parts; Play replaces the current sequence but keeps the parts.
type Player struct {
	mu         sync.Mutex
	sampleRate int
	cfg        config
	engine
	out   *output
	seq   *intseq.Sequencer
	audio *intaudio.Player

	// doneMu is separate from mu so sequencer and audio callbacks can
	// signal while mu is held by a caller waiting on the sequencer.
	doneMu sync.Mutex
	done   chan struct{}

	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex
}

func NewPlayer(sampleRate int, opts ...Option) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	eng, err := newEngine(sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	eng.sel.Reset()
	p := &Player{
		sampleRate: sampleRate,
		cfg:        cfg,
		engine:     eng,
	}
	p.out = &output{master: eng.master, tap: cfg.sampleTap, onSilent: p.playbackEnded}
	return p, nil
}

// Open starts the device stream. Play calls it; live use through Push or
// HandleMIDI needs it called first.
func (p *Player) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked()
}

func (p *Player) openLocked() error {
	if p.audio != nil {
		return nil
	}
	a, err := intaudio.NewPlayer(p.sampleRate, p.out, p.cfg.bufferSize)
	if err != nil {
		return err
	}
	p.audio = a
	p.audio.Play()
	return nil
}

// PlayFile decodes and plays the SMF at path.
func (p *Player) PlayFile(path string) error {
	seq, err := smf.ReadFile(path)
	if err != nil {
		return err
	}
	return p.Play(seq)
}

// Play stops any current sequence, resets every part and plays seq.
func (p *Player) Play(seq *event.Sequence) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.seq != nil {
		p.seq.Stop()
		p.seq = nil
	}
	// Signal any existing Wait() that the previous playback was replaced
	p.signalDone()
	p.out.ending.Store(false)

	var s *intseq.Sequencer
	s, err := intseq.NewWithOptions(seq, p.sel, intseq.Options{
		Interval:    p.cfg.interval,
		TempoFactor: p.cfg.tempoFactor,
		Loop:        p.cfg.loopPlayback,
		Logger:      p.cfg.logger,
		OnEvent: func(kind intseq.EventKind, _ func()) {
			switch kind {
			case intseq.EventLoopCompleted:
				p.sendEvent(PlaybackEvent{Kind: EventLoopCompleted})
			case intseq.EventPlaybackEnded:
				p.out.ending.Store(true)
			case intseq.EventFault:
				p.sendEvent(PlaybackEvent{Kind: EventFault, Err: s.Err()})
				p.signalDone()
			}
		},
	})
	if err != nil {
		return err
	}
	p.sel.Reset()
	if err := p.openLocked(); err != nil {
		return err
	}
	p.seq = s
	p.doneMu.Lock()
	p.done = make(chan struct{})
	p.doneMu.Unlock()
	p.cfg.logger.Info("playback started", "tracks", len(seq.Tracks), "resolution", seq.Resolution, "max_tick", s.MaxTick())
	s.Start()
	return nil
}

func (p *Player) playbackEnded() {
	p.cfg.logger.Info("playback ended")
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	p.signalDone()
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full or closed; drop event
		}
	}
}

func (p *Player) signalDone() {
	p.doneMu.Lock()
	done := p.done
	p.done = nil
	p.doneMu.Unlock()
	if done != nil {
		close(done)
	}
}

// Push queues raw handles for the render thread.
func (p *Player) Push(hs ...handle.Handle) {
	p.master.Push(hs...)
}

// HandleMIDI routes a live MIDI message through the selector. Messages
// without a channel event equivalent are ignored.
func (p *Player) HandleMIDI(msg midi.Message) {
	if ev, ok := smf.FromMessage(msg); ok {
		p.sel.ProcessEvents(ev)
	}
}

// Pause halts the sequencer and the device stream, keeping the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq != nil {
		p.seq.Stop()
	}
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
	}
	if p.seq != nil {
		p.seq.Start()
	}
}

// Stop ends playback, silences every part and closes the device stream.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.seq != nil {
		p.seq.Stop()
		p.seq = nil
	}
	p.out.ending.Store(false)
	for i := 1; i <= p.master.PartCount(); i++ {
		p.master.Push(handle.New(i, handle.Silence{}))
	}
	var err error
	if p.audio != nil {
		err = p.audio.Stop()
		p.audio = nil
	}
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	p.signalDone()
	return err
}

// Wait blocks until the current playback ends, including release tails.
// When loop playback is enabled, Wait blocks until Stop.
// Wait returns immediately if no playback is active or if it was stopped.
func (p *Player) Wait() {
	p.doneMu.Lock()
	done := p.done
	p.doneMu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events. Events are sent when:
//   - EventLoopCompleted: the sequence looped (when looping)
//   - EventPlaybackEnded: playback finished and parts faded out, or Stop was called
//   - EventFault: the sequencer loop failed; Err holds the cause
//
// The channel is buffered (cap 8); receive in a goroutine to avoid blocking the sequencer.
// Only the most recent Watch() channel receives events; call Watch before Play.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets runtime volume scalar. Negative values clamp to 0.
func (p *Player) SetMasterVolume(volume float64) error {
	return p.master.SetVolume(max(volume, 0))
}

func (p *Player) MasterVolume() float64 {
	return p.master.Volume()
}

func (p *Player) SetTempoFactor(f float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq == nil {
		return nil
	}
	return p.seq.SetTempoFactor(f)
}

// Seek moves playback to tick.
func (p *Player) Seek(tick int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq != nil {
		p.seq.SetTick(tick)
	}
}

// Tick returns the sequencer position, or 0 when nothing is playing.
func (p *Player) Tick() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq == nil {
		return 0
	}
	return p.seq.Tick()
}

func (p *Player) Mode() Mode { return p.cfg.mode }

func (p *Player) PartCount() int { return p.master.PartCount() }

// PlaybackPosition returns the current output position of the audio driver,
// i.e. what the listener actually hears right now. Returns 0 if not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	pos := a.Position()
	return int64(pos.Seconds() * float64(p.sampleRate))
}
