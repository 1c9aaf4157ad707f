// Package sequencer walks a tick-ordered event list in real time and feeds
// the events to a Selector.
package sequencer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/cbegin/midisynth-go/internal/event"
	"github.com/cbegin/midisynth-go/internal/selector"
)

const DefaultInterval = 5 * time.Millisecond

var (
	ErrInvalidTempoFactor = errors.New("sequencer: tempo factor must be positive")
	ErrInvalidInterval    = errors.New("sequencer: interval must be positive")
	ErrInvalidResolution  = errors.New("sequencer: resolution must be positive")
)

// EventKind identifies sequencer lifecycle events.
type EventKind int

const (
	EventLoopCompleted EventKind = iota
	EventPlaybackEnded
	// EventFault is raised when a panic in the selector stops the loop.
	// Err returns the recovered error.
	EventFault
)

func (k EventKind) String() string {
	switch k {
	case EventLoopCompleted:
		return "loop-completed"
	case EventPlaybackEnded:
		return "playback-ended"
	case EventFault:
		return "fault"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

type Options struct {
	Interval    time.Duration // 0 means DefaultInterval
	TempoFactor float64       // 0 means 1
	Loop        bool
	LoopBegin   int64
	// OnEvent runs on the goroutine that advanced the sequencer. It must not
	// call Stop; calling stop instead requests the loop to exit and returns
	// at once.
	OnEvent func(kind EventKind, stop func())
	Logger  *slog.Logger
}

type Sequencer struct {
	sel        selector.Selector
	events     []event.Event
	resolution int
	maxTick    int64
	onEvent    func(EventKind, func())
	logger     *slog.Logger

	// mu guards the playback position. It is never held while calling out.
	mu          sync.Mutex
	cursor      int
	tick        int64
	frac        float64
	tempo       float64
	tempoFactor float64
	loop        bool
	loopBegin   int64
	ended       bool
	err         error

	interval atomic.Int64
	seek     chan int64

	ctlMu   sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool
}

func New(seq *event.Sequence, sel selector.Selector) (*Sequencer, error) {
	return NewWithOptions(seq, sel, Options{})
}

func NewWithOptions(seq *event.Sequence, sel selector.Selector, opts Options) (*Sequencer, error) {
	if seq.Resolution <= 0 {
		return nil, ErrInvalidResolution
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Interval < 0 {
		return nil, ErrInvalidInterval
	}
	if opts.TempoFactor == 0 {
		opts.TempoFactor = 1
	}
	if !validFactor(opts.TempoFactor) {
		return nil, ErrInvalidTempoFactor
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Sequencer{
		sel:         sel,
		events:      seq.Merge(),
		resolution:  seq.Resolution,
		maxTick:     seq.MaxTick(),
		onEvent:     opts.OnEvent,
		logger:      opts.Logger,
		tempoFactor: opts.TempoFactor,
		loop:        opts.Loop,
		loopBegin:   max(0, opts.LoopBegin),
		seek:        make(chan int64, 1),
	}
	s.interval.Store(int64(opts.Interval))
	s.position(0)
	return s, nil
}

func validFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}

// Start launches the scheduling loop. It does nothing if the loop is running.
func (s *Sequencer) Start() {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if s.running.Load() {
		return
	}
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.run(s.stop, s.done)
}

// Stop ends the scheduling loop and waits for it to exit. It must not be
// called from OnEvent, which gets a stop function of its own.
func (s *Sequencer) Stop() {
	s.ctlMu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	done := s.done
	s.ctlMu.Unlock()
	if done != nil {
		<-done
	}
}

// requestStop closes the stop channel of the run it was created for
// without waiting. It is a no-op once that run has been stopped.
func (s *Sequencer) requestStop(stop chan struct{}) func() {
	return func() {
		s.ctlMu.Lock()
		defer s.ctlMu.Unlock()
		if stop != nil && s.stop == stop {
			close(s.stop)
			s.stop = nil
		}
	}
}

// Wait blocks until the scheduling loop exits.
func (s *Sequencer) Wait() {
	<-s.Done()
}

// Done is closed when the scheduling loop exits. It is closed already if
// the loop was never started.
func (s *Sequencer) Done() <-chan struct{} {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if s.done == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return s.done
}

func (s *Sequencer) Running() bool { return s.running.Load() }

// Err returns the fault that stopped the last run, if any.
func (s *Sequencer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Sequencer) Tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// SetTick moves the playback position. While running the move is queued
// and applied by the loop on its next iteration; a newer request replaces
// an unconsumed one.
func (s *Sequencer) SetTick(tick int64) {
	tick = max(0, tick)
	if !s.running.Load() {
		select {
		case <-s.seek:
		default:
		}
		s.position(tick)
		return
	}
	for {
		select {
		case s.seek <- tick:
			return
		default:
		}
		select {
		case <-s.seek:
		default:
		}
	}
}

func (s *Sequencer) MaxTick() int64 { return s.maxTick }
func (s *Sequencer) Resolution() int { return s.resolution }

// Tempo returns the current tempo in BPM, before the tempo factor.
func (s *Sequencer) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo
}

func (s *Sequencer) TempoFactor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempoFactor
}

func (s *Sequencer) SetTempoFactor(f float64) error {
	if !validFactor(f) {
		return ErrInvalidTempoFactor
	}
	s.mu.Lock()
	s.tempoFactor = f
	s.mu.Unlock()
	return nil
}

func (s *Sequencer) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

func (s *Sequencer) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}
	s.interval.Store(int64(d))
	return nil
}

// SetLoop enables or disables looping back to begin at the end of the
// sequence.
func (s *Sequencer) SetLoop(enabled bool, begin int64) {
	s.mu.Lock()
	s.loop = enabled
	s.loopBegin = max(0, begin)
	s.mu.Unlock()
}

// position moves the cursor to the first event at or after tick.
func (s *Sequencer) position(tick int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionLocked(tick)
}

func (s *Sequencer) positionLocked(tick int64) {
	s.tick = tick
	s.frac = 0
	s.ended = false
	s.cursor, _ = slices.BinarySearchFunc(s.events, tick, func(e event.Event, t int64) int {
		switch {
		case e.Tick < t:
			return -1
		case e.Tick > t:
			return 1
		}
		return 0
	})
	for s.cursor > 0 && s.events[s.cursor-1].Tick >= tick {
		s.cursor--
	}
	s.tempo = event.TempoAt(s.events, tick-1)
}

// Select returns the events with ticks in [from, from+delta) and leaves the
// position at from+delta. Tempo events in the window take effect
// immediately. Consecutive windows never return an event twice.
func (s *Sequencer) Select(from, delta int64) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from != s.tick {
		s.positionLocked(max(0, from))
	}
	return s.selectLocked(delta)
}

func (s *Sequencer) selectLocked(delta int64) []event.Event {
	if delta <= 0 {
		return nil
	}
	end := s.tick + delta
	start := s.cursor
	for s.cursor < len(s.events) && s.events[s.cursor].Tick < end {
		if e := s.events[s.cursor]; e.Type == event.Tempo && e.Tempo > 0 {
			s.tempo = e.Tempo
		}
		s.cursor++
	}
	s.tick = end
	return s.events[start:s.cursor:s.cursor]
}

// Advance runs one scheduling step for elapsed wall time: it converts the
// time to ticks at the current tempo, delivers the events in the window to
// the selector and handles the end of the sequence. It reports whether
// playback has ended.
func (s *Sequencer) Advance(elapsed time.Duration) bool {
	s.ctlMu.Lock()
	stop := s.requestStop(s.stop)
	s.ctlMu.Unlock()
	return s.advance(elapsed, stop)
}

func (s *Sequencer) advance(elapsed time.Duration, stop func()) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return true
	}
	s.frac += elapsed.Seconds() * s.tempo * s.tempoFactor * float64(s.resolution) / 60
	delta := int64(s.frac)
	s.frac -= float64(delta)
	batch := s.selectLocked(delta)

	notify := EventKind(-1)
	if s.tick > s.maxTick {
		if s.loop && s.loopBegin <= s.maxTick {
			s.positionLocked(s.loopBegin)
			notify = EventLoopCompleted
		} else {
			s.ended = true
			notify = EventPlaybackEnded
		}
	}
	s.mu.Unlock()

	if len(batch) > 0 {
		s.sel.ProcessEvents(batch...)
	}
	switch notify {
	case EventLoopCompleted:
		s.logger.Debug("sequence looped", "tick", s.loopBegin)
		s.emit(notify, stop)
	case EventPlaybackEnded:
		s.logger.Debug("sequence ended", "max_tick", s.maxTick)
		s.emit(notify, stop)
		return true
	}
	return false
}

func (s *Sequencer) emit(kind EventKind, stop func()) {
	if s.onEvent != nil {
		s.onEvent(kind, stop)
	}
}

func (s *Sequencer) run(stop, done chan struct{}) {
	requestStop := s.requestStop(stop)
	defer close(done)
	defer s.running.Store(false)
	defer s.recoverFault(requestStop)

	s.logger.Debug("sequencer started", "tick", s.Tick(), "interval", s.Interval())
	interval := s.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-stop:
			s.logger.Debug("sequencer stopped", "tick", s.Tick())
			return
		case tick := <-s.seek:
			s.position(tick)
			last = time.Now()
		case now := <-ticker.C:
			if d := s.Interval(); d != interval {
				interval = d
				ticker.Reset(d)
			}
			elapsed := now.Sub(last)
			last = now
			if s.advance(elapsed, requestStop) {
				return
			}
		}
	}
}

func (s *Sequencer) recoverFault(stop func()) {
	r := recover()
	if r == nil {
		return
	}
	err := fault.Wrap(fmt.Errorf("panic: %v", r),
		fmsg.With("sequencer loop"),
		ftag.With(ftag.Internal))
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Error("sequencer loop failed", "error", err)
	s.emit(EventFault, stop)
}
