package sequencer

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"

	"github.com/cbegin/midisynth-go/internal/event"
)

type recordingSelector struct {
	mu     sync.Mutex
	events []event.Event
	panics bool
}

func (r *recordingSelector) PartCount() int { return 1 }
func (r *recordingSelector) Reset()         {}

func (r *recordingSelector) ProcessEvents(events ...event.Event) {
	if r.panics {
		panic("selector exploded")
	}
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
}

func (r *recordingSelector) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func note(tick int64, typ event.Type, n int) event.Event {
	return event.Event{Tick: tick, Type: typ, Data1: n, Data2: 100}
}

func testSequence(events ...event.Event) *event.Sequence {
	return &event.Sequence{Resolution: 480, Tracks: []event.Track{{Events: events}}}
}

func mustNew(t *testing.T, seq *event.Sequence, sel *recordingSelector, opts Options) *Sequencer {
	t.Helper()
	s, err := NewWithOptions(seq, sel, opts)
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSelectWindows(t *testing.T) {
	seq := &event.Sequence{Resolution: 480, Tracks: []event.Track{
		{Events: []event.Event{note(0, event.NoteOn, 1), note(10, event.NoteOn, 2), note(35, event.NoteOff, 1)}},
		{Events: []event.Event{note(10, event.NoteOn, 3), note(20, event.NoteOff, 2)}},
	}}
	s := mustNew(t, seq, &recordingSelector{}, Options{})

	tests := []struct {
		from, delta int64
		want        []int64
	}{
		{0, 10, []int64{0}},
		{10, 10, []int64{10, 10}},
		{20, 10, []int64{20}},
		{30, 10, []int64{35}},
		{40, 10, nil},
	}
	for _, tt := range tests {
		got := s.Select(tt.from, tt.delta)
		if len(got) != len(tt.want) {
			t.Fatalf("Select(%d, %d) = %d events, want %d", tt.from, tt.delta, len(got), len(tt.want))
		}
		for i, e := range got {
			if e.Tick != tt.want[i] {
				t.Errorf("Select(%d, %d)[%d].Tick = %d", tt.from, tt.delta, i, e.Tick)
			}
		}
	}
	if s.Tick() != 50 {
		t.Fatalf("tick = %d", s.Tick())
	}

	// Seeking back re-delivers from the new position.
	if got := s.Select(10, 1); len(got) != 2 || got[0].Data1 != 2 || got[1].Data1 != 3 {
		t.Fatalf("after seek = %+v", got)
	}
}

func TestAdvanceConvertsTimeToTicks(t *testing.T) {
	s := mustNew(t, testSequence(note(100000, event.NoteOff, 60)), &recordingSelector{}, Options{})
	// 120 BPM at 480 ticks per quarter is 960 ticks per second.
	s.Advance(5 * time.Millisecond)
	if s.Tick() != 4 {
		t.Fatalf("tick = %d, want 4", s.Tick())
	}
	s.Advance(5 * time.Millisecond)
	if s.Tick() != 9 {
		t.Fatalf("tick = %d, want 9", s.Tick())
	}

	if err := s.SetTempoFactor(2); err != nil {
		t.Fatal(err)
	}
	s.SetTick(0)
	s.Advance(time.Second)
	if s.Tick() != 1920 {
		t.Fatalf("tick = %d, want 1920", s.Tick())
	}
}

func TestTempoChangeAppliesToNextStep(t *testing.T) {
	sel := &recordingSelector{}
	s := mustNew(t, testSequence(
		event.Event{Tick: 0, Type: event.Tempo, Tempo: 240},
		note(100000, event.NoteOff, 60),
	), sel, Options{})

	s.Advance(time.Second)
	if s.Tick() != 960 {
		t.Fatalf("tick = %d, want 960", s.Tick())
	}
	if s.Tempo() != 240 {
		t.Fatalf("tempo = %v", s.Tempo())
	}
	s.Advance(time.Second)
	if s.Tick() != 960+1920 {
		t.Fatalf("tick = %d, want %d", s.Tick(), 960+1920)
	}

	// Seeking restores the tempo in effect before the target tick.
	s.SetTick(0)
	if s.Tempo() != event.DefaultTempo {
		t.Fatalf("tempo after seek = %v", s.Tempo())
	}
	s.SetTick(10)
	if s.Tempo() != 240 {
		t.Fatalf("tempo after seek past change = %v", s.Tempo())
	}
}

func TestAdvanceEndsSequence(t *testing.T) {
	sel := &recordingSelector{}
	var kinds []EventKind
	s := mustNew(t, testSequence(note(0, event.NoteOn, 60), note(480, event.NoteOff, 60)), sel, Options{
		OnEvent: func(k EventKind, _ func()) { kinds = append(kinds, k) },
	})
	if s.Advance(250 * time.Millisecond) {
		t.Fatal("ended early")
	}
	if !s.Advance(time.Second) {
		t.Fatal("expected end")
	}
	if !s.Advance(time.Second) {
		t.Fatal("should stay ended")
	}
	if sel.count() != 2 {
		t.Fatalf("delivered %d events", sel.count())
	}
	if len(kinds) != 1 || kinds[0] != EventPlaybackEnded {
		t.Fatalf("events = %v", kinds)
	}
}

func TestAdvanceLoops(t *testing.T) {
	sel := &recordingSelector{}
	var kinds []EventKind
	s := mustNew(t, testSequence(note(0, event.NoteOn, 60), note(480, event.NoteOff, 60)), sel, Options{
		Loop:    true,
		OnEvent: func(k EventKind, _ func()) { kinds = append(kinds, k) },
	})
	for i := 0; i < 3; i++ {
		if s.Advance(time.Second) {
			t.Fatal("looping sequence ended")
		}
	}
	if s.Tick() != 0 {
		t.Fatalf("tick = %d", s.Tick())
	}
	if sel.count() != 6 {
		t.Fatalf("delivered %d events, want 6", sel.count())
	}
	if len(kinds) != 3 || kinds[2] != EventLoopCompleted {
		t.Fatalf("events = %v", kinds)
	}

	s.SetLoop(false, 0)
	if !s.Advance(time.Second) {
		t.Fatal("expected end after disabling loop")
	}
}

func TestValidation(t *testing.T) {
	sel := &recordingSelector{}
	if _, err := New(&event.Sequence{}, sel); !errors.Is(err, ErrInvalidResolution) {
		t.Fatalf("resolution err = %v", err)
	}
	if _, err := NewWithOptions(testSequence(), sel, Options{TempoFactor: -1}); !errors.Is(err, ErrInvalidTempoFactor) {
		t.Fatalf("tempo factor err = %v", err)
	}
	if _, err := NewWithOptions(testSequence(), sel, Options{Interval: -time.Millisecond}); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("interval err = %v", err)
	}

	s := mustNew(t, testSequence(), sel, Options{})
	for _, f := range []float64{0, -2, math.Inf(1), math.NaN()} {
		if err := s.SetTempoFactor(f); !errors.Is(err, ErrInvalidTempoFactor) {
			t.Errorf("SetTempoFactor(%v) = %v", f, err)
		}
	}
	if s.TempoFactor() != 1 {
		t.Fatalf("tempo factor changed to %v", s.TempoFactor())
	}
	if err := s.SetInterval(0); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("SetInterval(0) = %v", err)
	}
	if err := s.SetInterval(time.Millisecond); err != nil || s.Interval() != time.Millisecond {
		t.Fatalf("SetInterval = %v, %v", err, s.Interval())
	}
}

func TestStartStop(t *testing.T) {
	sel := &recordingSelector{}
	s := mustNew(t, testSequence(note(0, event.NoteOn, 60), note(10, event.NoteOff, 60)), sel, Options{
		Interval: time.Millisecond,
		Loop:     true,
	})
	s.Start()
	s.Start()
	waitFor(t, "events", func() bool { return sel.count() >= 2 })
	s.Stop()
	if s.Running() {
		t.Fatal("still running after Stop")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
	if s.Err() != nil {
		t.Fatalf("Err = %v", s.Err())
	}
	s.Stop()
}

func TestStopFromCallback(t *testing.T) {
	var s *Sequencer
	s = mustNew(t, testSequence(note(0, event.NoteOn, 60)), &recordingSelector{}, Options{
		Interval: time.Millisecond,
		Loop:     true,
		OnEvent: func(k EventKind, stop func()) {
			if k == EventLoopCompleted {
				stop()
			}
		},
	})
	s.Start()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after stop from callback")
	}
	s.Stop()
}

// blockingSelector parks the loop inside ProcessEvents until released.
type blockingSelector struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSelector) PartCount() int { return 1 }
func (b *blockingSelector) Reset()         {}

func (b *blockingSelector) ProcessEvents(...event.Event) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
}

func TestStopWaitsForBusyLoop(t *testing.T) {
	sel := &blockingSelector{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s, err := NewWithOptions(testSequence(note(0, event.NoteOn, 60), note(100000, event.NoteOff, 60)), sel, Options{
		Interval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	s.Start()
	select {
	case <-sel.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never delivered events")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while the loop was still delivering events")
	case <-time.After(50 * time.Millisecond):
	}

	close(sel.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the loop was released")
	}
	if s.Running() {
		t.Fatal("running after Stop returned")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop returned")
	}

	s.Start()
	if !s.Running() {
		t.Fatal("Start after Stop did not restart the loop")
	}
	s.Stop()
}

func TestSetTickWhileRunning(t *testing.T) {
	s := mustNew(t, testSequence(note(100000, event.NoteOff, 60)), &recordingSelector{}, Options{
		Interval: time.Hour,
	})
	s.Start()
	defer s.Stop()
	s.SetTick(5000)
	waitFor(t, "seek", func() bool { return s.Tick() == 5000 })
}

func TestFaultIsObservable(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []EventKind
	)
	sel := &recordingSelector{panics: true}
	s := mustNew(t, testSequence(note(0, event.NoteOn, 60), note(100000, event.NoteOff, 60)), sel, Options{
		Interval: time.Millisecond,
		OnEvent: func(k EventKind, _ func()) {
			mu.Lock()
			kinds = append(kinds, k)
			mu.Unlock()
		},
	})
	s.Start()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
	err := s.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if ftag.Get(err) != ftag.Internal {
		t.Fatalf("tag = %v", ftag.Get(err))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 1 || kinds[0] != EventFault {
		t.Fatalf("events = %v", kinds)
	}
}
