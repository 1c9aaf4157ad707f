// Package event holds the tick-stamped event model consumed by the
// sequencer and selectors.
package event

import (
	"slices"
)

type Type int

const (
	NoteOff Type = iota
	NoteOn
	ControlChange
	ProgramChange
	PitchBend
	SysEx
	Tempo
	EndOfTrack
	Text
)

var typeNames = [...]string{
	NoteOff:       "noteoff",
	NoteOn:        "noteon",
	ControlChange: "controlchange",
	ProgramChange: "programchange",
	PitchBend:     "pitchbend",
	SysEx:         "sysex",
	Tempo:         "tempo",
	EndOfTrack:    "endoftrack",
	Text:          "text",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// DefaultTempo is used until the first tempo event.
const DefaultTempo = 120.0

// Event is one timed message. Channel is 0-based. For PitchBend, Data1 is
// the signed bend value (-8192..8191). Tempo is in beats per minute.
type Event struct {
	Tick    int64
	Type    Type
	Channel int
	Data1   int
	Data2   int
	Tempo   float64
	Data    []byte
	Text    string
}

// IsChannel reports whether e is a channel voice message.
func (e Event) IsChannel() bool {
	return e.Type <= PitchBend
}

type Track struct {
	Name   string
	Events []Event
}

// Sequence is a decoded song. Resolution is ticks per quarter note.
type Sequence struct {
	Resolution int
	Tracks     []Track
}

// Merge returns every track's events in one list ordered by tick. Events on
// the same tick keep their track order and in-track order.
func (s *Sequence) Merge() []Event {
	n := 0
	for _, tr := range s.Tracks {
		n += len(tr.Events)
	}
	out := make([]Event, 0, n)
	for _, tr := range s.Tracks {
		out = append(out, tr.Events...)
	}
	slices.SortStableFunc(out, func(a, b Event) int {
		switch {
		case a.Tick < b.Tick:
			return -1
		case a.Tick > b.Tick:
			return 1
		}
		return 0
	})
	return out
}

// MaxTick returns the tick of the last event in any track.
func (s *Sequence) MaxTick() int64 {
	var maxTick int64
	for _, tr := range s.Tracks {
		for _, e := range tr.Events {
			maxTick = max(maxTick, e.Tick)
		}
	}
	return maxTick
}

// TempoAt returns the tempo in effect at tick in a merged event list.
func TempoAt(events []Event, tick int64) float64 {
	tempo := DefaultTempo
	for _, e := range events {
		if e.Tick > tick {
			break
		}
		if e.Type == Tempo && e.Tempo > 0 {
			tempo = e.Tempo
		}
	}
	return tempo
}
