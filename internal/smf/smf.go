// Package smf converts Standard MIDI Files and live MIDI messages into the
// event model.
package smf

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gitlab.com/gomidi/midi/v2"
	gmsmf "gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/midisynth-go/internal/event"
)

var ErrTimeCode = errors.New("smf: SMPTE time code files are not supported")

const (
	metaPrefix     = 0xFF
	metaEndOfTrack = 0x2F
)

// ReadFile decodes the SMF at path.
func ReadFile(path string) (*event.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		tag := ftag.Internal
		if errors.Is(err, fs.ErrNotExist) {
			tag = ftag.NotFound
		}
		return nil, fault.Wrap(err, fmsg.With("opening midi file"), ftag.With(tag))
	}
	defer f.Close()
	return Read(f)
}

// Read decodes an SMF from r.
func Read(r io.Reader) (*event.Sequence, error) {
	s, err := gmsmf.ReadFrom(r)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("decoding midi file"), ftag.With(ftag.InvalidArgument))
	}
	ticks, ok := s.TimeFormat.(gmsmf.MetricTicks)
	if !ok {
		return nil, fault.Wrap(ErrTimeCode, ftag.With(ftag.InvalidArgument))
	}
	seq := &event.Sequence{Resolution: int(ticks)}
	if seq.Resolution <= 0 {
		return nil, fault.Wrap(fmt.Errorf("smf: invalid resolution %d", seq.Resolution), ftag.With(ftag.InvalidArgument))
	}
	for _, tr := range s.Tracks {
		var (
			out  event.Track
			tick int64
		)
		for _, ev := range tr {
			tick += int64(ev.Delta)
			e, ok := fromSMF(ev.Message, &out)
			if !ok {
				continue
			}
			e.Tick = tick
			out.Events = append(out.Events, e)
		}
		seq.Tracks = append(seq.Tracks, out)
	}
	return seq, nil
}

func fromSMF(msg gmsmf.Message, tr *event.Track) (event.Event, bool) {
	if msg.IsMeta() {
		var (
			bpm  float64
			text string
		)
		switch {
		case msg.GetMetaTempo(&bpm):
			return event.Event{Type: event.Tempo, Tempo: bpm}, true
		case len(msg) >= 2 && msg[0] == metaPrefix && msg[1] == metaEndOfTrack:
			return event.Event{Type: event.EndOfTrack}, true
		case msg.GetMetaTrackName(&text):
			tr.Name = text
		case msg.GetMetaText(&text):
			return event.Event{Type: event.Text, Text: text}, true
		}
		return event.Event{}, false
	}
	return FromMessage(midi.Message(msg))
}

// FromMessage converts a channel or sysex message. Other messages report
// false.
func FromMessage(msg midi.Message) (event.Event, bool) {
	var (
		ch, a, b uint8
		rel      int16
		abs      uint16
		data     []byte
	)
	switch {
	case msg.GetNoteOn(&ch, &a, &b):
		return event.Event{Type: event.NoteOn, Channel: int(ch), Data1: int(a), Data2: int(b)}, true
	case msg.GetNoteOff(&ch, &a, &b):
		return event.Event{Type: event.NoteOff, Channel: int(ch), Data1: int(a), Data2: int(b)}, true
	case msg.GetControlChange(&ch, &a, &b):
		return event.Event{Type: event.ControlChange, Channel: int(ch), Data1: int(a), Data2: int(b)}, true
	case msg.GetProgramChange(&ch, &a):
		return event.Event{Type: event.ProgramChange, Channel: int(ch), Data1: int(a)}, true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return event.Event{Type: event.PitchBend, Channel: int(ch), Data1: int(rel)}, true
	case msg.GetSysEx(&data):
		return event.Event{Type: event.SysEx, Data: data}, true
	}
	return event.Event{}, false
}
