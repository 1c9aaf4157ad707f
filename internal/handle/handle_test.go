package handle

import (
	"errors"
	"testing"
)

func TestStringParseRoundTrip(t *testing.T) {
	tests := []Handle{
		New(1, Reset{}),
		New(2, Silence{}),
		New(3, Release{}),
		New(4, NoteOff{}),
		New(5, NoteOn{Note: 60, Velocity: 0.5}),
		New(6, ZeroGate{Note: 48}),
		New(7, Volume{Value: 0.25}),
		New(8, Panpot{Value: -1}),
		New(9, FineTune{Value: 1.0594630943592953}),
		New(10, KeyShift{Semitones: -12}),
		New(11, Vibrate{Op: VibrateDepth, Value: 4}),
		New(12, Portamento{Op: PortamentoSpeed, Value: 0.01}),
		New(13, Envelope{Op: EnvelopeRelease, Value: 0.3}),
		New(14, Waveform{Type: WaveRandomNoise}),
		New(15, EditWaveform{Param: EditDuty, Value: 0.125}),
		New(16, EditWaveform{Operator: 3, Param: EditSend1, Value: 0.7}),
	}
	for _, want := range tests {
		t.Run(want.String(), func(t *testing.T) {
			got, err := Parse(want.String(), 0)
			if err != nil {
				t.Fatalf("Parse(%q): %v", want.String(), err)
			}
			if got != want {
				t.Fatalf("got %#v, want %#v", got, want)
			}
		})
	}
}

func TestDecodePacked(t *testing.T) {
	h := New(1, EditWaveform{Operator: 2, Param: EditRatio, Value: 3})
	kind, d1, d2 := h.Pack()
	if kind != KindEditWaveform || d1 != 2<<4|int(EditRatio) || d2 != 3 {
		t.Fatalf("Pack = %v %#x %v", kind, d1, d2)
	}
	got, err := Decode(1, kind, d1, d2)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != h {
		t.Fatalf("Decode = %#v", got)
	}

	if _, err := Decode(1, Kind(99), 0, 0); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("unknown kind err = %v", err)
	}
	if _, err := Decode(1, KindWaveform, 42, 0); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("bad waveform err = %v", err)
	}
	if _, err := Decode(1, KindEditWaveform, 0x0F, 0); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("bad edit param err = %v", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		prev int
		want Handle
	}{
		{"two tokens", "3 noteoff", 0, New(3, NoteOff{})},
		{"value only", "2 volume 0.8", 0, New(2, Volume{Value: 0.8})},
		{"type only", "1 waveform triangle", 0, New(1, Waveform{Type: WaveTriangle})},
		{"numeric type", "1 noteon 64", 0, New(1, NoteOn{Note: 64})},
		{"hex type", "1 waveform 0x6", 0, New(1, Waveform{Type: WaveFM})},
		{"dot part", ". envelope attack 0.02", 9, New(9, Envelope{Op: EnvelopeAttack, Value: 0.02})},
		{"case folding", "1 VIBRATE On", 0, New(1, Vibrate{Op: VibrateOn})},
		{"operator list", "4 editwaveform op1,amp 0.5", 0, New(4, EditWaveform{Operator: 1, Param: EditAmp, Value: 0.5})},
		{"operator and number", "4 editwaveform op2,9 1", 0, New(4, EditWaveform{Operator: 2, Param: EditAmp, Value: 1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line, tt.prev)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		is   error
	}{
		{"too few", "1", ErrSyntax},
		{"too many", "1 volume 1 2 3", ErrSyntax},
		{"bad part", "x volume 1", ErrSyntax},
		{"negative part", "-1 volume 1", ErrSyntax},
		{"unknown kind", "1 explode", ErrUnknownKind},
		{"unknown type", "1 waveform sawtooth", ErrSyntax},
		{"empty type", "1 waveform square,", ErrSyntax},
		{"bad value", "1 volume loud", ErrSyntax},
		{"out of range type", "1 envelope 12 1", ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line, 0)
			if !errors.Is(err, tt.is) {
				t.Fatalf("err = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestParseLines(t *testing.T) {
	text := `
# comment
2 waveform fm

. editwaveform op1,ratio 2
  . volume 0.5
`
	hs, err := ParseLines(text)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	want := []Handle{
		New(2, Waveform{Type: WaveFM}),
		New(2, EditWaveform{Operator: 1, Param: EditRatio, Value: 2}),
		New(2, Volume{Value: 0.5}),
	}
	if len(hs) != len(want) {
		t.Fatalf("got %d handles, want %d", len(hs), len(want))
	}
	for i := range want {
		if hs[i] != want[i] {
			t.Errorf("handle %d = %v, want %v", i, hs[i], want[i])
		}
	}

	if _, err := ParseLines("1 volume 1\n1 bogus\n"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v", err)
	}
}

func TestWithPartAndKind(t *testing.T) {
	tmpl := New(0, Volume{Value: 1})
	h := tmpl.WithPart(7)
	if h.Part != 7 || tmpl.Part != 0 {
		t.Fatalf("WithPart: %v / %v", h, tmpl)
	}
	if (Handle{}).Kind() != KindReset {
		t.Fatal("zero handle should be a reset")
	}
	if k, ok := ParseKind(" EditWaveform "); !ok || k != KindEditWaveform {
		t.Fatalf("ParseKind = %v %v", k, ok)
	}
	if s := Kind(50).String(); s != "kind(50)" {
		t.Fatalf("String = %q", s)
	}
	if n, ok := EditSend2.SendTarget(); !ok || n != 2 {
		t.Fatalf("SendTarget = %d %v", n, ok)
	}
	if _, ok := EditAmp.SendTarget(); ok {
		t.Fatal("amp is not a send")
	}
}
