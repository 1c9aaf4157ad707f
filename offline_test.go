package midisynth

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/cbegin/midisynth-go/internal/envelope"
	"github.com/cbegin/midisynth-go/internal/event"
	"github.com/cbegin/midisynth-go/internal/master"
)

func singleNote() *event.Sequence {
	return &event.Sequence{
		Resolution: 480,
		Tracks: []event.Track{{Events: []event.Event{
			{Tick: 0, Type: event.Tempo, Tempo: 120},
			{Tick: 0, Type: event.NoteOn, Channel: 0, Data1: 60, Data2: 100},
			{Tick: 480, Type: event.NoteOff, Channel: 0, Data1: 60},
		}}},
	}
}

func TestRendererSingleNote(t *testing.T) {
	r, err := NewRenderer(singleNote(), 44100, WithMode(ModePoly))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	buf := make([]float32, 44100)
	if n := r.Read(buf, 0, len(buf)); n != len(buf) {
		t.Fatalf("read %d samples", n)
	}
	if peak := master.Peak(buf); peak == 0 {
		t.Fatal("expected audible output")
	}
	// Channel 1 note 60 plays on part 60%8+1.
	p := r.Master().Part(5)
	if p.State().Note != 60 {
		t.Fatalf("part 5 note = %d", p.State().Note)
	}
	if r.Ended() {
		t.Fatal("ended while the note is held")
	}

	for i := 0; i < 40 && !r.Ended(); i++ {
		r.Read(buf, 0, len(buf))
	}
	if !r.Ended() {
		t.Fatalf("renderer did not end, part 5 state = %v", p.State().Envelope)
	}
	if p.State().Envelope != envelope.Silence {
		t.Fatalf("part 5 envelope = %v", p.State().Envelope)
	}
	if master.Peak(buf[len(buf)-100:]) != 0 {
		t.Fatal("expected silence after release")
	}
}

func TestRendererReadContract(t *testing.T) {
	r, err := NewRenderer(singleNote(), 44100)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	buf := make([]float32, 10)
	if n := r.Read(buf, 4, 5); n != 4 {
		t.Fatalf("odd count read %d", n)
	}
	if n := r.Read(buf, 11, 2); n != 0 {
		t.Fatalf("bad offset read %d", n)
	}
	if n := r.Read(buf, 8, 100); n != 2 {
		t.Fatalf("clamped read %d", n)
	}
	if r.Elapsed() <= 0 {
		t.Fatalf("elapsed = %v", r.Elapsed())
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	a, err := Render(singleNote(), 22050, WithMode(ModeMono))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := Render(singleNote(), 22050, WithMode(ModeMono))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("lengths %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v != %v", i, a[i], b[i])
		}
	}
	// Half a second of note plus the release tail, well under two seconds.
	if d := float64(len(a)) / 2 / 22050; d < 0.5 || d > 2 {
		t.Fatalf("rendered %.2fs", d)
	}
}

func TestRenderDrumHitEnds(t *testing.T) {
	seq := &event.Sequence{
		Resolution: 480,
		Tracks: []event.Track{{Events: []event.Event{
			{Tick: 0, Type: event.Tempo, Tempo: 120},
			{Tick: 0, Type: event.NoteOn, Channel: 9, Data1: 36, Data2: 100},
			{Tick: 240, Type: event.NoteOff, Channel: 9, Data1: 36},
		}}},
	}
	for _, mode := range []Mode{ModeMono, ModePoly} {
		t.Run(string(mode), func(t *testing.T) {
			out, err := Render(seq, 8000, WithMode(mode), WithMaxDuration(30*time.Second))
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if master.Peak(out) == 0 {
				t.Fatal("expected an audible drum hit")
			}
			if d := float64(len(out)) / 2 / 8000; d > 2 {
				t.Fatalf("rendered %.2fs, drum tail never ended", d)
			}
		})
	}
}

func TestRenderMasterVolumeAppliesBeforeCompressor(t *testing.T) {
	r, err := NewRenderer(singleNote(), 8000, WithMasterVolume(3))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if v := r.Master().Volume(); v != 3 {
		t.Fatalf("master volume = %v, want 3", v)
	}

	loud, err := Render(singleNote(), 8000, WithMasterVolume(3))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i, v := range loud {
		if v < -1 || v > 1 {
			t.Fatalf("sample %d = %v outside [-1,1]", i, v)
		}
	}
	unity, err := Render(singleNote(), 8000)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if a, b := energy(loud), energy(unity); a <= b {
		t.Fatalf("energy %v not above unity energy %v", a, b)
	}

	muted, err := Render(singleNote(), 8000, WithMasterVolume(-1))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(muted) == 0 || master.Peak(muted) != 0 {
		t.Fatalf("muted render: %d samples, peak %v", len(muted), master.Peak(muted))
	}
}

func energy(buf []float32) float64 {
	var sum float64
	for _, v := range buf {
		sum += math.Abs(float64(v))
	}
	return sum
}

func TestRenderLoopStopsAtMaxDuration(t *testing.T) {
	out, err := Render(singleNote(), 8000, WithLoopPlayback(true), WithMaxDuration(3*time.Second))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(out) != 3*8000*2 {
		t.Fatalf("rendered %d samples", len(out))
	}
}

func TestWriteWAVFile(t *testing.T) {
	samples := []float32{0, 0, 0.5, -0.5, 1, -1, 2, -2}
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := WriteWAVFile(path, samples, 44100); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if dec.SampleRate != 44100 || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Fatalf("format = %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	want := []int{0, 0, 16384, -16384, 32767, -32767, 32767, -32767}
	if len(buf.Data) != len(want) {
		t.Fatalf("got %d samples", len(buf.Data))
	}
	for i, v := range want {
		if buf.Data[i] != v {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], v)
		}
	}
}
