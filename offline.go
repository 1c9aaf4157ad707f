package midisynth

import (
	"io"
	"math"
	"os"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cbegin/midisynth-go/internal/event"
	"github.com/cbegin/midisynth-go/internal/master"
	intseq "github.com/cbegin/midisynth-go/internal/sequencer"
)

const defaultMaxDuration = 10 * time.Minute

// Renderer renders a sequence without a clock: every Read advances the
// sequencer by one interval for each interval's worth of samples, so the
// output is deterministic.
type Renderer struct {
	engine
	seq        *intseq.Sequencer
	sampleRate int
	interval   time.Duration

	steps    int64
	frames   int64
	left     int
	seqEnded bool
}

func NewRenderer(seq *event.Sequence, sampleRate int, opts ...Option) (*Renderer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	eng, err := newEngine(sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	eng.sel.Reset()
	s, err := intseq.NewWithOptions(seq, eng.sel, intseq.Options{
		Interval:    cfg.interval,
		TempoFactor: cfg.tempoFactor,
		Loop:        cfg.loopPlayback,
		Logger:      cfg.logger,
	})
	if err != nil {
		return nil, err
	}
	return &Renderer{
		engine:     eng,
		seq:        s,
		sampleRate: sampleRate,
		interval:   s.Interval(),
	}, nil
}

// Read renders count interleaved samples into buf[offset:]. It implements
// the same contract as Master.Read.
func (r *Renderer) Read(buf []float32, offset, count int) int {
	if offset < 0 || offset > len(buf) {
		return 0
	}
	count = min(count, len(buf)-offset)
	count -= count % 2
	written := 0
	for written < count {
		if r.left == 0 {
			r.step()
			continue
		}
		n := r.master.Read(buf, offset+written, min(r.left*2, count-written))
		if n == 0 {
			break
		}
		r.left -= n / 2
		written += n
	}
	return written
}

func (r *Renderer) step() {
	if !r.seqEnded {
		r.seqEnded = r.seq.Advance(r.interval)
	}
	r.steps++
	end := int64(math.Round(float64(r.steps) * r.interval.Seconds() * float64(r.sampleRate)))
	r.left = int(end - r.frames)
	r.frames = end
}

// Ended reports whether the sequence has finished and every part is silent.
func (r *Renderer) Ended() bool {
	return r.seqEnded && r.master.Pending() == 0 && r.master.Sounding() == 0
}

// Elapsed returns the rendered duration.
func (r *Renderer) Elapsed() time.Duration {
	return time.Duration(float64(r.frames-int64(r.left)) / float64(r.sampleRate) * float64(time.Second))
}

func (r *Renderer) Master() *master.Master { return r.master }

func (r *Renderer) Sequencer() *intseq.Sequencer { return r.seq }

// Render renders seq until it ends and its release tails fade out, or for
// at most the WithMaxDuration limit.
func Render(seq *event.Sequence, sampleRate int, opts ...Option) ([]float32, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	r, err := NewRenderer(seq, sampleRate, opts...)
	if err != nil {
		return nil, err
	}
	limit := int(cfg.maxDuration.Seconds()*float64(sampleRate)) * 2
	chunk := make([]float32, 2*sampleRate/100)
	var out []float32
	for !r.Ended() && len(out) < limit {
		n := r.Read(chunk, 0, min(len(chunk), limit-len(out)))
		if n == 0 {
			break
		}
		out = append(out, chunk[:n]...)
	}
	return out, nil
}

// EncodeWAV writes interleaved stereo samples as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * math.MaxInt16))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fault.Wrap(err, fmsg.With("writing wav samples"))
	}
	if err := enc.Close(); err != nil {
		return fault.Wrap(err, fmsg.With("finalizing wav"))
	}
	return nil
}

func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fault.Wrap(err, fmsg.With("creating wav file"), ftag.With(ftag.InvalidArgument))
	}
	if err := EncodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
