// Package audio streams rendered samples to the default output device.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Source renders count interleaved stereo samples into buf[offset:] and
// returns how many it wrote.
type Source interface {
	Read(buf []float32, offset, count int) int
}

const bytesPerFrame = 8

// Stream is the io.Reader ebiten pulls from. Every Read yields whole
// frames; samples the source did not supply are zero.
type Stream struct {
	mu      sync.Mutex
	source  Source
	scratch []float32
}

func NewStream(source Source) *Stream {
	return &Stream{source: source}
}

func (s *Stream) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := frames * 2; cap(s.scratch) < n {
		s.scratch = make([]float32, n)
	} else {
		s.scratch = s.scratch[:n]
	}
	got := s.source.Read(s.scratch, 0, len(s.scratch))
	clear(s.scratch[max(got, 0):])
	for i, v := range s.scratch {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}
	return frames * bytesPerFrame, nil
}

var contextMu sync.Mutex

// deviceContext returns the process-wide ebiten context, creating it at
// sampleRate on first use.
func deviceContext(sampleRate int) (*ebitaudio.Context, error) {
	contextMu.Lock()
	defer contextMu.Unlock()
	ctx := ebitaudio.CurrentContext()
	if ctx == nil {
		return ebitaudio.NewContext(sampleRate), nil
	}
	if ctx.SampleRate() != sampleRate {
		return nil, fmt.Errorf("audio: device already open at %d Hz, want %d Hz", ctx.SampleRate(), sampleRate)
	}
	return ctx, nil
}

type Player struct {
	player *ebitaudio.Player
}

// NewPlayer opens a paused device stream that pulls from source. A
// positive bufferSize overrides the device default.
func NewPlayer(sampleRate int, source Source, bufferSize time.Duration) (*Player, error) {
	ctx, err := deviceContext(sampleRate)
	if err != nil {
		return nil, err
	}
	pl, err := ctx.NewPlayerF32(NewStream(source))
	if err != nil {
		return nil, fmt.Errorf("audio: opening player: %w", err)
	}
	if bufferSize > 0 {
		pl.SetBufferSize(bufferSize)
	}
	return &Player{player: pl}, nil
}

func (p *Player) Play()           { p.player.Play() }
func (p *Player) Pause()          { p.player.Pause() }
func (p *Player) IsPlaying() bool { return p.player.IsPlaying() }

// Position lags rendering by the device buffer.
func (p *Player) Position() time.Duration { return p.player.Position() }

func (p *Player) Stop() error {
	p.player.Pause()
	return p.player.Close()
}
