// Package master owns the parts of one synthesizer instance, the handle
// queue feeding them and the stereo mixdown.
package master

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"

	"github.com/cbegin/midisynth-go/internal/effects"
	"github.com/cbegin/midisynth-go/internal/handle"
	"github.com/cbegin/midisynth-go/internal/part"
	"github.com/cbegin/midisynth-go/internal/waveform"
)

var (
	ErrInvalidSampleRate = errors.New("master: sample rate must be positive")
	ErrInvalidPartCount  = errors.New("master: part count must be positive")
	ErrInvalidVolume     = errors.New("master: volume must be finite and non-negative")
)

type Params struct {
	Volume    float64
	Threshold float64
	Ratio     float64
	CacheSize int
}

func DefaultParams() Params {
	return Params{
		Volume:    1,
		Threshold: effects.DefaultThreshold,
		Ratio:     effects.DefaultRatio,
		CacheSize: waveform.DefaultCacheSize,
	}
}

type Option func(*config)

type config struct {
	params  Params
	effects []effects.Effector
}

func WithParams(p Params) Option {
	return func(c *config) {
		c.params = p
	}
}

// WithEffects inserts effects between the master volume and the compressor.
func WithEffects(fx ...effects.Effector) Option {
	return func(c *config) {
		c.effects = append(c.effects, fx...)
	}
}

// Master mixes a fixed set of parts. Push may be called from any goroutine;
// Read must be called from a single render goroutine.
type Master struct {
	mu      sync.Mutex
	queue   []handle.Handle
	drained []handle.Handle

	fxMu  sync.Mutex
	comp  *effects.Compressor
	chain *effects.Chain

	volume  uint64
	dropped atomic.Int64

	parts []*part.Part
	cache *waveform.TableCache
}

func New(sampleRate, partCount int, opts ...Option) (*Master, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if partCount <= 0 {
		return nil, ErrInvalidPartCount
	}
	cfg := config{params: DefaultParams()}
	for _, opt := range opts {
		opt(&cfg)
	}
	comp, err := effects.NewCompressor(cfg.params.Threshold, cfg.params.Ratio)
	if err != nil {
		return nil, err
	}
	m := &Master{
		comp:  comp,
		chain: effects.NewChain(cfg.effects...),
		cache: waveform.NewTableCache(cfg.params.CacheSize),
		parts: make([]*part.Part, partCount),
	}
	m.chain.Add(comp)
	if err := m.SetVolume(cfg.params.Volume); err != nil {
		return nil, err
	}
	for i := range m.parts {
		m.parts[i] = part.New(sampleRate, m.cache)
	}
	return m, nil
}

// Push enqueues handles in order.
func (m *Master) Push(hs ...handle.Handle) {
	m.mu.Lock()
	m.queue = append(m.queue, hs...)
	m.mu.Unlock()
}

// PushTo enqueues one copy of h for each target part.
func (m *Master) PushTo(h handle.Handle, targets ...int) {
	m.mu.Lock()
	for _, t := range targets {
		m.queue = append(m.queue, h.WithPart(t))
	}
	m.mu.Unlock()
}

// Pending returns the number of queued handles.
func (m *Master) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// drain swaps the queue out under the lock and applies it outside.
func (m *Master) drain() {
	m.mu.Lock()
	m.queue, m.drained = m.drained[:0], m.queue
	m.mu.Unlock()

	for _, h := range m.drained {
		if h.Part < 1 || h.Part > len(m.parts) {
			m.dropped.Add(1)
			continue
		}
		m.parts[h.Part-1].ApplyHandle(h)
	}
	clear(m.drained)
}

// Read renders count interleaved samples into buf[offset:] and returns the
// number written. An odd count is rounded down to whole frames.
func (m *Master) Read(buf []float32, offset, count int) int {
	if offset < 0 || offset > len(buf) {
		return 0
	}
	count = min(count, len(buf)-offset)
	count -= count % 2
	if count <= 0 {
		m.drain()
		return 0
	}
	out := buf[offset : offset+count]
	clear(out)
	m.drain()

	frames := count / 2
	for _, p := range m.parts {
		if !p.IsSounding() {
			continue
		}
		p.Generate(frames)
		if src := p.Output(); len(src) == count {
			vek32.Add_Inplace(out, src)
		}
	}

	vek32.MulNumber_Inplace(out, float32(m.Volume()))
	m.fxMu.Lock()
	m.chain.ProcessInterleaved(out)
	m.fxMu.Unlock()
	return count
}

// Process fills dst entirely.
func (m *Master) Process(dst []float32) int {
	return m.Read(dst, 0, len(dst))
}

func (m *Master) SetVolume(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return ErrInvalidVolume
	}
	atomic.StoreUint64(&m.volume, math.Float64bits(v))
	return nil
}

func (m *Master) Volume() float64 {
	return math.Float64frombits(atomic.LoadUint64(&m.volume))
}

func (m *Master) SetThreshold(v float64) error {
	m.fxMu.Lock()
	defer m.fxMu.Unlock()
	return m.comp.SetThreshold(v)
}

func (m *Master) SetRatio(v float64) error {
	m.fxMu.Lock()
	defer m.fxMu.Unlock()
	return m.comp.SetRatio(v)
}

// Dropped returns how many handles addressed a part outside 1..PartCount.
func (m *Master) Dropped() int64 { return m.dropped.Load() }

func (m *Master) PartCount() int { return len(m.parts) }

// Part returns the 1-based part i. Its state must only be read from the
// render goroutine or while no Read is in progress.
func (m *Master) Part(i int) *part.Part {
	if i < 1 || i > len(m.parts) {
		return nil
	}
	return m.parts[i-1]
}

// Sounding returns the number of parts whose envelope is not silent.
func (m *Master) Sounding() int {
	n := 0
	for _, p := range m.parts {
		if p.IsSounding() {
			n++
		}
	}
	return n
}

func (m *Master) Cache() *waveform.TableCache { return m.cache }

// Peak returns the largest absolute sample value in buf.
func Peak(buf []float32) float32 {
	if len(buf) == 0 {
		return 0
	}
	return max(vek32.Max(buf), -vek32.Min(buf))
}
