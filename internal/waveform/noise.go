package waveform

import (
	"math"
	"math/rand"

	"github.com/cbegin/midisynth-go/internal/handle"
)

const (
	shortLFSRBits = 7
	longLFSRBits  = 15

	defaultNoiseLength = 4096
	maxNoiseLength     = 65535
)

// LFSRPeriod returns the sequence length of a maximal n-bit register.
func LFSRPeriod(bits int) int { return 1<<bits - 1 }

// lfsrRaw runs a maximal x^n + x^(n-1) + 1 register from state 1 for one full
// period and records its low bit.
func lfsrRaw(bits int) []byte {
	period := LFSRPeriod(bits)
	raw := make([]byte, period)
	reg := uint32(1)
	for i := range raw {
		if reg&1 != 0 {
			raw[i] = 0xFF
		}
		reg = lfsrStep(reg, bits)
	}
	return raw
}

func lfsrStep(reg uint32, bits int) uint32 {
	fb := (reg ^ reg>>1) & 1
	return reg>>1 | fb<<(bits-1)
}

type lfsrNoise struct {
	stepTable
	typ handle.WaveformType
}

func newLFSRNoise(t handle.WaveformType, cache *TableCache) *lfsrNoise {
	bits := longLFSRBits
	if t == handle.WaveShortNoise {
		bits = shortLFSRBits
	}
	n := &lfsrNoise{stepTable: stepTable{freqFactor: 1}, typ: t}
	n.table = cache.Lookup(TableKey{Type: t, Param: bits}, false, func() []float64 {
		return Normalize(lfsrRaw(bits))
	})
	return n
}

func (n *lfsrNoise) Generate(dst, freq, phase []float64, count int) {
	n.generate(dst, freq, phase, count)
}

func (n *lfsrNoise) Edit(e handle.EditWaveform) { n.edit(e) }

func (n *lfsrNoise) Type() handle.WaveformType { return n.typ }

// randomNoise is a seeded pseudo-random table of configurable length.
type randomNoise struct {
	stepTable
	cache  *TableCache
	seed   int64
	length int
}

func newRandomNoise(cache *TableCache) *randomNoise {
	n := &randomNoise{
		stepTable: stepTable{freqFactor: 1},
		cache:     cache,
		length:    defaultNoiseLength,
	}
	n.rebuild()
	return n
}

func (n *randomNoise) rebuild() {
	seed, length := n.seed, n.length
	n.table = n.cache.Lookup(TableKey{Type: handle.WaveRandomNoise, Param: length, Seed: seed}, false, func() []float64 {
		return Normalize(randomRaw(seed, length))
	})
}

func randomRaw(seed int64, length int) []byte {
	r := rand.New(rand.NewSource(seed))
	raw := make([]byte, length)
	for i := range raw {
		raw[i] = byte(r.Intn(256))
	}
	return raw
}

func (n *randomNoise) Generate(dst, freq, phase []float64, count int) {
	n.generate(dst, freq, phase, count)
}

func (n *randomNoise) Edit(e handle.EditWaveform) {
	if n.edit(e) || !finite(e.Value) {
		return
	}
	switch e.Param {
	case handle.EditSeed:
		n.seed = int64(e.Value)
		n.rebuild()
	case handle.EditLength:
		n.length = int(math.Max(1, math.Min(e.Value, maxNoiseLength)))
		n.rebuild()
	}
}

func (n *randomNoise) Type() handle.WaveformType { return handle.WaveRandomNoise }
