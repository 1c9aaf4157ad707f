// Package effects holds the master output stage: a soft-knee compressor and
// a chain that runs user effects ahead of it.
package effects

import "slices"

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies effects in insertion order. It is not safe for concurrent
// use.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: slices.Clone(effects)}
}

func (c *Chain) Add(e ...Effector) {
	c.effects = append(c.effects, e...)
}

func (c *Chain) Len() int { return len(c.effects) }

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

// ProcessInterleaved runs the chain in place over interleaved stereo
// samples. A trailing odd sample is left untouched.
func (c *Chain) ProcessInterleaved(buf []float32) {
	if len(c.effects) == 0 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = c.Process(buf[i], buf[i+1])
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}
