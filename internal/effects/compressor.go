package effects

import (
	"errors"
	"math"
)

const (
	DefaultThreshold = 0.8
	DefaultRatio     = 0.5
)

var (
	ErrInvalidThreshold = errors.New("effects: threshold must be finite and non-negative")
	ErrInvalidRatio     = errors.New("effects: ratio must be finite and non-negative")
	ErrInvalidKnee      = errors.New("effects: threshold and ratio give a non-positive makeup denominator")
)

// Compressor is a stateless soft-knee compressor with makeup gain
// 1/(threshold + (1-threshold)*ratio). Output is clipped to [-1, 1].
type Compressor struct {
	threshold float64
	ratio     float64
	gain      float64
	offset    float64
}

func NewCompressor(threshold, ratio float64) (*Compressor, error) {
	c := &Compressor{}
	if err := c.set(threshold, ratio); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Compressor) SetThreshold(threshold float64) error {
	return c.set(threshold, c.ratio)
}

func (c *Compressor) SetRatio(ratio float64) error {
	return c.set(c.threshold, ratio)
}

func (c *Compressor) set(threshold, ratio float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold < 0 {
		return ErrInvalidThreshold
	}
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio < 0 {
		return ErrInvalidRatio
	}
	denom := threshold + (1-threshold)*ratio
	if denom <= 0 {
		return ErrInvalidKnee
	}
	c.threshold = threshold
	c.ratio = ratio
	c.gain = 1 / denom
	c.offset = threshold * (1 - ratio)
	return nil
}

func (c *Compressor) Threshold() float64 { return c.threshold }
func (c *Compressor) Ratio() float64     { return c.ratio }
func (c *Compressor) Gain() float64      { return c.gain }

// Apply compresses one sample.
func (c *Compressor) Apply(x float64) float64 {
	y := x * c.gain
	if math.Abs(y) > c.threshold {
		y = math.Copysign(c.offset, x) + c.ratio*y
	}
	switch {
	case y > 1:
		return 1
	case y < -1:
		return -1
	case math.IsNaN(y):
		return 0
	}
	return y
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	return float32(c.Apply(float64(l))), float32(c.Apply(float64(r)))
}

func (c *Compressor) Reset() {}
