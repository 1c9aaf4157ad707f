package effects

import (
	"errors"
	"math"
	"testing"
)

func TestCompressorLinearBelowThreshold(t *testing.T) {
	c, err := NewCompressor(0.5, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range []float64{0, 0.1, -0.2, 0.3} {
		want := x * c.Gain()
		if math.Abs(want) > c.Threshold() {
			continue
		}
		if got := c.Apply(x); got != want {
			t.Errorf("Apply(%v) = %v, want %v", x, got, want)
		}
	}
}

func TestCompressorKnee(t *testing.T) {
	c, err := NewCompressor(0.5, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	// gain = 1/(0.5+0.5*0.25) = 1.6
	if math.Abs(c.Gain()-1.6) > 1e-12 {
		t.Fatalf("gain = %v, want 1.6", c.Gain())
	}
	x := 0.5
	want := 0.5*(1-0.25) + 0.25*x*1.6
	if got := c.Apply(x); math.Abs(got-want) > 1e-12 {
		t.Fatalf("Apply(%v) = %v, want %v", x, got, want)
	}
	if got := c.Apply(-x); math.Abs(got+want) > 1e-12 {
		t.Fatalf("Apply(%v) = %v, want %v", -x, got, -want)
	}
}

func TestCompressorClamp(t *testing.T) {
	settings := []struct{ thr, ratio float64 }{
		{0.8, 0.5},
		{0, 1},
		{0.2, 3},
		{1, 0},
		{0.5, 0},
	}
	inputs := []float64{-1e9, -4, -1, -0.3, 0, 0.3, 1, 4, 1e9}
	for _, s := range settings {
		c, err := NewCompressor(s.thr, s.ratio)
		if err != nil {
			t.Fatalf("NewCompressor(%v, %v): %v", s.thr, s.ratio, err)
		}
		for _, x := range inputs {
			if got := c.Apply(x); got < -1 || got > 1 {
				t.Errorf("thr=%v ratio=%v: Apply(%v) = %v out of range", s.thr, s.ratio, x, got)
			}
		}
	}
}

func TestCompressorValidation(t *testing.T) {
	tests := []struct {
		name     string
		thr, rat float64
		want     error
	}{
		{"negative threshold", -0.1, 0.5, ErrInvalidThreshold},
		{"nan threshold", math.NaN(), 0.5, ErrInvalidThreshold},
		{"inf ratio", 0.5, math.Inf(1), ErrInvalidRatio},
		{"negative ratio", 0.5, -1, ErrInvalidRatio},
		{"zero denominator", 0, 0, ErrInvalidKnee},
		{"negative denominator", 2, 3, ErrInvalidKnee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCompressor(tt.thr, tt.rat); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	c, _ := NewCompressor(DefaultThreshold, DefaultRatio)
	if err := c.SetRatio(-2); !errors.Is(err, ErrInvalidRatio) {
		t.Fatalf("SetRatio err = %v", err)
	}
	if c.Ratio() != DefaultRatio {
		t.Fatal("failed SetRatio changed the ratio")
	}
	if err := c.SetThreshold(0.4); err != nil || c.Threshold() != 0.4 {
		t.Fatalf("SetThreshold: err=%v thr=%v", err, c.Threshold())
	}
}

type scale float32

func (s scale) Process(l, r float32) (float32, float32) { return l * float32(s), r * float32(s) }
func (s scale) Reset()                                  {}

func TestChainAppliesEffectsInOrder(t *testing.T) {
	comp, _ := NewCompressor(1, 1)
	c := NewChain(scale(4), comp)
	l, r := c.Process(0.5, -0.5)
	if l != 1 || r != -1 {
		t.Fatalf("chain output = (%v, %v), want (1, -1)", l, r)
	}
	c = NewChain(comp)
	c.Add(scale(0.5))
	l, _ = c.Process(0.5, 0)
	if l != 0.25 {
		t.Fatalf("chain output = %v, want 0.25", l)
	}
}

func TestChainInterleaved(t *testing.T) {
	buf := []float32{0.1, 0.2, 0.3, 0.4, 0.5}
	NewChain().ProcessInterleaved(buf)
	if buf[0] != 0.1 {
		t.Fatal("empty chain changed samples")
	}
	c := NewChain(scale(2))
	c.Add(scale(0.5), scale(3))
	if c.Len() != 3 {
		t.Fatalf("len = %d", c.Len())
	}
	c.ProcessInterleaved(buf)
	want := []float32{0.1 * 3, 0.2 * 3, 0.3 * 3, 0.4 * 3, 0.5}
	for i := range want {
		if diff := buf[i] - want[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("sample %d = %v, want %v", i, buf[i], want[i])
		}
	}
}
