package graph

import (
	"math"
	"math/cmplx"
)

// FilterType selects the biquad response.
type FilterType int

const (
	Lowshelf FilterType = iota
	Highshelf
	Peaking
)

func (t FilterType) String() string {
	switch t {
	case Lowshelf:
		return "lowshelf"
	case Highshelf:
		return "highshelf"
	case Peaking:
		return "peaking"
	}
	return "unknown"
}

// BiquadNode is a second-order IIR filter using the Audio EQ Cookbook
// formulas. Shelves use a slope of 1; Q only affects peaking filters.
// Coefficients are recomputed once per quantum.
type BiquadNode struct {
	node
	Type      FilterType
	Frequency *Param
	Q         *Param
	Gain      *Param // dB

	coef           coefficients
	x1, x2, y1, y2 [2]float64
}

type coefficients struct {
	b0, b1, b2, a1, a2 float64
}

// NewBiquad creates a filter of type t centered at freq with 0 dB gain.
func (c *Context) NewBiquad(t FilterType, freq float64) *BiquadNode {
	nyquist := c.sampleRate / 2
	f := &BiquadNode{
		Type:      t,
		Frequency: c.newParam(freq, 0, nyquist),
		Q:         c.newParam(1, 0.0001, 1000),
		Gain:      c.newParam(0, -40, 40),
	}
	f.init(c, f)
	return f
}

func (f *BiquadNode) process(in, out *Bus) {
	freq := f.Frequency.values()[0]
	q := f.Q.values()[0]
	gain := f.Gain.values()[0]
	f.coef = design(f.Type, f.ctx.sampleRate, freq, q, gain)

	k := f.coef
	for ch := range out {
		x1, x2, y1, y2 := f.x1[ch], f.x2[ch], f.y1[ch], f.y2[ch]
		for i, x := range in[ch] {
			y := k.b0*x + k.b1*x1 + k.b2*x2 - k.a1*y1 - k.a2*y2
			x2, x1 = x1, x
			y2, y1 = y1, y
			out[ch][i] = y
		}
		f.x1[ch], f.x2[ch], f.y1[ch], f.y2[ch] = x1, x2, flush(y1), flush(y2)
	}
}

// flush zeroes denormals so an idle filter tail does not stall the CPU.
func flush(v float64) float64 {
	if math.Abs(v) < 1e-30 {
		return 0
	}
	return v
}

// Response returns the magnitude response in dB at freq for the filter's
// current parameter values.
func (f *BiquadNode) Response(freq float64) float64 {
	f.ctx.mu.Lock()
	k := design(f.Type, f.ctx.sampleRate,
		f.Frequency.clamp(f.Frequency.value), f.Q.clamp(f.Q.value), f.Gain.clamp(f.Gain.value))
	sr := f.ctx.sampleRate
	f.ctx.mu.Unlock()

	w := 2 * math.Pi * freq / sr
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(k.b0, 0) + complex(k.b1, 0)*z1 + complex(k.b2, 0)*z2
	den := 1 + complex(k.a1, 0)*z1 + complex(k.a2, 0)*z2
	return 20 * math.Log10(cmplx.Abs(num/den))
}

func design(t FilterType, sr, freq, q, gainDB float64) coefficients {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sr
	cosw, sinw := math.Cos(w0), math.Sin(w0)

	var b0, b1, b2, a0, a1, a2 float64
	switch t {
	case Peaking:
		alpha := sinw / (2 * q)
		b0 = 1 + alpha*a
		b1 = -2 * cosw
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosw
		a2 = 1 - alpha/a
	case Lowshelf:
		alpha := sinw / 2 * math.Sqrt2
		sa := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cosw + sa)
		b1 = 2 * a * ((a - 1) - (a+1)*cosw)
		b2 = a * ((a + 1) - (a-1)*cosw - sa)
		a0 = (a + 1) + (a-1)*cosw + sa
		a1 = -2 * ((a - 1) + (a+1)*cosw)
		a2 = (a + 1) + (a-1)*cosw - sa
	case Highshelf:
		alpha := sinw / 2 * math.Sqrt2
		sa := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cosw + sa)
		b1 = -2 * a * ((a - 1) + (a+1)*cosw)
		b2 = a * ((a + 1) + (a-1)*cosw - sa)
		a0 = (a + 1) - (a-1)*cosw + sa
		a1 = 2 * ((a - 1) - (a+1)*cosw)
		a2 = (a + 1) - (a-1)*cosw - sa
	}
	return coefficients{b0 / a0, b1 / a0, b2 / a0, a1 / a0, a2 / a0}
}
