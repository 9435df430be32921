package graph

import (
	"math"
	"math/bits"
	"math/cmplx"

	"github.com/madelynnblue/go-dsp/fft"
)

// AnalyserNode passes audio through unchanged and keeps the most recent
// FFTSize frames of its mono downmix for level and spectrum reads.
type AnalyserNode struct {
	node
	ring []float64
	w    int
}

// NewAnalyser creates an analyser. fftSize is rounded up to a power of two.
func (c *Context) NewAnalyser(fftSize int) *AnalyserNode {
	if fftSize < 32 {
		fftSize = 32
	}
	size := 1 << bits.Len(uint(fftSize-1))
	a := &AnalyserNode{ring: make([]float64, size)}
	a.init(c, a)
	return a
}

// FFTSize returns the analysis window length.
func (a *AnalyserNode) FFTSize() int { return len(a.ring) }

func (a *AnalyserNode) process(in, out *Bus) {
	*out = *in
	n := len(a.ring)
	for i := 0; i < Quantum; i++ {
		a.ring[a.w] = (in[0][i] + in[1][i]) / 2
		a.w = (a.w + 1) % n
	}
}

// RMS returns the root mean square of the analysis window.
func (a *AnalyserNode) RMS() float64 {
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()
	var sum float64
	for _, v := range a.ring {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(a.ring)))
}

// TimeDomain returns the analysis window, oldest frame first.
func (a *AnalyserNode) TimeDomain() []float64 {
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()
	out := make([]float64, 0, len(a.ring))
	out = append(out, a.ring[a.w:]...)
	return append(out, a.ring[:a.w]...)
}

// Spectrum returns FFTSize/2 magnitude bins in dB of the Blackman-windowed
// analysis window.
func (a *AnalyserNode) Spectrum() []float64 {
	x := a.TimeDomain()
	n := len(x)
	for i := range x {
		t := float64(i) / float64(n)
		x[i] *= 0.42 - 0.5*math.Cos(2*math.Pi*t) + 0.08*math.Cos(4*math.Pi*t)
	}
	spec := fft.FFTReal(x)
	out := make([]float64, n/2)
	for i := range out {
		mag := cmplx.Abs(spec[i]) / float64(n)
		out[i] = 20 * math.Log10(math.Max(mag, 1e-10))
	}
	return out
}

// ByteSpectrum maps Spectrum onto 0..255 between minDB and maxDB.
func (a *AnalyserNode) ByteSpectrum(minDB, maxDB float64) []byte {
	spec := a.Spectrum()
	out := make([]byte, len(spec))
	for i, db := range spec {
		v := (db - minDB) / (maxDB - minDB) * 255
		out[i] = byte(math.Max(0, math.Min(255, v)))
	}
	return out
}
