package graph

import (
	"math"

	"github.com/madelynnblue/go-dsp/fft"
)

// ConvolverPartition is the block size of the partitioned convolution.
// The wet signal lags the input by one partition.
const ConvolverPartition = 1024

// ConvolverNode convolves each channel with the matching channel of an
// impulse response using uniformly partitioned FFT overlap-add.
type ConvolverNode struct {
	node

	parts [2][][]complex128 // impulse spectra
	fdl   [2][][]complex128 // input spectra, nil for silent blocks
	head  int

	inBlock  [2][]float64
	outBlock [2][]float64
	overlap  [2][]float64
	pos      int
	silent   int
}

// NewConvolver creates a convolver with no impulse; it outputs silence
// until SetImpulse is called.
func (c *Context) NewConvolver() *ConvolverNode {
	cv := &ConvolverNode{}
	for ch := range 2 {
		cv.inBlock[ch] = make([]float64, ConvolverPartition)
		cv.outBlock[ch] = make([]float64, ConvolverPartition)
		cv.overlap[ch] = make([]float64, ConvolverPartition)
	}
	cv.init(c, cv)
	return cv
}

// SetImpulse installs a stereo impulse response, normalized so that
// impulses of different loudness produce a comparable wet level.
func (cv *ConvolverNode) SetImpulse(ir [2][]float64) {
	scale := impulseScale(ir, cv.ctx.sampleRate)

	var parts [2][][]complex128
	for ch := range ir {
		for off := 0; off < len(ir[ch]); off += ConvolverPartition {
			block := make([]complex128, 2*ConvolverPartition)
			end := min(off+ConvolverPartition, len(ir[ch]))
			for i, v := range ir[ch][off:end] {
				block[i] = complex(v*scale, 0)
			}
			parts[ch] = append(parts[ch], fft.FFT(block))
		}
	}

	cv.ctx.mu.Lock()
	defer cv.ctx.mu.Unlock()
	cv.parts = parts
	for ch := range 2 {
		cv.fdl[ch] = make([][]complex128, len(parts[ch]))
		clear(cv.overlap[ch])
	}
	cv.head = 0
	cv.silent = 0
}

const (
	minImpulsePower = 0.000125
	gainCalibration = 0.00125
	calibrationRate = 44100.0
)

func impulseScale(ir [2][]float64, sr float64) float64 {
	var power float64
	var n int
	for ch := range ir {
		for _, v := range ir[ch] {
			power += v * v
		}
		n += len(ir[ch])
	}
	if n == 0 {
		return 1
	}
	power = math.Sqrt(power / float64(n))
	if math.IsNaN(power) || math.IsInf(power, 0) || power < minImpulsePower {
		power = minImpulsePower
	}
	return gainCalibration / power * calibrationRate / sr
}

func (cv *ConvolverNode) process(in, out *Bus) {
	for i := 0; i < Quantum; i++ {
		for ch := range out {
			out[ch][i] = cv.outBlock[ch][cv.pos]
			cv.inBlock[ch][cv.pos] = in[ch][i]
		}
		cv.pos++
		if cv.pos == ConvolverPartition {
			cv.flushBlock()
			cv.pos = 0
		}
	}
}

func (cv *ConvolverNode) flushBlock() {
	n := len(cv.parts[0])
	if n == 0 {
		for ch := range 2 {
			clear(cv.outBlock[ch])
		}
		return
	}

	quiet := true
	for ch := range 2 {
		for _, v := range cv.inBlock[ch] {
			if v != 0 {
				quiet = false
				break
			}
		}
	}
	if quiet {
		cv.silent++
	} else {
		cv.silent = 0
	}

	// Tail fully decayed and nothing new: skip the transforms.
	if cv.silent > n {
		for ch := range 2 {
			clear(cv.outBlock[ch])
			cv.fdl[ch][cv.head] = nil
		}
		cv.head = (cv.head + 1) % n
		return
	}

	for ch := range 2 {
		if quiet {
			cv.fdl[ch][cv.head] = nil
		} else {
			x := make([]complex128, 2*ConvolverPartition)
			for i, v := range cv.inBlock[ch] {
				x[i] = complex(v, 0)
			}
			cv.fdl[ch][cv.head] = fft.FFT(x)
		}

		acc := make([]complex128, 2*ConvolverPartition)
		parts := cv.parts[ch]
		for k := range parts {
			spec := cv.fdl[ch][wrap(cv.head-k, n)]
			if spec == nil {
				continue
			}
			h := parts[k]
			for i := range acc {
				acc[i] += spec[i] * h[i]
			}
		}
		y := fft.IFFT(acc)
		for i := 0; i < ConvolverPartition; i++ {
			cv.outBlock[ch][i] = real(y[i]) + cv.overlap[ch][i]
			cv.overlap[ch][i] = real(y[i+ConvolverPartition])
		}
	}
	cv.head = (cv.head + 1) % n
}
