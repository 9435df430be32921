package effects

import (
	"math"
	"math/rand/v2"

	"github.com/satindergrewal/blancdj/internal/graph"
)

const (
	reverbSeconds = 2.0
	reverbDecay   = 2.0
	reverbDryDip  = 0.5
)

// Reverb convolves its input with a synthetic decaying-noise impulse and
// blends the result with the dry signal. The wet path starts muted.
type Reverb struct {
	in   *graph.GainNode
	out  *graph.GainNode
	conv *graph.ConvolverNode
	wet  *graph.GainNode
	dry  *graph.GainNode
}

// NewReverb builds a reverb with a 2 second impulse.
func NewReverb(ctx *graph.Context) *Reverb {
	r := &Reverb{
		in:   ctx.NewGain(),
		out:  ctx.NewGain(),
		conv: ctx.NewConvolver(),
		wet:  ctx.NewGain(),
		dry:  ctx.NewGain(),
	}
	r.conv.SetImpulse(Impulse(ctx.SampleRate(), reverbSeconds, reverbDecay, rand.Float64))
	r.wet.Gain.SetValue(0)

	r.in.Connect(r.dry)
	r.dry.Connect(r.out)

	r.conv.Connect(r.wet)
	r.wet.Connect(r.out)
	return r
}

func (r *Reverb) Input() graph.Node  { return r.in }
func (r *Reverb) Output() graph.Node { return r.out }

// SetMix sets the wet level in [0,1]. Dry drops by up to 50% at full wet.
// At zero the convolver is fed silence so its tail decays and it idles.
func (r *Reverb) SetMix(v float64) {
	wet := clamp(v, 0, 1)
	r.wet.Gain.SetValue(wet)
	r.dry.Gain.SetValue(1 - wet*reverbDryDip)
	if wet > 0 {
		r.in.Connect(r.conv)
	} else {
		r.in.DisconnectFrom(r.conv)
	}
}

// Mix returns the wet and dry gains.
func (r *Reverb) Mix() (wet, dry float64) {
	return r.wet.Gain.Value(), r.dry.Gain.Value()
}

// Impulse generates seconds of stereo noise shaped by (1 - t)^decay.
// Each channel gets independent noise from rnd, which returns values in [0,1).
func Impulse(rate int, seconds, decay float64, rnd func() float64) [2][]float64 {
	n := int(float64(rate) * seconds)
	var ir [2][]float64
	for ch := range ir {
		ir[ch] = make([]float64, n)
		for i := range ir[ch] {
			env := math.Pow(1-float64(i)/float64(n), decay)
			ir[ch][i] = (rnd()*2 - 1) * env
		}
	}
	return ir
}
