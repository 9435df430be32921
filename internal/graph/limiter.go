package graph

import (
	"math"

	"github.com/satindergrewal/blancdj/internal/audio"
)

// LimiterNode is a brick-wall peak limiter with instant attack and an
// exponential release. Both channels share one gain so the stereo image
// holds.
type LimiterNode struct {
	node
	ceiling float64
	release float64 // per-sample smoothing coefficient
	gain    float64
	minGain float64 // deepest reduction since the last Reduction call
}

// NewLimiter creates a limiter holding peaks at ceilingDB dBFS and
// recovering with time constant release seconds.
func (c *Context) NewLimiter(ceilingDB, release float64) *LimiterNode {
	l := &LimiterNode{
		ceiling: audio.DBToGain(ceilingDB),
		release: 1 - math.Exp(-1/(c.sampleRate*release)),
		gain:    1,
		minGain: 1,
	}
	l.init(c, l)
	return l
}

func (l *LimiterNode) process(in, out *Bus) {
	for i := 0; i < Quantum; i++ {
		peak := math.Max(math.Abs(in[0][i]), math.Abs(in[1][i]))
		want := 1.0
		if peak > l.ceiling {
			want = l.ceiling / peak
		}
		if want < l.gain {
			l.gain = want
		} else {
			l.gain += (want - l.gain) * l.release
		}
		l.minGain = math.Min(l.minGain, l.gain)
		out[0][i] = in[0][i] * l.gain
		out[1][i] = in[1][i] * l.gain
	}
}

// Reduction returns the deepest gain reduction in dB since the previous
// call, as a non-negative number.
func (l *LimiterNode) Reduction() float64 {
	l.ctx.mu.Lock()
	defer l.ctx.mu.Unlock()
	g := l.minGain
	l.minGain = l.gain
	return -audio.GainToDB(g)
}
