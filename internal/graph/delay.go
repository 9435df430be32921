package graph

import "math"

// DelayNode delays its input by DelayTime seconds, read with linear
// interpolation. Output is produced before inputs are pulled, so a feedback
// loop through a DelayNode is legal; the effective delay is never shorter
// than one quantum.
type DelayNode struct {
	node
	DelayTime *Param

	buf [2][]float64
	w   int
}

// NewDelay creates a delay line able to hold maxDelay seconds.
func (c *Context) NewDelay(maxDelay float64) *DelayNode {
	size := int(math.Ceil(maxDelay*c.sampleRate)) + 2*Quantum + 2
	d := &DelayNode{DelayTime: c.newParam(0, 0, maxDelay)}
	d.buf[0] = make([]float64, size)
	d.buf[1] = make([]float64, size)
	d.init(c, d)
	return d
}

func (d *DelayNode) emit(out *Bus) {
	times := d.DelayTime.values()
	size := len(d.buf[0])
	minDelay := float64(Quantum)
	maxDelay := float64(size - Quantum - 2)
	for i := 0; i < Quantum; i++ {
		lag := math.Min(math.Max(times[i]*d.ctx.sampleRate, minDelay), maxDelay)
		pos := float64(d.w+i) - lag
		base := math.Floor(pos)
		frac := pos - base
		i0 := wrap(int(base), size)
		i1 := wrap(int(base)+1, size)
		for ch := range out {
			out[ch][i] = d.buf[ch][i0]*(1-frac) + d.buf[ch][i1]*frac
		}
	}
}

func (d *DelayNode) absorb(in *Bus) {
	size := len(d.buf[0])
	for i := 0; i < Quantum; i++ {
		j := (d.w + i) % size
		d.buf[0][j] = in[0][i]
		d.buf[1][j] = in[1][i]
	}
	d.w = (d.w + Quantum) % size
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}
