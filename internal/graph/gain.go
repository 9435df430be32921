package graph

import "math"

// GainNode scales its summed input by Gain.
type GainNode struct {
	node
	Gain *Param
}

// NewGain creates a unity gain node.
func (c *Context) NewGain() *GainNode {
	g := &GainNode{Gain: c.newParam(1, math.Inf(-1), math.Inf(1))}
	g.init(c, g)
	return g
}

func (g *GainNode) process(in, out *Bus) {
	v := g.Gain.values()
	for ch := range out {
		for i := range out[ch] {
			out[ch][i] = in[ch][i] * v[i]
		}
	}
}
