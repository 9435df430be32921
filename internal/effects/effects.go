// Package effects holds the per-deck signal units. Each unit exposes one
// input port and one output port on the shared graph and a small parameter
// surface; parameter changes are scheduled against the graph clock.
package effects

import (
	"math"

	"github.com/satindergrewal/blancdj/internal/graph"
)

// Unit is a self-contained effect with one input and one output.
type Unit interface {
	Input() graph.Node
	Output() graph.Node
}

// Chain connects units in order and returns the first input and last output.
func Chain(units ...Unit) (in, out graph.Node) {
	for i := 0; i+1 < len(units); i++ {
		units[i].Output().Connect(units[i+1].Input())
	}
	return units[0].Input(), units[len(units)-1].Output()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
