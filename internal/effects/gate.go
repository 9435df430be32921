package effects

import (
	"sync"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/graph"
)

const (
	DefaultGateThreshold = -50.0
	MinGateThreshold     = -60.0
	MaxGateThreshold     = -10.0

	gateAttack    = 0.003
	gateRelease   = 0.25
	gateWindow    = 512
	gatePoll      = 1.0 / 60
	gateBypassTau = 0.01
)

// NoiseGate mutes its output while the input's RMS level sits below a
// threshold. The level is polled at 60 Hz on the graph clock; the gain
// follows with separate attack and release time constants.
type NoiseGate struct {
	ctx      *graph.Context
	in       *graph.GainNode
	out      *graph.GainNode
	analyser *graph.AnalyserNode
	gain     *graph.GainNode
	timer    *graph.Timer

	mu        sync.Mutex
	threshold float64
	enabled   bool
}

// NewNoiseGate builds an enabled gate at -50 dB and starts polling.
func NewNoiseGate(ctx *graph.Context) *NoiseGate {
	g := &NoiseGate{
		ctx:       ctx,
		in:        ctx.NewGain(),
		out:       ctx.NewGain(),
		analyser:  ctx.NewAnalyser(gateWindow),
		gain:      ctx.NewGain(),
		threshold: DefaultGateThreshold,
		enabled:   true,
	}
	g.in.Connect(g.analyser)
	g.analyser.Connect(g.gain)
	g.gain.Connect(g.out)
	g.timer = ctx.Every(gatePoll, g.poll)
	return g
}

func (g *NoiseGate) Input() graph.Node  { return g.in }
func (g *NoiseGate) Output() graph.Node { return g.out }

// SetThreshold sets the open level in dB, clamped to [-60, -10].
func (g *NoiseGate) SetThreshold(db float64) {
	g.mu.Lock()
	g.threshold = clamp(db, MinGateThreshold, MaxGateThreshold)
	g.mu.Unlock()
}

// Threshold returns the open level in dB.
func (g *NoiseGate) Threshold() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.threshold
}

// SetEnabled toggles gating. Disabling opens the gate.
func (g *NoiseGate) SetEnabled(on bool) {
	g.mu.Lock()
	g.enabled = on
	g.mu.Unlock()
	if !on {
		g.gain.Gain.SetTargetAtTime(1, g.ctx.CurrentTime(), gateBypassTau)
	}
}

// Enabled reports whether gating is active.
func (g *NoiseGate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Level returns the gain currently applied by the gate.
func (g *NoiseGate) Level() float64 { return g.gain.Gain.Value() }

// Close stops polling.
func (g *NoiseGate) Close() { g.timer.Stop() }

func (g *NoiseGate) poll() {
	g.mu.Lock()
	enabled, threshold := g.enabled, g.threshold
	g.mu.Unlock()
	if !enabled {
		return
	}

	db := audio.GainToDB(g.analyser.RMS())

	target := 1.0
	if db < threshold {
		target = 0
	}
	tau := gateRelease
	if target > g.gain.Gain.Value() {
		tau = gateAttack
	}
	g.gain.Gain.SetTargetAtTime(target, g.ctx.CurrentTime(), tau)
}
