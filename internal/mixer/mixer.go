// Package mixer blends the two decks through an equal-power crossfader into
// the master bus: master volume, a brick-wall limiter and a level tap, then
// the graph destination. A microphone channel joins the master bus directly.
package mixer

import (
	"sync"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/graph"
)

const (
	DefaultPosition     = 0.5
	DefaultMasterVolume = 1.0

	// LimiterCeiling is the master peak ceiling in dBFS.
	LimiterCeiling = -0.3
	limiterRelease = 0.1

	fadeTau        = 0.01
	masterTau      = 0.01
	masterAnalyser = 2048
)

// Crossfader feeds two inputs into one output with equal-power gains.
type Crossfader struct {
	ctx *graph.Context
	a   *graph.GainNode
	b   *graph.GainNode
	out *graph.GainNode

	mu  sync.Mutex
	pos float64
}

// NewCrossfader builds a crossfader centered at 0.5.
func NewCrossfader(ctx *graph.Context) *Crossfader {
	x := &Crossfader{
		ctx: ctx,
		a:   ctx.NewGain(),
		b:   ctx.NewGain(),
		out: ctx.NewGain(),
	}
	x.a.Connect(x.out)
	x.b.Connect(x.out)
	ga, gb := audio.EqualPower(DefaultPosition)
	x.a.Gain.SetValue(ga)
	x.b.Gain.SetValue(gb)
	x.pos = DefaultPosition
	return x
}

func (x *Crossfader) InputA() graph.Node { return x.a }
func (x *Crossfader) InputB() graph.Node { return x.b }
func (x *Crossfader) Output() graph.Node { return x.out }

// SetPosition moves the fader to p in [0,1] (0 = all A). Both gains glide
// toward their targets with a 10 ms time constant.
func (x *Crossfader) SetPosition(p float64) {
	p = max(0, min(1, p))
	x.mu.Lock()
	x.pos = p
	x.mu.Unlock()
	ga, gb := audio.EqualPower(p)
	now := x.ctx.CurrentTime()
	x.a.Gain.SetTargetAtTime(ga, now, fadeTau)
	x.b.Gain.SetTargetAtTime(gb, now, fadeTau)
}

// Position returns the fader position.
func (x *Crossfader) Position() float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.pos
}

// Gains returns the target gains for the current position.
func (x *Crossfader) Gains() (a, b float64) {
	return audio.EqualPower(x.Position())
}

// Applied returns the gains currently rendered, which trail the targets
// while a move settles.
func (x *Crossfader) Applied() (a, b float64) {
	return x.a.Gain.Value(), x.b.Gain.Value()
}

// Master is the shared output bus. It is written only by the crossfader and
// the microphone channel and read by everything downstream of the graph.
type Master struct {
	ctx      *graph.Context
	in       *graph.GainNode
	limiter  *graph.LimiterNode
	analyser *graph.AnalyserNode

	mu  sync.Mutex
	vol float64
}

// NewMaster builds the master bus and connects it to the destination.
func NewMaster(ctx *graph.Context) *Master {
	m := &Master{
		ctx:      ctx,
		in:       ctx.NewGain(),
		limiter:  ctx.NewLimiter(LimiterCeiling, limiterRelease),
		analyser: ctx.NewAnalyser(masterAnalyser),
		vol:      DefaultMasterVolume,
	}
	m.in.Connect(m.limiter)
	m.limiter.Connect(m.analyser)
	m.analyser.Connect(ctx.Destination())
	return m
}

// Input is the bus summing point.
func (m *Master) Input() graph.Node { return m.in }

// SetVolume glides the master gain toward v in [0,1].
func (m *Master) SetVolume(v float64) {
	v = max(0, min(1, v))
	m.mu.Lock()
	m.vol = v
	m.mu.Unlock()
	m.in.Gain.SetTargetAtTime(v, m.ctx.CurrentTime(), masterTau)
}

// Volume returns the requested master volume.
func (m *Master) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vol
}

// Analyser is the post-limiter level tap.
func (m *Master) Analyser() *graph.AnalyserNode { return m.analyser }

// Level returns the master RMS level.
func (m *Master) Level() float64 { return m.analyser.RMS() }

// Reduction returns the deepest limiter gain reduction in dB since the last
// call.
func (m *Master) Reduction() float64 { return m.limiter.Reduction() }

// Mixer is the crossfader wired into the master bus.
type Mixer struct {
	Crossfader *Crossfader
	Master     *Master
}

// New builds the crossfader and master bus and routes deck outputs a and b
// into the crossfader inputs.
func New(ctx *graph.Context, a, b graph.Node) *Mixer {
	x := NewCrossfader(ctx)
	m := NewMaster(ctx)
	x.Output().Connect(m.Input())
	a.Connect(x.InputA())
	b.Connect(x.InputB())
	return &Mixer{Crossfader: x, Master: m}
}
