// Package deck implements one playback unit of the mixer: a transport over a
// decoded buffer or live stream, a fixed effects chain, a volume stage with a
// level tap, and a four-slot one-shot sampler.
//
// Position is never counted per frame. While playing, the elapsed position
// is derived from the graph clock as (now - startedAt) * rate, and startedAt
// is re-anchored on every resume and rate change.
package deck

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gopxl/beep/v2"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/effects"
	"github.com/satindergrewal/blancdj/internal/graph"
)

// State is the transport state of a deck.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	// NumSlots is the number of sampler slots per deck.
	NumSlots = 4

	DefaultVolume = 0.8
	MinRate       = 0.05
	MaxRate       = 4.0

	brakeDuration = 1.0
	brakeFloor    = 0.001
	volumeTau     = 0.01
	analyserSize  = 2048
)

// Events are the callbacks a deck emits to its collaborator. All are
// optional and run on the render goroutine without any deck lock held.
type Events struct {
	// OnTrackEnd fires when a buffer source plays to its end without a loop.
	OnTrackEnd func()
	// OnLevel reports the output RMS level at the meter rate.
	OnLevel func(level float64)
	// OnTime reports the transport position at the meter rate.
	OnTime func(pos, dur float64)
	// OnDecodeError reports a failed Load or LoadSample.
	OnDecodeError func(err error)
}

// Options tune a new deck.
type Options struct {
	// MeterRate is how often OnLevel and OnTime fire, in Hz. Zero disables
	// metering.
	MeterRate float64
	// GateThreshold overrides the noise gate's default threshold when non-zero.
	GateThreshold float64
}

// Deck is one playback unit. Its chain is wired once at construction:
// source → EQ → isolator → gate → delay → reverb → volume → analyser → output.
// Sampler voices bypass the chain and feed the output directly.
type Deck struct {
	id  string
	ctx *graph.Context

	eq       *effects.EQ
	isolator *effects.Isolator
	gate     *effects.NoiseGate
	delay    *effects.Delay
	reverb   *effects.Reverb
	chainIn  graph.Node
	volume   *graph.GainNode
	analyser *graph.AnalyserNode
	out      *graph.GainNode
	meter    *graph.Timer

	mu        sync.Mutex
	events    Events
	buffer    *audio.Buffer
	live      beep.Streamer
	src       *graph.BufferSourceNode
	liveSrc   *graph.StreamSourceNode
	state     State
	pausedAt  float64
	startedAt float64
	rate      float64
	vol       float64
	loop      loopRegion
	brake     *brakeState
	slots     [NumSlots]slot
}

// New builds a deck on ctx and wires its chain. id is used in logs.
func New(ctx *graph.Context, id string, opts Options) *Deck {
	d := &Deck{
		id:       id,
		ctx:      ctx,
		eq:       effects.NewEQ(ctx),
		isolator: effects.NewIsolator(ctx),
		gate:     effects.NewNoiseGate(ctx),
		delay:    effects.NewDelay(ctx),
		reverb:   effects.NewReverb(ctx),
		volume:   ctx.NewGain(),
		analyser: ctx.NewAnalyser(analyserSize),
		out:      ctx.NewGain(),
		rate:     1,
		vol:      DefaultVolume,
	}
	if opts.GateThreshold != 0 {
		d.gate.SetThreshold(opts.GateThreshold)
	}
	for i := range d.slots {
		d.slots[i].voices = make(map[int]*graph.BufferSourceNode)
	}

	in, chainOut := effects.Chain(d.eq, d.isolator, d.gate, d.delay, d.reverb)
	d.chainIn = in
	chainOut.Connect(d.volume)
	d.volume.Gain.SetValue(DefaultVolume)
	d.volume.Connect(d.analyser)
	d.analyser.Connect(d.out)

	if opts.MeterRate > 0 {
		d.meter = ctx.Every(1/opts.MeterRate, d.tick)
	}
	return d
}

// ID returns the deck's identifier.
func (d *Deck) ID() string { return d.id }

// Output is the deck's output port, fed to the crossfader.
func (d *Deck) Output() graph.Node { return d.out }

// Analyser is the deck's post-volume level tap.
func (d *Deck) Analyser() *graph.AnalyserNode { return d.analyser }

// SetEvents replaces the deck's callbacks.
func (d *Deck) SetEvents(ev Events) {
	d.mu.Lock()
	d.events = ev
	d.mu.Unlock()
}

// Close stops playback, sampler voices and periodic work.
func (d *Deck) Close() {
	d.Stop()
	for i := range d.slots {
		d.UnloadSample(i)
	}
	d.meter.Stop()
	d.gate.Close()
}

// Level returns the current output RMS level.
func (d *Deck) Level() float64 { return d.analyser.RMS() }

func (d *Deck) tick() {
	d.mu.Lock()
	ev := d.events
	d.mu.Unlock()
	if ev.OnLevel != nil {
		ev.OnLevel(d.Level())
	}
	if ev.OnTime != nil {
		ev.OnTime(d.CurrentTime(), d.Duration())
	}
}

func (d *Deck) decodeFailed(err error) {
	slog.Warn("decode failed", "deck", d.id, "err", err)
	d.mu.Lock()
	fn := d.events.OnDecodeError
	d.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// SetVolume glides the deck volume toward v in [0,1].
func (d *Deck) SetVolume(v float64) {
	v = clamp(v, 0, 1)
	d.mu.Lock()
	d.vol = v
	d.mu.Unlock()
	d.volume.Gain.SetTargetAtTime(v, d.ctx.CurrentTime(), volumeTau)
}

// Volume returns the volume most recently requested.
func (d *Deck) Volume() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vol
}

// SetEQGain sets one graphic EQ band in dB.
func (d *Deck) SetEQGain(band int, db float64) { d.eq.SetGain(band, db) }

// EQGain returns one graphic EQ band in dB.
func (d *Deck) EQGain(band int) float64 { return d.eq.Gain(band) }

// ApplyEQPreset sets every EQ band from a named preset.
func (d *Deck) ApplyEQPreset(name string) error {
	p, err := effects.LookupPreset(name)
	if err != nil {
		return err
	}
	d.eq.Apply(p)
	return nil
}

// SetIsolatorGain sets an isolator band from a knob value in [0,1].
func (d *Deck) SetIsolatorGain(band effects.Band, v float64) { d.isolator.SetGain(band, v) }

// IsolatorGain returns an isolator band's current gain in dB.
func (d *Deck) IsolatorGain(band effects.Band) float64 { return d.isolator.Gain(band) }

func (d *Deck) SetDelayMix(v float64)        { d.delay.SetMix(v) }
func (d *Deck) SetDelayTime(seconds float64) { d.delay.SetTime(seconds) }
func (d *Deck) SetDelayFeedback(v float64)   { d.delay.SetFeedback(v) }
func (d *Deck) SetReverbMix(v float64)       { d.reverb.SetMix(v) }
func (d *Deck) SetGateThreshold(db float64)  { d.gate.SetThreshold(db) }
func (d *Deck) SetGateEnabled(on bool)       { d.gate.SetEnabled(on) }

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
