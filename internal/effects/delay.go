package effects

import "github.com/satindergrewal/blancdj/internal/graph"

const (
	MaxDelayTime    = 5.0
	MaxFeedback     = 0.9
	DefaultDelay    = 0.5
	DefaultFeedback = 0.4

	delaySmoothing = 0.1
	delayDryDip    = 0.2
)

// Delay is a single-tap echo with a feedback loop and wet/dry mix. The wet
// path starts muted.
type Delay struct {
	ctx      *graph.Context
	in       *graph.GainNode
	out      *graph.GainNode
	line     *graph.DelayNode
	feedback *graph.GainNode
	wet      *graph.GainNode
	dry      *graph.GainNode
}

// NewDelay builds a delay with 0.5s time, 0.4 feedback and mix 0.
func NewDelay(ctx *graph.Context) *Delay {
	d := &Delay{
		ctx:      ctx,
		in:       ctx.NewGain(),
		out:      ctx.NewGain(),
		line:     ctx.NewDelay(MaxDelayTime),
		feedback: ctx.NewGain(),
		wet:      ctx.NewGain(),
		dry:      ctx.NewGain(),
	}
	d.line.DelayTime.SetValue(DefaultDelay)
	d.feedback.Gain.SetValue(DefaultFeedback)
	d.wet.Gain.SetValue(0)

	d.in.Connect(d.dry)
	d.dry.Connect(d.out)

	d.in.Connect(d.line)
	d.line.Connect(d.wet)
	d.wet.Connect(d.out)

	d.line.Connect(d.feedback)
	d.feedback.Connect(d.line)
	return d
}

func (d *Delay) Input() graph.Node  { return d.in }
func (d *Delay) Output() graph.Node { return d.out }

// SetMix sets the wet level in [0,1]. Dry drops by up to 20% at full wet.
func (d *Delay) SetMix(v float64) {
	wet := clamp(v, 0, 1)
	d.wet.Gain.SetValue(wet)
	d.dry.Gain.SetValue(1 - wet*delayDryDip)
}

// SetTime glides the delay time toward seconds, within (0, 5].
func (d *Delay) SetTime(seconds float64) {
	if seconds <= 0 {
		return
	}
	seconds = min(seconds, MaxDelayTime)
	d.line.DelayTime.SetTargetAtTime(seconds, d.ctx.CurrentTime(), delaySmoothing)
}

// SetFeedback glides the feedback gain toward v, capped at 0.9.
func (d *Delay) SetFeedback(v float64) {
	d.feedback.Gain.SetTargetAtTime(clamp(v, 0, MaxFeedback), d.ctx.CurrentTime(), delaySmoothing)
}

// Mix returns the wet and dry gains.
func (d *Delay) Mix() (wet, dry float64) {
	return d.wet.Gain.Value(), d.dry.Gain.Value()
}

// Feedback returns the current feedback gain.
func (d *Delay) Feedback() float64 { return d.feedback.Gain.Value() }

// Time returns the current delay time in seconds.
func (d *Delay) Time() float64 { return d.line.DelayTime.Value() }
