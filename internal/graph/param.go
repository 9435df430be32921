package graph

import (
	"math"
	"sort"
)

type automationKind int

const (
	setValue automationKind = iota
	linearRamp
	setTarget
)

type automation struct {
	kind  automationKind
	value float64
	time  float64
	tau   float64
}

// Param is a schedulable node parameter evaluated per frame on the graph
// clock. Scheduling never blocks rendering beyond the context lock.
type Param struct {
	ctx      *Context
	value    float64
	min, max float64
	events   []automation

	// start point of an in-progress linear ramp
	anchorV, anchorT float64

	vals [Quantum]float64
	pass uint64
}

func (c *Context) newParam(v, lo, hi float64) *Param {
	return &Param{ctx: c, value: v, min: lo, max: hi}
}

// Value returns the most recently rendered value.
func (p *Param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.clamp(p.value)
}

// SetValue jumps to v immediately and drops any pending automation.
func (p *Param) SetValue(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.events = nil
	p.value = v
}

// SetValueAtTime jumps to v at graph time t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.insert(automation{kind: setValue, value: v, time: t})
}

// LinearRampToValueAtTime ramps from the previous event (or from the current
// value and time when nothing is pending) to v, arriving at t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	if len(p.events) == 0 {
		p.anchorV = p.value
		p.anchorT = p.ctx.CurrentTime()
	}
	p.insertLocked(automation{kind: linearRamp, value: v, time: t})
}

// SetTargetAtTime approaches target exponentially from graph time start
// with time constant tau seconds.
func (p *Param) SetTargetAtTime(target, start, tau float64) {
	if tau <= 0 {
		p.SetValueAtTime(target, start)
		return
	}
	p.insert(automation{kind: setTarget, value: target, time: start, tau: tau})
}

// CancelScheduledValues drops every event at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time >= t })
	p.events = p.events[:i]
}

// CancelAndHold drops all automation and freezes the current value.
func (p *Param) CancelAndHold() {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.events = nil
}

func (p *Param) insert(e automation) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insertLocked(e)
}

func (p *Param) insertLocked(e automation) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > e.time })
	p.events = append(p.events, automation{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

func (p *Param) clamp(v float64) float64 {
	return math.Max(p.min, math.Min(p.max, v))
}

// values computes this pass's per-frame values. Caller holds ctx.mu.
func (p *Param) values() *[Quantum]float64 {
	c := p.ctx
	if p.pass == c.pass {
		return &p.vals
	}
	p.pass = c.pass
	if len(p.events) == 0 {
		v := p.clamp(p.value)
		for i := range p.vals {
			p.vals[i] = v
		}
		return &p.vals
	}
	for i := range p.vals {
		t := float64(c.passStart+int64(i)) / c.sampleRate
		p.vals[i] = p.clamp(p.step(t))
	}
	return &p.vals
}

func (p *Param) pop(v, t float64) {
	p.events = p.events[1:]
	p.anchorV, p.anchorT = v, t
}

func (p *Param) step(t float64) float64 {
	for len(p.events) > 0 {
		e := p.events[0]
		switch e.kind {
		case setValue:
			if t < e.time {
				return p.value
			}
			p.value = e.value
			p.pop(e.value, e.time)

		case linearRamp:
			span := e.time - p.anchorT
			if t >= e.time || span <= 0 {
				p.value = e.value
				p.pop(e.value, e.time)
				continue
			}
			frac := math.Max(0, (t-p.anchorT)/span)
			p.value = p.anchorV + (e.value-p.anchorV)*frac
			return p.value

		case setTarget:
			if t < e.time {
				return p.value
			}
			if len(p.events) > 1 {
				next := p.events[1]
				if next.kind == linearRamp || t >= next.time {
					p.pop(p.value, t)
					continue
				}
			}
			k := math.Exp(-1 / (p.ctx.sampleRate * e.tau))
			p.value = e.value + (p.value-e.value)*k
			return p.value
		}
	}
	return p.value
}
