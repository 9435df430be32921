package graph

import (
	"math"
	"sync"
	"sync/atomic"
)

// Quantum is the number of frames rendered per graph pass.
const Quantum = 128

// Bus is one quantum of stereo audio.
type Bus [2][Quantum]float64

func (b *Bus) zero() { *b = Bus{} }

func (b *Bus) add(o *Bus) {
	for ch := range b {
		for i := range b[ch] {
			b[ch][i] += o[ch][i]
		}
	}
}

// silence is returned for reads that would close a cycle without a delay.
var silence Bus

// Context owns the graph clock and renders the node graph one quantum at a
// time. Control calls (connect, parameter scheduling, source start/stop) take
// a short lock and never wait on rendering.
type Context struct {
	mu         sync.Mutex
	sampleRate float64
	frames     atomic.Int64 // frames rendered since creation

	pass      uint64
	passStart int64

	dest    *GainNode
	sources map[*node]struct{}
	timers  []*Timer
	events  []func()

	renderMu sync.Mutex
	carry    Bus
	carryPos int
}

// NewContext creates a graph clocked at sampleRate.
func NewContext(sampleRate int) *Context {
	c := &Context{
		sampleRate: float64(sampleRate),
		sources:    make(map[*node]struct{}),
		carryPos:   Quantum,
	}
	c.dest = c.NewGain()
	return c
}

// SampleRate returns the graph rate in Hz.
func (c *Context) SampleRate() int { return int(c.sampleRate) }

// CurrentTime returns the graph clock in seconds: the time of the first
// frame of the next quantum to be rendered.
func (c *Context) CurrentTime() float64 {
	return float64(c.frames.Load()) / c.sampleRate
}

// Destination is the final node of the graph. Render pulls from it.
func (c *Context) Destination() *GainNode { return c.dest }

// Render fills dst with interleaved stereo frames pulled from the
// destination, rendering as many quanta as needed.
func (c *Context) Render(dst []float32) {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	for i := 0; i+1 < len(dst); i += 2 {
		if c.carryPos == Quantum {
			c.renderQuantum()
			c.carryPos = 0
		}
		dst[i] = float32(c.carry[0][c.carryPos])
		dst[i+1] = float32(c.carry[1][c.carryPos])
		c.carryPos++
	}
}

// Advance renders and discards d seconds of audio. Used for offline
// processing and to drive the clock deterministically.
func (c *Context) Advance(d float64) {
	// tolerate float noise so whole-frame durations are not rounded up
	frames := int(math.Ceil(d*c.sampleRate - 1e-6))
	if frames <= 0 {
		return
	}
	buf := make([]float32, 2*Quantum*8)
	for frames > 0 {
		n := min(frames, len(buf)/2)
		c.Render(buf[:2*n])
		frames -= n
	}
}

func (c *Context) renderQuantum() {
	c.mu.Lock()
	c.pass++
	c.passStart = c.frames.Load()

	c.carry = *c.dest.pull()
	for n := range c.sources {
		n.pull()
	}

	end := c.passStart + Quantum
	c.frames.Store(end)
	c.collectTimers(float64(end) / c.sampleRate)

	events := c.events
	c.events = nil
	c.mu.Unlock()

	for _, fn := range events {
		fn()
	}
}

// queue schedules fn to run on the render goroutine once the graph lock is
// released. Caller holds c.mu.
func (c *Context) queue(fn func()) {
	if fn != nil {
		c.events = append(c.events, fn)
	}
}

// Timer is a callback scheduled on the graph clock.
type Timer struct {
	at       float64
	interval float64
	fn       func()
	stopped  atomic.Bool
}

// Stop cancels the timer. A callback already due but not yet dispatched
// is suppressed as well.
func (t *Timer) Stop() {
	if t != nil {
		t.stopped.Store(true)
	}
}

// At runs fn once the graph clock reaches t.
func (c *Context) At(t float64, fn func()) *Timer {
	tm := &Timer{at: t, fn: fn}
	c.mu.Lock()
	c.timers = append(c.timers, tm)
	c.mu.Unlock()
	return tm
}

// Every runs fn each interval seconds of graph time until stopped.
func (c *Context) Every(interval float64, fn func()) *Timer {
	tm := &Timer{at: c.CurrentTime() + interval, interval: interval, fn: fn}
	c.mu.Lock()
	c.timers = append(c.timers, tm)
	c.mu.Unlock()
	return tm
}

func (c *Context) collectTimers(now float64) {
	kept := c.timers[:0]
	for _, tm := range c.timers {
		if tm.stopped.Load() {
			continue
		}
		if tm.at > now {
			kept = append(kept, tm)
			continue
		}
		c.queue(func() {
			if !tm.stopped.Load() {
				tm.fn()
			}
		})
		if tm.interval > 0 {
			tm.at += tm.interval
			if tm.at <= now {
				tm.at = now + tm.interval
			}
			kept = append(kept, tm)
		}
	}
	clear(c.timers[len(kept):])
	c.timers = kept
}
