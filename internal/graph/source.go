package graph

import (
	"math"

	"github.com/gopxl/beep/v2"

	"github.com/satindergrewal/blancdj/internal/audio"
)

type sourceState int

const (
	sourceIdle sourceState = iota
	sourcePlaying
	sourceDone
)

// BufferSourceNode plays an in-memory buffer once. A node instance can be
// started once; create a new one for every play.
type BufferSourceNode struct {
	node
	PlaybackRate *Param

	buffer    *audio.Buffer
	loop      bool
	loopStart float64
	loopEnd   float64
	pos       float64 // read position in buffer frames
	state     sourceState
	onEnded   func()
}

// NewBufferSource creates a source for b.
func (c *Context) NewBufferSource(b *audio.Buffer) *BufferSourceNode {
	s := &BufferSourceNode{
		PlaybackRate: c.newParam(1, 0, math.Inf(1)),
		buffer:       b,
	}
	s.init(c, s)
	return s
}

// SetLoop enables looping over [start, end) seconds. An end not after start
// disables looping.
func (s *BufferSourceNode) SetLoop(start, end float64) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.loop = end > start
	s.loopStart, s.loopEnd = start, end
}

// ClearLoop disables looping; playback runs to the end of the buffer.
func (s *BufferSourceNode) ClearLoop() {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.loop = false
}

// OnEnded registers fn to run when playback reaches the end of the buffer.
// It is not called after Stop.
func (s *BufferSourceNode) OnEnded(fn func()) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.onEnded = fn
}

// Start begins playback at offset seconds into the buffer from the current
// graph time. Starting an already started node is a no-op.
func (s *BufferSourceNode) Start(offset float64) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if s.state != sourceIdle {
		return
	}
	s.pos = math.Max(0, offset) * float64(s.buffer.SampleRate)
	s.state = sourcePlaying
	s.ctx.sources[&s.node] = struct{}{}
}

// Stop halts playback immediately. Stopping twice is a no-op.
func (s *BufferSourceNode) Stop() {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.state = sourceDone
	delete(s.ctx.sources, &s.node)
}

// Playing reports whether the node is producing audio.
func (s *BufferSourceNode) Playing() bool {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.state == sourcePlaying
}

// Position returns the read position in seconds, folded into the loop when
// the head has just crossed the loop end.
func (s *BufferSourceNode) Position() float64 {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	bsr := float64(s.buffer.SampleRate)
	pos := s.pos
	if s.loop {
		ls := s.loopStart * bsr
		le := math.Min(s.loopEnd*bsr, float64(len(s.buffer.Data[0])))
		if le > ls && pos >= le {
			pos = ls + math.Mod(pos-ls, le-ls)
		}
	}
	return pos / bsr
}

func (s *BufferSourceNode) process(_, out *Bus) {
	out.zero()
	if s.state != sourcePlaying {
		return
	}
	rates := s.PlaybackRate.values()
	data := s.buffer.Data
	frames := float64(len(data[0]))
	bsr := float64(s.buffer.SampleRate)
	ratio := bsr / s.ctx.sampleRate

	looping := s.loop
	ls := s.loopStart * bsr
	le := math.Min(s.loopEnd*bsr, frames)
	if le <= ls {
		looping = false
	}

	for i := 0; i < Quantum; i++ {
		if looping && s.pos >= le {
			s.pos = ls + math.Mod(s.pos-ls, le-ls)
		}
		if s.pos >= frames {
			s.finish()
			return
		}
		base := int(s.pos)
		frac := s.pos - float64(base)
		next := base + 1
		if next >= len(data[0]) {
			next = base
			if looping {
				next = int(ls)
			}
		}
		for ch := range out {
			a, b := float64(data[ch][base]), float64(data[ch][next])
			out[ch][i] = a + (b-a)*frac
		}
		s.pos += rates[i] * ratio
	}
}

func (s *BufferSourceNode) finish() {
	s.state = sourceDone
	delete(s.ctx.sources, &s.node)
	s.ctx.queue(s.onEnded)
}

// StreamSourceNode plays a live beep.Streamer at the graph rate. Playback
// rate does not apply to live input.
type StreamSourceNode struct {
	node
	streamer beep.Streamer
	buf      [][2]float64
	state    sourceState
	onEnded  func()
}

// NewStreamSource creates a source pulling from st.
func (c *Context) NewStreamSource(st beep.Streamer) *StreamSourceNode {
	s := &StreamSourceNode{streamer: st, buf: make([][2]float64, Quantum)}
	s.init(c, s)
	return s
}

// OnEnded registers fn to run when the streamer is drained.
func (s *StreamSourceNode) OnEnded(fn func()) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.onEnded = fn
}

// Start begins pulling from the streamer.
func (s *StreamSourceNode) Start() {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if s.state != sourceIdle {
		return
	}
	s.state = sourcePlaying
	s.ctx.sources[&s.node] = struct{}{}
}

// Stop halts the source. Stopping twice is a no-op.
func (s *StreamSourceNode) Stop() {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.state = sourceDone
	delete(s.ctx.sources, &s.node)
}

func (s *StreamSourceNode) process(_, out *Bus) {
	out.zero()
	if s.state != sourcePlaying {
		return
	}
	n, ok := s.streamer.Stream(s.buf)
	for i := 0; i < n; i++ {
		out[0][i] = s.buf[i][0]
		out[1][i] = s.buf[i][1]
	}
	if !ok {
		s.state = sourceDone
		delete(s.ctx.sources, &s.node)
		s.ctx.queue(s.onEnded)
	}
}
