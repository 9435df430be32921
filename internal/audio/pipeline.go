package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Renderer produces interleaved stereo frames on demand.
type Renderer interface {
	Render(dst []float32)
}

// Pipeline pulls 20ms frames from a Renderer at real-time rate and
// publishes them on a channel.
type Pipeline struct {
	src     Renderer
	frameCh chan []float32

	mu       sync.RWMutex
	rendered int64
	late     int64
}

// NewPipeline creates a pipeline rendering from src.
func NewPipeline(src Renderer) *Pipeline {
	return &Pipeline{
		src:     src,
		frameCh: make(chan []float32, 100),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []float32 {
	return p.frameCh
}

// Status returns how much audio has been rendered and how many frames were
// produced after their deadline.
func (p *Pipeline) Status() (position time.Duration, late int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.rendered) * FrameDuration, p.late
}

// Run renders one frame per tick. Blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := time.Now()
		frame := make([]float32, FrameSamples)
		p.src.Render(frame)

		p.mu.Lock()
		p.rendered++
		if time.Since(start) > FrameDuration {
			p.late++
			slog.Warn("render overran frame budget", "took", time.Since(start))
		}
		p.mu.Unlock()

		if !p.sendFrame(ctx, frame) {
			return
		}
	}
}

// sendFrame delivers a frame. Returns false on cancel.
func (p *Pipeline) sendFrame(ctx context.Context, frame []float32) bool {
	select {
	case p.frameCh <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}
