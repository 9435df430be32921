package mixer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gopxl/beep/v2"

	"github.com/satindergrewal/blancdj/internal/graph"
)

const (
	DefaultMicVolume = 0.5
	micTau           = 0.05
)

// ErrNoInput is returned by Start when no capture opener is configured.
var ErrNoInput = errors.New("no microphone input available")

// Input is an open capture device delivering stereo frames at the graph
// rate.
type Input interface {
	beep.Streamer
	Close() error
}

// InputOpener opens a capture device at the given sample rate.
type InputOpener func(rate int) (Input, error)

// Microphone feeds a live capture into the master bus through its own gain.
type Microphone struct {
	ctx  *graph.Context
	gain *graph.GainNode
	open InputOpener

	mu    sync.Mutex
	input Input
	src   *graph.StreamSourceNode
	vol   float64
}

// NewMicrophone builds an idle microphone channel feeding dst.
func NewMicrophone(ctx *graph.Context, dst graph.Node, open InputOpener) *Microphone {
	m := &Microphone{ctx: ctx, gain: ctx.NewGain(), open: open, vol: DefaultMicVolume}
	m.gain.Gain.SetValue(DefaultMicVolume)
	m.gain.Connect(dst)
	return m
}

// Start opens the capture device. Starting twice is a no-op.
func (m *Microphone) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src != nil {
		return nil
	}
	if m.open == nil {
		return ErrNoInput
	}
	in, err := m.open(m.ctx.SampleRate())
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	src := m.ctx.NewStreamSource(in)
	src.OnEnded(func() { m.ended(src) })
	src.Connect(m.gain)
	src.Start()
	m.input, m.src = in, src
	slog.Info("microphone started")
	return nil
}

// Stop releases the capture device. Stopping twice is a no-op.
func (m *Microphone) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *Microphone) releaseLocked() {
	if m.src == nil {
		return
	}
	m.src.Stop()
	m.src.Disconnect()
	if err := m.input.Close(); err != nil {
		slog.Warn("close microphone", "err", err)
	}
	m.src, m.input = nil, nil
	slog.Info("microphone stopped")
}

func (m *Microphone) ended(src *graph.StreamSourceNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src != src {
		return
	}
	if err := m.input.Err(); err != nil {
		slog.Warn("microphone input failed", "err", err)
	}
	m.releaseLocked()
}

// Active reports whether the microphone is capturing.
func (m *Microphone) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src != nil
}

// SetVolume glides the microphone gain toward v in [0,1].
func (m *Microphone) SetVolume(v float64) {
	v = max(0, min(1, v))
	m.mu.Lock()
	m.vol = v
	m.mu.Unlock()
	m.gain.Gain.SetTargetAtTime(v, m.ctx.CurrentTime(), micTau)
}

// Volume returns the requested microphone volume.
func (m *Microphone) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vol
}
