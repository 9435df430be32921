package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
)

// Buffer is decoded stereo PCM held in memory. Mono sources are duplicated
// onto both channels.
type Buffer struct {
	SampleRate int
	Data       [2][]float32
}

// NewBuffer allocates a silent buffer of the given length.
func NewBuffer(rate, frames int) *Buffer {
	return &Buffer{
		SampleRate: rate,
		Data:       [2][]float32{make([]float32, frames), make([]float32, frames)},
	}
}

// Frames returns the number of frames per channel.
func (b *Buffer) Frames() int { return len(b.Data[0]) }

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// TrackInfo identifies a track loaded or queued for a deck.
type TrackInfo struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Path     string  `json:"path,omitempty"`
	Duration float64 `json:"duration"` // seconds, 0 if unknown
}
