package router

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/satindergrewal/blancdj/internal/audio"
)

const (
	outputFrames = 256
	outputBuffer = audio.SampleRate / 5 // 200ms of headroom per sink

	// stallTimeout is how long a device may go without pulling audio
	// before writes to it fail.
	stallTimeout = time.Second
)

var (
	errOutputClosed  = errors.New("output closed")
	errOutputStalled = errors.New("output device stopped pulling audio")
)

// PortAudio enumerates and opens physical output devices.
type PortAudio struct{}

// NewPortAudio initializes the portaudio library. Close releases it.
func NewPortAudio() (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &PortAudio{}, nil
}

func (*PortAudio) Close() error { return portaudio.Terminate() }

func sinkID(d *portaudio.DeviceInfo) string {
	if d.HostApi == nil {
		return d.Name
	}
	return d.HostApi.Name + "/" + d.Name
}

// Devices lists every device with at least one output channel.
func (*PortAudio) Devices() ([]Sink, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var sinks []Sink
	for _, d := range devs {
		if d.MaxOutputChannels < 1 {
			continue
		}
		sinks = append(sinks, Sink{ID: sinkID(d), Label: d.Name})
	}
	return sinks, nil
}

// DefaultSink returns the id of the system default output device.
func (*PortAudio) DefaultSink() (string, error) {
	d, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return "", err
	}
	return sinkID(d), nil
}

// Open starts an output stream on the device with the given id. Frames
// written to it are queued in a ring that the device callback drains.
func (*PortAudio) Open(id string, rate, channels int) (Output, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var dev *portaudio.DeviceInfo
	for _, d := range devs {
		if d.MaxOutputChannels > 0 && sinkID(d) == id {
			dev = d
			break
		}
	}
	if dev == nil {
		return nil, ErrUnknownSink
	}

	o := newPAOutput(min(channels, dev.MaxOutputChannels))
	p := portaudio.HighLatencyParameters(nil, dev)
	p.Output.Channels = o.channels
	p.SampleRate = float64(rate)
	p.FramesPerBuffer = outputFrames

	s, err := portaudio.OpenStream(p, o.process)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	o.stream = s
	return o, nil
}

type paOutput struct {
	stream   *portaudio.Stream
	ring     *audio.Ring
	channels int
	wide     []float32 // callback scratch for mono devices

	lastPull atomic.Int64 // unix nanos of the latest device callback
	closed   atomic.Bool
	once     sync.Once
}

func newPAOutput(channels int) *paOutput {
	o := &paOutput{ring: audio.NewRing(outputBuffer), channels: channels}
	o.lastPull.Store(time.Now().UnixNano())
	return o
}

func (o *paOutput) process(out []float32) {
	o.lastPull.Store(time.Now().UnixNano())
	if o.channels == 2 {
		o.ring.Read(out)
		return
	}
	if cap(o.wide) < 2*len(out) {
		o.wide = make([]float32, 2*len(out))
	}
	w := o.wide[:2*len(out)]
	o.ring.Read(w)
	for i := range out {
		out[i] = (w[2*i] + w[2*i+1]) / 2
	}
}

// Write queues a frame for the device. It fails once the output is closed
// or the device has stopped calling back, as happens when it is unplugged.
func (o *paOutput) Write(frame []float32) error {
	if o.closed.Load() {
		return errOutputClosed
	}
	if since := time.Since(time.Unix(0, o.lastPull.Load())); since > stallTimeout {
		return fmt.Errorf("%w for %v", errOutputStalled, since.Round(time.Millisecond))
	}
	o.ring.Write(frame)
	return nil
}

func (o *paOutput) Close() error {
	o.closed.Store(true)
	var err error
	o.once.Do(func() {
		if o.stream == nil {
			return
		}
		err = o.stream.Stop()
		if cerr := o.stream.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
