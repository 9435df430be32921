package mixer

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/satindergrewal/blancdj/internal/audio"
)

const captureFrames = 256

// capture adapts a portaudio input stream to a beep.Streamer. The device
// callback fills a ring that the graph drains one quantum at a time.
type capture struct {
	stream   *portaudio.Stream
	ring     *audio.Ring
	channels int
	wide     []float32 // callback scratch for mono devices
	out      []float32 // graph-side scratch
}

// PortAudioInput opens the default capture device at rate. Mono devices are
// duplicated to both channels.
func PortAudioInput(rate int) (Input, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("default input device: %w", err)
	}
	if dev.MaxInputChannels < 1 {
		portaudio.Terminate()
		return nil, errors.New("default input device has no input channels")
	}

	c := &capture{
		ring:     audio.NewRing(rate / 2),
		channels: min(2, dev.MaxInputChannels),
	}
	p := portaudio.LowLatencyParameters(dev, nil)
	p.Input.Channels = c.channels
	p.SampleRate = float64(rate)
	p.FramesPerBuffer = captureFrames

	stream, err := portaudio.OpenStream(p, c.process)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

func (c *capture) process(in []float32) {
	if c.channels == 2 {
		c.ring.Write(in)
		return
	}
	if cap(c.wide) < 2*len(in) {
		c.wide = make([]float32, 2*len(in))
	}
	w := c.wide[:2*len(in)]
	for i, v := range in {
		w[2*i], w[2*i+1] = v, v
	}
	c.ring.Write(w)
}

func (c *capture) Stream(samples [][2]float64) (int, bool) {
	if cap(c.out) < 2*len(samples) {
		c.out = make([]float32, 2*len(samples))
	}
	buf := c.out[:2*len(samples)]
	c.ring.Read(buf)
	for i := range samples {
		samples[i][0] = float64(buf[2*i])
		samples[i][1] = float64(buf[2*i+1])
	}
	return len(samples), true
}

func (c *capture) Err() error { return nil }

func (c *capture) Close() error {
	err := c.stream.Stop()
	if cerr := c.stream.Close(); err == nil {
		err = cerr
	}
	portaudio.Terminate()
	return err
}
