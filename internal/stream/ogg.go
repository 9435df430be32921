package stream

import (
	"fmt"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/blancdj/internal/audio"
)

const (
	opusBitrate  = 128000
	maxOpusFrame = 4000
)

func newOpusEncoder() (*opus.Encoder, error) {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return nil, fmt.Errorf("opus bitrate: %w", err)
	}
	return enc, nil
}

// OggOpus encodes 20ms master frames to Opus and writes them as Ogg pages.
type OggOpus struct {
	enc *opus.Encoder
	ogg *oggwriter.OggWriter
	pkt []byte
	seq uint16
	ts  uint32
}

// NewOggOpus writes an Ogg/Opus stream to w. The stream headers are written
// immediately.
func NewOggOpus(w io.Writer) (*OggOpus, error) {
	ogg, err := oggwriter.NewWith(w, audio.SampleRate, audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("ogg headers: %w", err)
	}
	return newOggOpus(ogg)
}

// CreateOggOpus writes an Ogg/Opus file at path. Close marks the final page
// as end of stream.
func CreateOggOpus(path string) (*OggOpus, error) {
	ogg, err := oggwriter.New(path, audio.SampleRate, audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return newOggOpus(ogg)
}

func newOggOpus(ogg *oggwriter.OggWriter) (*OggOpus, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		ogg.Close()
		return nil, err
	}
	// The writer ignores granule deltas until it has seen a timestamp other
	// than 1, so the first packet starts one frame in.
	return &OggOpus{enc: enc, ogg: ogg, pkt: make([]byte, maxOpusFrame), ts: audio.FrameSize}, nil
}

// WriteFrame encodes one interleaved stereo frame of audio.FrameSize samples
// per channel.
func (o *OggOpus) WriteFrame(frame []float32) error {
	n, err := o.enc.EncodeFloat32(frame, o.pkt)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: o.seq,
			Timestamp:      o.ts,
		},
		Payload: o.pkt[:n],
	}
	o.seq++
	o.ts += audio.FrameSize
	return o.ogg.WriteRTP(p)
}

// Close flushes the container and closes the underlying writer if it is an
// io.Closer.
func (o *OggOpus) Close() error {
	return o.ogg.Close()
}
