package recorder

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/satindergrewal/blancdj/internal/audio"
)

// wavWriter writes 16-bit stereo PCM. The header sizes are patched on Close.
type wavWriter struct {
	f   *os.File
	enc *wav.Encoder
	pcm []int16
	buf *goaudio.IntBuffer
}

func createWAV(path string) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &wavWriter{
		f:   f,
		enc: wav.NewEncoder(f, audio.SampleRate, audio.BitDepth, audio.Channels, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: audio.Channels, SampleRate: audio.SampleRate},
			SourceBitDepth: audio.BitDepth,
		},
	}, nil
}

func (w *wavWriter) WriteFrame(frame []float32) error {
	w.pcm = audio.FloatToInt16(w.pcm[:0], frame)
	if cap(w.buf.Data) < len(w.pcm) {
		w.buf.Data = make([]int, len(w.pcm))
	}
	w.buf.Data = w.buf.Data[:len(w.pcm)]
	for i, v := range w.pcm {
		w.buf.Data[i] = int(v)
	}
	return w.enc.Write(w.buf)
}

func (w *wavWriter) Close() error {
	err := w.enc.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
