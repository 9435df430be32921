package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var (
	ErrEmptyInput    = errors.New("empty input")
	ErrUnknownFormat = errors.New("unrecognized audio format")
	ErrNoAudio       = errors.New("no audio frames")
	ErrBitDepth      = errors.New("unsupported bit depth")
)

// DecodeError reports bytes that could not be decoded into audio.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Sniff identifies the container from its leading bytes. Returns "" when
// nothing matches.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 12 && string(data[:4]) == "FORM" &&
		(string(data[8:12]) == "AIFF" || string(data[8:12]) == "AIFC"):
		return "aiff"
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return "ogg"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// Decode turns raw file bytes into a stereo Buffer at targetRate. Any
// failure is a *DecodeError.
func Decode(data []byte, targetRate int) (*Buffer, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Format: "unknown", Err: ErrEmptyInput}
	}
	format := Sniff(data)

	var (
		samples  []float32
		rate     int
		channels int
		err      error
	)
	switch format {
	case "wav":
		samples, rate, channels, err = decodeWAV(data)
	case "aiff":
		samples, rate, channels, err = decodeAIFF(data)
	case "ogg":
		samples, rate, channels, err = decodeVorbis(data)
	case "mp3":
		samples, rate, channels, err = decodeMP3(data)
	default:
		return nil, &DecodeError{Format: "unknown", Err: ErrUnknownFormat}
	}
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	if channels <= 0 || rate <= 0 || len(samples) < channels {
		return nil, &DecodeError{Format: format, Err: ErrNoAudio}
	}

	buf := deinterleave(samples, channels, rate)
	if rate != targetRate {
		buf = Resample(buf, targetRate)
	}
	return buf, nil
}

func deinterleave(samples []float32, channels, rate int) *Buffer {
	frames := len(samples) / channels
	buf := NewBuffer(rate, frames)
	for i := 0; i < frames; i++ {
		l := samples[i*channels]
		r := l
		if channels > 1 {
			r = samples[i*channels+1]
		}
		buf.Data[0][i] = l
		buf.Data[1][i] = r
	}
	return buf
}

func intScale(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8, 16, 24, 32:
		return float32(int64(1) << (bitDepth - 1)), nil
	}
	return 0, fmt.Errorf("%w: %d", ErrBitDepth, bitDepth)
}

func intsToFloats(data []int, bitDepth int) ([]float32, error) {
	scale, err := intScale(bitDepth)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out, nil
}

func decodeWAV(data []byte) ([]float32, int, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("invalid wav header")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reading wav pcm: %w", err)
	}
	if buf.Format == nil {
		return nil, 0, 0, errors.New("wav without format chunk")
	}
	samples, err := intsToFloats(buf.Data, int(dec.BitDepth))
	if err != nil {
		return nil, 0, 0, err
	}
	return samples, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

func decodeAIFF(data []byte) ([]float32, int, int, error) {
	dec := aiff.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("invalid aiff header")
	}
	dec.ReadInfo()
	format := dec.Format()
	if format == nil {
		return nil, 0, 0, errors.New("aiff without common chunk")
	}

	var all []int
	chunk := &goaudio.IntBuffer{Data: make([]int, 4096), Format: format}
	for {
		n, err := dec.PCMBuffer(chunk)
		all = append(all, chunk.Data[:n]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, 0, fmt.Errorf("reading aiff pcm: %w", err)
		}
		if n == 0 || err != nil {
			break
		}
	}
	samples, err := intsToFloats(all, int(dec.BitDepth))
	if err != nil {
		return nil, 0, 0, err
	}
	return samples, format.SampleRate, format.NumChannels, nil
}

func decodeVorbis(data []byte) ([]float32, int, int, error) {
	r, err := oggvorbis.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	channels := r.Channels()
	var all []float32
	chunk := make([]float32, 4096*channels)
	for {
		n, err := r.Read(chunk)
		all = append(all, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, 0, fmt.Errorf("reading vorbis: %w", err)
		}
	}
	return all, r.SampleRate(), channels, nil
}

// go-mp3 always yields 16-bit little-endian stereo.
func decodeMP3(data []byte) ([]float32, int, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reading mp3: %w", err)
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return samples, dec.SampleRate(), 2, nil
}

// FloatToInt16 converts interleaved float samples in [-1,1] to int16 with
// clipping.
func FloatToInt16(dst []int16, src []float32) []int16 {
	if cap(dst) < len(src) {
		dst = make([]int16, len(src))
	}
	dst = dst[:len(src)]
	for i, v := range src {
		s := float64(v) * 32767
		// Clip to int16 range
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		dst[i] = int16(s)
	}
	return dst
}
