package deck

import (
	"errors"
	"log/slog"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/graph"
)

// slot is one sampler pad. Every playback gets a fresh handle in voices and
// removes itself when it plays out, so an unload can stop exactly the
// voices of this slot.
type slot struct {
	buf    *audio.Buffer
	voices map[int]*graph.BufferSourceNode
	next   int
}

// ErrInvalidSlot is returned for a sampler slot outside [0, NumSlots).
var ErrInvalidSlot = errors.New("sampler slot out of range")

func validSlot(i int) bool { return i >= 0 && i < NumSlots }

// LoadSample decodes data into slot i, stopping the slot's running voices.
// On error the slot is unchanged.
func (d *Deck) LoadSample(i int, data []byte) error {
	if !validSlot(i) {
		return ErrInvalidSlot
	}
	buf, err := audio.Decode(data, d.ctx.SampleRate())
	if err != nil {
		d.decodeFailed(err)
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.slots[i]
	s.stopAll()
	s.buf = buf
	slog.Debug("sample loaded", "deck", d.id, "slot", i, "duration", buf.Duration())
	return nil
}

// PlaySample fires a one-shot of slot i straight into the deck output. It
// is a no-op for an empty slot.
func (d *Deck) PlaySample(i int) {
	if !validSlot(i) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.slots[i]
	if s.buf == nil {
		return
	}
	id := s.next
	s.next++
	src := d.ctx.NewBufferSource(s.buf)
	src.OnEnded(func() { d.voiceDone(i, id) })
	src.Connect(d.out)
	s.voices[id] = src
	src.Start(0)
}

func (d *Deck) voiceDone(i, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.slots[i]
	if src, ok := s.voices[id]; ok {
		src.Disconnect()
		delete(s.voices, id)
	}
}

// UnloadSample stops every running voice of slot i and empties it.
func (d *Deck) UnloadSample(i int) {
	if !validSlot(i) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.slots[i]
	s.stopAll()
	s.buf = nil
}

// SampleLoaded reports whether slot i holds a sample.
func (d *Deck) SampleLoaded(i int) bool {
	if !validSlot(i) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[i].buf != nil
}

// SampleVoices returns how many voices of slot i are playing.
func (d *Deck) SampleVoices(i int) int {
	if !validSlot(i) {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots[i].voices)
}

func (s *slot) stopAll() {
	for id, src := range s.voices {
		src.Stop()
		src.Disconnect()
		delete(s.voices, id)
	}
}
