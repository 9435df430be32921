package audio

import "sync"

// Ring is a bounded FIFO of interleaved stereo samples between a producer
// and a device callback. Writes past capacity drop the oldest samples; reads
// beyond what is buffered are padded with silence and counted as underruns.
type Ring struct {
	mu        sync.Mutex
	buf       []float32
	r, n      int
	underruns int
}

// NewRing creates a ring holding up to frames stereo frames.
func NewRing(frames int) *Ring {
	return &Ring{buf: make([]float32, max(frames, 1)*Channels)}
}

// Write appends interleaved samples.
func (q *Ring) Write(p []float32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	size := len(q.buf)
	if len(p) > size {
		p = p[len(p)-size:]
	}
	if over := q.n + len(p) - size; over > 0 {
		q.r = (q.r + over) % size
		q.n -= over
	}
	w := (q.r + q.n) % size
	c := copy(q.buf[w:], p)
	copy(q.buf, p[c:])
	q.n += len(p)
}

// Read fills p with the oldest buffered samples, padding with zeros. It
// returns how many samples came from the ring.
func (q *Ring) Read(p []float32) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := min(len(p), q.n)
	size := len(q.buf)
	c := copy(p[:k], q.buf[q.r:])
	copy(p[c:k], q.buf)
	q.r = (q.r + k) % size
	q.n -= k
	clear(p[k:])
	if k < len(p) {
		q.underruns++
	}
	return k
}

// Buffered returns the number of samples waiting to be read.
func (q *Ring) Buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Underruns returns how many reads came up short.
func (q *Ring) Underruns() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.underruns
}

// Reset drops everything buffered.
func (q *Ring) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.r, q.n = 0, 0
}
