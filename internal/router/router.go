// Package router fans the master bus out to any number of output devices.
// Each selected sink owns one attachment: a broadcaster listener drained into
// a backend output on its own goroutine. Sinks can be attached and detached
// at any time without touching the others.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/stream"
)

var (
	ErrUnknownSink     = errors.New("unknown sink")
	ErrAlreadySelected = errors.New("sink already selected")
)

// SinkAttachError reports a sink that could not be attached. Other sinks
// are unaffected and the selection can be retried.
type SinkAttachError struct {
	SinkID string
	Err    error
}

func (e *SinkAttachError) Error() string {
	return fmt.Sprintf("attach sink %q: %v", e.SinkID, e.Err)
}

func (e *SinkAttachError) Unwrap() error { return e.Err }

// Sink is an output device the master can be routed to.
type Sink struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Output is an open device accepting interleaved stereo frames.
type Output interface {
	Write(frame []float32) error
	Close() error
}

// Backend enumerates and opens output devices.
type Backend interface {
	Devices() ([]Sink, error)
	Open(id string, rate, channels int) (Output, error)
}

// Status describes a sink's attachment.
type Status int

const (
	StatusIdle     Status = iota // not selected
	StatusPending                // selected, waiting for a source
	StatusAttached               // receiving the master
	StatusFailed                 // selected, output failed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAttached:
		return "attached"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText lets Status render as its name in JSON.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for _, v := range []Status{StatusIdle, StatusPending, StatusAttached, StatusFailed} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown sink status %q", b)
}

type attachment struct {
	out      Output
	listener *stream.Listener
	src      *stream.Broadcaster
	done     chan struct{}

	mu     sync.Mutex
	err    error
	muted  bool
	silent []float32
}

func (a *attachment) run(id string) {
	defer close(a.done)
	for {
		select {
		case <-a.listener.Done():
			return
		case frame := <-a.listener.C:
			a.mu.Lock()
			if a.muted {
				if len(a.silent) != len(frame) {
					a.silent = make([]float32, len(frame))
				}
				frame = a.silent
			}
			a.mu.Unlock()
			if err := a.out.Write(frame); err != nil {
				slog.Warn("sink write failed", "sink", id, "err", err)
				a.mu.Lock()
				a.err = err
				a.mu.Unlock()
				a.src.Unsubscribe(a.listener)
				return
			}
		}
	}
}

func (a *attachment) failed() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *attachment) setMuted(m bool) {
	a.mu.Lock()
	a.muted = m
	a.mu.Unlock()
}

// detach stops the pump and closes the output. Safe to call more than once.
func (a *attachment) detach(id string) {
	a.src.Unsubscribe(a.listener)
	<-a.done
	if a.out == nil {
		return
	}
	if err := a.out.Close(); err != nil {
		slog.Warn("close sink", "sink", id, "err", err)
	}
	a.out = nil
}

// Router holds the selected sink set and keeps every member attached to
// the current master stream.
type Router struct {
	backend Backend

	mu       sync.Mutex
	sinks    []Sink
	selected map[string]*attachment // nil attachment: no source yet
	src      *stream.Broadcaster
	local    string
	localAtt *attachment
	onChange func(added, removed []Sink)
}

// New creates a router over backend. Call Refresh to populate the sink list.
func New(backend Backend) *Router {
	return &Router{
		backend:  backend,
		selected: make(map[string]*attachment),
	}
}

// OnChange registers a callback run by Monitor when devices appear or
// disappear.
func (r *Router) OnChange(fn func(added, removed []Sink)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Sinks returns the known output devices.
func (r *Router) Sinks() []Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sinks)
}

// Refresh re-enumerates devices. Selected sinks that disappeared are
// detached and dropped from the selection.
func (r *Router) Refresh() error {
	_, _, err := r.refresh()
	return err
}

func (r *Router) refresh() (added, removed []Sink, err error) {
	devs, err := r.backend.Devices()
	if err != nil {
		return nil, nil, fmt.Errorf("enumerate sinks: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	added = diff(devs, r.sinks)
	removed = diff(r.sinks, devs)
	r.sinks = devs
	for _, s := range removed {
		if a, ok := r.selected[s.ID]; ok {
			slog.Info("selected sink disappeared", "sink", s.ID)
			if a != nil {
				a.detach(s.ID)
			}
			delete(r.selected, s.ID)
		}
		if r.local == s.ID {
			r.dropLocalLocked()
		}
	}
	r.updateLocalLocked()
	return added, removed, nil
}

func diff(a, b []Sink) []Sink {
	var out []Sink
	for _, s := range a {
		if !slices.ContainsFunc(b, func(o Sink) bool { return o.ID == s.ID }) {
			out = append(out, s)
		}
	}
	return out
}

func (r *Router) knownLocked(id string) bool {
	return slices.ContainsFunc(r.sinks, func(s Sink) bool { return s.ID == id })
}

// Select adds a sink to the selection and attaches it to the current
// stream. On failure the sink stays unselected. Selecting a sink whose
// output failed reopens it.
func (r *Router) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.knownLocked(id) {
		return &SinkAttachError{SinkID: id, Err: ErrUnknownSink}
	}
	if id == r.local {
		return &SinkAttachError{SinkID: id, Err: ErrAlreadySelected}
	}
	if old, ok := r.selected[id]; ok {
		if old == nil || old.failed() == nil {
			return &SinkAttachError{SinkID: id, Err: ErrAlreadySelected}
		}
		old.detach(id)
		delete(r.selected, id)
		slog.Info("retrying failed sink", "sink", id)
	}
	var a *attachment
	if r.src != nil {
		var err error
		if a, err = r.attachLocked(id); err != nil {
			r.updateLocalLocked()
			return err
		}
	}
	r.selected[id] = a
	slog.Info("sink selected", "sink", id, "selected", len(r.selected))
	r.updateLocalLocked()
	return nil
}

func (r *Router) attachLocked(id string) (*attachment, error) {
	out, err := r.backend.Open(id, audio.SampleRate, audio.Channels)
	if err != nil {
		return nil, &SinkAttachError{SinkID: id, Err: err}
	}
	a := &attachment{
		out:      out,
		listener: r.src.Subscribe(),
		src:      r.src,
		done:     make(chan struct{}),
	}
	go a.run(id)
	return a, nil
}

// Deselect detaches a sink. Unknown or unselected ids are ignored.
func (r *Router) Deselect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.selected[id]
	if !ok {
		return
	}
	if a != nil {
		a.detach(id)
	}
	delete(r.selected, id)
	slog.Info("sink deselected", "sink", id, "selected", len(r.selected))
	r.updateLocalLocked()
}

// Selected returns the selected sink ids, sorted.
func (r *Router) Selected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.selected))
	for id := range r.selected {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Status reports the attachment state of a sink.
func (r *Router) Status(id string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked(id)
}

func (r *Router) statusLocked(id string) Status {
	a, ok := r.selected[id]
	if id != "" && id == r.local {
		a, ok = r.localAtt, true
	}
	switch {
	case !ok:
		return StatusIdle
	case a == nil:
		return StatusPending
	case a.failed() != nil:
		return StatusFailed
	default:
		return StatusAttached
	}
}

// SetSource binds the router to a new master stream. Every attachment is
// torn down and the selection re-attached to b. Sinks that fail to reopen
// are dropped from the selection.
func (r *Router) SetSource(b *stream.Broadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.selected {
		if a != nil {
			a.detach(id)
		}
		r.selected[id] = nil
	}
	if r.localAtt != nil {
		r.localAtt.detach(r.local)
		r.localAtt = nil
	}
	r.src = b
	if b == nil {
		return
	}
	if r.local != "" {
		a, err := r.attachLocked(r.local)
		if err != nil {
			slog.Warn("reattach local monitor", "sink", r.local, "err", err)
			r.local = ""
		}
		r.localAtt = a
	}
	for id := range r.selected {
		a, err := r.attachLocked(id)
		if err != nil {
			slog.Warn("reattach sink", "sink", id, "err", err)
			delete(r.selected, id)
			continue
		}
		r.selected[id] = a
	}
	r.updateLocalLocked()
}

// SetLocalMonitor designates a sink as the local monitor. It follows the
// master like a selected sink but is muted while any sink is selected, and
// it is not part of the selection set. An empty id clears the monitor.
func (r *Router) SetLocalMonitor(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "" && !r.knownLocked(id) {
		return &SinkAttachError{SinkID: id, Err: ErrUnknownSink}
	}
	if _, ok := r.selected[id]; ok {
		return &SinkAttachError{SinkID: id, Err: ErrAlreadySelected}
	}
	r.dropLocalLocked()
	if id == "" {
		return nil
	}
	if r.src != nil {
		a, err := r.attachLocked(id)
		if err != nil {
			return err
		}
		r.localAtt = a
	}
	r.local = id
	r.updateLocalLocked()
	slog.Info("local monitor set", "sink", id)
	return nil
}

func (r *Router) dropLocalLocked() {
	if r.localAtt != nil {
		r.localAtt.detach(r.local)
	}
	r.local, r.localAtt = "", nil
}

// LocalMonitor returns the local monitor sink id, or "".
func (r *Router) LocalMonitor() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

// LocalMuted reports whether the local monitor is muted because routing to
// other sinks is active.
func (r *Router) LocalMuted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local != "" && len(r.selected) > 0
}

func (r *Router) updateLocalLocked() {
	if r.localAtt != nil {
		r.localAtt.setMuted(len(r.selected) > 0)
	}
}

// Monitor polls the backend every interval and reports device changes
// through the OnChange callback. Blocks until ctx is cancelled.
func (r *Router) Monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		added, removed, err := r.refresh()
		if err != nil {
			slog.Debug("device poll", "err", err)
			continue
		}
		if len(added) == 0 && len(removed) == 0 {
			continue
		}
		slog.Info("output devices changed", "added", len(added), "removed", len(removed))
		r.mu.Lock()
		fn := r.onChange
		r.mu.Unlock()
		if fn != nil {
			fn(added, removed)
		}
	}
}

// Close detaches every sink.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.selected {
		if a != nil {
			a.detach(id)
		}
	}
	clear(r.selected)
	r.dropLocalLocked()
}
