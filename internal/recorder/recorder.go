// Package recorder captures the master bus to disk as WAV or Ogg/Opus.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/stream"
)

// Status represents the current state of the recorder.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRecording Status = "RECORDING"
	StatusError     Status = "ERROR"
)

// Format is a recording container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatOpus Format = "opus"
)

var (
	ErrAlreadyRecording  = errors.New("already recording")
	ErrNotRecording      = errors.New("not recording")
	ErrUnsupportedFormat = errors.New("unsupported recording format")
)

// CaptureError reports a recording that could not start or finish.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string { return "recorder " + e.Op + ": " + e.Err.Error() }

func (e *CaptureError) Unwrap() error { return e.Err }

// ParseFormat accepts "wav", "opus" or "ogg".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "wav":
		return FormatWAV, nil
	case "opus", "ogg":
		return FormatOpus, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Ext returns the file extension for f.
func (f Format) Ext() string {
	if f == FormatOpus {
		return "ogg"
	}
	return string(f)
}

// Filename names a recording started at t.
func Filename(t time.Time, f Format) string {
	return "mix_" + t.UTC().Format("2006-01-02_15-04-05") + "." + f.Ext()
}

// SessionInfo describes the current or last recording.
type SessionInfo struct {
	File      string    `json:"file"`
	Format    Format    `json:"format"`
	StartTime time.Time `json:"start_time"`
	Frames    int64     `json:"frames"`
}

// Duration returns how much audio has been written.
func (s SessionInfo) Duration() time.Duration {
	return time.Duration(s.Frames) * audio.FrameDuration
}

type frameWriter interface {
	WriteFrame(frame []float32) error
	Close() error
}

func createWriter(path string, f Format) (frameWriter, error) {
	if f == FormatOpus {
		return stream.CreateOggOpus(path)
	}
	return createWAV(path)
}

// Recorder taps the master broadcaster and writes every frame to a file.
type Recorder struct {
	src *stream.Broadcaster
	dir    string
	now    func() time.Time
	create func(path string, f Format) (frameWriter, error)

	mu       sync.Mutex
	status   Status
	session  SessionInfo
	listener *stream.Listener
	done     chan struct{}
	err      error
}

// New creates an idle recorder writing into dir.
func New(src *stream.Broadcaster, dir string) *Recorder {
	return &Recorder{src: src, dir: dir, now: time.Now, create: createWriter, status: StatusIdle}
}

// Start begins recording to a new file named after the current time and
// returns its path. On failure the recorder stays idle.
func (r *Recorder) Start(f Format) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusRecording {
		return "", &CaptureError{Op: "start", Err: ErrAlreadyRecording}
	}
	if f != FormatWAV && f != FormatOpus {
		return "", &CaptureError{Op: "start", Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)}
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", &CaptureError{Op: "create dir", Err: err}
	}
	start := r.now()
	path := filepath.Join(r.dir, Filename(start, f))

	w, err := r.create(path, f)
	if err != nil {
		return "", &CaptureError{Op: "create " + string(f), Err: err}
	}

	r.session = SessionInfo{File: path, Format: f, StartTime: start}
	r.status = StatusRecording
	r.err = nil
	r.listener = r.src.Subscribe()
	r.done = make(chan struct{})
	go r.run(w, r.listener, r.done)
	slog.Info("recording started", "file", path)
	return path, nil
}

func (r *Recorder) run(w frameWriter, l *stream.Listener, done chan struct{}) {
	defer close(done)
	var werr error
	for werr == nil {
		select {
		case <-l.Done():
			for werr == nil && len(l.C) > 0 {
				werr = r.write(w, <-l.C)
			}
			r.finish(w, werr)
			return
		case frame := <-l.C:
			werr = r.write(w, frame)
		}
	}
	r.src.Unsubscribe(l)
	r.finish(w, werr)
}

func (r *Recorder) write(w frameWriter, frame []float32) error {
	if err := w.WriteFrame(frame); err != nil {
		return err
	}
	r.mu.Lock()
	r.session.Frames++
	r.mu.Unlock()
	return nil
}

func (r *Recorder) finish(w frameWriter, werr error) {
	cerr := w.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case werr != nil:
		r.err = &CaptureError{Op: "write", Err: werr}
	case cerr != nil:
		r.err = &CaptureError{Op: "close", Err: cerr}
	}
	if r.err != nil {
		r.status = StatusError
		slog.Warn("recording failed", "file", r.session.File, "err", r.err)
	}
}

// Stop ends the recording, finalizes the file and returns the session. A
// recording that failed stays in StatusError until the next Start.
func (r *Recorder) Stop() (SessionInfo, error) {
	r.mu.Lock()
	if r.listener == nil {
		r.mu.Unlock()
		return SessionInfo{}, &CaptureError{Op: "stop", Err: ErrNotRecording}
	}
	l, done := r.listener, r.done
	r.listener, r.done = nil, nil
	r.mu.Unlock()

	r.src.Unsubscribe(l)
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.err
	if err == nil {
		r.status = StatusIdle
	}
	slog.Info("recording stopped", "file", r.session.File, "duration", r.session.Duration())
	return r.session, err
}

// Status returns the recorder state and the current or last session.
func (r *Recorder) Status() (Status, SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.session
}
