// Package engine wires the mixer together: two decks through the crossfader
// into the master bus, a 20ms render driver publishing master frames, and
// everything that taps them (sinks, recorder, network listeners). It also
// owns the track queue and loads the next queued track when a deck ends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/config"
	"github.com/satindergrewal/blancdj/internal/deck"
	"github.com/satindergrewal/blancdj/internal/graph"
	"github.com/satindergrewal/blancdj/internal/mixer"
	"github.com/satindergrewal/blancdj/internal/queue"
	"github.com/satindergrewal/blancdj/internal/recorder"
	"github.com/satindergrewal/blancdj/internal/router"
	"github.com/satindergrewal/blancdj/internal/stream"
)

// Deck ids.
const (
	DeckA = "A"
	DeckB = "B"
)

var ErrUnknownDeck = errors.New("unknown deck")

// Options carry the collaborators that touch hardware. Both are optional.
type Options struct {
	Backend router.Backend
	Mic     mixer.InputOpener
}

// Engine is the running mixer.
type Engine struct {
	cfg     config.Config
	ctx     *graph.Context
	backend router.Backend
	decks   map[string]*deck.Deck
	order   []string

	Mixer       *mixer.Mixer
	Mic         *mixer.Microphone
	Pipeline    *audio.Pipeline
	Broadcaster *stream.Broadcaster
	Router      *router.Router
	Recorder    *recorder.Recorder
	Queue       *queue.Queue

	mu          sync.Mutex
	tracks      map[string]audio.TrackInfo
	autoAdvance bool
	advancing   sync.WaitGroup
	onTrackEnd  func(deck string)
}

// New builds the graph and every component around it. Nothing runs until
// Run is called.
func New(cfg config.Config, opts Options) *Engine {
	ctx := graph.NewContext(audio.SampleRate)
	e := &Engine{
		cfg:         cfg,
		ctx:         ctx,
		backend:     opts.Backend,
		decks:       make(map[string]*deck.Deck),
		order:       []string{DeckA, DeckB},
		Broadcaster: stream.NewBroadcaster(),
		Queue:       queue.New(),
		tracks:      make(map[string]audio.TrackInfo),
		autoAdvance: true,
	}
	dopts := deck.Options{MeterRate: cfg.MeterRate, GateThreshold: cfg.GateThreshold}
	for _, id := range e.order {
		d := deck.New(ctx, id, dopts)
		d.SetEvents(deck.Events{
			OnTrackEnd:    func() { e.trackEnded(id) },
			OnDecodeError: func(err error) { slog.Warn("deck decode error", "deck", id, "err", err) },
		})
		e.decks[id] = d
	}
	e.Mixer = mixer.New(ctx, e.decks[DeckA].Output(), e.decks[DeckB].Output())
	e.Mixer.Crossfader.SetPosition(cfg.Crossfade)
	e.Mixer.Master.SetVolume(cfg.MasterVolume)
	e.Mic = mixer.NewMicrophone(ctx, e.Mixer.Master.Input(), opts.Mic)
	e.Pipeline = audio.NewPipeline(ctx)
	e.Recorder = recorder.New(e.Broadcaster, cfg.RecordDir)
	if opts.Backend != nil {
		e.Router = router.New(opts.Backend)
		e.Router.SetSource(e.Broadcaster)
	}
	return e
}

// Context exposes the signal graph, mainly for offline rendering in tests.
func (e *Engine) Context() *graph.Context { return e.ctx }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config { return e.cfg }

// Deck returns a deck by id, case-insensitively.
func (e *Engine) Deck(id string) (*deck.Deck, error) {
	d, ok := e.decks[strings.ToUpper(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeck, id)
	}
	return d, nil
}

// DeckIDs returns the deck ids in order.
func (e *Engine) DeckIDs() []string { return e.order }

// StartDevices refreshes the sink list, sets the local monitor and selects
// the configured sinks. Failures are logged and skipped.
func (e *Engine) StartDevices() {
	if e.Router == nil {
		return
	}
	if err := e.Router.Refresh(); err != nil {
		slog.Warn("list output devices", "err", err)
		return
	}
	if id := e.localMonitorID(); id != "" {
		if err := e.Router.SetLocalMonitor(id); err != nil {
			slog.Warn("local monitor", "sink", id, "err", err)
		}
	}
	for _, id := range e.cfg.Sinks {
		if err := e.Router.Select(id); err != nil {
			slog.Warn("auto-select sink", "sink", id, "err", err)
		}
	}
	if e.cfg.Microphone {
		if err := e.Mic.Start(); err != nil {
			slog.Warn("microphone", "err", err)
		}
	}
}

type defaultSinker interface {
	DefaultSink() (string, error)
}

func (e *Engine) localMonitorID() string {
	id := e.cfg.LocalMonitor
	if id != config.DefaultLocalMonitor {
		return id
	}
	ds, ok := e.backend.(defaultSinker)
	if !ok {
		return ""
	}
	id, err := ds.DefaultSink()
	if err != nil {
		slog.Debug("no default output device", "err", err)
		return ""
	}
	return id
}

// Run drives the render loop, fans master frames out and polls devices.
// Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	go e.Pipeline.Run(ctx)
	if e.Router != nil && e.cfg.DevicePoll > 0 {
		go e.Router.Monitor(ctx, e.cfg.DevicePoll)
	}
	slog.Info("engine running", "rate", audio.SampleRate, "frame", audio.FrameDuration)
	e.Broadcaster.Run(ctx, e.Pipeline.Frames())
}

// Close stops every deck, the microphone, recording and all sinks.
func (e *Engine) Close() {
	e.mu.Lock()
	e.autoAdvance = false
	e.mu.Unlock()
	e.advancing.Wait()
	for _, id := range e.order {
		e.decks[id].Close()
	}
	e.Mic.Stop()
	if st, _ := e.Recorder.Status(); st == recorder.StatusRecording {
		if _, err := e.Recorder.Stop(); err != nil {
			slog.Warn("stop recording", "err", err)
		}
	}
	if e.Router != nil {
		e.Router.Close()
	}
}

// LoadFile decodes a file into a deck.
func (e *Engine) LoadFile(id, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read track: %w", err)
	}
	return e.LoadBytes(id, audio.TrackInfo{Name: filepath.Base(path), Path: path}, data)
}

// LoadBytes decodes data into a deck and records its track info.
func (e *Engine) LoadBytes(id string, t audio.TrackInfo, data []byte) error {
	d, err := e.Deck(id)
	if err != nil {
		return err
	}
	if err := d.Load(data); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Duration = d.Duration()
	e.mu.Lock()
	e.tracks[d.ID()] = t
	e.mu.Unlock()
	slog.Info("track loaded", "deck", d.ID(), "track", t.Name, "duration", t.Duration)
	return nil
}

// Track returns what is loaded on a deck.
func (e *Engine) Track(id string) audio.TrackInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracks[strings.ToUpper(id)]
}

// SetAutoAdvance turns loading the next queued track on track end on or off.
func (e *Engine) SetAutoAdvance(on bool) {
	e.mu.Lock()
	e.autoAdvance = on
	e.mu.Unlock()
}

// AutoAdvance reports whether queue auto-advance is on.
func (e *Engine) AutoAdvance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoAdvance
}

// Enqueue stores an uploaded track in the queue directory and queues it for
// deck ("" for either deck).
func (e *Engine) Enqueue(name string, data []byte, deckID string) (queue.Item, error) {
	if deckID != queue.AnyDeck {
		d, err := e.Deck(deckID)
		if err != nil {
			return queue.Item{}, err
		}
		deckID = d.ID()
	}
	format := audio.Sniff(data)
	if format == "" {
		return queue.Item{}, &audio.DecodeError{Format: "unknown", Err: audio.ErrUnknownFormat}
	}
	if err := os.MkdirAll(e.cfg.QueueDir, 0o755); err != nil {
		return queue.Item{}, fmt.Errorf("queue dir: %w", err)
	}
	id := uuid.NewString()
	path := filepath.Join(e.cfg.QueueDir, id+"."+format)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return queue.Item{}, fmt.Errorf("store queued track: %w", err)
	}
	if name == "" {
		name = id
	}
	it := e.Queue.Add(audio.TrackInfo{ID: id, Name: name, Path: path}, deckID)
	slog.Info("track queued", "track", name, "deck", deckID, "queue", e.Queue.Len())
	return it, nil
}

// OnTrackEnd registers fn to run whenever a deck plays out. It runs on the
// render goroutine and must not block.
func (e *Engine) OnTrackEnd(fn func(deck string)) {
	e.mu.Lock()
	e.onTrackEnd = fn
	e.mu.Unlock()
}

// trackEnded runs on the render goroutine, so decoding happens elsewhere.
func (e *Engine) trackEnded(id string) {
	e.mu.Lock()
	on, fn := e.autoAdvance, e.onTrackEnd
	if on {
		e.advancing.Add(1)
	}
	e.mu.Unlock()
	if fn != nil {
		fn(id)
	}
	if !on {
		return
	}
	go func() {
		defer e.advancing.Done()
		e.advance(id)
	}()
}

// advance loads the next queued track for deck id and plays it. Items that
// fail to load are skipped.
func (e *Engine) advance(id string) {
	for {
		it, ok := e.Queue.Next(id)
		if !ok {
			return
		}
		data, err := os.ReadFile(it.Path)
		if err == nil {
			err = e.LoadBytes(id, it.TrackInfo, data)
		}
		if err != nil {
			slog.Warn("queued track failed to load", "deck", id, "track", it.Name, "err", err)
			continue
		}
		e.decks[id].Play()
		slog.Info("auto-advanced", "deck", id, "track", it.Name)
		return
	}
}
