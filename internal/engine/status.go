package engine

import (
	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/deck"
	"github.com/satindergrewal/blancdj/internal/graph"
	"github.com/satindergrewal/blancdj/internal/recorder"
	"github.com/satindergrewal/blancdj/internal/router"
)

// LoopStatus describes a deck's loop points.
type LoopStatus struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Active bool    `json:"active"`
}

// DeckStatus is a point-in-time view of one deck.
type DeckStatus struct {
	ID       string              `json:"id"`
	State    string              `json:"state"`
	Track    audio.TrackInfo     `json:"track"`
	Loaded   bool                `json:"loaded"`
	Live     bool                `json:"live"`
	Position float64             `json:"position"`
	Duration float64             `json:"duration"`
	Rate     float64             `json:"rate"`
	Braking  bool                `json:"braking"`
	Volume   float64             `json:"volume"`
	Level    float64             `json:"level"`
	Loop     LoopStatus          `json:"loop"`
	Samples  [deck.NumSlots]bool `json:"samples"`
}

// SinkStatus pairs a device with its attachment state.
type SinkStatus struct {
	router.Sink
	Status router.Status `json:"status"`
}

// Status is a point-in-time view of the whole engine.
type Status struct {
	Decks        []DeckStatus         `json:"decks"`
	Crossfader   float64              `json:"crossfader"`
	MasterVolume float64              `json:"master_volume"`
	MasterLevel  float64              `json:"master_level"`
	Limiting     float64              `json:"limiting_db"`
	MicActive    bool                 `json:"mic_active"`
	MicVolume    float64              `json:"mic_volume"`
	Sinks        []SinkStatus         `json:"sinks"`
	LocalMonitor string               `json:"local_monitor,omitempty"`
	LocalMuted   bool                 `json:"local_muted"`
	Recording    recorder.Status      `json:"recording"`
	Session      recorder.SessionInfo `json:"session"`
	QueueSize    int                  `json:"queue_size"`
	AutoAdvance  bool                 `json:"auto_advance"`
	Listeners    int                  `json:"listeners"`
	Rendered     float64              `json:"rendered"`
	LateFrames   int64                `json:"late_frames"`
}

// DeckStatus snapshots one deck.
func (e *Engine) DeckStatus(id string) (DeckStatus, error) {
	d, err := e.Deck(id)
	if err != nil {
		return DeckStatus{}, err
	}
	start, end, active := d.Loop()
	s := DeckStatus{
		ID:       d.ID(),
		State:    d.State().String(),
		Track:    e.Track(d.ID()),
		Loaded:   d.Loaded(),
		Live:     d.Live(),
		Position: d.CurrentTime(),
		Duration: d.Duration(),
		Rate:     d.Rate(),
		Braking:  d.Braking(),
		Volume:   d.Volume(),
		Level:    d.Level(),
		Loop:     LoopStatus{Start: start, End: end, Active: active},
	}
	for i := range s.Samples {
		s.Samples[i] = d.SampleLoaded(i)
	}
	return s, nil
}

// Status snapshots the engine.
func (e *Engine) Status() Status {
	pos, late := e.Pipeline.Status()
	rec, sess := e.Recorder.Status()
	s := Status{
		Crossfader:   e.Mixer.Crossfader.Position(),
		MasterVolume: e.Mixer.Master.Volume(),
		MasterLevel:  e.Mixer.Master.Level(),
		Limiting:     e.Mixer.Master.Reduction(),
		MicActive:    e.Mic.Active(),
		MicVolume:    e.Mic.Volume(),
		Recording:    rec,
		Session:      sess,
		QueueSize:    e.Queue.Len(),
		AutoAdvance:  e.AutoAdvance(),
		Listeners:    e.Broadcaster.ListenerCount(),
		Rendered:     pos.Seconds(),
		LateFrames:   late,
	}
	for _, id := range e.order {
		ds, _ := e.DeckStatus(id)
		s.Decks = append(s.Decks, ds)
	}
	if e.Router != nil {
		for _, sk := range e.Router.Sinks() {
			s.Sinks = append(s.Sinks, SinkStatus{Sink: sk, Status: e.Router.Status(sk.ID)})
		}
		s.LocalMonitor = e.Router.LocalMonitor()
		s.LocalMuted = e.Router.LocalMuted()
	}
	return s
}

// Spectrum byte scale bounds, in dB.
const (
	spectrumMinDB = -100
	spectrumMaxDB = -30
)

// Meter is one analyser read: RMS level and a 0..255 spectrum.
type Meter struct {
	Level    float64 `json:"level"`
	Spectrum []int   `json:"spectrum"`
}

// Meters reads the master analyser (key "master") and each deck's.
func (e *Engine) Meters() map[string]Meter {
	out := map[string]Meter{"master": meter(e.Mixer.Master.Analyser())}
	for _, id := range e.order {
		out[id] = meter(e.decks[id].Analyser())
	}
	return out
}

func meter(a *graph.AnalyserNode) Meter {
	spec := a.ByteSpectrum(spectrumMinDB, spectrumMaxDB)
	m := Meter{Level: a.RMS(), Spectrum: make([]int, len(spec))}
	for i, v := range spec {
		m.Spectrum[i] = int(v)
	}
	return m
}
