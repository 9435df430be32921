package main

import (
	"log/slog"

	"github.com/satindergrewal/blancdj/internal/config"
	"github.com/satindergrewal/blancdj/internal/engine"
	"github.com/satindergrewal/blancdj/internal/mixer"
	"github.com/satindergrewal/blancdj/internal/router"
)

// startEngine builds an engine on the system audio devices. Without
// portaudio the engine still runs, with network and recording outputs only.
func startEngine(c config.Config) (*engine.Engine, func()) {
	var opts engine.Options
	pa, err := router.NewPortAudio()
	if err != nil {
		slog.Warn("audio devices unavailable, running without sinks or microphone", "err", err)
	} else {
		opts.Backend = pa
		opts.Mic = mixer.PortAudioInput
	}

	e := engine.New(c, opts)
	if e.Router != nil {
		e.Router.OnChange(func(added, removed []router.Sink) {
			for _, s := range added {
				slog.Info("output device appeared", "sink", s.ID)
			}
			for _, s := range removed {
				slog.Info("output device gone", "sink", s.ID)
			}
		})
	}
	e.StartDevices()

	return e, func() {
		e.Close()
		if pa != nil {
			if err := pa.Close(); err != nil {
				slog.Debug("portaudio terminate", "err", err)
			}
		}
	}
}
