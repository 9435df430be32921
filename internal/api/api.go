// Package api exposes the engine over a JSON HTTP control surface.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/satindergrewal/blancdj/internal/audio"
	"github.com/satindergrewal/blancdj/internal/deck"
	"github.com/satindergrewal/blancdj/internal/effects"
	"github.com/satindergrewal/blancdj/internal/engine"
	"github.com/satindergrewal/blancdj/internal/mixer"
	"github.com/satindergrewal/blancdj/internal/queue"
	"github.com/satindergrewal/blancdj/internal/recorder"
	"github.com/satindergrewal/blancdj/internal/router"
)

// MaxUpload caps track and sample uploads.
const MaxUpload = 256 << 20

var errBadRequest = errors.New("bad request")

// Handler serves the control API for one engine.
type Handler struct {
	e   *engine.Engine
	mux *http.ServeMux
}

// New builds the API routes. Sink ids carry a host API prefix and a slash,
// so clients must path-escape them.
func New(e *engine.Engine) *Handler {
	h := &Handler{e: e, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/status", h.status)
	h.mux.HandleFunc("GET /api/meters", h.meters)

	h.mux.HandleFunc("POST /api/decks/{deck}/load", h.load)
	h.mux.HandleFunc("POST /api/decks/{deck}/samples/{slot}/{op}", h.sample)
	h.mux.HandleFunc("POST /api/decks/{deck}/{op}", h.deckOp)

	h.mux.HandleFunc("POST /api/crossfader", h.crossfader)
	h.mux.HandleFunc("POST /api/master", h.master)
	h.mux.HandleFunc("POST /api/mic", h.mic)
	h.mux.HandleFunc("GET /api/presets", h.presets)

	h.mux.HandleFunc("GET /api/sinks", h.sinks)
	h.mux.HandleFunc("POST /api/sinks/refresh", h.refreshSinks)
	h.mux.HandleFunc("POST /api/sinks/{id}/{op}", h.sinkOp)

	h.mux.HandleFunc("POST /api/record/start", h.recordStart)
	h.mux.HandleFunc("POST /api/record/stop", h.recordStop)

	h.mux.HandleFunc("GET /api/queue", h.queueList)
	h.mux.HandleFunc("POST /api/queue", h.queueAdd)
	h.mux.HandleFunc("DELETE /api/queue", h.queueClear)
	h.mux.HandleFunc("DELETE /api/queue/{id}", h.queueRemove)
	h.mux.HandleFunc("POST /api/queue/move", h.queueMove)
	h.mux.HandleFunc("POST /api/queue/auto", h.queueAuto)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	h.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "err", err)
	}
}

func ok(w http.ResponseWriter, extra map[string]any) {
	out := map[string]any{"ok": true}
	for k, v := range extra {
		out[k] = v
	}
	writeJSON(w, out)
}

// writeError maps engine errors onto status codes: bad input is 400,
// missing things 404 and state conflicts 409.
func writeError(w http.ResponseWriter, err error) {
	var de *audio.DecodeError
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &de),
		errors.Is(err, errBadRequest),
		errors.Is(err, effects.ErrUnknownPreset),
		errors.Is(err, effects.ErrUnknownBand),
		errors.Is(err, deck.ErrInvalidSlot),
		errors.Is(err, recorder.ErrUnsupportedFormat),
		errors.Is(err, queue.ErrIndex):
		code = http.StatusBadRequest
	case errors.Is(err, engine.ErrUnknownDeck),
		errors.Is(err, router.ErrUnknownSink),
		errors.Is(err, queue.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, router.ErrAlreadySelected),
		errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, recorder.ErrNotRecording):
		code = http.StatusConflict
	case errors.Is(err, mixer.ErrNoInput):
		code = http.StatusServiceUnavailable
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		code = http.StatusRequestEntityTooLarge
	}
	if code == http.StatusInternalServerError {
		slog.Warn("api request failed", "err", err)
	}
	http.Error(w, err.Error(), code)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUpload))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", errBadRequest)
	}
	return data, nil
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.e.Status())
}

func (h *Handler) meters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.e.Meters())
}

func (h *Handler) presets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, effects.Presets())
}

// load takes the raw file as the body and an optional ?name=.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("deck")
	if _, err := h.e.Deck(id); err != nil {
		writeError(w, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	name := r.URL.Query().Get("name")
	if err := h.e.LoadBytes(id, audio.TrackInfo{Name: name}, data); err != nil {
		writeError(w, err)
		return
	}
	ds, _ := h.e.DeckStatus(id)
	writeJSON(w, ds)
}

type deckRequest struct {
	Value     *float64 `json:"value"`
	Band      *string  `json:"band"`
	Index     *int     `json:"index"`
	DB        *float64 `json:"db"`
	Name      string   `json:"name"`
	Mix       *float64 `json:"mix"`
	Time      *float64 `json:"time"`
	Feedback  *float64 `json:"feedback"`
	Threshold *float64 `json:"threshold"`
	Enabled   *bool    `json:"enabled"`
}

func need[T any](p *T, field string) (T, error) {
	if p == nil {
		var zero T
		return zero, fmt.Errorf("%w: %s required", errBadRequest, field)
	}
	return *p, nil
}

func (h *Handler) deckOp(w http.ResponseWriter, r *http.Request) {
	d, err := h.e.Deck(r.PathValue("deck"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req deckRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := applyDeckOp(d, r.PathValue("op"), req); err != nil {
		writeError(w, err)
		return
	}
	ds, _ := h.e.DeckStatus(d.ID())
	writeJSON(w, ds)
}

func applyDeckOp(d *deck.Deck, op string, req deckRequest) error {
	switch op {
	case "play":
		d.Play()
	case "pause":
		d.Pause()
	case "stop":
		d.Stop()
	case "brake":
		d.Brake()
	case "loop-in":
		d.SetLoopIn()
	case "loop-out":
		d.SetLoopOut()
	case "loop-exit":
		d.ExitLoop()
	case "seek":
		v, err := need(req.Value, "value")
		if err != nil {
			return err
		}
		d.Seek(v)
	case "speed":
		v, err := need(req.Value, "value")
		if err != nil {
			return err
		}
		d.SetSpeed(v)
	case "volume":
		v, err := need(req.Value, "value")
		if err != nil {
			return err
		}
		d.SetVolume(v)
	case "eq":
		i, err := need(req.Index, "index")
		if err != nil {
			return err
		}
		db, err := need(req.DB, "db")
		if err != nil {
			return err
		}
		if i < 0 || i >= len(effects.EQFrequencies) {
			return fmt.Errorf("%w: eq band %d out of range", errBadRequest, i)
		}
		d.SetEQGain(i, db)
	case "eq-preset":
		return d.ApplyEQPreset(req.Name)
	case "isolator":
		name, err := need(req.Band, "band")
		if err != nil {
			return err
		}
		band, err := effects.ParseBand(name)
		if err != nil {
			return err
		}
		v, err := need(req.Value, "value")
		if err != nil {
			return err
		}
		d.SetIsolatorGain(band, v)
	case "delay":
		if req.Mix != nil {
			d.SetDelayMix(*req.Mix)
		}
		if req.Time != nil {
			d.SetDelayTime(*req.Time)
		}
		if req.Feedback != nil {
			d.SetDelayFeedback(*req.Feedback)
		}
	case "reverb":
		v, err := need(req.Mix, "mix")
		if err != nil {
			return err
		}
		d.SetReverbMix(v)
	case "gate":
		if req.Threshold != nil {
			d.SetGateThreshold(*req.Threshold)
		}
		if req.Enabled != nil {
			d.SetGateEnabled(*req.Enabled)
		}
	default:
		return fmt.Errorf("%w: unknown deck operation %q", errBadRequest, op)
	}
	return nil
}

func (h *Handler) sample(w http.ResponseWriter, r *http.Request) {
	d, err := h.e.Deck(r.PathValue("deck"))
	if err != nil {
		writeError(w, err)
		return
	}
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil || slot < 0 || slot >= deck.NumSlots {
		writeError(w, deck.ErrInvalidSlot)
		return
	}
	switch r.PathValue("op") {
	case "load":
		data, err := readBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := d.LoadSample(slot, data); err != nil {
			writeError(w, err)
			return
		}
	case "play":
		d.PlaySample(slot)
	case "unload":
		d.UnloadSample(slot)
	default:
		writeError(w, fmt.Errorf("%w: unknown sample operation %q", errBadRequest, r.PathValue("op")))
		return
	}
	ok(w, map[string]any{"slot": slot, "loaded": d.SampleLoaded(slot)})
}

func (h *Handler) crossfader(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position *float64 `json:"position"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := need(req.Position, "position")
	if err != nil {
		writeError(w, err)
		return
	}
	h.e.Mixer.Crossfader.SetPosition(p)
	ok(w, map[string]any{"position": h.e.Mixer.Crossfader.Position()})
}

func (h *Handler) master(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v, err := need(req.Volume, "volume")
	if err != nil {
		writeError(w, err)
		return
	}
	h.e.Mixer.Master.SetVolume(v)
	ok(w, map[string]any{"volume": h.e.Mixer.Master.Volume()})
}

func (h *Handler) mic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool    `json:"enabled"`
		Volume  *float64 `json:"volume"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Volume != nil {
		h.e.Mic.SetVolume(*req.Volume)
	}
	if req.Enabled != nil {
		if *req.Enabled {
			if err := h.e.Mic.Start(); err != nil {
				writeError(w, err)
				return
			}
		} else {
			h.e.Mic.Stop()
		}
	}
	ok(w, map[string]any{"active": h.e.Mic.Active(), "volume": h.e.Mic.Volume()})
}

func (h *Handler) routerOrError(w http.ResponseWriter) *router.Router {
	if h.e.Router == nil {
		http.Error(w, "no output devices available", http.StatusServiceUnavailable)
	}
	return h.e.Router
}

func (h *Handler) sinks(w http.ResponseWriter, r *http.Request) {
	st := h.e.Status()
	writeJSON(w, map[string]any{
		"sinks":         st.Sinks,
		"selected":      h.selected(),
		"local_monitor": st.LocalMonitor,
		"local_muted":   st.LocalMuted,
	})
}

func (h *Handler) selected() []string {
	if h.e.Router == nil {
		return nil
	}
	return h.e.Router.Selected()
}

func (h *Handler) refreshSinks(w http.ResponseWriter, r *http.Request) {
	rt := h.routerOrError(w)
	if rt == nil {
		return
	}
	if err := rt.Refresh(); err != nil {
		writeError(w, err)
		return
	}
	h.sinks(w, r)
}

func (h *Handler) sinkOp(w http.ResponseWriter, r *http.Request) {
	rt := h.routerOrError(w)
	if rt == nil {
		return
	}
	id := r.PathValue("id")
	var err error
	switch r.PathValue("op") {
	case "select":
		err = rt.Select(id)
	case "deselect":
		rt.Deselect(id)
	case "monitor":
		err = rt.SetLocalMonitor(id)
	default:
		err = fmt.Errorf("%w: unknown sink operation %q", errBadRequest, r.PathValue("op"))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, map[string]any{"sink": id, "status": rt.Status(id), "selected": rt.Selected()})
}

func (h *Handler) recordStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Format string `json:"format"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Format == "" {
		req.Format = h.e.Config().RecordFormat
	}
	f, err := recorder.ParseFormat(req.Format)
	if err != nil {
		writeError(w, err)
		return
	}
	path, err := h.e.Recorder.Start(f)
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, map[string]any{"file": path, "format": f})
}

func (h *Handler) recordStop(w http.ResponseWriter, r *http.Request) {
	sess, err := h.e.Recorder.Stop()
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, map[string]any{"session": sess, "duration": sess.Duration().Seconds()})
}

func (h *Handler) queueList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"items":        h.e.Queue.Items(),
		"auto_advance": h.e.AutoAdvance(),
	})
}

// queueAdd takes the raw file as the body with ?name= and optional ?deck=.
func (h *Handler) queueAdd(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	it, err := h.e.Enqueue(q.Get("name"), data, q.Get("deck"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(it)
}

func (h *Handler) queueClear(w http.ResponseWriter, r *http.Request) {
	h.e.Queue.Clear()
	ok(w, nil)
}

func (h *Handler) queueRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.e.Queue.Remove(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	ok(w, map[string]any{"queue_size": h.e.Queue.Len()})
}

func (h *Handler) queueMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From *int `json:"from"`
		To   *int `json:"to"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	from, err := need(req.From, "from")
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := need(req.To, "to")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.e.Queue.Move(from, to); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, h.e.Queue.Items())
}

func (h *Handler) queueAuto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	on, err := need(req.Enabled, "enabled")
	if err != nil {
		writeError(w, err)
		return
	}
	h.e.SetAutoAdvance(on)
	ok(w, map[string]any{"auto_advance": on})
}
