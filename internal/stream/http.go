package stream

import (
	"log/slog"
	"net/http"
)

// HTTPHandler serves the master bus as a chunked Ogg/Opus stream. Each
// connection gets its own encoder.
type HTTPHandler struct {
	broadcaster *Broadcaster
	name        string
}

// NewHTTPHandler creates an HTTP stream handler. name is advertised in the
// ICY-Name header.
func NewHTTPHandler(b *Broadcaster, name string) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, name: name}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/ogg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", h.name)

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := NewOggOpus(w)
	if err != nil {
		slog.Warn("http stream: encoder", "err", err)
		return
	}
	flusher.Flush()

	slog.Info("http listener connected", "remote", r.RemoteAddr, "listeners", h.broadcaster.ListenerCount())
	defer slog.Info("http listener disconnected", "remote", r.RemoteAddr, "dropped", listener.Dropped())

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Done():
			return
		case frame := <-listener.C:
			if err := enc.WriteFrame(frame); err != nil {
				slog.Debug("http stream: write", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}
