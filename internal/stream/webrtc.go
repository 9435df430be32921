package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/satindergrewal/blancdj/internal/audio"
)

// masterStreamID names the media stream every peer receives.
const masterStreamID = "blancdj-master"

var errNegotiation = errors.New("webrtc negotiation failed")

// WebRTCHandler answers SDP offers posted to it. Each peer gets its own
// broadcaster listener and Opus encoder for the master bus.
type WebRTCHandler struct {
	src *Broadcaster
	cfg webrtc.Configuration

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]*peer
}

type peer struct {
	pc       *webrtc.PeerConnection
	track    *webrtc.TrackLocalStaticSample
	listener *Listener
}

// NewWebRTCHandler creates a handler serving b. iceServers are STUN/TURN
// urls handed to every peer connection; none is fine on a LAN.
func NewWebRTCHandler(b *Broadcaster, iceServers ...string) *WebRTCHandler {
	h := &WebRTCHandler{src: b, peers: make(map[*webrtc.PeerConnection]*peer)}
	if len(iceServers) > 0 {
		h.cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return h
}

// PeerCount returns the number of connected peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.Type != webrtc.SDPTypeOffer {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	answer, err := h.answer(offer)
	if err != nil {
		slog.Warn("webrtc offer rejected", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(answer); err != nil {
		slog.Debug("webrtc: write answer", "err", err)
	}
}

// answer builds a peer for offer and returns the local description once ICE
// gathering is complete, so the client needs no trickle.
func (h *WebRTCHandler) answer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(h.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer: %v", errNegotiation, err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"audio",
		masterStreamID,
	)
	if err == nil {
		_, err = pc.AddTrack(track)
	}
	if err == nil {
		err = pc.SetRemoteDescription(offer)
	}
	var local webrtc.SessionDescription
	if err == nil {
		local, err = pc.CreateAnswer(nil)
	}
	if err == nil {
		err = pc.SetLocalDescription(local)
	}
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("%w: %v", errNegotiation, err)
	}
	<-webrtc.GatheringCompletePromise(pc)

	p := &peer{pc: pc, track: track, listener: h.src.Subscribe()}
	h.mu.Lock()
	h.peers[pc] = p
	n := len(h.peers)
	h.mu.Unlock()
	slog.Info("webrtc peer connected", "peers", n)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			h.hangUp(pc)
			slog.Info("webrtc peer gone", "state", s.String(), "peers", h.PeerCount())
		}
	})
	go h.pump(p)
	return pc.LocalDescription(), nil
}

// pump encodes the peer's frames until its listener is closed.
func (h *WebRTCHandler) pump(p *peer) {
	defer h.hangUp(p.pc)
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Warn("webrtc: encoder", "err", err)
		return
	}
	pkt := make([]byte, maxOpusFrame)
	for {
		select {
		case <-p.listener.Done():
			return
		case frame := <-p.listener.C:
			n, err := enc.EncodeFloat32(frame, pkt)
			if err != nil {
				slog.Debug("webrtc: opus encode", "err", err)
				continue
			}
			if err := p.track.WriteSample(media.Sample{Data: pkt[:n], Duration: audio.FrameDuration}); err != nil {
				return
			}
		}
	}
}

// hangUp forgets a peer, releases its listener and closes the connection.
// Safe to call more than once.
func (h *WebRTCHandler) hangUp(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	p, ok := h.peers[pc]
	delete(h.peers, pc)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.src.Unsubscribe(p.listener)
	if err := pc.Close(); err != nil {
		slog.Debug("webrtc: close peer", "err", err)
	}
}

// Close hangs up every connected peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	pcs := make([]*webrtc.PeerConnection, 0, len(h.peers))
	for pc := range h.peers {
		pcs = append(pcs, pc)
	}
	h.mu.Unlock()
	for _, pc := range pcs {
		h.hangUp(pc)
	}
}
