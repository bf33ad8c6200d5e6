package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/overlaykit/chat-relay/telemetry"
)

const (
	wsWriteTimeout = 5 * time.Second
	// sseBuffer bounds the per-subscriber queue; a full buffer drops the
	// event rather than stalling the engine.
	sseBuffer = 64
)

// wsSink adapts a websocket connection to relay.Sink. Writes are serialized
// because gorilla permits only one concurrent writer.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// sseSink adapts a server-sent-events response to relay.Sink via a bounded
// channel. Send never blocks: a slow consumer loses events, not the engine.
type sseSink struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

var errSinkClosed = errors.New("subscriber closed")

func newSSESink() *sseSink {
	return &sseSink{ch: make(chan []byte, sseBuffer)}
}

func (s *sseSink) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	select {
	case s.ch <- payload:
	default:
		// full buffer: drop the event
	}
	return nil
}

func (s *sseSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// HandleWS upgrades the connection and subscribes it to the event stream.
// The retained status notice is delivered first so late joiners see the
// engine's health immediately.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if h.cfg.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == h.cfg.AllowedOrigin
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", slog.Any("err", err))
		return
	}
	sink := &wsSink{conn: conn}

	if last := h.engine.LastStatus(); last != nil {
		if payload, err := json.Marshal(last); err == nil {
			_ = sink.Send(payload)
		}
	}

	handle := h.engine.Subscribe(sink)
	telemetry.LoggerWithCorr(r.Context()).Debug("websocket subscriber connected", slog.String("remote", r.RemoteAddr), slog.String("component", "stream"))

	defer func() {
		h.engine.Unsubscribe(handle)
		_ = conn.Close()
	}()

	// Drain reads to observe the close; inbound frames are ignored.
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// HandleSSE streams events as Server-Sent Events for consumers that cannot
// speak websockets (debug pages, curl).
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := newSSESink()
	if last := h.engine.LastStatus(); last != nil {
		if payload, err := json.Marshal(last); err == nil {
			_ = sink.Send(payload)
		}
	}
	handle := h.engine.Subscribe(sink)
	defer func() {
		h.engine.Unsubscribe(handle)
		sink.close()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, open := <-sink.ch:
			if !open {
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
