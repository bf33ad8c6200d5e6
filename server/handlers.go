// Package server exposes the HTTP API: health, status, metrics, the OAuth
// handshake, subscriber endpoints (WebSocket and SSE), and the admin relay
// toggles. It includes permissive CORS for overlay pages and injects
// correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/overlaykit/chat-relay/config"
	"github.com/overlaykit/chat-relay/relay"
	"github.com/overlaykit/chat-relay/youtubeapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx        context.Context
	db         *sql.DB
	cfg        *config.Config
	engine     *relay.Scheduler
	yt         *youtubeapi.Client
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB, cfg *config.Config, engine *relay.Scheduler, yt *youtubeapi.Client) *Handlers {
	return &Handlers{
		ctx:        ctx,
		db:         db,
		cfg:        cfg,
		engine:     engine,
		yt:         yt,
		stateStore: make(map[string]time.Time),
	}
}

// HandleStatus returns the engine's diagnostic snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := h.engine.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		slog.Warn("failed to encode status response", slog.Any("err", err))
	}
}

// cleanExpiredStates removes expired OAuth states. Caller holds stateMu.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState records a pending OAuth state with bounded growth.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	// Refusing past the cap fails the handshake, which beats unbounded
	// growth from unsolicited starts.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}
	h.stateStore[state] = expiry
}

// consumeOAuthState validates and removes a state; returns false if unknown
// or expired.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return time.Now().Before(exp)
}
