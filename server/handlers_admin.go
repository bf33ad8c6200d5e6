package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dbpkg "github.com/overlaykit/chat-relay/db"
)

// relayEnabledKey is the kv row remembering the toggle across restarts.
const relayEnabledKey = "relay_enabled"

// HandleRelayEnable arms the poll scheduler. Idempotent: enabling an enabled
// engine is a no-op.
func (h *Handlers) HandleRelayEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.cfg.ValidatePollReady(); err != nil {
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
		return
	}
	h.engine.Enable()
	h.persistToggle(r, "1")
	slog.Info("relay enabled via admin API", slog.String("component", "admin"))
	h.writeSnapshot(w)
}

// HandleRelayDisable cancels any pending wake and resets the cursor.
// Idempotent.
func (h *Handlers) HandleRelayDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.engine.Disable()
	h.persistToggle(r, "0")
	slog.Info("relay disabled via admin API", slog.String("component", "admin"))
	h.writeSnapshot(w)
}

// persistToggle remembers the admin's choice so a restart resumes it.
func (h *Handlers) persistToggle(r *http.Request, value string) {
	if h.db == nil {
		return
	}
	if err := dbpkg.SetKV(r.Context(), h.db, relayEnabledKey, value); err != nil {
		slog.Warn("failed to persist relay toggle", slog.Any("err", err), slog.String("component", "admin"))
	}
}

func (h *Handlers) writeSnapshot(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.engine.Snapshot()); err != nil {
		slog.Warn("failed to encode snapshot", slog.Any("err", err))
	}
}
