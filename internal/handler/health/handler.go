package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/astro-tavern/backend/pkg/utils"
)

// SessionCounter reports how many sessions are currently stored.
type SessionCounter interface {
	ActiveSessions(ctx context.Context) (int, error)
}

// Handler serves liveness information.
type Handler struct {
	sessions SessionCounter
	now      func() time.Time
}

func New(sessions SessionCounter) *Handler {
	return &Handler{sessions: sessions, now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "OK",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if count, err := h.sessions.ActiveSessions(r.Context()); err == nil {
		body["activeSessions"] = count
	} else {
		body["activeSessions"] = nil
		body["storeError"] = err.Error()
	}
	utils.RespondJSON(w, http.StatusOK, body)
}
