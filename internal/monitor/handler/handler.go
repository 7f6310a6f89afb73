package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"callfence/internal/monitor"
	"callfence/pkg/platform/httputil"
	"callfence/pkg/requestcontext"
)

// Sessions defines the interface for monitoring session control.
type Sessions interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() monitor.Status
}

// Handler wires monitoring session endpoints to the session manager.
type Handler struct {
	sessions Sessions
	logger   *slog.Logger
}

// New constructs a monitoring handler with its dependencies.
func New(sessions Sessions, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

// Register mounts monitoring endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/monitoring/start", h.HandleStart)
	r.Post("/monitoring/stop", h.HandleStop)
	r.Get("/monitoring/status", h.HandleStatus)
}

// HandleStart handles POST /monitoring/start requests.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if err := h.sessions.Start(ctx); err != nil {
		h.logger.WarnContext(ctx, "monitoring start failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, h.sessions.Status())
}

// HandleStop handles POST /monitoring/stop requests.
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if err := h.sessions.Stop(ctx); err != nil {
		h.logger.WarnContext(ctx, "monitoring stop failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.sessions.Status())
}

// HandleStatus handles GET /monitoring/status requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.sessions.Status())
}
