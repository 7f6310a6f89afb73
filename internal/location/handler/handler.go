package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"callfence/internal/geofence"
	"callfence/internal/location"
	dErrors "callfence/pkg/domain-errors"
	"callfence/pkg/platform/httputil"
	"callfence/pkg/requestcontext"
)

// Service defines the interface for location operations.
type Service interface {
	RecordLocation(ctx context.Context, report location.Report) (*location.Status, error)
	CurrentVerdict(ctx context.Context, userID string) (*location.Status, error)
}

// Handler wires location endpoints to the location service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a location handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts location endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/location/report", h.HandleReport)
	r.Get("/location/verdict", h.HandleVerdict)
}

// ReportRequest is the browser client payload, delivered roughly every 30
// seconds per active session.
type ReportRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp,omitempty"` // unix seconds, optional
}

// StatusResponse reports the verdict attached to a user.
type StatusResponse struct {
	Verdict    string `json:"verdict"`
	Stale      bool   `json:"stale,omitempty"`
	ReportedAt string `json:"reported_at,omitempty"`
	Message    string `json:"message,omitempty"`
}

func fromStatus(status *location.Status) StatusResponse {
	resp := StatusResponse{
		Verdict: string(status.Verdict),
		Stale:   status.Stale,
	}
	if !status.ReportedAt.IsZero() {
		resp.ReportedAt = status.ReportedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// HandleReport handles POST /location/report requests.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ReportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	report := location.Report{
		UserID:    userID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
	if req.Timestamp > 0 {
		report.ReportedAt = time.Unix(req.Timestamp, 0)
	}

	status, err := h.service.RecordLocation(ctx, report)
	if err != nil {
		h.logger.WarnContext(ctx, "location report rejected",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "location recorded",
		"request_id", requestID,
		"user_id", userID,
		"verdict", status.Verdict,
	)

	resp := fromStatus(status)
	if status.Verdict == geofence.VerdictBlocked {
		// The report is recorded either way; the status code tells the
		// client it is outside the allowed boundary.
		resp.Message = "location outside allowed boundary"
		httputil.WriteJSON(w, http.StatusForbidden, resp)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerdict handles GET /location/verdict requests.
func (h *Handler) HandleVerdict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	status, err := h.service.CurrentVerdict(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromStatus(status))
}
