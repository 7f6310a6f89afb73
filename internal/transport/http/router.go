// Package httptransport assembles the public HTTP surface. Handlers stay
// thin; routing and access control live here so the transport layer is the
// only place that knows about paths and roles.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	locationhandler "callfence/internal/location/handler"
	monitorhandler "callfence/internal/monitor/handler"
	"callfence/internal/platform/middleware"
	"callfence/pkg/platform/httputil"
)

// RouterDeps carries the wired handlers and the auth middleware inputs.
type RouterDeps struct {
	Location    *locationhandler.Handler
	Monitoring  *monitorhandler.Handler
	Tokens      middleware.TokenValidator
	AdminUserID string
	Logger      *slog.Logger
}

// NewRouter wires all public endpoints. Location reporting requires a valid
// session token; monitoring control is admin-only.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/healthz", handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Tokens, deps.Logger))
		deps.Location.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(deps.Tokens, deps.AdminUserID, deps.Logger))
		deps.Monitoring.Register(r)
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
