package httpserver

import (
	"net/http"
	"time"
)

// New builds the admin and report-session HTTP server. The write timeout
// stays generous so a monitoring stop that waits out its drain grace period
// can still answer within the request.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
