package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with defaults suited to the registry and
// evidence APIs. Per-route deadlines are enforced by handler middleware.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
