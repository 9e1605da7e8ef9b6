package api

import (
	"net/http"

	"vff/internal/backend"
	"vff/internal/logging"
	"vff/internal/metrics"
	"vff/internal/middleware"
)

// NewRouter returns the full HTTP surface: document routes, health,
// metrics, and the middleware chain.
func NewRouter(b backend.Backend, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Nop()
	}

	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("GET /health", Health)
	mux.Handle("GET /metrics", metrics.Handler())

	NewDocumentHandler(b, logger).Register(mux)

	// Apply middleware, innermost first
	return middleware.Chain(
		mux,
		middleware.Logger(logger),
		middleware.RequestID,
		middleware.Recover(logger),
	)
}
