package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check and diagnostics
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/status", s.handleStatus)

		// Device descriptor, in both task-data formats
		r.Route("/descriptor", func(r chi.Router) {
			r.Get("/taskdata.xml", s.handleDescriptorXML)
			r.Get("/pool.bin", s.handleDescriptorBinary)
		})

		// Section control
		r.Route("/sections", func(r chi.Router) {
			r.Get("/", s.handleListSections)
			r.Put("/mode", s.handleSetSectionMode)
			r.Put("/{index}", s.handleSetSectionSwitch)
		})

		// Process values
		r.Route("/values", func(r chi.Router) {
			r.Get("/", s.handleListValues)
			r.Route("/{element}/{ddi}", func(r chi.Router) {
				r.Get("/", s.handleGetValue)
				r.Get("/history", s.handleValueHistory)
			})
		})

		// Work totals
		r.Route("/totals", func(r chi.Router) {
			r.Get("/", s.handleGetTotals)
			r.Post("/refill", s.handleTankRefill)
		})

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
