package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		// Device names contain slashes, so the name is the rest of the path:
		// GET /api/v1/devices/dev/sda1 returns /dev/sda1.
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/*", s.handleGetDevice)

		r.Get("/types", s.handleListTypes)
		r.Get("/types/{name}", s.handleTagsOfType)

		r.Get("/lookup", s.handleLookup)
		r.Post("/probe", s.handleProbe)
		r.Get("/probe/runs", s.handleListRuns)
	})

	return r
}
