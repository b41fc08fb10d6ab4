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
	r.Use(bodySizeLimitMiddleware(maxRequestBodySize))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no such route")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/nodes", s.handleListNodes)

		r.Route("/register", func(r chi.Router) {
			r.Get("/", s.handleGetRegister)
			r.With(bodySizeLimitMiddleware(registerBodyLimit)).Put("/", s.handleSetRegister)
		})

		if s.auditRepo != nil {
			r.Get("/audit", s.handleListAuditLogs)
		}
	})

	return r
}
