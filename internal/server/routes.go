package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.getSession)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.listAgents)
			r.Post("/", s.spawnAgent)

			r.Route("/{agentID}", func(r chi.Router) {
				r.Get("/", s.getAgent)
				r.Get("/output", s.agentOutput)
				r.Post("/wait", s.waitAgent)
				r.Post("/close", s.closeAgent)
			})
		})

		r.Get("/messages", s.listMessages)
		r.Post("/messages", s.sendMessage)

		r.Post("/policy/check", s.checkPolicy)
	})

	// Event streaming (SSE)
	r.Get("/event", s.events)
}
