package apiv1

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RegisterAPIV1 mounts every /api/v1 route on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.deps.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.deps.RequestTimeout))
			}
			r.Post("/ebooks", s.createEbook)
			r.Get("/ebooks/{id}", s.getEbook)
			r.Get("/ebooks/{id}/download", s.downloadEbook)
			r.Post("/descriptions", s.createDescription)
			r.Get("/library", s.listLibrary)
			r.Get("/library/{id}", s.getLibraryEbook)
		})

		// operator routes
		r.Group(func(r chi.Router) {
			r.Use(s.deps.Auth.Guard)
			r.Post("/ebooks/{id}/pages/{index}/requeue", s.requeuePage)
			if s.deps.Worker != nil {
				r.Post("/worker/run", s.runWorker)
			}
		})
	})
}
