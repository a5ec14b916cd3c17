package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Routes builds the API handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(s.metrics.instrument)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ok(w, http.StatusOK, "OK", nil)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Post("/auth/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.accessTokenMiddleware)

			r.Post("/auth/logout", s.logout)

			r.Route("/pois", func(r chi.Router) {
				r.Get("/", s.listPOIs)
				r.Post("/", s.createPOI)
				r.Get("/statistics", s.poiStatistics)

				r.Route("/{poiID}", func(r chi.Router) {
					r.Get("/", s.getPOI)
					r.Patch("/", s.editPOI)
					r.Delete("/", s.deletePOI)
					r.Post("/pin", s.togglePin)
					r.Get("/picture", s.pictureURL)
					r.Put("/picture", s.uploadPicture)

					r.Get("/{collection}", s.listChildren)
					r.Post("/{collection}", s.createChild)
					r.Get("/{collection}/{id}", s.getChild)
					r.Patch("/{collection}/{id}", s.editChild)
					r.Delete("/{collection}/{id}", s.deleteChild)
				})
			})

			r.Route("/offenses", func(r chi.Router) {
				r.Get("/", s.listOffenses)
				r.Post("/", s.createOffense)
				r.Get("/{id}", s.getOffense)
				r.Patch("/{id}", s.editOffense)
				r.Delete("/{id}", s.deleteOffense)
			})

			r.Get("/audit-logs", s.listAuditLogs)
			r.Get("/login-attempts", s.listLoginAttempts)
		})
	})

	return r
}
