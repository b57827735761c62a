package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/dispatch", h.Dispatch)
		r.Get("/templates", h.ListTemplates)

		r.Route("/trainers/{trainerID}", func(r chi.Router) {
			r.Post("/runs", h.RunTrainer)
			r.Get("/runs", h.ListRunReports)
			r.Get("/risk-profiles", h.ListRiskProfiles)
			r.Get("/campaigns", h.ListCampaigns)
			r.Post("/clients/{clientID}/drafts", h.CreateDraft)
		})
	})

	return r
}
