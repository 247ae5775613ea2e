package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP surface around the events engine.
func NewRouter(h *EventHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(logger))
	r.Use(CORS)

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Authenticate)

		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.CreateEvent)
			r.Get("/", h.ListEvents)
			r.Get("/{id}", h.GetEvent)
			r.Post("/{id}/publish", h.PublishEvent)
			r.Put("/{id}/capacity", h.UpdateCapacity)
			r.Put("/{id}/pricing", h.UpdatePricing)
			r.Post("/{id}/register", h.Register)
			r.Delete("/{id}/register", h.CancelRegistration)
			r.Get("/{id}/registrations", h.ListRegistrations)
		})
		r.Post("/reminders/run", h.RunReminders)
		r.Get("/audit", h.AuditTrail)
	})

	return r
}
