package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/saulpulido52/litam-sub010/internal/config"
	"github.com/saulpulido52/litam-sub010/internal/transport/httpserver/handler"
	authmw "github.com/saulpulido52/litam-sub010/internal/transport/httpserver/middleware"
)

func NewRouter(cfg config.Config, handlers *handler.Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(authmw.NewCORS([]string{"http://localhost:5173"}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		// Provider callbacks and scheduler triggers come in without a
		// gateway identity.
		r.Post("/subscriptions/webhook", handlers.PaymentWebhook)
		r.Post("/internal/expirations/sweep", handlers.SweepExpirations)

		auth := authmw.NewGatewayAuth(cfg.Auth)
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Post("/relations", handlers.CreateRelation)
			r.Patch("/relations/{id}", handlers.RespondRelation)
			r.Get("/relations", handlers.ListMyRelations)
			r.Get("/relations/pending", handlers.ListPendingRequests)
			r.Get("/relations/my-active-professional", handlers.MyActiveProfessional)
			r.Post("/patients/{id}/change-professional", handlers.ChangeProfessional)

			r.Post("/records", handlers.CreateRecord)
			r.Get("/patients/{id}/records", handlers.ListPatientRecords)

			r.Get("/subscriptions/plans", handlers.ListPlans)
			r.Post("/subscriptions/subscribe", handlers.Subscribe)
			r.Get("/subscriptions/me", handlers.MySubscription)
			r.Post("/subscriptions/me/use-consultation", handlers.UseConsultation)
			r.Post("/subscriptions/{id}/cancel", handlers.CancelSubscription)
		})
	})

	return r
}
