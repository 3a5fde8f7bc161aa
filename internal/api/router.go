package api

import (
	"database/sql"
	"net/http"

	"relove-be/internal/auth"
	"relove-be/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// NewRouter wires the checkout surface. All routes pass through request
// id, logging, and rate limiting; identity is optional everywhere except
// the admin refund endpoint.
func NewRouter(handler *Handler, verifier *auth.SessionVerifier, db *sql.DB) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.RateLimitMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(verifier))

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/payment-intent", handler.CreatePaymentIntent)
			r.Post("/fulfillment", handler.UpdateFulfillment)
			r.Post("/confirm", handler.ConfirmPayment)
		})

		r.Get("/orders/{orderID}", handler.GetOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(verifier))
			r.Post("/orders/{orderID}/refund", handler.RefundOrder)
		})
	})

	return r
}
