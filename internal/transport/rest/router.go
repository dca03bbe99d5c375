package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fanmate/platform/internal/auth"
	"github.com/fanmate/platform/internal/payment"
	"github.com/fanmate/platform/internal/transport/middleware"
)

// RegisterAllRoutes wires the HTTP surface: health, metrics and the payment
// intent endpoints behind authentication.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	authMiddleware *auth.Middleware,
	paymentHandler *payment.Handler,
	metricsEnabled bool,
	metricsPath string,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	if metricsEnabled {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		router.Method(http.MethodGet, metricsPath, promhttp.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Group(func(pr chi.Router) {
			pr.Use(authMiddleware.Handler)

			pr.Route("/payments", func(payr chi.Router) {
				payr.Post("/prepare", paymentHandler.PreparePayment)
				payr.Post("/confirm", paymentHandler.ConfirmPayment)
				payr.Post("/{intentID}/cancel", paymentHandler.CancelPayment)
			})
		})
	})
}
