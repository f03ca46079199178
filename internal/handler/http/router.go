package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goleaf/discount-service/internal/service"
	"github.com/goleaf/discount-service/pkg/health"
	"github.com/goleaf/discount-service/pkg/middleware"
)

// NewRouter creates a chi router with all discount service routes registered.
func NewRouter(
	discountService *service.DiscountService,
	auditService *service.DiscountAuditService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS)
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("discount"))
	r.Use(middleware.Tracing("discount"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Discount API endpoints
	discountHandler := NewDiscountHandler(discountService, logger)
	auditHandler := NewAuditHandler(auditService, logger)

	r.Route("/api/v1/discounts", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", discountHandler.CreateDiscount)
		r.Get("/", discountHandler.ListDiscounts)

		// Evaluation endpoints (must come before /{id} to avoid conflict).
		r.Post("/evaluate", discountHandler.EvaluateCart)
		r.Post("/preview", discountHandler.PreviewCart)

		r.Get("/{id}", discountHandler.GetDiscount)
		r.Put("/{id}", discountHandler.UpdateDiscount)
		r.Post("/{id}/activate", discountHandler.ActivateDiscount)
		r.Post("/{id}/deactivate", discountHandler.DeactivateDiscount)
	})

	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Get("/discounts/{id}", auditHandler.TrailByDiscount)
		r.Get("/carts/{cartId}", auditHandler.TrailByCart)
		r.Get("/carts/{cartId}/report", auditHandler.ComplianceReport)
		r.Get("/jurisdictions/{code}", auditHandler.TrailByJurisdiction)
	})

	return r
}
