package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goleaf/discount-service/internal/service"
)

// AuditHandler handles HTTP requests for audit trail endpoints.
type AuditHandler struct {
	service *service.DiscountAuditService
	logger  *slog.Logger
}

// NewAuditHandler creates a new audit HTTP handler.
func NewAuditHandler(svc *service.DiscountAuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		service: svc,
		logger:  logger,
	}
}

// TrailByDiscount handles GET /api/v1/audit/discounts/{id}
func (h *AuditHandler) TrailByDiscount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "limit must be a non-negative integer"},
			})
			return
		}
		limit = parsed
	}

	entries, err := h.service.TrailByDiscount(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: entries})
}

// TrailByCart handles GET /api/v1/audit/carts/{cartId}
func (h *AuditHandler) TrailByCart(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")

	entries, err := h.service.TrailByCart(r.Context(), cartID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: entries})
}

// TrailByJurisdiction handles GET /api/v1/audit/jurisdictions/{code}
func (h *AuditHandler) TrailByJurisdiction(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "from must be in RFC3339 format"},
			})
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "to must be in RFC3339 format"},
			})
			return
		}
		to = parsed
	}

	entries, err := h.service.TrailByJurisdiction(r.Context(), code, from, to)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: entries})
}

// ComplianceReport handles GET /api/v1/audit/carts/{cartId}/report
func (h *AuditHandler) ComplianceReport(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")

	report, err := h.service.ComplianceReport(r.Context(), cartID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: report})
}
