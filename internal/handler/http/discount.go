package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goleaf/discount-service/internal/domain"
	"github.com/goleaf/discount-service/internal/repository"
	"github.com/goleaf/discount-service/internal/service"
	apperrors "github.com/goleaf/discount-service/pkg/errors"
	"github.com/goleaf/discount-service/pkg/validator"
)

// DiscountHandler handles HTTP requests for discount endpoints.
type DiscountHandler struct {
	service *service.DiscountService
	logger  *slog.Logger
}

// NewDiscountHandler creates a new discount HTTP handler.
func NewDiscountHandler(svc *service.DiscountService, logger *slog.Logger) *DiscountHandler {
	return &DiscountHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateDiscountRequest is the JSON request body for creating a discount.
// Data carries the flat discount configuration document (percentage,
// fixed_amount, stacking_mode, ...) as stored.
type CreateDiscountRequest struct {
	Name         string               `json:"name" validate:"required,min=1,max=255"`
	Description  string               `json:"description"`
	Code         string               `json:"code" validate:"max=50"`
	Priority     int                  `json:"priority" validate:"gte=0"`
	Data         json.RawMessage      `json:"data"`
	Purchasables []PurchasableRequest `json:"purchasables" validate:"omitempty,dive"`
	StartDate    string               `json:"start_date"`
	EndDate      string               `json:"end_date"`
}

// UpdateDiscountRequest is the JSON request body for updating a discount.
type UpdateDiscountRequest struct {
	Name         *string              `json:"name" validate:"omitempty,min=1,max=255"`
	Description  *string              `json:"description"`
	Code         *string              `json:"code" validate:"omitempty,max=50"`
	Priority     *int                 `json:"priority" validate:"omitempty,gte=0"`
	Status       *string              `json:"status" validate:"omitempty,oneof=draft active paused archived"`
	Data         json.RawMessage      `json:"data"`
	Purchasables []PurchasableRequest `json:"purchasables" validate:"omitempty,dive"`
	StartDate    *string              `json:"start_date"`
	EndDate      *string              `json:"end_date"`
}

// PurchasableRequest associates a discount with a purchasable.
type PurchasableRequest struct {
	PurchasableID string `json:"purchasable_id" validate:"required"`
	Role          string `json:"role" validate:"omitempty,oneof=condition reward generic"`
}

// EvaluateRequest is the JSON request body for evaluating or previewing
// discounts against a cart.
type EvaluateRequest struct {
	Cart        CartRequest `json:"cart" validate:"required"`
	CouponCodes []string    `json:"coupon_codes" validate:"omitempty,dive,required"`
	BaseAmount  int64       `json:"base_amount" validate:"gte=0"`
	Scope       string      `json:"scope" validate:"omitempty,oneof=cart checkout preview"`
}

// CartRequest is the cart snapshot supplied for evaluation.
type CartRequest struct {
	ID              string            `json:"id" validate:"required"`
	CustomerID      string            `json:"customer_id"`
	CustomerCountry string            `json:"customer_country" validate:"omitempty,len=2"`
	ChannelID       string            `json:"channel_id"`
	ChannelCountry  string            `json:"channel_country" validate:"omitempty,len=2"`
	Currency        string            `json:"currency" validate:"omitempty,len=3"`
	Lines           []CartLineRequest `json:"lines" validate:"omitempty,dive"`
	SubtotalAmount  int64             `json:"subtotal_amount" validate:"gte=0"`
	ShippingAddress *AddressRequest   `json:"shipping_address"`
	Metadata        map[string]string `json:"metadata"`
}

// CartLineRequest is one priced line of the evaluated cart.
type CartLineRequest struct {
	PurchasableID string `json:"purchasable_id" validate:"required"`
	SKU           string `json:"sku"`
	Quantity      int    `json:"quantity" validate:"gte=0"`
	LinePrice     int64  `json:"line_price" validate:"gte=0"`
	MAPProtected  bool   `json:"map_protected"`
}

// AddressRequest carries the fields relevant to jurisdiction resolution.
type AddressRequest struct {
	Line1       string `json:"line1"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code" validate:"required,len=2"`
}

// --- Response envelope ---

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type listResponse struct {
	Data       any `json:"data"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// --- Handlers ---

// CreateDiscount handles POST /api/v1/discounts
func (h *DiscountHandler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req CreateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	var data domain.DiscountData
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &data); err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid data document: " + err.Error()},
			})
			return
		}
	}

	input := &service.CreateDiscountInput{
		Name:         req.Name,
		Description:  req.Description,
		Code:         req.Code,
		Priority:     req.Priority,
		Data:         data,
		Purchasables: toPurchasables(req.Purchasables),
	}

	if req.StartDate != "" {
		startDate, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "start_date must be in RFC3339 format"},
			})
			return
		}
		input.StartDate = startDate
	}

	if req.EndDate != "" {
		endDate, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "end_date must be in RFC3339 format"},
			})
			return
		}
		input.EndDate = endDate
	}

	discount, err := h.service.CreateDiscount(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: discount})
}

// ListDiscounts handles GET /api/v1/discounts
func (h *DiscountHandler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	filter := repository.DiscountFilter{
		Page:    1,
		PerPage: 20,
	}

	if v := r.URL.Query().Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page > 0 {
			filter.Page = page
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if perPage, err := strconv.Atoi(v); err == nil && perPage > 0 && perPage <= 100 {
			filter.PerPage = perPage
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}
	if v := r.URL.Query().Get("type"); v != "" {
		filter.Type = &v
	}

	discounts, total, err := h.service.ListDiscounts(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	totalPages := total / filter.PerPage
	if total%filter.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, listResponse{
		Data:       discounts,
		TotalCount: total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: totalPages,
	})
}

// GetDiscount handles GET /api/v1/discounts/{id}
func (h *DiscountHandler) GetDiscount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "discount id is required"},
		})
		return
	}

	discount, err := h.service.GetDiscount(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: discount})
}

// UpdateDiscount handles PUT /api/v1/discounts/{id}
func (h *DiscountHandler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "discount id is required"},
		})
		return
	}

	var req UpdateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	input := &service.UpdateDiscountInput{
		Name:        req.Name,
		Description: req.Description,
		Code:        req.Code,
		Priority:    req.Priority,
		Status:      req.Status,
	}

	if len(req.Data) > 0 {
		var data domain.DiscountData
		if err := json.Unmarshal(req.Data, &data); err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid data document: " + err.Error()},
			})
			return
		}
		input.Data = &data
	}

	if req.Purchasables != nil {
		input.Purchasables = toPurchasables(req.Purchasables)
	}

	if req.StartDate != nil {
		startDate, err := time.Parse(time.RFC3339, *req.StartDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "start_date must be in RFC3339 format"},
			})
			return
		}
		input.StartDate = &startDate
	}

	if req.EndDate != nil {
		endDate, err := time.Parse(time.RFC3339, *req.EndDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "end_date must be in RFC3339 format"},
			})
			return
		}
		input.EndDate = &endDate
	}

	discount, err := h.service.UpdateDiscount(r.Context(), id, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: discount})
}

// ActivateDiscount handles POST /api/v1/discounts/{id}/activate
func (h *DiscountHandler) ActivateDiscount(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.DiscountStatusActive)
}

// DeactivateDiscount handles POST /api/v1/discounts/{id}/deactivate
func (h *DiscountHandler) DeactivateDiscount(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.DiscountStatusPaused)
}

func (h *DiscountHandler) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "discount id is required"},
		})
		return
	}

	discount, err := h.service.UpdateDiscount(r.Context(), id, &service.UpdateDiscountInput{Status: &status})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: discount})
}

// EvaluateCart handles POST /api/v1/discounts/evaluate
func (h *DiscountHandler) EvaluateCart(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEvaluate(w, r)
	if !ok {
		return
	}

	evaluation, err := h.service.EvaluateCart(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: evaluation})
}

// PreviewCart handles POST /api/v1/discounts/preview
func (h *DiscountHandler) PreviewCart(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEvaluate(w, r)
	if !ok {
		return
	}

	evaluation, err := h.service.PreviewCart(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: evaluation})
}

func (h *DiscountHandler) decodeEvaluate(w http.ResponseWriter, r *http.Request) (*service.EvaluateInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return nil, false
	}

	if err := validator.Validate(req); err != nil {
		h.writeValidationError(w, err)
		return nil, false
	}

	return &service.EvaluateInput{
		Cart:        req.Cart.toDomain(),
		CouponCodes: req.CouponCodes,
		BaseAmount:  req.BaseAmount,
		Scope:       req.Scope,
		Meta: service.AuditMeta{
			RequesterIP: r.RemoteAddr,
			UserAgent:   r.UserAgent(),
		},
	}, true
}

// --- Mapping helpers ---

func (c CartRequest) toDomain() domain.Cart {
	cart := domain.Cart{
		ID:             c.ID,
		Customer:       domain.Customer{ID: c.CustomerID, DefaultCountry: c.CustomerCountry},
		Channel:        domain.Channel{ID: c.ChannelID, DefaultCountry: c.ChannelCountry},
		Currency:       c.Currency,
		SubtotalAmount: c.SubtotalAmount,
		Metadata:       c.Metadata,
	}

	for _, l := range c.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine{
			PurchasableID: l.PurchasableID,
			SKU:           l.SKU,
			Quantity:      l.Quantity,
			LinePrice:     l.LinePrice,
			MAPProtected:  l.MAPProtected,
		})
	}

	if c.ShippingAddress != nil {
		cart.ShippingAddress = &domain.Address{
			Line1:       c.ShippingAddress.Line1,
			City:        c.ShippingAddress.City,
			PostalCode:  c.ShippingAddress.PostalCode,
			CountryCode: c.ShippingAddress.CountryCode,
		}
	}

	return cart
}

func toPurchasables(reqs []PurchasableRequest) []domain.PurchasableRef {
	if reqs == nil {
		return nil
	}
	refs := make([]domain.PurchasableRef, 0, len(reqs))
	for _, p := range reqs {
		role := p.Role
		if role == "" {
			role = domain.PurchasableRoleGeneric
		}
		refs = append(refs, domain.PurchasableRef{PurchasableID: p.PurchasableID, Role: role})
	}
	return refs
}

// --- Helpers ---

func (h *DiscountHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err, h.logger)
}

func (h *DiscountHandler) writeValidationError(w http.ResponseWriter, err error) {
	writeValidationError(w, err)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, response{
			Error: &errorResponse{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code = "ALREADY_EXISTS"
		message = "resource already exists"
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "INVALID_INPUT"
		message = err.Error()
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrAuditWrite):
		code = "AUDIT_WRITE_FAILED"
		message = "discount audit trail could not be written"
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	writeJSON(w, status, response{
		Error: &errorResponse{Code: code, Message: message},
	})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
