package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goleaf/discount-service/internal/domain"
	"github.com/goleaf/discount-service/internal/event"
	"github.com/goleaf/discount-service/internal/repository"
	apperrors "github.com/goleaf/discount-service/pkg/errors"
)

// AppliedDiscountTracker extends the read side of the applied-discount store
// with the writes the evaluation pipeline performs.
type AppliedDiscountTracker interface {
	AppliedDiscountStore
	MarkApplied(ctx context.Context, cartID string, records []domain.AppliedDiscountRecord) error
	Clear(ctx context.Context, cartID string) error
}

// DiscountService implements the business logic for discount management and
// cart evaluation.
type DiscountService struct {
	repo     repository.DiscountRepository
	stacking *DiscountStackingService
	audit    *DiscountAuditService
	tracker  AppliedDiscountTracker
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

// NewDiscountService creates a new discount service. The tracker may be nil
// when applied-discount tracking is disabled.
func NewDiscountService(
	repo repository.DiscountRepository,
	stacking *DiscountStackingService,
	audit *DiscountAuditService,
	tracker AppliedDiscountTracker,
	producer *event.Producer,
	logger *slog.Logger,
) *DiscountService {
	return &DiscountService{
		repo:     repo,
		stacking: stacking,
		audit:    audit,
		tracker:  tracker,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateDiscountInput holds the parameters for creating a discount.
type CreateDiscountInput struct {
	Name         string
	Description  string
	Code         string
	Priority     int
	Data         domain.DiscountData
	Purchasables []domain.PurchasableRef
	StartDate    time.Time
	EndDate      time.Time
}

// UpdateDiscountInput holds the parameters for updating a discount.
type UpdateDiscountInput struct {
	Name         *string
	Description  *string
	Code         *string
	Priority     *int
	Status       *string
	Data         *domain.DiscountData
	Purchasables []domain.PurchasableRef
	StartDate    *time.Time
	EndDate      *time.Time
}

// EvaluateInput holds the parameters for evaluating discounts against a cart.
type EvaluateInput struct {
	Cart        domain.Cart
	CouponCodes []string
	BaseAmount  int64
	Scope       string
	Meta        AuditMeta
}

// Evaluation is the outcome of one cart evaluation: the stacking result plus
// every compliance violation found, including non-blocking warnings.
type Evaluation struct {
	Result     *domain.DiscountStackingResult `json:"result"`
	Violations []domain.Violation             `json:"violations"`
}

// CreateDiscount creates a new discount in draft status.
func (s *DiscountService) CreateDiscount(ctx context.Context, input *CreateDiscountInput) (*domain.Discount, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("discount name is required")
	}
	if input.Priority < 0 {
		return nil, apperrors.InvalidInput("priority must not be negative")
	}
	if err := validateParams(input.Data.Params); err != nil {
		return nil, err
	}
	if !input.StartDate.IsZero() && !input.EndDate.IsZero() && !input.EndDate.After(input.StartDate) {
		return nil, apperrors.InvalidInput("end date must be after start date")
	}

	// An empty code means an automatic promotion, so codes are only
	// auto-generated for discounts explicitly declared coupon-based.
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" && input.Data.DeclaredType == string(domain.DiscountTypeCouponBased) {
		code = generateCouponCode(input.Name)
	}

	now := s.now()
	discount := &domain.Discount{
		ID:           uuid.New().String(),
		Name:         input.Name,
		Description:  input.Description,
		Code:         code,
		Priority:     input.Priority,
		Status:       domain.DiscountStatusDraft,
		Data:         input.Data,
		Purchasables: input.Purchasables,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if discount.Purchasables == nil {
		discount.Purchasables = []domain.PurchasableRef{}
	}

	if err := s.repo.Create(ctx, discount); err != nil {
		return nil, fmt.Errorf("create discount: %w", err)
	}

	if err := s.producer.PublishDiscountCreated(ctx, discount); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish discount.created event",
			slog.String("discount_id", discount.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "discount created",
		slog.String("discount_id", discount.ID),
		slog.String("code", discount.Code),
	)

	return discount, nil
}

// GetDiscount retrieves a discount by its ID.
func (s *DiscountService) GetDiscount(ctx context.Context, id string) (*domain.Discount, error) {
	discount, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get discount by id: %w", err)
	}
	return discount, nil
}

// GetDiscountByCode retrieves a discount by its coupon code.
func (s *DiscountService) GetDiscountByCode(ctx context.Context, code string) (*domain.Discount, error) {
	discount, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("get discount by code: %w", err)
	}
	return discount, nil
}

// ListDiscounts returns a filtered, paginated list of discounts.
func (s *DiscountService) ListDiscounts(ctx context.Context, filter repository.DiscountFilter) ([]domain.Discount, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	discounts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list discounts: %w", err)
	}

	return discounts, total, nil
}

// UpdateDiscount applies partial updates to an existing discount.
func (s *DiscountService) UpdateDiscount(ctx context.Context, id string, input *UpdateDiscountInput) (*domain.Discount, error) {
	discount, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get discount for update: %w", err)
	}

	if input.Name != nil {
		if *input.Name == "" {
			return nil, apperrors.InvalidInput("discount name must not be empty")
		}
		discount.Name = *input.Name
	}

	if input.Description != nil {
		discount.Description = *input.Description
	}

	if input.Code != nil {
		discount.Code = strings.ToUpper(strings.TrimSpace(*input.Code))
	}

	if input.Priority != nil {
		if *input.Priority < 0 {
			return nil, apperrors.InvalidInput("priority must not be negative")
		}
		discount.Priority = *input.Priority
	}

	if input.Status != nil {
		if !isValidStatus(*input.Status) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q", *input.Status))
		}
		discount.Status = *input.Status
	}

	if input.Data != nil {
		if err := validateParams(input.Data.Params); err != nil {
			return nil, err
		}
		discount.Data = *input.Data
	}

	if input.Purchasables != nil {
		discount.Purchasables = input.Purchasables
	}

	if input.StartDate != nil {
		discount.StartDate = *input.StartDate
	}

	if input.EndDate != nil {
		discount.EndDate = *input.EndDate
	}

	if !discount.StartDate.IsZero() && !discount.EndDate.IsZero() && !discount.EndDate.After(discount.StartDate) {
		return nil, apperrors.InvalidInput("end date must be after start date")
	}

	if err := s.repo.Update(ctx, discount); err != nil {
		return nil, fmt.Errorf("update discount: %w", err)
	}

	if err := s.producer.PublishDiscountUpdated(ctx, discount); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish discount.updated event",
			slog.String("discount_id", discount.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "discount updated",
		slog.String("discount_id", discount.ID),
		slog.String("code", discount.Code),
	)

	return discount, nil
}

// EvaluateCart runs the full evaluation pipeline over a cart and persists the
// outcome: audit entries, applied-discount tracking, and a domain event.
// Audit write failure fails the evaluation; tracking and event failures only
// log, since the authoritative record already exists.
func (s *DiscountService) EvaluateCart(ctx context.Context, input *EvaluateInput) (*Evaluation, error) {
	if input != nil && input.Scope == domain.ScopePreview {
		// Evaluation persists audit entries and tracker records; the
		// preview operation is the no-write path.
		return nil, apperrors.InvalidInput(`scope "preview" is only valid for preview requests`)
	}

	cart, base, scope, err := s.prepareEvaluation(input, domain.ScopeCart)
	if err != nil {
		return nil, err
	}

	candidates, err := s.collectCandidates(ctx, input.CouponCodes)
	if err != nil {
		return nil, err
	}

	result, violations, err := s.stacking.ApplyDiscounts(ctx, cart, candidates, base, scope)
	if err != nil {
		return nil, err
	}

	if _, err := s.audit.LogApplications(ctx, cart, result, scope, input.Meta); err != nil {
		return nil, err
	}

	if s.tracker != nil && len(result.Applications) > 0 {
		records := make([]domain.AppliedDiscountRecord, 0, len(result.Applications))
		for _, app := range result.Applications {
			records = append(records, domain.AppliedDiscountRecord{
				DiscountID:   app.DiscountID,
				StackingMode: app.StackingMode,
				Amount:       app.Amount,
			})
		}
		if err := s.tracker.MarkApplied(ctx, cart.ID, records); err != nil {
			s.logger.WarnContext(ctx, "applied discount tracking failed",
				slog.String("cart_id", cart.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(result.Applications) > 0 {
		if err := s.producer.PublishDiscountApplied(ctx, cart.ID, scope, result); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish discount.applied event",
				slog.String("cart_id", cart.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "cart evaluated",
		slog.String("cart_id", cart.ID),
		slog.String("scope", scope),
		slog.Int("applications", len(result.Applications)),
		slog.Int64("total_discount", result.TotalDiscount),
	)

	return &Evaluation{Result: result, Violations: violations}, nil
}

// PreviewCart evaluates discounts without persisting anything: no audit
// entries, no tracking, no events. Used by storefronts to show prospective
// totals.
func (s *DiscountService) PreviewCart(ctx context.Context, input *EvaluateInput) (*Evaluation, error) {
	cart, base, _, err := s.prepareEvaluation(input, domain.ScopePreview)
	if err != nil {
		return nil, err
	}

	candidates, err := s.collectCandidates(ctx, input.CouponCodes)
	if err != nil {
		return nil, err
	}

	result, violations, err := s.stacking.ApplyDiscounts(ctx, cart, candidates, base, domain.ScopePreview)
	if err != nil {
		return nil, err
	}

	return &Evaluation{Result: result, Violations: violations}, nil
}

// prepareEvaluation validates the input and resolves the base amount and
// scope defaults.
func (s *DiscountService) prepareEvaluation(input *EvaluateInput, defaultScope string) (*domain.Cart, int64, string, error) {
	if input == nil {
		return nil, 0, "", apperrors.InvalidInput("evaluation input is required")
	}
	cart := input.Cart
	if cart.ID == "" {
		return nil, 0, "", apperrors.InvalidInput("cart id is required")
	}

	base := input.BaseAmount
	if base == 0 {
		base = cart.SubtotalAmount
	}
	if base == 0 {
		base = cart.LinesTotal()
	}
	if base < 0 {
		return nil, 0, "", apperrors.InvalidInput("base amount must not be negative")
	}

	scope := input.Scope
	switch scope {
	case "":
		scope = defaultScope
	case domain.ScopeCart, domain.ScopeCheckout, domain.ScopePreview:
	default:
		return nil, 0, "", apperrors.InvalidInput(fmt.Sprintf("invalid scope %q", scope))
	}

	return &cart, base, scope, nil
}

// collectCandidates gathers the active automatic discounts plus the discounts
// behind the supplied coupon codes. Unknown or inactive codes are skipped
// with a log entry rather than failing the evaluation.
func (s *DiscountService) collectCandidates(ctx context.Context, couponCodes []string) ([]domain.Discount, error) {
	now := s.now()

	candidates, err := s.repo.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list active discounts: %w", err)
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, d := range candidates {
		seen[d.ID] = struct{}{}
	}

	for _, code := range couponCodes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}

		d, err := s.repo.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				s.logger.WarnContext(ctx, "unknown coupon code skipped", slog.String("code", code))
				continue
			}
			return nil, fmt.Errorf("get discount by code: %w", err)
		}

		if !d.ActiveAt(now) {
			s.logger.WarnContext(ctx, "inactive coupon code skipped",
				slog.String("code", code),
				slog.String("discount_id", d.ID),
			)
			continue
		}

		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		candidates = append(candidates, *d)
	}

	return candidates, nil
}

// validateParams checks the monetary parameters of a discount configuration.
// A nil value is allowed: such discounts compute to zero.
func validateParams(p domain.DiscountParams) error {
	switch params := p.(type) {
	case nil:
		return nil
	case domain.PercentageParams:
		if params.BasisPoints <= 0 || params.BasisPoints > 10000 {
			return apperrors.InvalidInput("percentage must be between 0 and 100")
		}
		if params.MaxDiscountAmount < 0 {
			return apperrors.InvalidInput("max discount amount must not be negative")
		}
		return nil
	case domain.FixedAmountParams:
		if params.Amount <= 0 {
			return apperrors.InvalidInput("fixed amount must be positive")
		}
		return nil
	default:
		return apperrors.InvalidInput("unrecognized discount parameters")
	}
}

func isValidStatus(s string) bool {
	switch s {
	case domain.DiscountStatusDraft, domain.DiscountStatusActive,
		domain.DiscountStatusPaused, domain.DiscountStatusArchived:
		return true
	}
	return false
}

// nonAlphanumRe matches any character that is not a letter, digit, or hyphen.
var nonAlphanumRe = regexp.MustCompile(`[^A-Z0-9-]+`)

// generateCouponCode creates a human-readable coupon code from the discount
// name by slugifying it and appending a 4-character random hex suffix.
// Example: "Welcome Offer 2026" -> "WELCOME-OFFER-2026-A3F2".
func generateCouponCode(name string) string {
	slug := strings.ToUpper(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	slug = nonAlphanumRe.ReplaceAllString(slug, "")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	// Keep the total code within the 50-char column limit, leaving room
	// for "-" plus 4 hex chars.
	const maxSlugLen = 44
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
		slug = strings.TrimRight(slug, "-")
	}

	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		b = []byte(uuid.New().String()[:2])
	}
	suffix := strings.ToUpper(hex.EncodeToString(b))

	if slug == "" {
		return suffix
	}
	return slug + "-" + suffix
}
