package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goleaf/discount-service/internal/domain"
)

// AppliedDiscountStore reads the per-cart record of previously applied
// discounts, used by the double-discount check.
type AppliedDiscountStore interface {
	ListApplied(ctx context.Context, cartID string) ([]domain.AppliedDiscountRecord, error)
}

// DiscountComplianceService evaluates regulatory and policy constraints for a
// candidate discount against a cart snapshot. Findings are returned as data;
// the caller decides what blocks and what merely warns.
type DiscountComplianceService struct {
	applied AppliedDiscountStore
	logger  *slog.Logger
}

// NewDiscountComplianceService creates a new compliance gate. The applied
// store may be nil, in which case the double-discount check is skipped.
func NewDiscountComplianceService(applied AppliedDiscountStore, logger *slog.Logger) *DiscountComplianceService {
	return &DiscountComplianceService{applied: applied, logger: logger}
}

// ValidateCompliance runs every check against the candidate and returns all
// findings. An empty slice means the discount is clean.
func (s *DiscountComplianceService) ValidateCompliance(ctx context.Context, d *domain.Discount, cart *domain.Cart) []domain.Violation {
	var violations []domain.Violation

	if v := s.checkMAPProtection(d, cart); v != nil {
		violations = append(violations, *v)
	}
	if v := s.checkJurisdiction(d, cart); v != nil {
		violations = append(violations, *v)
	}
	if v := s.checkDoubleDiscount(ctx, d, cart); v != nil {
		violations = append(violations, *v)
	}

	for _, v := range violations {
		if v.Severity == domain.SeverityWarning {
			s.logger.WarnContext(ctx, "compliance warning",
				slog.String("discount_id", v.DiscountID),
				slog.String("cart_id", cart.ID),
				slog.String("violation_type", v.Type),
				slog.String("message", v.Message),
			)
		}
	}

	return violations
}

// checkMAPProtection blocks a discount when either the discount itself is
// flagged MAP-protected or any cart line carries MAP protection. Minimum
// advertised price agreements forbid discounting those products at all.
func (s *DiscountComplianceService) checkMAPProtection(d *domain.Discount, cart *domain.Cart) *domain.Violation {
	if !d.Data.MAPProtected && !cart.HasMAPProtectedLine() {
		return nil
	}
	return &domain.Violation{
		DiscountID: d.ID,
		Type:       domain.ViolationMAPProtection,
		Severity:   domain.SeverityError,
		Message:    "discount blocked by minimum advertised price protection",
	}
}

// checkJurisdiction compares the discount's configured jurisdiction, when
// set, against the cart's resolved jurisdiction. An unset jurisdiction means
// the discount applies everywhere.
func (s *DiscountComplianceService) checkJurisdiction(d *domain.Discount, cart *domain.Cart) *domain.Violation {
	if d.Data.Jurisdiction == "" {
		return nil
	}

	j := cart.Jurisdiction()
	if d.Data.Jurisdiction == j {
		return nil
	}

	return &domain.Violation{
		DiscountID: d.ID,
		Type:       domain.ViolationJurisdiction,
		Severity:   domain.SeverityError,
		Message:    fmt.Sprintf("discount not permitted in jurisdiction %q", j),
	}
}

// checkDoubleDiscount warns when the candidate re-applies a discount the
// cart already carries, or when exclusivity would be violated: an exclusive
// candidate joining a cart with prior applied discounts, or any candidate
// joining a cart that already carries an exclusive or non-stackable
// discount. Store errors degrade to a skipped check rather than blocking the
// evaluation.
func (s *DiscountComplianceService) checkDoubleDiscount(ctx context.Context, d *domain.Discount, cart *domain.Cart) *domain.Violation {
	if s.applied == nil {
		return nil
	}

	records, err := s.applied.ListApplied(ctx, cart.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "applied discount lookup failed, skipping double discount check",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if r.DiscountID == d.ID {
			return &domain.Violation{
				DiscountID: d.ID,
				Type:       domain.ViolationDoubleDiscount,
				Severity:   domain.SeverityWarning,
				Message:    fmt.Sprintf("discount %s already applied to this cart", d.ID),
			}
		}
		if r.StackingMode == domain.StackingModeNonStackable || r.StackingMode == domain.StackingModeExclusive {
			return &domain.Violation{
				DiscountID: d.ID,
				Type:       domain.ViolationDoubleDiscount,
				Severity:   domain.SeverityWarning,
				Message:    fmt.Sprintf("cart already carries non-stackable discount %s", r.DiscountID),
			}
		}
	}

	// Two discounts cannot both be exclusive on one cart, and an exclusive
	// candidate cannot join a cart that already carries any discount.
	if d.Classify().StackingMode == domain.StackingModeExclusive {
		return &domain.Violation{
			DiscountID: d.ID,
			Type:       domain.ViolationDoubleDiscount,
			Severity:   domain.SeverityWarning,
			Message:    "exclusive discount on a cart with previously applied discounts",
		}
	}

	return nil
}
