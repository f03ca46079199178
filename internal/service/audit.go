package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goleaf/discount-service/internal/domain"
	"github.com/goleaf/discount-service/internal/repository"
	apperrors "github.com/goleaf/discount-service/pkg/errors"
)

// Audit trail query limits.
const (
	defaultTrailLimit = 50
	maxTrailLimit     = 500
)

// AuditMeta carries request-level context recorded alongside each entry.
type AuditMeta struct {
	RequesterIP string
	UserAgent   string
}

// DiscountAuditService writes and queries the append-only discount audit
// trail. Every applied discount produces one entry with a before/after price
// chain, so the full pricing history of a cart can be reconstructed.
type DiscountAuditService struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewDiscountAuditService creates a new audit service.
func NewDiscountAuditService(repo repository.AuditRepository, logger *slog.Logger) *DiscountAuditService {
	return &DiscountAuditService{repo: repo, logger: logger}
}

// LogApplications records one entry per application in order. The price chain
// starts at the result's base amount and threads each application's amount
// through: entry N's price_after is entry N+1's price_before. Any write
// failure aborts with an audit-write error so the caller can fail the
// evaluation rather than apply unaudited discounts.
func (s *DiscountAuditService) LogApplications(
	ctx context.Context,
	cart *domain.Cart,
	result *domain.DiscountStackingResult,
	scope string,
	meta AuditMeta,
) ([]domain.AuditEntry, error) {
	if result == nil || len(result.Applications) == 0 {
		return []domain.AuditEntry{}, nil
	}

	now := time.Now().UTC()
	priceBefore := result.BaseAmount
	entries := make([]domain.AuditEntry, 0, len(result.Applications))

	for i, app := range result.Applications {
		entry := buildEntry(cart, app, scope, meta)
		entry.PriceBefore = priceBefore
		entry.PriceAfter = priceBefore - app.Amount
		entry.AppliedWith = coApplied(result.Applications, i)
		// Sub-second offsets keep the chronological order stable for
		// entries written in the same batch.
		entry.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)

		if err := s.repo.Insert(ctx, &entry); err != nil {
			s.logger.ErrorContext(ctx, "audit entry write failed",
				slog.String("cart_id", cart.ID),
				slog.String("discount_id", app.DiscountID),
				slog.String("error", err.Error()),
			)
			return nil, apperrors.AuditWriteFailed(err)
		}

		entries = append(entries, entry)
		priceBefore = entry.PriceAfter
	}

	return entries, nil
}

// LogApplication records a single application outside a batch evaluation,
// for example a manually forced discount. priceBefore is the amount the
// discount was computed against.
func (s *DiscountAuditService) LogApplication(
	ctx context.Context,
	cart *domain.Cart,
	app domain.DiscountApplication,
	priceBefore int64,
	scope string,
	meta AuditMeta,
) (*domain.AuditEntry, error) {
	entry := buildEntry(cart, app, scope, meta)
	entry.PriceBefore = priceBefore
	entry.PriceAfter = priceBefore - app.Amount
	entry.CreatedAt = time.Now().UTC()

	if err := s.repo.Insert(ctx, &entry); err != nil {
		return nil, apperrors.AuditWriteFailed(err)
	}

	return &entry, nil
}

// TrailByDiscount returns the most recent entries for a discount, newest
// first. A non-positive limit falls back to the default; oversized limits are
// capped.
func (s *DiscountAuditService) TrailByDiscount(ctx context.Context, discountID string, limit int) ([]domain.AuditEntry, error) {
	if discountID == "" {
		return nil, apperrors.InvalidInput("discount id is required")
	}
	if limit <= 0 {
		limit = defaultTrailLimit
	}
	if limit > maxTrailLimit {
		limit = maxTrailLimit
	}
	return s.repo.ListByDiscount(ctx, discountID, limit)
}

// TrailByCart returns a cart's full audit trail in chronological order.
func (s *DiscountAuditService) TrailByCart(ctx context.Context, cartID string) ([]domain.AuditEntry, error) {
	if cartID == "" {
		return nil, apperrors.InvalidInput("cart id is required")
	}
	return s.repo.ListByCart(ctx, cartID)
}

// TrailByJurisdiction returns entries recorded for a jurisdiction within a
// time range, newest first. A zero "to" means now.
func (s *DiscountAuditService) TrailByJurisdiction(ctx context.Context, jurisdiction string, from, to time.Time) ([]domain.AuditEntry, error) {
	if jurisdiction == "" {
		return nil, apperrors.InvalidInput("jurisdiction is required")
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.After(to) {
		return nil, apperrors.InvalidInput("time range start must not be after end")
	}
	return s.repo.ListByJurisdiction(ctx, jurisdiction, from, to)
}

// ComplianceReport aggregates a cart's audit trail into a per-cart compliance
// summary for review and export.
func (s *DiscountAuditService) ComplianceReport(ctx context.Context, cartID string) (*domain.ComplianceReport, error) {
	entries, err := s.TrailByCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	report := &domain.ComplianceReport{
		CartID:      cartID,
		Breakdown:   make([]domain.ReportLine, 0, len(entries)),
		GeneratedAt: time.Now().UTC(),
	}

	for i, e := range entries {
		report.AppliedCount++
		report.TotalDiscount += e.Amount
		if e.MAPProtected {
			report.MAPViolationCount++
		}
		if e.PriceBefore == 0 && e.PriceAfter == 0 {
			report.MissingPriceTracking++
		}
		if i == 0 {
			report.PriceBefore = e.PriceBefore
		}
		report.PriceAfter = e.PriceAfter

		report.Breakdown = append(report.Breakdown, domain.ReportLine{
			DiscountID:   e.DiscountID,
			DiscountName: e.DiscountName,
			Amount:       e.Amount,
			Jurisdiction: e.Jurisdiction,
			MAPProtected: e.MAPProtected,
			ManualCoupon: e.ManualCoupon,
		})
	}

	return report, nil
}

func buildEntry(cart *domain.Cart, app domain.DiscountApplication, scope string, meta AuditMeta) domain.AuditEntry {
	return domain.AuditEntry{
		ID:               uuid.NewString(),
		DiscountID:       app.DiscountID,
		DiscountName:     app.DiscountName,
		CartID:           cart.ID,
		Scope:            scope,
		Amount:           app.Amount,
		Reason:           app.Reason,
		StackingMode:     app.StackingMode,
		StackingStrategy: app.StackingStrategy,
		Priority:         app.Priority,
		ConflictLabel:    app.Resolution,
		Jurisdiction:     cart.Jurisdiction(),
		MAPProtected:     app.MAPProtected,
		B2BContract:      app.B2BContract,
		ManualCoupon:     app.CouponCode != "",
		RequesterIP:      meta.RequesterIP,
		UserAgent:        meta.UserAgent,
		Metadata:         cart.Metadata,
	}
}

// coApplied lists the sibling applications of index i.
func coApplied(apps []domain.DiscountApplication, i int) []domain.CoApplied {
	if len(apps) <= 1 {
		return nil
	}
	siblings := make([]domain.CoApplied, 0, len(apps)-1)
	for j, a := range apps {
		if j == i {
			continue
		}
		siblings = append(siblings, domain.CoApplied{DiscountID: a.DiscountID, Amount: a.Amount})
	}
	return siblings
}
