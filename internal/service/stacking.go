package service

import (
	"context"
	"log/slog"
	"sort"

	apperrors "github.com/goleaf/discount-service/pkg/errors"

	"github.com/goleaf/discount-service/internal/domain"
)

// Human-readable reasons attached to discount applications.
const (
	reasonBestOf            = "Best-of strategy: highest discount selected."
	reasonPriorityExclusive = "Priority-first strategy: exclusive discount applied."
	reasonPriorityStacked   = "Priority-first strategy: stacked in priority order."
	reasonCumulative        = "Cumulative strategy: applied against remaining amount."
	reasonExclusiveOverride = "Exclusive-override strategy: exclusive discount overrides group."
)

// StackingConfig holds the externally configured behavior switches for
// conflict resolution. It is passed explicitly so that resolution stays a
// pure function of its inputs.
type StackingConfig struct {
	// ManualCouponsOverrideAuto removes already-admitted automatic
	// promotions when a manually entered coupon is admitted.
	ManualCouponsOverrideAuto bool
}

// DiscountStackingService groups candidate discounts by type, resolves
// conflicts between them, and computes the monetary applications per group.
// It performs no I/O of its own; the compliance gate it consults may read the
// per-cart applied-discount record.
type DiscountStackingService struct {
	cfg        StackingConfig
	compliance *DiscountComplianceService
	logger     *slog.Logger
}

// NewDiscountStackingService creates a new stacking service.
func NewDiscountStackingService(cfg StackingConfig, compliance *DiscountComplianceService, logger *slog.Logger) *DiscountStackingService {
	return &DiscountStackingService{
		cfg:        cfg,
		compliance: compliance,
		logger:     logger,
	}
}

// Classify derives the stacking profile of a single candidate discount.
// Pure and idempotent: the same unmodified discount always yields the same
// classification.
func (s *DiscountStackingService) Classify(d *domain.Discount) domain.Classification {
	return d.Classify()
}

// candidate pairs a discount with its classification for one resolution pass.
// The classification is derived once and treated as constant afterwards.
type candidate struct {
	discount   domain.Discount
	cls        domain.Classification
	resolution string
}

// group is one type-partition of candidates, kept in first-encounter order.
type group struct {
	typ        domain.DiscountType
	candidates []candidate
}

// ApplyDiscounts runs the full evaluation pipeline over a cart snapshot:
// classify, filter through the compliance gate, resolve conflicts per type
// group, and apply each group's stacking strategy against the running
// remaining amount. Returns the stacking result plus every compliance
// violation found, including non-blocking warnings for discounts that were
// still applied.
func (s *DiscountStackingService) ApplyDiscounts(
	ctx context.Context,
	cart *domain.Cart,
	candidates []domain.Discount,
	baseAmount int64,
	scope string,
) (*domain.DiscountStackingResult, []domain.Violation, error) {
	if cart == nil {
		return nil, nil, apperrors.InvalidInput("cart is required")
	}
	if cart.ID == "" {
		return nil, nil, apperrors.InvalidInput("cart id is required")
	}
	if baseAmount < 0 {
		return nil, nil, apperrors.InvalidInput("base amount must not be negative")
	}

	// Compliance gate: blocking violations drop the candidate before
	// grouping; warnings are reported but do not drop.
	eligible, violations := s.filterCompliant(ctx, cart, candidates)

	groups := groupByType(eligible)

	for i := range groups {
		groups[i].candidates = s.resolveConflicts(groups[i], cart)
	}

	applications := s.applyStackingStrategy(groups, baseAmount)
	result := domain.NewStackingResult(baseAmount, applications)

	s.logger.DebugContext(ctx, "discount evaluation complete",
		slog.String("cart_id", cart.ID),
		slog.String("scope", scope),
		slog.Int("candidates", len(candidates)),
		slog.Int("applications", len(result.Applications)),
		slog.Int64("total_discount", result.TotalDiscount),
		slog.Int64("remaining_amount", result.RemainingAmount),
	)

	return result, violations, nil
}

// filterCompliant consults the compliance gate for every candidate and drops
// those with blocking violations. All violations are collected for the caller.
func (s *DiscountStackingService) filterCompliant(ctx context.Context, cart *domain.Cart, candidates []domain.Discount) ([]candidate, []domain.Violation) {
	eligible := make([]candidate, 0, len(candidates))
	violations := make([]domain.Violation, 0)

	for _, d := range candidates {
		d := d
		found := s.compliance.ValidateCompliance(ctx, &d, cart)
		violations = append(violations, found...)

		blocked := false
		for _, v := range found {
			if v.IsBlocking() {
				blocked = true
				break
			}
		}
		if blocked {
			s.logger.DebugContext(ctx, "discount dropped by compliance gate",
				slog.String("discount_id", d.ID),
				slog.String("cart_id", cart.ID),
			)
			continue
		}

		eligible = append(eligible, candidate{discount: d, cls: d.Classify()})
	}

	return eligible, violations
}

// groupByType partitions classified candidates by their inferred type,
// preserving the first-encounter order of both groups and members.
func groupByType(candidates []candidate) []group {
	var groups []group
	index := make(map[domain.DiscountType]int)

	for _, c := range candidates {
		i, ok := index[c.cls.Type]
		if !ok {
			i = len(groups)
			index[c.cls.Type] = i
			groups = append(groups, group{typ: c.cls.Type})
		}
		groups[i].candidates = append(groups[i].candidates, c)
	}

	return groups
}

// resolveConflicts sorts one group by descending priority and folds the
// precedence rules over the sorted candidates, producing a fresh admitted
// list. The first matching rule determines handling for each candidate:
//
//  1. exclusive wins once per group
//  2. manual coupon overrides automatic promotions (config flag)
//  3. B2B contract overrides non-B2B entries
//  4. MAP protection blocks the candidate entirely
//  5. non-stackable replaces an admitted same-type non-stackable
//  6. default: admit
func (s *DiscountStackingService) resolveConflicts(g group, cart *domain.Cart) []candidate {
	sorted := make([]candidate, len(g.candidates))
	copy(sorted, g.candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].cls.Priority > sorted[j].cls.Priority
	})

	admitted := make([]candidate, 0, len(sorted))
	exclusiveAdmitted := false

	for _, c := range sorted {
		switch {
		case c.cls.StackingMode == domain.StackingModeExclusive:
			if exclusiveAdmitted {
				continue
			}
			exclusiveAdmitted = true
			c.resolution = domain.ResolutionExclusive
			admitted = append(admitted, c)

		case c.discount.IsCouponBased() && s.cfg.ManualCouponsOverrideAuto:
			admitted = reject(admitted, func(a candidate) bool {
				return a.cls.Type == domain.DiscountTypeAutomaticPromotion
			})
			c.resolution = domain.ResolutionManualCouponOverride
			admitted = append(admitted, c)

		case c.discount.Data.B2BContract:
			admitted = reject(admitted, func(a candidate) bool {
				return !a.discount.Data.B2BContract
			})
			c.resolution = domain.ResolutionB2BOverride
			admitted = append(admitted, c)

		case c.discount.Data.MAPProtected || cart.HasMAPProtectedLine():
			// Never admitted. The compliance gate reports the violation;
			// this rule enforces the block operationally.
			continue

		case c.cls.StackingMode == domain.StackingModeNonStackable:
			admitted = reject(admitted, func(a candidate) bool {
				return a.cls.Type == c.cls.Type && a.cls.StackingMode == domain.StackingModeNonStackable
			})
			c.resolution = domain.ResolutionNonStackableReplaced
			admitted = append(admitted, c)

		default:
			c.resolution = domain.ResolutionStackable
			admitted = append(admitted, c)
		}
	}

	return admitted
}

// reject returns a new slice holding the candidates for which drop is false.
func reject(candidates []candidate, drop func(candidate) bool) []candidate {
	kept := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if !drop(c) {
			kept = append(kept, c)
		}
	}
	return kept
}

// applyStackingStrategy processes groups in order, dispatching on each
// group's dominant strategy (taken from its first candidate). The remaining
// amount carries forward across groups.
func (s *DiscountStackingService) applyStackingStrategy(groups []group, baseAmount int64) []domain.DiscountApplication {
	remaining := baseAmount
	var applications []domain.DiscountApplication

	for _, g := range groups {
		if len(g.candidates) == 0 {
			continue
		}

		var groupApps []domain.DiscountApplication
		switch g.candidates[0].cls.StackingStrategy {
		case domain.StrategyBestOf:
			groupApps = applyBestOf(g.candidates, remaining)
		case domain.StrategyCumulative:
			groupApps = applyCumulative(g.candidates, remaining)
		case domain.StrategyExclusiveOverride:
			groupApps = applyExclusiveOverride(g.candidates, remaining)
		default:
			groupApps = applyPriorityFirst(g.candidates, remaining)
		}

		for _, app := range groupApps {
			remaining -= app.Amount
		}
		if remaining < 0 {
			remaining = 0
		}

		applications = append(applications, groupApps...)
	}

	return applications
}

// applyBestOf computes every candidate's amount against the same remaining
// amount and selects the single strictly greatest one. Ties keep the first
// encountered. No application is produced when nothing yields a positive
// amount.
func applyBestOf(candidates []candidate, remaining int64) []domain.DiscountApplication {
	var (
		best       *candidate
		bestAmount int64
	)

	for i := range candidates {
		amount := calculateDiscountAmount(&candidates[i].discount, remaining)
		if amount > bestAmount {
			best = &candidates[i]
			bestAmount = amount
		}
	}

	if best == nil {
		return nil
	}

	return []domain.DiscountApplication{
		domain.NewDiscountApplication(&best.discount, best.cls, bestAmount, reasonBestOf, best.resolution),
	}
}

// applyPriorityFirst walks the (already priority-sorted) candidates. The
// first exclusive candidate ends the group after its application; stackable
// candidates apply against the running remaining amount. Non-stackable
// candidates take no amount under this strategy.
func applyPriorityFirst(candidates []candidate, remaining int64) []domain.DiscountApplication {
	var apps []domain.DiscountApplication

	for i := range candidates {
		c := &candidates[i]

		if c.cls.StackingMode == domain.StackingModeExclusive {
			if amount := calculateDiscountAmount(&c.discount, remaining); amount > 0 {
				apps = append(apps, domain.NewDiscountApplication(&c.discount, c.cls, amount, reasonPriorityExclusive, c.resolution))
			}
			break
		}

		if c.cls.StackingMode != domain.StackingModeStackable {
			continue
		}

		if amount := calculateDiscountAmount(&c.discount, remaining); amount > 0 {
			apps = append(apps, domain.NewDiscountApplication(&c.discount, c.cls, amount, reasonPriorityStacked, c.resolution))
			remaining -= amount
		}
	}

	return apps
}

// applyCumulative applies each stackable candidate in order against the
// running remaining amount. Non-stackable and exclusive candidates are
// skipped entirely under this strategy.
func applyCumulative(candidates []candidate, remaining int64) []domain.DiscountApplication {
	var apps []domain.DiscountApplication

	for i := range candidates {
		c := &candidates[i]
		if c.cls.StackingMode != domain.StackingModeStackable {
			continue
		}

		if amount := calculateDiscountAmount(&c.discount, remaining); amount > 0 {
			apps = append(apps, domain.NewDiscountApplication(&c.discount, c.cls, amount, reasonCumulative, c.resolution))
			remaining -= amount
		}
	}

	return apps
}

// applyExclusiveOverride applies only the first exclusive candidate, against
// the full amount available to the group. Without an exclusive candidate the
// whole group falls back to cumulative behavior.
func applyExclusiveOverride(candidates []candidate, remaining int64) []domain.DiscountApplication {
	for i := range candidates {
		c := &candidates[i]
		if c.cls.StackingMode != domain.StackingModeExclusive {
			continue
		}

		if amount := calculateDiscountAmount(&c.discount, remaining); amount > 0 {
			return []domain.DiscountApplication{
				domain.NewDiscountApplication(&c.discount, c.cls, amount, reasonExclusiveOverride, c.resolution),
			}
		}
		return nil
	}

	return applyCumulative(candidates, remaining)
}

// calculateDiscountAmount computes a discount's raw monetary amount against a
// base, in currency minor units. Percentages use basis points with
// round-half-up, clamped to the configured cap and the base amount. Fixed
// amounts clamp to the base. Discounts without recognized parameters compute
// to zero rather than failing, favoring availability over hard errors.
func calculateDiscountAmount(d *domain.Discount, baseAmount int64) int64 {
	if baseAmount <= 0 {
		return 0
	}

	switch p := d.Data.Params.(type) {
	case domain.PercentageParams:
		if p.BasisPoints <= 0 {
			return 0
		}
		amount := (baseAmount*p.BasisPoints + 5000) / 10000
		if p.MaxDiscountAmount > 0 && amount > p.MaxDiscountAmount {
			amount = p.MaxDiscountAmount
		}
		if amount > baseAmount {
			amount = baseAmount
		}
		return amount

	case domain.FixedAmountParams:
		if p.Amount <= 0 {
			return 0
		}
		if p.Amount > baseAmount {
			return baseAmount
		}
		return p.Amount

	default:
		return 0
	}
}
