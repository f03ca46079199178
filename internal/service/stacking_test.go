package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goleaf/discount-service/internal/domain"
)

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStackingService(cfg StackingConfig, store AppliedDiscountStore) *DiscountStackingService {
	logger := newTestLogger()
	compliance := NewDiscountComplianceService(store, logger)
	return NewDiscountStackingService(cfg, compliance, logger)
}

func testCart() *domain.Cart {
	return &domain.Cart{
		ID:             "cart-001",
		Currency:       "EUR",
		SubtotalAmount: 1000,
		Lines: []domain.CartLine{
			{PurchasableID: "prod-1", Quantity: 1, LinePrice: 1000},
		},
	}
}

func percentDiscount(id string, bps, cap int64, priority int, mode, strategy string) domain.Discount {
	return domain.Discount{
		ID:       id,
		Name:     "pct " + id,
		Priority: priority,
		Status:   domain.DiscountStatusActive,
		Data: domain.DiscountData{
			StackingMode:     mode,
			StackingStrategy: strategy,
			Params:           domain.PercentageParams{BasisPoints: bps, MaxDiscountAmount: cap},
		},
	}
}

func fixedDiscount(id string, amount int64, priority int, mode, strategy string) domain.Discount {
	return domain.Discount{
		ID:       id,
		Name:     "fixed " + id,
		Priority: priority,
		Status:   domain.DiscountStatusActive,
		Data: domain.DiscountData{
			StackingMode:     mode,
			StackingStrategy: strategy,
			Params:           domain.FixedAmountParams{Amount: amount},
		},
	}
}

// --- Amount calculation ---

func TestCalculateDiscountAmount_PercentageRoundHalfUp(t *testing.T) {
	d := percentDiscount("d1", 1000, 0, 1, "stackable", "")
	assert.Equal(t, int64(100), calculateDiscountAmount(&d, 1000))
	assert.Equal(t, int64(90), calculateDiscountAmount(&d, 900))

	// 5% of 10 minor units is exactly 0.5, which rounds up.
	half := percentDiscount("d2", 500, 0, 1, "stackable", "")
	assert.Equal(t, int64(1), calculateDiscountAmount(&half, 10))
}

func TestCalculateDiscountAmount_PercentageCap(t *testing.T) {
	d := percentDiscount("d1", 5000, 500, 1, "stackable", "")
	assert.Equal(t, int64(500), calculateDiscountAmount(&d, 2000))
}

func TestCalculateDiscountAmount_PercentageNeverExceedsBase(t *testing.T) {
	d := percentDiscount("d1", 10000, 0, 1, "stackable", "")
	assert.Equal(t, int64(750), calculateDiscountAmount(&d, 750))
}

func TestCalculateDiscountAmount_FixedClampedToBase(t *testing.T) {
	d := fixedDiscount("d1", 5000, 1, "stackable", "")
	assert.Equal(t, int64(2000), calculateDiscountAmount(&d, 2000))
	assert.Equal(t, int64(5000), calculateDiscountAmount(&d, 9000))
}

func TestCalculateDiscountAmount_NoParamsIsZero(t *testing.T) {
	d := domain.Discount{ID: "d1"}
	assert.Equal(t, int64(0), calculateDiscountAmount(&d, 1000))
}

func TestCalculateDiscountAmount_ZeroBaseIsZero(t *testing.T) {
	d := fixedDiscount("d1", 100, 1, "stackable", "")
	assert.Equal(t, int64(0), calculateDiscountAmount(&d, 0))
}

// --- Invariants ---

func TestApplyDiscounts_ConservationInvariant(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("d1", 1000, 0, 10, "stackable", "cumulative"),
		percentDiscount("d2", 1000, 0, 5, "stackable", "cumulative"),
		fixedDiscount("d3", 300, 1, "stackable", "cumulative"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	assert.Equal(t, result.BaseAmount, result.TotalDiscount+result.RemainingAmount)
	assert.LessOrEqual(t, result.TotalDiscount, result.BaseAmount)
	assert.GreaterOrEqual(t, result.RemainingAmount, int64(0))
}

func TestApplyDiscounts_EmptyCandidates(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)

	result, violations, err := svc.ApplyDiscounts(context.Background(), testCart(), nil, 1000, domain.ScopeCart)
	require.NoError(t, err)

	assert.Empty(t, result.Applications)
	assert.Equal(t, int64(1000), result.RemainingAmount)
	assert.Zero(t, result.TotalDiscount)
	assert.Empty(t, violations)
}

func TestApplyDiscounts_InvalidInput(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)

	_, _, err := svc.ApplyDiscounts(context.Background(), nil, nil, 1000, domain.ScopeCart)
	assert.Error(t, err)

	_, _, err = svc.ApplyDiscounts(context.Background(), &domain.Cart{}, nil, 1000, domain.ScopeCart)
	assert.Error(t, err)

	_, _, err = svc.ApplyDiscounts(context.Background(), testCart(), nil, -1, domain.ScopeCart)
	assert.Error(t, err)
}

// --- Strategies ---

func TestApplyDiscounts_CumulativeChainsRemaining(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("d1", 1000, 0, 10, "stackable", "cumulative"),
		percentDiscount("d2", 1000, 0, 5, "stackable", "cumulative"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 2)
	assert.Equal(t, int64(100), result.Applications[0].Amount)
	assert.Equal(t, int64(90), result.Applications[1].Amount)
	assert.Equal(t, int64(810), result.RemainingAmount)
}

func TestApplyDiscounts_CumulativeSkipsNonStackable(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("d1", 1000, 0, 10, "stackable", "cumulative"),
		fixedDiscount("d2", 200, 5, "non_stackable", "cumulative"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 1)
	assert.Equal(t, "d1", result.Applications[0].DiscountID)
}

func TestApplyDiscounts_BestOfSelectsHighest(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("d1", 1000, 0, 10, "stackable", "best_of"), // 100
		fixedDiscount("d2", 150, 5, "stackable", "best_of"),        // 150
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 1)
	assert.Equal(t, "d2", result.Applications[0].DiscountID)
	assert.Equal(t, int64(150), result.Applications[0].Amount)
	assert.Equal(t, "Best-of strategy: highest discount selected.", result.Applications[0].Reason)
}

func TestApplyDiscounts_BestOfTieKeepsFirst(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		fixedDiscount("d1", 100, 10, "stackable", "best_of"),
		fixedDiscount("d2", 100, 5, "stackable", "best_of"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 1)
	assert.Equal(t, "d1", result.Applications[0].DiscountID)
}

func TestApplyDiscounts_BestOfNoPositiveAmount(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		{ID: "d1", Priority: 1, Data: domain.DiscountData{StackingMode: "stackable", StackingStrategy: "best_of"}},
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)
	assert.Empty(t, result.Applications)
}

func TestApplyDiscounts_PriorityFirstExclusiveStopsGroup(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("excl", 2000, 0, 10, "exclusive", "priority_first"),
		percentDiscount("stack", 1000, 0, 5, "stackable", "priority_first"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	// The exclusive candidate ends the group; the stackable one was removed
	// during resolution anyway because an exclusive was admitted first.
	require.Len(t, result.Applications, 1)
	assert.Equal(t, "excl", result.Applications[0].DiscountID)
	assert.Equal(t, int64(200), result.Applications[0].Amount)
}

func TestApplyDiscounts_PriorityFirstStacksInOrder(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("low", 1000, 0, 1, "stackable", "priority_first"),
		percentDiscount("high", 1000, 0, 10, "stackable", "priority_first"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 2)
	assert.Equal(t, "high", result.Applications[0].DiscountID)
	assert.Equal(t, int64(100), result.Applications[0].Amount)
	assert.Equal(t, "low", result.Applications[1].DiscountID)
	assert.Equal(t, int64(90), result.Applications[1].Amount)
}

func TestApplyDiscounts_ExclusiveOverrideAppliesOnlyExclusive(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("excl", 1500, 0, 1, "exclusive", "exclusive_override"),
		percentDiscount("stack", 1000, 0, 10, "stackable", "exclusive_override"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 1)
	assert.Equal(t, "excl", result.Applications[0].DiscountID)
	assert.Equal(t, int64(150), result.Applications[0].Amount)
}

func TestApplyDiscounts_ExclusiveOverrideFallsBackToCumulative(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("d1", 1000, 0, 10, "stackable", "exclusive_override"),
		percentDiscount("d2", 1000, 0, 5, "stackable", "exclusive_override"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 2)
	assert.Equal(t, int64(190), result.TotalDiscount)
}

// --- Conflict resolution ---

func TestApplyDiscounts_ExclusiveWinsOncePerGroup(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("excl-low", 3000, 0, 1, "exclusive", "priority_first"),
		percentDiscount("excl-high", 2000, 0, 10, "exclusive", "priority_first"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 1)
	assert.Equal(t, "excl-high", result.Applications[0].DiscountID)
	assert.Equal(t, domain.ResolutionExclusive, result.Applications[0].Resolution)
}

func TestApplyDiscounts_NonStackableReplacesSameType(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	// Each non-stackable candidate evicts the previously admitted same-type
	// non-stackable entry, so the last one considered survives. The survivor
	// is worth less here; only replacement explains it winning under best-of.
	candidates := []domain.Discount{
		fixedDiscount("big-high", 400, 10, "non_stackable", "best_of"),
		fixedDiscount("small-low", 200, 1, "non_stackable", "best_of"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 1)
	assert.Equal(t, "small-low", result.Applications[0].DiscountID)
	assert.Equal(t, int64(200), result.Applications[0].Amount)
	assert.Equal(t, domain.ResolutionNonStackableReplaced, result.Applications[0].Resolution)
}

func TestApplyDiscounts_B2BOverridesNonB2B(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	b2b := percentDiscount("b2b", 1000, 0, 1, "stackable", "cumulative")
	b2b.Data.B2BContract = true
	candidates := []domain.Discount{
		percentDiscount("promo", 2000, 0, 10, "stackable", "cumulative"),
		b2b,
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 1)
	assert.Equal(t, "b2b", result.Applications[0].DiscountID)
	assert.Equal(t, domain.ResolutionB2BOverride, result.Applications[0].Resolution)
}

func TestApplyDiscounts_ManualCouponOverrideLabel(t *testing.T) {
	coupon := percentDiscount("coupon", 1000, 0, 5, "stackable", "cumulative")
	coupon.Code = "SAVE10"

	on := newStackingService(StackingConfig{ManualCouponsOverrideAuto: true}, nil)
	result, _, err := on.ApplyDiscounts(context.Background(), testCart(), []domain.Discount{coupon}, 1000, domain.ScopeCart)
	require.NoError(t, err)
	require.Len(t, result.Applications, 1)
	assert.Equal(t, domain.ResolutionManualCouponOverride, result.Applications[0].Resolution)

	off := newStackingService(StackingConfig{ManualCouponsOverrideAuto: false}, nil)
	result, _, err = off.ApplyDiscounts(context.Background(), testCart(), []domain.Discount{coupon}, 1000, domain.ScopeCart)
	require.NoError(t, err)
	require.Len(t, result.Applications, 1)
	assert.Equal(t, domain.ResolutionStackable, result.Applications[0].Resolution)
}

// --- Compliance integration ---

func TestApplyDiscounts_MAPProtectedDiscountNeverApplies(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	mapProtected := percentDiscount("map", 5000, 0, 100, "exclusive", "priority_first")
	mapProtected.Data.MAPProtected = true
	candidates := []domain.Discount{
		mapProtected,
		percentDiscount("clean", 1000, 0, 1, "stackable", "priority_first"),
	}

	result, violations, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 1)
	assert.Equal(t, "clean", result.Applications[0].DiscountID)

	require.Len(t, violations, 1)
	assert.Equal(t, domain.ViolationMAPProtection, violations[0].Type)
	assert.Equal(t, "map", violations[0].DiscountID)
	assert.True(t, violations[0].IsBlocking())
}

func TestApplyDiscounts_MAPProtectedCartLineBlocksEverything(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	cart := testCart()
	cart.Lines[0].MAPProtected = true

	candidates := []domain.Discount{
		percentDiscount("d1", 1000, 0, 10, "stackable", "cumulative"),
		fixedDiscount("d2", 100, 5, "stackable", "cumulative"),
	}

	result, violations, err := svc.ApplyDiscounts(context.Background(), cart, candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	assert.Empty(t, result.Applications)
	assert.Equal(t, int64(1000), result.RemainingAmount)
	assert.Len(t, violations, 2)
}

func TestApplyDiscounts_JurisdictionMismatchDropsCandidate(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	cart := testCart()
	cart.ShippingAddress = &domain.Address{CountryCode: "DE"}

	usOnly := percentDiscount("us-only", 1000, 0, 10, "stackable", "cumulative")
	usOnly.Data.Jurisdiction = "US"
	anywhere := percentDiscount("anywhere", 1000, 0, 5, "stackable", "cumulative")

	result, violations, err := svc.ApplyDiscounts(context.Background(), cart, []domain.Discount{usOnly, anywhere}, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 1)
	assert.Equal(t, "anywhere", result.Applications[0].DiscountID)

	require.Len(t, violations, 1)
	assert.Equal(t, domain.ViolationJurisdiction, violations[0].Type)
}

// --- Cross-group chaining ---

func TestApplyDiscounts_RemainingChainsAcrossGroups(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)

	shipping := percentDiscount("ship", 1000, 0, 5, "stackable", "priority_first")
	shipping.Data.ShippingDiscount = true

	candidates := []domain.Discount{
		percentDiscount("cart", 1000, 0, 10, "stackable", "priority_first"),
		shipping,
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.Applications, 2)
	assert.Equal(t, int64(100), result.Applications[0].Amount)
	// The shipping group computes against the remaining 900.
	assert.Equal(t, int64(90), result.Applications[1].Amount)
	assert.Equal(t, int64(810), result.RemainingAmount)
}

func TestApplyDiscounts_AppliedRulesSummaryMatchesApplications(t *testing.T) {
	svc := newStackingService(StackingConfig{}, nil)
	candidates := []domain.Discount{
		percentDiscount("d1", 1000, 0, 10, "stackable", "cumulative"),
	}

	result, _, err := svc.ApplyDiscounts(context.Background(), testCart(), candidates, 1000, domain.ScopeCart)
	require.NoError(t, err)

	require.Len(t, result.AppliedRules, 1)
	assert.Equal(t, result.Applications[0].DiscountID, result.AppliedRules[0].DiscountID)
	assert.Equal(t, result.Applications[0].Amount, result.AppliedRules[0].Amount)
	assert.Equal(t, result.Applications[0].Reason, result.AppliedRules[0].Reason)
}
