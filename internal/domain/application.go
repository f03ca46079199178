package domain

// Conflict resolution labels recorded against admitted discounts.
const (
	ResolutionExclusive            = "exclusive"
	ResolutionManualCouponOverride = "manual_coupon_override"
	ResolutionB2BOverride          = "b2b_override"
	ResolutionNonStackableReplaced = "non_stackable_replacement"
	ResolutionStackable            = "stackable"
)

// DiscountApplication is one computed application of a discount against a
// base amount. It is immutable once created: construct via
// NewDiscountApplication and never modify.
type DiscountApplication struct {
	DiscountID       string           `json:"discount_id"`
	DiscountName     string           `json:"discount_name"`
	CouponCode       string           `json:"coupon_code,omitempty"`
	Type             DiscountType     `json:"type"`
	StackingMode     StackingMode     `json:"stacking_mode"`
	StackingStrategy StackingStrategy `json:"stacking_strategy"`
	Priority         int              `json:"priority"`
	Amount           int64            `json:"amount"`
	Reason           string           `json:"reason"`
	Jurisdiction     string           `json:"jurisdiction,omitempty"`
	MAPProtected     bool             `json:"map_protected,omitempty"`
	B2BContract      bool             `json:"b2b_contract,omitempty"`
	Resolution       string           `json:"resolution,omitempty"`
}

// NewDiscountApplication builds an application from a discount, its
// classification, and the computed amount.
func NewDiscountApplication(d *Discount, cls Classification, amount int64, reason, resolution string) DiscountApplication {
	return DiscountApplication{
		DiscountID:       d.ID,
		DiscountName:     d.Name,
		CouponCode:       d.Code,
		Type:             cls.Type,
		StackingMode:     cls.StackingMode,
		StackingStrategy: cls.StackingStrategy,
		Priority:         cls.Priority,
		Amount:           amount,
		Reason:           reason,
		Jurisdiction:     d.Data.Jurisdiction,
		MAPProtected:     d.Data.MAPProtected,
		B2BContract:      d.Data.B2BContract,
		Resolution:       resolution,
	}
}

// AppliedRule is the per-discount summary entry of a stacking result.
type AppliedRule struct {
	Type         DiscountType `json:"type"`
	DiscountID   string       `json:"discount_id"`
	Name         string       `json:"name"`
	Amount       int64        `json:"amount"`
	Reason       string       `json:"reason"`
	StackingMode StackingMode `json:"stacking_mode"`
	Priority     int          `json:"priority"`
}

// DiscountStackingResult is the outcome of one discount evaluation.
// Invariant: RemainingAmount + TotalDiscount == BaseAmount and
// TotalDiscount <= BaseAmount.
type DiscountStackingResult struct {
	BaseAmount      int64                 `json:"base_amount"`
	TotalDiscount   int64                 `json:"total_discount"`
	RemainingAmount int64                 `json:"remaining_amount"`
	Applications    []DiscountApplication `json:"applications"`
	AppliedRules    []AppliedRule         `json:"applied_rules"`
}

// NewStackingResult assembles a result from the ordered application list,
// computing the totals and the applied-rules summary.
func NewStackingResult(baseAmount int64, applications []DiscountApplication) *DiscountStackingResult {
	if applications == nil {
		applications = []DiscountApplication{}
	}

	var total int64
	rules := make([]AppliedRule, 0, len(applications))
	for _, app := range applications {
		total += app.Amount
		rules = append(rules, AppliedRule{
			Type:         app.Type,
			DiscountID:   app.DiscountID,
			Name:         app.DiscountName,
			Amount:       app.Amount,
			Reason:       app.Reason,
			StackingMode: app.StackingMode,
			Priority:     app.Priority,
		})
	}

	remaining := baseAmount - total
	if remaining < 0 {
		remaining = 0
	}

	return &DiscountStackingResult{
		BaseAmount:      baseAmount,
		TotalDiscount:   total,
		RemainingAmount: remaining,
		Applications:    applications,
		AppliedRules:    rules,
	}
}

// Compliance violation types.
const (
	ViolationMAPProtection  = "map_protection"
	ViolationJurisdiction   = "jurisdiction"
	ViolationDoubleDiscount = "double_discount"
)

// Compliance violation severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Violation is a reportable compliance finding for a candidate discount.
// Violations are data, not errors: the caller decides whether to block,
// surface, or merely log them.
type Violation struct {
	DiscountID string `json:"discount_id"`
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
}

// IsBlocking reports whether the violation must prevent application.
func (v Violation) IsBlocking() bool {
	return v.Severity == SeverityError
}

// AppliedDiscountRecord is the lightweight per-cart record of a discount that
// has already been applied, used by the double-discount compliance check.
type AppliedDiscountRecord struct {
	DiscountID   string       `json:"discount_id"`
	StackingMode StackingMode `json:"stacking_mode"`
	Amount       int64        `json:"amount"`
}
