package domain

import "time"

// Evaluation scopes recorded on audit entries.
const (
	ScopeCart     = "cart"
	ScopeCheckout = "checkout"
	ScopePreview  = "preview"
)

// CoApplied records a sibling discount applied in the same evaluation.
type CoApplied struct {
	DiscountID string `json:"discount_id"`
	Amount     int64  `json:"amount"`
}

// AuditEntry is one immutable row of the discount audit trail. Entries are
// append-only; a cart accumulates entries across its lifecycle and none is
// ever updated or deleted.
type AuditEntry struct {
	ID               string            `json:"id"`
	DiscountID       string            `json:"discount_id"`
	DiscountName     string            `json:"discount_name"`
	CartID           string            `json:"cart_id"`
	Scope            string            `json:"scope"`
	Amount           int64             `json:"amount"`
	PriceBefore      int64             `json:"price_before"`
	PriceAfter       int64             `json:"price_after"`
	Reason           string            `json:"reason"`
	StackingMode     StackingMode      `json:"stacking_mode"`
	StackingStrategy StackingStrategy  `json:"stacking_strategy"`
	Priority         int               `json:"priority"`
	ConflictLabel    string            `json:"conflict_label,omitempty"`
	AppliedWith      []CoApplied       `json:"applied_with,omitempty"`
	Jurisdiction     string            `json:"jurisdiction,omitempty"`
	MAPProtected     bool              `json:"map_protected"`
	B2BContract      bool              `json:"b2b_contract"`
	ManualCoupon     bool              `json:"manual_coupon"`
	RequesterIP      string            `json:"requester_ip,omitempty"`
	UserAgent        string            `json:"user_agent,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ReportLine is the per-discount breakdown row of a compliance report.
type ReportLine struct {
	DiscountID   string `json:"discount_id"`
	DiscountName string `json:"discount_name"`
	Amount       int64  `json:"amount"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	MAPProtected bool   `json:"map_protected"`
	ManualCoupon bool   `json:"manual_coupon"`
}

// ComplianceReport aggregates a cart's audit trail for compliance review.
type ComplianceReport struct {
	CartID               string       `json:"cart_id"`
	AppliedCount         int          `json:"applied_count"`
	TotalDiscount        int64        `json:"total_discount"`
	PriceBefore          int64        `json:"price_before"`
	PriceAfter           int64        `json:"price_after"`
	Breakdown            []ReportLine `json:"breakdown"`
	MAPViolationCount    int          `json:"map_violation_count"`
	MissingPriceTracking int          `json:"missing_price_tracking"`
	GeneratedAt          time.Time    `json:"generated_at"`
}
