package domain

import (
	"encoding/json"
	"time"
)

// DiscountType classifies what part of an order a discount targets.
type DiscountType string

const (
	DiscountTypeCartLevel          DiscountType = "cart_level"
	DiscountTypeItemLevel          DiscountType = "item_level"
	DiscountTypeShipping           DiscountType = "shipping"
	DiscountTypePaymentMethod      DiscountType = "payment_method"
	DiscountTypeCustomerLoyalty    DiscountType = "customer_loyalty"
	DiscountTypeCouponBased        DiscountType = "coupon_based"
	DiscountTypeAutomaticPromotion DiscountType = "automatic_promotion"
)

// StackingMode controls whether a discount may combine with others.
type StackingMode string

const (
	StackingModeExclusive    StackingMode = "exclusive"
	StackingModeNonStackable StackingMode = "non_stackable"
	StackingModeStackable    StackingMode = "stackable"
)

// StackingStrategy selects the combination algorithm within one type group.
type StackingStrategy string

const (
	StrategyBestOf            StackingStrategy = "best_of"
	StrategyPriorityFirst     StackingStrategy = "priority_first"
	StrategyCumulative        StackingStrategy = "cumulative"
	StrategyExclusiveOverride StackingStrategy = "exclusive_override"
)

// Discount status constants.
const (
	DiscountStatusDraft    = "draft"
	DiscountStatusActive   = "active"
	DiscountStatusPaused   = "paused"
	DiscountStatusArchived = "archived"
)

// Purchasable association roles for conditional (BOGO-style) discounts.
const (
	PurchasableRoleCondition = "condition"
	PurchasableRoleReward    = "reward"
	PurchasableRoleGeneric   = "generic"
)

// DefaultPriority is assumed when a discount has no priority set.
const DefaultPriority = 1

// ValidDiscountTypes returns the set of recognized discount type strings.
func ValidDiscountTypes() []DiscountType {
	return []DiscountType{
		DiscountTypeCartLevel,
		DiscountTypeItemLevel,
		DiscountTypeShipping,
		DiscountTypePaymentMethod,
		DiscountTypeCustomerLoyalty,
		DiscountTypeCouponBased,
		DiscountTypeAutomaticPromotion,
	}
}

// ParseDiscountType maps a raw string to a DiscountType. Unrecognized values
// fall back to cart_level, the documented default for unknown declared types.
func ParseDiscountType(s string) (DiscountType, bool) {
	for _, t := range ValidDiscountTypes() {
		if string(t) == s {
			return t, true
		}
	}
	return DiscountTypeCartLevel, false
}

// ParseStackingMode maps a raw string to a StackingMode. Unrecognized or
// absent values fall back to non_stackable, the conservative default that
// prevents silent unintended stacking.
func ParseStackingMode(s string) StackingMode {
	switch StackingMode(s) {
	case StackingModeExclusive, StackingModeNonStackable, StackingModeStackable:
		return StackingMode(s)
	default:
		return StackingModeNonStackable
	}
}

// ParseStackingStrategy maps a raw string to a StackingStrategy. Unrecognized
// or absent values fall back to priority_first.
func ParseStackingStrategy(s string) StackingStrategy {
	switch StackingStrategy(s) {
	case StrategyBestOf, StrategyPriorityFirst, StrategyCumulative, StrategyExclusiveOverride:
		return StackingStrategy(s)
	default:
		return StrategyPriorityFirst
	}
}

// DiscountParams is the tagged union of monetary discount parameters. Exactly
// one concrete variant is carried by a DiscountData; a nil value means the
// discount has no recognized monetary configuration and computes to zero.
type DiscountParams interface {
	isDiscountParams()
}

// PercentageParams configures a percentage-off discount. The percentage is
// stored in basis points (1000 = 10%) so amounts stay in integer arithmetic.
type PercentageParams struct {
	BasisPoints       int64
	MaxDiscountAmount int64 // cap in minor units; 0 = uncapped
}

func (PercentageParams) isDiscountParams() {}

// FixedAmountParams configures a fixed amount-off discount in minor units.
type FixedAmountParams struct {
	Amount int64
}

func (FixedAmountParams) isDiscountParams() {}

// DiscountData is the typed replacement for the free-form configuration bag
// the admin tooling stores per discount. Declared type, mode, and strategy
// keep their raw string form; classification applies the documented fallbacks
// so that unknown values degrade predictably instead of being coerced.
type DiscountData struct {
	DeclaredType     string
	StackingMode     string
	StackingStrategy string
	Jurisdiction     string

	MAPProtected          bool
	B2BContract           bool
	ShippingDiscount      bool
	PaymentMethodDiscount bool
	LoyaltyDiscount       bool

	Params DiscountParams

	// Raw preserves unrecognized keys for forward compatibility.
	Raw map[string]json.RawMessage
}

// wire keys of the discount data payload.
const (
	dataKeyPercentage       = "percentage"
	dataKeyFixedAmount      = "fixed_amount"
	dataKeyMaxDiscount      = "max_discount_amount"
	dataKeyStackingMode     = "stacking_mode"
	dataKeyStackingStrategy = "stacking_strategy"
	dataKeyJurisdiction     = "jurisdiction"
	dataKeyMAPProtected     = "map_protected"
	dataKeyB2BContract      = "b2b_contract"
	dataKeyDiscountType     = "discount_type"
	dataKeyShipping         = "shipping_discount"
	dataKeyPaymentMethod    = "payment_method_discount"
	dataKeyLoyalty          = "loyalty_discount"
)

// MarshalJSON renders DiscountData in the original flat key/value wire format.
func (d DiscountData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Raw)+8)
	for k, v := range d.Raw {
		out[k] = v
	}

	switch p := d.Params.(type) {
	case PercentageParams:
		out[dataKeyPercentage] = float64(p.BasisPoints) / 100
		if p.MaxDiscountAmount > 0 {
			out[dataKeyMaxDiscount] = p.MaxDiscountAmount
		}
	case FixedAmountParams:
		out[dataKeyFixedAmount] = p.Amount
	}

	if d.DeclaredType != "" {
		out[dataKeyDiscountType] = d.DeclaredType
	}
	if d.StackingMode != "" {
		out[dataKeyStackingMode] = d.StackingMode
	}
	if d.StackingStrategy != "" {
		out[dataKeyStackingStrategy] = d.StackingStrategy
	}
	if d.Jurisdiction != "" {
		out[dataKeyJurisdiction] = d.Jurisdiction
	}
	if d.MAPProtected {
		out[dataKeyMAPProtected] = true
	}
	if d.B2BContract {
		out[dataKeyB2BContract] = true
	}
	if d.ShippingDiscount {
		out[dataKeyShipping] = true
	}
	if d.PaymentMethodDiscount {
		out[dataKeyPaymentMethod] = true
	}
	if d.LoyaltyDiscount {
		out[dataKeyLoyalty] = true
	}

	return json.Marshal(out)
}

// UnmarshalJSON parses the flat wire format into typed fields, routing
// monetary keys into the parameter union and unknown keys into Raw.
// A percentage key takes precedence over fixed_amount when both are present,
// matching the amount calculation order.
func (d *DiscountData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = DiscountData{}

	var (
		percentage  *float64
		fixedAmount *int64
		maxDiscount int64
	)

	for key, val := range raw {
		switch key {
		case dataKeyPercentage:
			var v float64
			if err := json.Unmarshal(val, &v); err == nil {
				percentage = &v
			}
		case dataKeyFixedAmount:
			var v int64
			if err := json.Unmarshal(val, &v); err == nil {
				fixedAmount = &v
			}
		case dataKeyMaxDiscount:
			var v int64
			if err := json.Unmarshal(val, &v); err == nil {
				maxDiscount = v
			}
		case dataKeyDiscountType:
			_ = json.Unmarshal(val, &d.DeclaredType)
		case dataKeyStackingMode:
			_ = json.Unmarshal(val, &d.StackingMode)
		case dataKeyStackingStrategy:
			_ = json.Unmarshal(val, &d.StackingStrategy)
		case dataKeyJurisdiction:
			_ = json.Unmarshal(val, &d.Jurisdiction)
		case dataKeyMAPProtected:
			_ = json.Unmarshal(val, &d.MAPProtected)
		case dataKeyB2BContract:
			_ = json.Unmarshal(val, &d.B2BContract)
		case dataKeyShipping:
			_ = json.Unmarshal(val, &d.ShippingDiscount)
		case dataKeyPaymentMethod:
			_ = json.Unmarshal(val, &d.PaymentMethodDiscount)
		case dataKeyLoyalty:
			_ = json.Unmarshal(val, &d.LoyaltyDiscount)
		default:
			if d.Raw == nil {
				d.Raw = make(map[string]json.RawMessage)
			}
			d.Raw[key] = val
		}
	}

	switch {
	case percentage != nil:
		d.Params = PercentageParams{
			BasisPoints:       int64(*percentage*100 + 0.5),
			MaxDiscountAmount: maxDiscount,
		}
	case fixedAmount != nil:
		d.Params = FixedAmountParams{Amount: *fixedAmount}
	}

	return nil
}

// PurchasableRef associates a discount with a purchasable, tagged with its
// role for conditional (condition/reward) discounts.
type PurchasableRef struct {
	PurchasableID string `json:"purchasable_id"`
	Role          string `json:"role"`
}

// Discount is a candidate discount as supplied to the stacking engine.
type Discount struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Code         string           `json:"code,omitempty"`
	Priority     int              `json:"priority"`
	Status       string           `json:"status"`
	Data         DiscountData     `json:"data"`
	Purchasables []PurchasableRef `json:"purchasables,omitempty"`
	StartDate    time.Time        `json:"start_date"`
	EndDate      time.Time        `json:"end_date"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// IsCouponBased reports whether the discount requires a manually entered
// coupon code. Code presence is what distinguishes manual discounts from
// automatic promotions.
func (d *Discount) IsCouponBased() bool {
	return d.Code != ""
}

// ActiveAt reports whether the discount is active and within its date window.
func (d *Discount) ActiveAt(now time.Time) bool {
	if d.Status != DiscountStatusActive {
		return false
	}
	if !d.StartDate.IsZero() && now.Before(d.StartDate) {
		return false
	}
	if !d.EndDate.IsZero() && now.After(d.EndDate) {
		return false
	}
	return true
}

// Classification is the derived stacking profile of a discount. It is a pure
// function of the discount's current data and stays constant for the duration
// of one resolution pass.
type Classification struct {
	Type             DiscountType     `json:"type"`
	StackingMode     StackingMode     `json:"stacking_mode"`
	StackingStrategy StackingStrategy `json:"stacking_strategy"`
	Priority         int              `json:"priority"`
}

// Classify derives the discount's type, stacking mode, stacking strategy, and
// priority. Type inference order (first match wins): coupon code present,
// explicit declared type, shipping flag, payment-method flag, loyalty flag,
// any purchasable association, cart-level fallback.
func (d *Discount) Classify() Classification {
	priority := d.Priority
	if priority == 0 {
		priority = DefaultPriority
	}

	return Classification{
		Type:             d.inferType(),
		StackingMode:     ParseStackingMode(d.Data.StackingMode),
		StackingStrategy: ParseStackingStrategy(d.Data.StackingStrategy),
		Priority:         priority,
	}
}

func (d *Discount) inferType() DiscountType {
	if d.IsCouponBased() {
		return DiscountTypeCouponBased
	}
	if d.Data.DeclaredType != "" {
		t, _ := ParseDiscountType(d.Data.DeclaredType)
		return t
	}
	if d.Data.ShippingDiscount {
		return DiscountTypeShipping
	}
	if d.Data.PaymentMethodDiscount {
		return DiscountTypePaymentMethod
	}
	if d.Data.LoyaltyDiscount {
		return DiscountTypeCustomerLoyalty
	}
	if len(d.Purchasables) > 0 {
		return DiscountTypeItemLevel
	}
	return DiscountTypeCartLevel
}
