package domain

// MetadataKeyPriceBeforeDiscount is the cart metadata key under which the
// pre-discount price is recorded for audit tracking.
const MetadataKeyPriceBeforeDiscount = "price_before_discount"

// Address is a shipping or billing address; only the country matters for
// jurisdiction resolution.
type Address struct {
	Line1       string `json:"line1,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	CountryCode string `json:"country_code"`
}

// Customer identifies the cart owner and their default address country.
type Customer struct {
	ID             string `json:"id"`
	DefaultCountry string `json:"default_country,omitempty"`
}

// Channel is the sales channel the cart was created in.
type Channel struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	DefaultCountry string `json:"default_country,omitempty"`
}

// CartLine is a single priced line in a cart.
type CartLine struct {
	PurchasableID string `json:"purchasable_id"`
	SKU           string `json:"sku,omitempty"`
	Quantity      int    `json:"quantity"`
	LinePrice     int64  `json:"line_price"`
	MAPProtected  bool   `json:"map_protected,omitempty"`
}

// Cart is the read-consistent cart snapshot a discount evaluation runs over.
// The caller guarantees it is not mutated for the duration of one evaluation.
type Cart struct {
	ID              string            `json:"id"`
	Customer        Customer          `json:"customer"`
	Channel         Channel           `json:"channel"`
	Currency        string            `json:"currency"`
	Lines           []CartLine        `json:"lines"`
	SubtotalAmount  int64             `json:"subtotal_amount"`
	ShippingAddress *Address          `json:"shipping_address,omitempty"`
	BillingAddress  *Address          `json:"billing_address,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Jurisdiction resolves the legal region governing the cart: shipping address
// country first, then the customer's default address country, then the
// channel default country. Empty when none is known.
func (c *Cart) Jurisdiction() string {
	if c.ShippingAddress != nil && c.ShippingAddress.CountryCode != "" {
		return c.ShippingAddress.CountryCode
	}
	if c.Customer.DefaultCountry != "" {
		return c.Customer.DefaultCountry
	}
	return c.Channel.DefaultCountry
}

// HasMAPProtectedLine reports whether any cart line references a purchasable
// under Minimum Advertised Price protection.
func (c *Cart) HasMAPProtectedLine() bool {
	for _, line := range c.Lines {
		if line.MAPProtected {
			return true
		}
	}
	return false
}

// LinesTotal sums the line prices; used as a fallback base amount when the
// caller did not supply a subtotal.
func (c *Cart) LinesTotal() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.LinePrice
	}
	return total
}
