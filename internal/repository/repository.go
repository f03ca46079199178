package repository

import (
	"context"
	"time"

	"github.com/goleaf/discount-service/internal/domain"
)

// DiscountFilter defines filter criteria for listing discounts.
type DiscountFilter struct {
	Status  *string
	Type    *string
	Page    int
	PerPage int
}

// DiscountRepository defines the interface for discount persistence operations.
type DiscountRepository interface {
	// Create inserts a new discount into the store.
	Create(ctx context.Context, discount *domain.Discount) error

	// GetByID retrieves a discount by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Discount, error)

	// GetByCode retrieves a discount by its coupon code.
	GetByCode(ctx context.Context, code string) (*domain.Discount, error)

	// List returns discounts matching the given filter along with the total count.
	List(ctx context.Context, filter DiscountFilter) ([]domain.Discount, int, error)

	// Update modifies an existing discount in the store.
	Update(ctx context.Context, discount *domain.Discount) error

	// ListActive returns the automatic (non-coupon) discounts active at the
	// given instant.
	ListActive(ctx context.Context, at time.Time) ([]domain.Discount, error)
}

// AuditRepository defines the interface for the append-only audit trail.
type AuditRepository interface {
	// Insert appends a single audit entry. Entries are never updated or
	// deleted afterwards.
	Insert(ctx context.Context, entry *domain.AuditEntry) error

	// ListByDiscount returns the most recent entries for a discount, newest
	// first, capped at limit.
	ListByDiscount(ctx context.Context, discountID string, limit int) ([]domain.AuditEntry, error)

	// ListByCart returns all entries for a cart in chronological order.
	ListByCart(ctx context.Context, cartID string) ([]domain.AuditEntry, error)

	// ListByJurisdiction returns entries recorded for a jurisdiction within
	// the given time range, newest first.
	ListByJurisdiction(ctx context.Context, jurisdiction string, from, to time.Time) ([]domain.AuditEntry, error)
}
