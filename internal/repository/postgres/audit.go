package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goleaf/discount-service/internal/domain"
	"github.com/goleaf/discount-service/pkg/database"
)

const auditColumns = `id, discount_id, discount_name, cart_id, scope, amount,
		   price_before, price_after, reason, stacking_mode, stacking_strategy,
		   priority, conflict_label, applied_with, jurisdiction, map_protected,
		   b2b_contract, manual_coupon, requester_ip, user_agent, metadata,
		   created_at`

// AuditRepository implements repository.AuditRepository using PostgreSQL.
// The backing table is append-only: entries are inserted once and never
// updated or deleted.
type AuditRepository struct {
	db database.DBTX
}

// NewAuditRepository creates a new PostgreSQL-backed audit repository.
func NewAuditRepository(db database.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends a single audit entry.
func (r *AuditRepository) Insert(ctx context.Context, e *domain.AuditEntry) error {
	appliedWithJSON, err := json.Marshal(e.AppliedWith)
	if err != nil {
		return fmt.Errorf("marshal applied_with: %w", err)
	}
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO discount_audit_entries (
			id, discount_id, discount_name, cart_id, scope, amount,
			price_before, price_after, reason, stacking_mode, stacking_strategy,
			priority, conflict_label, applied_with, jurisdiction, map_protected,
			b2b_contract, manual_coupon, requester_ip, user_agent, metadata,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		          $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err = r.db.Exec(ctx, query,
		e.ID,
		e.DiscountID,
		e.DiscountName,
		e.CartID,
		e.Scope,
		e.Amount,
		e.PriceBefore,
		e.PriceAfter,
		e.Reason,
		e.StackingMode,
		e.StackingStrategy,
		e.Priority,
		e.ConflictLabel,
		appliedWithJSON,
		e.Jurisdiction,
		e.MAPProtected,
		e.B2BContract,
		e.ManualCoupon,
		e.RequesterIP,
		e.UserAgent,
		metadataJSON,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// ListByDiscount returns the most recent entries for a discount, newest first.
func (r *AuditRepository) ListByDiscount(ctx context.Context, discountID string, limit int) ([]domain.AuditEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM discount_audit_entries
		WHERE discount_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, auditColumns)

	return r.listEntries(ctx, query, discountID, limit)
}

// ListByCart returns all entries for a cart in chronological order, so that
// the price_before/price_after chain reads top to bottom.
func (r *AuditRepository) ListByCart(ctx context.Context, cartID string) ([]domain.AuditEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM discount_audit_entries
		WHERE cart_id = $1
		ORDER BY created_at ASC`, auditColumns)

	return r.listEntries(ctx, query, cartID)
}

// ListByJurisdiction returns entries for a jurisdiction within a time range,
// newest first.
func (r *AuditRepository) ListByJurisdiction(ctx context.Context, jurisdiction string, from, to time.Time) ([]domain.AuditEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM discount_audit_entries
		WHERE jurisdiction = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC`, auditColumns)

	return r.listEntries(ctx, query, jurisdiction, from, to)
}

func (r *AuditRepository) listEntries(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry

	for rows.Next() {
		var (
			e               domain.AuditEntry
			appliedWithJSON []byte
			metadataJSON    []byte
		)

		if err := rows.Scan(
			&e.ID,
			&e.DiscountID,
			&e.DiscountName,
			&e.CartID,
			&e.Scope,
			&e.Amount,
			&e.PriceBefore,
			&e.PriceAfter,
			&e.Reason,
			&e.StackingMode,
			&e.StackingStrategy,
			&e.Priority,
			&e.ConflictLabel,
			&appliedWithJSON,
			&e.Jurisdiction,
			&e.MAPProtected,
			&e.B2BContract,
			&e.ManualCoupon,
			&e.RequesterIP,
			&e.UserAgent,
			&metadataJSON,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry row: %w", err)
		}

		if appliedWithJSON != nil {
			if err := json.Unmarshal(appliedWithJSON, &e.AppliedWith); err != nil {
				return nil, fmt.Errorf("unmarshal applied_with: %w", err)
			}
		}
		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entry rows: %w", err)
	}

	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	return entries, nil
}
