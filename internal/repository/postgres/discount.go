package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goleaf/discount-service/internal/domain"
	"github.com/goleaf/discount-service/internal/repository"
	"github.com/goleaf/discount-service/pkg/database"
	apperrors "github.com/goleaf/discount-service/pkg/errors"
)

// DiscountRepository implements repository.DiscountRepository using PostgreSQL.
type DiscountRepository struct {
	db database.DBTX
}

// NewDiscountRepository creates a new PostgreSQL-backed discount repository.
func NewDiscountRepository(db database.DBTX) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// Create inserts a new discount into the database.
func (r *DiscountRepository) Create(ctx context.Context, d *domain.Discount) error {
	dataJSON, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("marshal discount data: %w", err)
	}
	purchasablesJSON, err := json.Marshal(d.Purchasables)
	if err != nil {
		return fmt.Errorf("marshal purchasables: %w", err)
	}

	query := `
		INSERT INTO discounts (
			id, name, description, code, priority, status, data,
			purchasables, start_date, end_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		d.ID,
		d.Name,
		d.Description,
		d.Code,
		d.Priority,
		d.Status,
		dataJSON,
		purchasablesJSON,
		d.StartDate,
		d.EndDate,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("discount", "code", d.Code)
		}
		return fmt.Errorf("insert discount: %w", err)
	}

	return nil
}

// GetByID retrieves a discount by its ID.
func (r *DiscountRepository) GetByID(ctx context.Context, id string) (*domain.Discount, error) {
	query := `
		SELECT id, name, description, code, priority, status, data,
			   purchasables, start_date, end_date, created_at, updated_at
		FROM discounts
		WHERE id = $1`

	return r.scanDiscount(ctx, query, id)
}

// GetByCode retrieves a discount by its coupon code. Codes are stored
// uppercase; callers normalize before lookup.
func (r *DiscountRepository) GetByCode(ctx context.Context, code string) (*domain.Discount, error) {
	query := `
		SELECT id, name, description, code, priority, status, data,
			   purchasables, start_date, end_date, created_at, updated_at
		FROM discounts
		WHERE code = $1`

	return r.scanDiscount(ctx, query, code)
}

// List returns discounts matching the given filter with the total count.
// The Type filter matches the declared type stored inside the data document.
func (r *DiscountRepository) List(ctx context.Context, filter repository.DiscountFilter) ([]domain.Discount, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("data->>'discount_type' = $%d", argIndex))
		args = append(args, *filter.Type)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT id, name, description, code, priority, status, data,
			   purchasables, start_date, end_date, created_at, updated_at,
			   count(*) OVER() AS total_count
		FROM discounts
		%s
		ORDER BY priority DESC, created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	var (
		discounts  []domain.Discount
		totalCount int
	)

	for rows.Next() {
		var (
			d                domain.Discount
			dataJSON         []byte
			purchasablesJSON []byte
		)

		if err := rows.Scan(
			&d.ID,
			&d.Name,
			&d.Description,
			&d.Code,
			&d.Priority,
			&d.Status,
			&dataJSON,
			&purchasablesJSON,
			&d.StartDate,
			&d.EndDate,
			&d.CreatedAt,
			&d.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan discount row: %w", err)
		}

		if err := unmarshalDiscountDocs(&d, dataJSON, purchasablesJSON); err != nil {
			return nil, 0, err
		}

		discounts = append(discounts, d)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate discount rows: %w", err)
	}

	if discounts == nil {
		discounts = []domain.Discount{}
	}

	return discounts, totalCount, nil
}

// Update modifies an existing discount in the database.
func (r *DiscountRepository) Update(ctx context.Context, d *domain.Discount) error {
	dataJSON, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("marshal discount data: %w", err)
	}
	purchasablesJSON, err := json.Marshal(d.Purchasables)
	if err != nil {
		return fmt.Errorf("marshal purchasables: %w", err)
	}

	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE discounts
		SET name = $1, description = $2, code = $3, priority = $4, status = $5,
		    data = $6, purchasables = $7, start_date = $8, end_date = $9,
		    updated_at = $10
		WHERE id = $11`

	ct, err := r.db.Exec(ctx, query,
		d.Name,
		d.Description,
		d.Code,
		d.Priority,
		d.Status,
		dataJSON,
		purchasablesJSON,
		d.StartDate,
		d.EndDate,
		d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("discount", "code", d.Code)
		}
		return fmt.Errorf("update discount: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("discount", d.ID)
	}

	return nil
}

// ListActive returns automatic discounts active at the given instant, sorted
// by descending priority. Date-window filtering happens in Go because zero
// dates mean an open-ended window.
func (r *DiscountRepository) ListActive(ctx context.Context, at time.Time) ([]domain.Discount, error) {
	query := `
		SELECT id, name, description, code, priority, status, data,
			   purchasables, start_date, end_date, created_at, updated_at
		FROM discounts
		WHERE status = $1 AND code = ''
		ORDER BY priority DESC, created_at DESC`

	rows, err := r.db.Query(ctx, query, domain.DiscountStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active discounts: %w", err)
	}
	defer rows.Close()

	var discounts []domain.Discount

	for rows.Next() {
		var (
			d                domain.Discount
			dataJSON         []byte
			purchasablesJSON []byte
		)

		if err := rows.Scan(
			&d.ID,
			&d.Name,
			&d.Description,
			&d.Code,
			&d.Priority,
			&d.Status,
			&dataJSON,
			&purchasablesJSON,
			&d.StartDate,
			&d.EndDate,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan discount row: %w", err)
		}

		if err := unmarshalDiscountDocs(&d, dataJSON, purchasablesJSON); err != nil {
			return nil, err
		}

		if d.ActiveAt(at) {
			discounts = append(discounts, d)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discount rows: %w", err)
	}

	if discounts == nil {
		discounts = []domain.Discount{}
	}

	return discounts, nil
}

// scanDiscount is a helper that executes a query expected to return a single discount row.
func (r *DiscountRepository) scanDiscount(ctx context.Context, query string, args ...any) (*domain.Discount, error) {
	var (
		d                domain.Discount
		dataJSON         []byte
		purchasablesJSON []byte
	)

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&d.ID,
		&d.Name,
		&d.Description,
		&d.Code,
		&d.Priority,
		&d.Status,
		&dataJSON,
		&purchasablesJSON,
		&d.StartDate,
		&d.EndDate,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan discount: %w", err)
	}

	if err := unmarshalDiscountDocs(&d, dataJSON, purchasablesJSON); err != nil {
		return nil, err
	}

	return &d, nil
}

func unmarshalDiscountDocs(d *domain.Discount, dataJSON, purchasablesJSON []byte) error {
	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &d.Data); err != nil {
			return fmt.Errorf("unmarshal discount data: %w", err)
		}
	}

	if purchasablesJSON != nil {
		if err := json.Unmarshal(purchasablesJSON, &d.Purchasables); err != nil {
			return fmt.Errorf("unmarshal purchasables: %w", err)
		}
	}
	if d.Purchasables == nil {
		d.Purchasables = []domain.PurchasableRef{}
	}

	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
