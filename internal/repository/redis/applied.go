package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goleaf/discount-service/internal/domain"
)

const appliedKeyPrefix = "discount:applied:"

// AppliedDiscountStore tracks which discounts have been applied to a cart,
// backed by Redis. Records expire after the configured TTL so abandoned carts
// clean themselves up.
type AppliedDiscountStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAppliedDiscountStore creates a new Redis-backed applied-discount store.
func NewAppliedDiscountStore(client *redis.Client, ttl time.Duration) *AppliedDiscountStore {
	return &AppliedDiscountStore{client: client, ttl: ttl}
}

func appliedKey(cartID string) string {
	return appliedKeyPrefix + cartID
}

// MarkApplied records the discounts applied to a cart in one evaluation,
// merging them with records from earlier evaluations and refreshing the TTL.
func (s *AppliedDiscountStore) MarkApplied(ctx context.Context, cartID string, records []domain.AppliedDiscountRecord) error {
	if len(records) == 0 {
		return nil
	}

	existing, err := s.ListApplied(ctx, cartID)
	if err != nil {
		return err
	}

	merged := make(map[string]domain.AppliedDiscountRecord, len(existing)+len(records))
	for _, r := range existing {
		merged[r.DiscountID] = r
	}
	for _, r := range records {
		merged[r.DiscountID] = r
	}

	all := make([]domain.AppliedDiscountRecord, 0, len(merged))
	for _, r := range merged {
		all = append(all, r)
	}

	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal applied discounts: %w", err)
	}

	if err := s.client.Set(ctx, appliedKey(cartID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store applied discounts: %w", err)
	}

	return nil
}

// ListApplied returns the applied-discount records for a cart. A missing key
// yields an empty slice, not an error.
func (s *AppliedDiscountStore) ListApplied(ctx context.Context, cartID string) ([]domain.AppliedDiscountRecord, error) {
	data, err := s.client.Get(ctx, appliedKey(cartID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []domain.AppliedDiscountRecord{}, nil
		}
		return nil, fmt.Errorf("load applied discounts: %w", err)
	}

	var records []domain.AppliedDiscountRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal applied discounts: %w", err)
	}

	return records, nil
}

// Clear removes the applied-discount record for a cart, typically after
// checkout completes or the cart is abandoned.
func (s *AppliedDiscountStore) Clear(ctx context.Context, cartID string) error {
	if err := s.client.Del(ctx, appliedKey(cartID)).Err(); err != nil {
		return fmt.Errorf("clear applied discounts: %w", err)
	}
	return nil
}
