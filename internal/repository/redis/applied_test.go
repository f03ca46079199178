package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goleaf/discount-service/internal/domain"
)

func setupTestStore(t *testing.T) (*AppliedDiscountStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewAppliedDiscountStore(client, 24*time.Hour)
	return store, mr
}

func TestAppliedDiscountStore_MarkAndList(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	records := []domain.AppliedDiscountRecord{
		{DiscountID: "disc-001", StackingMode: domain.StackingModeStackable, Amount: 100},
		{DiscountID: "disc-002", StackingMode: domain.StackingModeExclusive, Amount: 250},
	}

	err := store.MarkApplied(ctx, "cart-001", records)
	require.NoError(t, err)

	got, err := store.ListApplied(ctx, "cart-001")
	require.NoError(t, err)
	assert.ElementsMatch(t, records, got)
}

func TestAppliedDiscountStore_MarkApplied_MergesAcrossCalls(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	first := []domain.AppliedDiscountRecord{
		{DiscountID: "disc-001", StackingMode: domain.StackingModeStackable, Amount: 100},
	}
	require.NoError(t, store.MarkApplied(ctx, "cart-001", first))

	second := []domain.AppliedDiscountRecord{
		{DiscountID: "disc-001", StackingMode: domain.StackingModeStackable, Amount: 120},
		{DiscountID: "disc-002", StackingMode: domain.StackingModeNonStackable, Amount: 50},
	}
	require.NoError(t, store.MarkApplied(ctx, "cart-001", second))

	got, err := store.ListApplied(ctx, "cart-001")
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := make(map[string]domain.AppliedDiscountRecord, len(got))
	for _, r := range got {
		byID[r.DiscountID] = r
	}
	assert.Equal(t, int64(120), byID["disc-001"].Amount)
	assert.Equal(t, int64(50), byID["disc-002"].Amount)
}

func TestAppliedDiscountStore_MarkApplied_NoRecordsIsNoOp(t *testing.T) {
	store, mr := setupTestStore(t)

	err := store.MarkApplied(context.Background(), "cart-001", nil)
	require.NoError(t, err)
	assert.False(t, mr.Exists(appliedKey("cart-001")))
}

func TestAppliedDiscountStore_ListApplied_MissingKey(t *testing.T) {
	store, _ := setupTestStore(t)

	got, err := store.ListApplied(context.Background(), "cart-unknown")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAppliedDiscountStore_Clear(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	records := []domain.AppliedDiscountRecord{
		{DiscountID: "disc-001", StackingMode: domain.StackingModeStackable, Amount: 100},
	}
	require.NoError(t, store.MarkApplied(ctx, "cart-001", records))
	require.True(t, mr.Exists(appliedKey("cart-001")))

	require.NoError(t, store.Clear(ctx, "cart-001"))
	assert.False(t, mr.Exists(appliedKey("cart-001")))

	got, err := store.ListApplied(ctx, "cart-001")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppliedDiscountStore_MarkApplied_SetsTTL(t *testing.T) {
	store, mr := setupTestStore(t)

	records := []domain.AppliedDiscountRecord{
		{DiscountID: "disc-001", StackingMode: domain.StackingModeStackable, Amount: 100},
	}
	require.NoError(t, store.MarkApplied(context.Background(), "cart-001", records))

	ttl := mr.TTL(appliedKey("cart-001"))
	assert.Equal(t, 24*time.Hour, ttl)
}
