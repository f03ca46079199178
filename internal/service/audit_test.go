package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goleaf/discount-service/internal/domain"
	apperrors "github.com/goleaf/discount-service/pkg/errors"
)

// --- Mock Repository ---

type mockAuditRepository struct {
	mock.Mock
}

func (m *mockAuditRepository) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditRepository) ListByDiscount(ctx context.Context, discountID string, limit int) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, discountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

func (m *mockAuditRepository) ListByCart(ctx context.Context, cartID string) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, cartID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

func (m *mockAuditRepository) ListByJurisdiction(ctx context.Context, jurisdiction string, from, to time.Time) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, jurisdiction, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

// --- Tests ---

func sampleResult() *domain.DiscountStackingResult {
	apps := []domain.DiscountApplication{
		{DiscountID: "d1", DiscountName: "Ten Percent", Amount: 100, StackingMode: domain.StackingModeStackable, Priority: 10},
		{DiscountID: "d2", DiscountName: "Fifty Off", Amount: 50, StackingMode: domain.StackingModeStackable, Priority: 5},
	}
	return domain.NewStackingResult(1000, apps)
}

func TestLogApplications_PriceChain(t *testing.T) {
	repo := new(mockAuditRepository)
	svc := NewDiscountAuditService(repo, newTestLogger())

	var inserted []domain.AuditEntry
	repo.On("Insert", mock.Anything, mock.AnythingOfType("*domain.AuditEntry")).
		Run(func(args mock.Arguments) {
			inserted = append(inserted, *args.Get(1).(*domain.AuditEntry))
		}).
		Return(nil)

	entries, err := svc.LogApplications(context.Background(), testCart(), sampleResult(), domain.ScopeCart, AuditMeta{RequesterIP: "10.0.0.1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Len(t, inserted, 2)

	assert.Equal(t, int64(1000), entries[0].PriceBefore)
	assert.Equal(t, int64(900), entries[0].PriceAfter)
	assert.Equal(t, int64(900), entries[1].PriceBefore)
	assert.Equal(t, int64(850), entries[1].PriceAfter)

	// Every entry records its siblings.
	require.Len(t, entries[0].AppliedWith, 1)
	assert.Equal(t, "d2", entries[0].AppliedWith[0].DiscountID)
	require.Len(t, entries[1].AppliedWith, 1)
	assert.Equal(t, "d1", entries[1].AppliedWith[0].DiscountID)

	assert.Equal(t, "10.0.0.1", entries[0].RequesterIP)
	assert.NotEmpty(t, entries[0].ID)
	assert.True(t, entries[0].CreatedAt.Before(entries[1].CreatedAt))
}

func TestLogApplications_EmptyResult(t *testing.T) {
	repo := new(mockAuditRepository)
	svc := NewDiscountAuditService(repo, newTestLogger())

	entries, err := svc.LogApplications(context.Background(), testCart(), domain.NewStackingResult(1000, nil), domain.ScopeCart, AuditMeta{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	repo.AssertNotCalled(t, "Insert")
}

func TestLogApplications_WriteFailure(t *testing.T) {
	repo := new(mockAuditRepository)
	svc := NewDiscountAuditService(repo, newTestLogger())

	repo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := svc.LogApplications(context.Background(), testCart(), sampleResult(), domain.ScopeCart, AuditMeta{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAuditWrite))
}

func TestTrailByDiscount_LimitBounds(t *testing.T) {
	repo := new(mockAuditRepository)
	svc := NewDiscountAuditService(repo, newTestLogger())

	repo.On("ListByDiscount", mock.Anything, "d1", defaultTrailLimit).Return([]domain.AuditEntry{}, nil).Once()
	_, err := svc.TrailByDiscount(context.Background(), "d1", 0)
	require.NoError(t, err)

	repo.On("ListByDiscount", mock.Anything, "d1", maxTrailLimit).Return([]domain.AuditEntry{}, nil).Once()
	_, err = svc.TrailByDiscount(context.Background(), "d1", 9999)
	require.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestTrailByDiscount_RequiresID(t *testing.T) {
	svc := NewDiscountAuditService(new(mockAuditRepository), newTestLogger())
	_, err := svc.TrailByDiscount(context.Background(), "", 10)
	assert.Error(t, err)
}

func TestTrailByJurisdiction_Validation(t *testing.T) {
	repo := new(mockAuditRepository)
	svc := NewDiscountAuditService(repo, newTestLogger())

	_, err := svc.TrailByJurisdiction(context.Background(), "", time.Time{}, time.Time{})
	assert.Error(t, err)

	now := time.Now().UTC()
	_, err = svc.TrailByJurisdiction(context.Background(), "DE", now, now.Add(-time.Hour))
	assert.Error(t, err)

	repo.On("ListByJurisdiction", mock.Anything, "DE", mock.Anything, mock.Anything).Return([]domain.AuditEntry{}, nil)
	_, err = svc.TrailByJurisdiction(context.Background(), "DE", now.Add(-time.Hour), time.Time{})
	require.NoError(t, err)
}

func TestComplianceReport_Aggregation(t *testing.T) {
	repo := new(mockAuditRepository)
	svc := NewDiscountAuditService(repo, newTestLogger())

	trail := []domain.AuditEntry{
		{DiscountID: "d1", DiscountName: "Ten", Amount: 100, PriceBefore: 1000, PriceAfter: 900, MAPProtected: true, ManualCoupon: true},
		{DiscountID: "d2", DiscountName: "Fifty", Amount: 50, PriceBefore: 900, PriceAfter: 850},
		{DiscountID: "d3", DiscountName: "Untracked", Amount: 25},
	}
	repo.On("ListByCart", mock.Anything, "cart-001").Return(trail, nil)

	report, err := svc.ComplianceReport(context.Background(), "cart-001")
	require.NoError(t, err)

	assert.Equal(t, "cart-001", report.CartID)
	assert.Equal(t, 3, report.AppliedCount)
	assert.Equal(t, int64(175), report.TotalDiscount)
	assert.Equal(t, int64(1000), report.PriceBefore)
	assert.Equal(t, 1, report.MAPViolationCount)
	assert.Equal(t, 1, report.MissingPriceTracking)
	require.Len(t, report.Breakdown, 3)
	assert.True(t, report.Breakdown[0].ManualCoupon)
}

func TestComplianceReport_EmptyTrail(t *testing.T) {
	repo := new(mockAuditRepository)
	svc := NewDiscountAuditService(repo, newTestLogger())

	repo.On("ListByCart", mock.Anything, "cart-empty").Return([]domain.AuditEntry{}, nil)

	report, err := svc.ComplianceReport(context.Background(), "cart-empty")
	require.NoError(t, err)
	assert.Zero(t, report.AppliedCount)
	assert.Zero(t, report.TotalDiscount)
	assert.Empty(t, report.Breakdown)
}
