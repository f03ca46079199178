package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goleaf/discount-service/internal/domain"
	pkgkafka "github.com/goleaf/discount-service/pkg/kafka"
)

// Kafka topic constants for discount domain events.
const (
	TopicDiscountCreated = "commerce.discount.created"
	TopicDiscountUpdated = "commerce.discount.updated"
	TopicDiscountApplied = "commerce.discount.applied"
)

// Aggregate type constant.
const AggregateTypeDiscount = "discount"

// Source identifier for events originating from the discount service.
const SourceDiscountService = "discount-service"

// DiscountCreatedData is the payload for a discount.created event.
type DiscountCreatedData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

// DiscountUpdatedData is the payload for a discount.updated event.
type DiscountUpdatedData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

// DiscountAppliedData is the payload for a discount.applied event, emitted
// once per evaluation that produced at least one application.
type DiscountAppliedData struct {
	CartID          string               `json:"cart_id"`
	Scope           string               `json:"scope"`
	BaseAmount      int64                `json:"base_amount"`
	TotalDiscount   int64                `json:"total_discount"`
	RemainingAmount int64                `json:"remaining_amount"`
	Applications    []AppliedDiscountRef `json:"applications"`
}

// AppliedDiscountRef is one applied discount inside a discount.applied event.
type AppliedDiscountRef struct {
	DiscountID string `json:"discount_id"`
	Code       string `json:"code,omitempty"`
	Amount     int64  `json:"amount"`
	Resolution string `json:"resolution,omitempty"`
}

// Producer publishes discount domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the discount service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishDiscountCreated publishes a discount.created event.
func (p *Producer) PublishDiscountCreated(ctx context.Context, d *domain.Discount) error {
	data := DiscountCreatedData{
		ID:       d.ID,
		Name:     d.Name,
		Code:     d.Code,
		Status:   d.Status,
		Priority: d.Priority,
	}

	event, err := pkgkafka.NewEvent(TopicDiscountCreated, d.ID, AggregateTypeDiscount, SourceDiscountService, data)
	if err != nil {
		return fmt.Errorf("create discount.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicDiscountCreated, event); err != nil {
		return fmt.Errorf("publish discount.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published discount.created event",
		slog.String("discount_id", d.ID),
		slog.String("code", d.Code),
	)

	return nil
}

// PublishDiscountUpdated publishes a discount.updated event.
func (p *Producer) PublishDiscountUpdated(ctx context.Context, d *domain.Discount) error {
	data := DiscountUpdatedData{
		ID:       d.ID,
		Name:     d.Name,
		Code:     d.Code,
		Status:   d.Status,
		Priority: d.Priority,
	}

	event, err := pkgkafka.NewEvent(TopicDiscountUpdated, d.ID, AggregateTypeDiscount, SourceDiscountService, data)
	if err != nil {
		return fmt.Errorf("create discount.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicDiscountUpdated, event); err != nil {
		return fmt.Errorf("publish discount.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published discount.updated event",
		slog.String("discount_id", d.ID),
		slog.String("code", d.Code),
	)

	return nil
}

// PublishDiscountApplied publishes a discount.applied event summarizing one
// cart evaluation.
func (p *Producer) PublishDiscountApplied(ctx context.Context, cartID, scope string, result *domain.DiscountStackingResult) error {
	refs := make([]AppliedDiscountRef, 0, len(result.Applications))
	for _, app := range result.Applications {
		refs = append(refs, AppliedDiscountRef{
			DiscountID: app.DiscountID,
			Code:       app.CouponCode,
			Amount:     app.Amount,
			Resolution: app.Resolution,
		})
	}

	data := DiscountAppliedData{
		CartID:          cartID,
		Scope:           scope,
		BaseAmount:      result.BaseAmount,
		TotalDiscount:   result.TotalDiscount,
		RemainingAmount: result.RemainingAmount,
		Applications:    refs,
	}

	event, err := pkgkafka.NewEvent(TopicDiscountApplied, cartID, AggregateTypeDiscount, SourceDiscountService, data)
	if err != nil {
		return fmt.Errorf("create discount.applied event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicDiscountApplied, event); err != nil {
		return fmt.Errorf("publish discount.applied event: %w", err)
	}

	p.logger.DebugContext(ctx, "published discount.applied event",
		slog.String("cart_id", cartID),
		slog.Int64("total_discount", result.TotalDiscount),
	)

	return nil
}
