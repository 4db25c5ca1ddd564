package adapters

import (
	"context"

	"commerce-payments/internal/orders/domain"
	"commerce-payments/pkg/events"
	"commerce-payments/pkg/logger"
	"commerce-payments/pkg/rabbitmq"
)

// RabbitMQPublisher implements EventPublisher using RabbitMQ
type RabbitMQPublisher struct {
	publisher *rabbitmq.Publisher
	log       *logger.Logger
}

// NewRabbitMQPublisher creates a new RabbitMQ event publisher
func NewRabbitMQPublisher(publisher *rabbitmq.Publisher, log *logger.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		publisher: publisher,
		log:       log,
	}
}

// PublishOrderCreated publishes an order created event
func (p *RabbitMQPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	event := events.OrderCreatedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Pricing.Total,
		Currency:    order.Pricing.Currency,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt,
		TraceID:     logger.GetTraceID(ctx),
	}

	return p.publisher.Publish(ctx, events.RoutingKeyOrderCreated, event)
}

// PublishPaymentCaptured publishes a payment captured event
func (p *RabbitMQPublisher) PublishPaymentCaptured(ctx context.Context, order *domain.Order, attempt *domain.PaymentAttempt) error {
	event := events.PaymentCapturedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		AttemptID:   attempt.ID,
		PaymentID:   attempt.RazorpayPaymentID,
		Amount:      attempt.Amount,
		Currency:    attempt.Currency,
		TraceID:     logger.GetTraceID(ctx),
	}
	if attempt.CapturedAt != nil {
		event.CapturedAt = *attempt.CapturedAt
	}

	return p.publisher.Publish(ctx, events.RoutingKeyPaymentCaptured, event)
}

// PublishPaymentFailed publishes a payment failed event
func (p *RabbitMQPublisher) PublishPaymentFailed(ctx context.Context, order *domain.Order, attempt *domain.PaymentAttempt, reason string) error {
	event := events.PaymentFailedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		AttemptID:   attempt.ID,
		Reason:      reason,
		FailedAt:    order.UpdatedAt,
		TraceID:     logger.GetTraceID(ctx),
	}

	return p.publisher.Publish(ctx, events.RoutingKeyPaymentFailed, event)
}
