package application

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"commerce-payments/internal/orders/domain"
	"commerce-payments/internal/orders/ports"
	"commerce-payments/pkg/errors"
	"commerce-payments/pkg/logger"
)

// Gateway webhook event names
const (
	webhookEventPaymentCaptured = "payment.captured"
	webhookEventPaymentFailed   = "payment.failed"
)

// WebhookUseCase reconciles gateway-pushed payment events against the same
// attempt state machine that the client verify flow uses. Whichever path
// arrives first wins the capture; the other becomes a no-op.
type WebhookUseCase struct {
	repo      ports.OrderRepository
	gateway   ports.PaymentGateway
	stock     ports.StockReserver
	publisher ports.EventPublisher
	log       *logger.Logger
}

// NewWebhookUseCase creates a new webhook use case
func NewWebhookUseCase(
	repo ports.OrderRepository,
	gateway ports.PaymentGateway,
	stock ports.StockReserver,
	publisher ports.EventPublisher,
	log *logger.Logger,
) *WebhookUseCase {
	return &WebhookUseCase{
		repo:      repo,
		gateway:   gateway,
		stock:     stock,
		publisher: publisher,
		log:       log,
	}
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity map[string]interface{} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleEvent verifies the webhook signature and dispatches the event. A
// signature mismatch is the only caller-visible error; once the signature
// passes, reconciliation failures are logged and swallowed so the gateway
// does not retry indefinitely.
func (uc *WebhookUseCase) HandleEvent(ctx context.Context, body []byte, signature string) error {
	if !uc.gateway.VerifyWebhookSignature(body, signature) {
		return errors.NewValidation("invalid webhook signature", nil)
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		uc.log.WithContext(ctx).Warn("unparseable webhook body", zap.Error(err))
		return nil
	}

	entity := event.Payload.Payment.Entity

	switch event.Event {
	case webhookEventPaymentCaptured:
		uc.handleCaptured(ctx, entity)
	case webhookEventPaymentFailed:
		uc.handleFailed(ctx, entity)
	default:
		uc.log.WithContext(ctx).Debug("ignoring webhook event",
			zap.String("event", event.Event),
		)
	}

	return nil
}

// locateOrder finds the order holding the attempt the gateway payment entity
// refers to. The payment ID is only present on the attempt once the client
// verify flow recorded it, so the gateway order ID is the fallback.
func (uc *WebhookUseCase) locateOrder(ctx context.Context, entity map[string]interface{}) (*domain.Order, *domain.PaymentAttempt) {
	paymentID, _ := entity["id"].(string)
	gatewayOrderID, _ := entity["order_id"].(string)

	var order *domain.Order
	if paymentID != "" {
		order, _ = uc.repo.GetByGatewayPaymentID(ctx, paymentID)
	}
	if order == nil && gatewayOrderID != "" {
		order, _ = uc.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
	}
	if order == nil {
		uc.log.WithContext(ctx).Warn("webhook for unknown payment",
			zap.String("payment_id", paymentID),
			zap.String("razorpay_order_id", gatewayOrderID),
		)
		return nil, nil
	}

	attempt := order.AttemptByGatewayPaymentID(paymentID)
	if attempt == nil {
		attempt = order.AttemptByGatewayOrderID(gatewayOrderID)
	}
	if attempt == nil {
		uc.log.WithContext(ctx).Warn("webhook payment matches no attempt",
			zap.String("order_id", order.ID),
			zap.String("payment_id", paymentID),
		)
		return order, nil
	}
	return order, attempt
}

func (uc *WebhookUseCase) handleCaptured(ctx context.Context, entity map[string]interface{}) {
	order, attempt := uc.locateOrder(ctx, entity)
	if order == nil || attempt == nil {
		return
	}

	if order.IsPaid() {
		// Client verify already won the capture
		return
	}

	paymentID, _ := entity["id"].(string)

	updated, applied, err := uc.repo.UpdateAttempt(ctx, order.ID, attempt.ID, domain.AttemptUpdate{
		Status:            domain.PaymentStatusCaptured,
		RazorpayPaymentID: paymentID,
		GatewayResponse:   entity,
	}, "webhook")
	if err != nil {
		uc.log.WithContext(ctx).Error("webhook capture update failed",
			zap.Error(err),
			zap.String("order_id", order.ID),
		)
		return
	}
	if !applied {
		return
	}

	uc.log.WithContext(ctx).Info("payment captured via webhook",
		zap.String("order_id", updated.ID),
		zap.String("attempt_id", attempt.ID),
		zap.String("payment_id", paymentID),
	)

	// Pre-confirm reservation: the capture is only kept if all items can be
	// reserved. A failing reservation reverts the order to pending with the
	// attempt failed, leaving no partial decrement behind.
	if err := uc.stock.ReserveForOrder(ctx, updated); err != nil {
		uc.log.WithContext(ctx).Error("stock reservation failed, reverting capture",
			zap.Error(err),
			zap.String("order_id", updated.ID),
		)
		if revertErr := uc.repo.RevertCapture(ctx, updated.ID, attempt.ID, "Stock reservation failed: "+err.Error()); revertErr != nil {
			uc.log.WithContext(ctx).Error("failed to revert capture",
				zap.Error(revertErr),
				zap.String("order_id", updated.ID),
			)
		}
		return
	}

	if err := uc.repo.AppendTimeline(ctx, updated.ID, domain.NewTimelineEvent(
		domain.EventStockReduced,
		"Stock reduced for all items",
		"webhook",
		map[string]interface{}{"payment_id": paymentID},
	)); err != nil {
		uc.log.WithContext(ctx).Error("failed to append timeline event", zap.Error(err))
	}

	if uc.publisher != nil {
		if captured := updated.AttemptByID(attempt.ID); captured != nil {
			if err := uc.publisher.PublishPaymentCaptured(ctx, updated, captured); err != nil {
				uc.log.WithContext(ctx).Error("failed to publish payment captured event", zap.Error(err))
			}
		}
	}
}

func (uc *WebhookUseCase) handleFailed(ctx context.Context, entity map[string]interface{}) {
	order, attempt := uc.locateOrder(ctx, entity)
	if order == nil || attempt == nil {
		return
	}

	if attempt.Status == domain.PaymentStatusFailed || attempt.Status == domain.PaymentStatusCaptured {
		return
	}

	paymentID, _ := entity["id"].(string)
	reason, _ := entity["error_description"].(string)
	if reason == "" {
		reason = "Payment failed at gateway"
	}

	updated, applied, err := uc.repo.UpdateAttempt(ctx, order.ID, attempt.ID, domain.AttemptUpdate{
		Status:            domain.PaymentStatusFailed,
		RazorpayPaymentID: paymentID,
		GatewayResponse:   entity,
		ErrorReason:       reason,
	}, "webhook")
	if err != nil {
		uc.log.WithContext(ctx).Error("webhook failure update failed",
			zap.Error(err),
			zap.String("order_id", order.ID),
		)
		return
	}
	if !applied {
		return
	}

	uc.log.WithContext(ctx).Info("payment failed via webhook",
		zap.String("order_id", updated.ID),
		zap.String("attempt_id", attempt.ID),
		zap.String("reason", reason),
	)

	if uc.publisher != nil {
		if failed := updated.AttemptByID(attempt.ID); failed != nil {
			if err := uc.publisher.PublishPaymentFailed(ctx, updated, failed, reason); err != nil {
				uc.log.WithContext(ctx).Error("failed to publish payment failed event", zap.Error(err))
			}
		}
	}
}
