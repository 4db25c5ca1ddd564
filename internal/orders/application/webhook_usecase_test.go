package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"commerce-payments/internal/orders/domain"
	"commerce-payments/pkg/errors"
	"commerce-payments/pkg/logger"
)

type webhookFixture struct {
	repo      *MockOrderRepository
	gateway   *MockPaymentGateway
	stock     *MockStockReserver
	publisher *MockEventPublisher
	useCase   *WebhookUseCase
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		repo:      NewMockOrderRepository(),
		gateway:   NewMockPaymentGateway(),
		stock:     &MockStockReserver{},
		publisher: &MockEventPublisher{},
	}
	log := logger.New("test", "debug")
	f.useCase = NewWebhookUseCase(f.repo, f.gateway, f.stock, f.publisher, log)
	return f
}

// seedOrderWithAttempt stores a pending 5000.00 INR order carrying one
// registered gateway attempt
func (f *webhookFixture) seedOrderWithAttempt(t *testing.T) (*domain.Order, *domain.PaymentAttempt) {
	t.Helper()
	items := []domain.OrderItem{{
		ProductType:     domain.ProductTypeProduct,
		ProductID:       "prod-1",
		Name:            "Graphics Card",
		Quantity:        1,
		OriginalPrice:   5000,
		DiscountedPrice: 5000,
		Total:           5000,
	}}
	pricing := domain.BuildPricing(items, 0, 0, "INR")
	order, err := domain.NewOrder("user-1", items, pricing, "razorpay", 24*time.Hour)
	if err != nil {
		t.Fatalf("failed to build order: %v", err)
	}
	attempt := domain.NewPaymentAttempt("rzp_order_1", 500000, "INR")
	order.RegisterAttempt(attempt, "user-1")
	if err := f.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("failed to store order: %v", err)
	}
	return order, order.AttemptByID(attempt.ID)
}

func webhookBody(t *testing.T, event string, entity map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{"entity": entity},
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal webhook body: %v", err)
	}
	return body
}

func TestHandleEvent_InvalidSignature(t *testing.T) {
	f := newWebhookFixture()
	f.gateway.webhookSigValid = false

	err := f.useCase.HandleEvent(context.Background(), []byte(`{"event":"payment.captured"}`), "bad")

	if !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleEvent_CapturedConfirmsOrder(t *testing.T) {
	// Arrange
	f := newWebhookFixture()
	order, attempt := f.seedOrderWithAttempt(t)
	body := webhookBody(t, "payment.captured", map[string]interface{}{
		"id":       "pay_hook_1",
		"order_id": "rzp_order_1",
		"amount":   float64(500000),
	})

	// Act
	err := f.useCase.HandleEvent(context.Background(), body, "sig")

	// Assert
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := f.repo.GetByID(context.Background(), order.ID)
	if stored.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected confirmed order, got %s", stored.Status)
	}
	got := stored.AttemptByID(attempt.ID)
	if got.Status != domain.PaymentStatusCaptured {
		t.Errorf("expected captured attempt, got %s", got.Status)
	}
	if got.RazorpayPaymentID != "pay_hook_1" {
		t.Errorf("expected webhook payment ID recorded, got %s", got.RazorpayPaymentID)
	}
	if f.stock.calls != 1 {
		t.Errorf("expected one reservation, got %d", f.stock.calls)
	}
	if !stored.HasTimelineEvent(domain.EventStockReduced) {
		t.Error("expected stock_reduced timeline event")
	}
	if f.publisher.captured != 1 {
		t.Errorf("expected one captured event, got %d", f.publisher.captured)
	}
}

func TestHandleEvent_CapturedAfterVerifyIsNoOp(t *testing.T) {
	// Arrange: the client verify path already won the capture
	f := newWebhookFixture()
	order, attempt := f.seedOrderWithAttempt(t)
	if _, _, err := f.repo.UpdateAttempt(context.Background(), order.ID, attempt.ID, domain.AttemptUpdate{
		Status:            domain.PaymentStatusCaptured,
		RazorpayPaymentID: "pay_hook_1",
	}, "user-1"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	body := webhookBody(t, "payment.captured", map[string]interface{}{
		"id":       "pay_hook_1",
		"order_id": "rzp_order_1",
	})

	// Act
	err := f.useCase.HandleEvent(context.Background(), body, "sig")

	// Assert: no second reservation, no second event
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.stock.calls != 0 {
		t.Errorf("redelivery must not reserve stock, got %d calls", f.stock.calls)
	}
	if f.publisher.captured != 0 {
		t.Errorf("redelivery must not republish, got %d events", f.publisher.captured)
	}
}

func TestHandleEvent_CapturedStockFailureReverts(t *testing.T) {
	// Arrange
	f := newWebhookFixture()
	order, attempt := f.seedOrderWithAttempt(t)
	f.stock.err = errors.NewInsufficientStock("insufficient stock for prod-1", nil)
	body := webhookBody(t, "payment.captured", map[string]interface{}{
		"id":       "pay_hook_1",
		"order_id": "rzp_order_1",
	})

	// Act
	err := f.useCase.HandleEvent(context.Background(), body, "sig")

	// Assert: capture rolled back, order payable again
	if err != nil {
		t.Fatalf("reconciliation failures must not surface, got %v", err)
	}
	if len(f.repo.reverts) != 1 || f.repo.reverts[0] != attempt.ID {
		t.Fatalf("expected one revert for the attempt, got %v", f.repo.reverts)
	}
	stored, _ := f.repo.GetByID(context.Background(), order.ID)
	if stored.Status != domain.OrderStatusPending {
		t.Errorf("expected order back to pending, got %s", stored.Status)
	}
	if got := stored.AttemptByID(attempt.ID); got.Status != domain.PaymentStatusFailed {
		t.Errorf("expected attempt failed after revert, got %s", got.Status)
	}
	if stored.Pricing.AmountDue != stored.Pricing.Total {
		t.Error("expected full amount due after revert")
	}
	if f.publisher.captured != 0 {
		t.Error("must not publish captured after a revert")
	}
}

func TestHandleEvent_FailedMarksAttempt(t *testing.T) {
	// Arrange
	f := newWebhookFixture()
	order, attempt := f.seedOrderWithAttempt(t)
	body := webhookBody(t, "payment.failed", map[string]interface{}{
		"id":                "pay_hook_1",
		"order_id":          "rzp_order_1",
		"error_description": "card declined",
	})

	// Act
	err := f.useCase.HandleEvent(context.Background(), body, "sig")

	// Assert
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := f.repo.GetByID(context.Background(), order.ID)
	got := stored.AttemptByID(attempt.ID)
	if got.Status != domain.PaymentStatusFailed {
		t.Errorf("expected failed attempt, got %s", got.Status)
	}
	if got.ErrorReason != "card declined" {
		t.Errorf("unexpected reason %q", got.ErrorReason)
	}
	if stored.Status != domain.OrderStatusPending {
		t.Errorf("failure must keep the order pending, got %s", stored.Status)
	}
	if f.publisher.failed != 1 {
		t.Errorf("expected one failed event, got %d", f.publisher.failed)
	}
}

func TestHandleEvent_FailedAfterCaptureIsIgnored(t *testing.T) {
	f := newWebhookFixture()
	order, attempt := f.seedOrderWithAttempt(t)
	if _, _, err := f.repo.UpdateAttempt(context.Background(), order.ID, attempt.ID, domain.AttemptUpdate{
		Status:            domain.PaymentStatusCaptured,
		RazorpayPaymentID: "pay_hook_1",
	}, "user-1"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	body := webhookBody(t, "payment.failed", map[string]interface{}{
		"id":       "pay_hook_1",
		"order_id": "rzp_order_1",
	})

	err := f.useCase.HandleEvent(context.Background(), body, "sig")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := f.repo.GetByID(context.Background(), order.ID)
	if stored.Status != domain.OrderStatusConfirmed {
		t.Errorf("late failure must not regress the order, got %s", stored.Status)
	}
	if f.publisher.failed != 0 {
		t.Errorf("must not publish failed for a captured attempt, got %d", f.publisher.failed)
	}
}

func TestHandleEvent_UnknownEventIgnored(t *testing.T) {
	f := newWebhookFixture()
	body := webhookBody(t, "refund.processed", map[string]interface{}{"id": "rfnd_1"})

	if err := f.useCase.HandleEvent(context.Background(), body, "sig"); err != nil {
		t.Fatalf("unknown events must be acknowledged, got %v", err)
	}
}

func TestHandleEvent_UnknownPaymentIgnored(t *testing.T) {
	f := newWebhookFixture()
	body := webhookBody(t, "payment.captured", map[string]interface{}{
		"id":       "pay_ghost",
		"order_id": "rzp_order_ghost",
	})

	if err := f.useCase.HandleEvent(context.Background(), body, "sig"); err != nil {
		t.Fatalf("unknown payments must be acknowledged, got %v", err)
	}
	if f.stock.calls != 0 {
		t.Error("unknown payment must not touch stock")
	}
}

func TestHandleEvent_MalformedBodyAcknowledged(t *testing.T) {
	f := newWebhookFixture()

	if err := f.useCase.HandleEvent(context.Background(), []byte("not json"), "sig"); err != nil {
		t.Fatalf("malformed bodies must be acknowledged once signed, got %v", err)
	}
}
