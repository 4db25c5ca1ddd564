package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"commerce-payments/internal/orders/domain"
)

// AutomationNotifier posts order-paid notifications to an external
// automation webhook (n8n-style). Delivery is best effort and bounded by
// the client timeout; callers treat failures as log-only.
type AutomationNotifier struct {
	url    string
	client *http.Client
}

// NewAutomationNotifier creates a new automation webhook notifier
func NewAutomationNotifier(url string, timeout time.Duration) *AutomationNotifier {
	return &AutomationNotifier{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type orderPaidPayload struct {
	Event       string  `json:"event"`
	OrderID     string  `json:"order_id"`
	OrderNumber string  `json:"order_number"`
	UserID      string  `json:"user_id"`
	PaymentID   string  `json:"payment_id"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
	Total       float64 `json:"total"`
	Items       int     `json:"items"`
}

// OrderPaid delivers the order-paid notification
func (n *AutomationNotifier) OrderPaid(ctx context.Context, order *domain.Order, attempt *domain.PaymentAttempt) error {
	if n.url == "" {
		return nil
	}

	payload := orderPaidPayload{
		Event:       "order.paid",
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Pricing.Total,
		Items:       len(order.Items),
	}
	if attempt != nil {
		payload.PaymentID = attempt.RazorpayPaymentID
		payload.Amount = attempt.Amount
		payload.Currency = attempt.Currency
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("automation webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("automation webhook returned status %d", resp.StatusCode)
	}
	return nil
}
