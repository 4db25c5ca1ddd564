package events

import "time"

// Exchange names
const (
	ExchangePayments = "payments.events"
)

// Routing keys
const (
	RoutingKeyOrderCreated    = "order.created"
	RoutingKeyPaymentCaptured = "payment.captured"
	RoutingKeyPaymentFailed   = "payment.failed"
)

// OrderCreatedEvent is published when a new order is placed
type OrderCreatedEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Total       float64   `json:"total"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// PaymentCapturedEvent is published when a payment attempt reaches captured
type PaymentCapturedEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	AttemptID   string    `json:"attempt_id"`
	PaymentID   string    `json:"payment_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	CapturedAt  time.Time `json:"captured_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// PaymentFailedEvent is published when a payment attempt fails
type PaymentFailedEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	AttemptID   string    `json:"attempt_id"`
	Reason      string    `json:"reason"`
	FailedAt    time.Time `json:"failed_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
