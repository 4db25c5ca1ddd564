package ports

import (
	"context"

	"commerce-payments/internal/orders/domain"
)

// OrderRepository defines the interface for order persistence.
//
// The store must support conditional multi-field updates so that attempt
// transitions can be applied as a single compare-and-swap write; two writers
// racing on the same attempt must never both observe a successful capture.
type OrderRepository interface {
	// Create inserts a new order
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by ID
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByIDForUser retrieves an order scoped to its owner
	GetByIDForUser(ctx context.Context, id, userID string) (*domain.Order, error)

	// GetByUserID retrieves all orders belonging to a user
	GetByUserID(ctx context.Context, userID string) ([]*domain.Order, error)

	// GetByGatewayPaymentID retrieves the order holding the attempt with the
	// given Razorpay payment ID
	GetByGatewayPaymentID(ctx context.Context, razorpayPaymentID string) (*domain.Order, error)

	// GetByGatewayOrderID retrieves the order holding the attempt with the
	// given Razorpay order ID
	GetByGatewayOrderID(ctx context.Context, razorpayOrderID string) (*domain.Order, error)

	// RegisterAttempt persists a freshly registered payment attempt. The
	// order must already carry the attempt in memory (domain.RegisterAttempt);
	// the write is conditional on the order still being pending with the
	// previous attempt count, and fails with a conflict otherwise.
	RegisterAttempt(ctx context.Context, order *domain.Order, attempt domain.PaymentAttempt) error

	// UpdateAttempt applies the payment attempt state machine as one
	// conditional write. It returns the resulting order and whether the
	// update was applied; an already-captured attempt makes the call an
	// idempotent no-op (applied == false, no error).
	UpdateAttempt(ctx context.Context, orderID, attemptID string, up domain.AttemptUpdate, actor string) (*domain.Order, bool, error)

	// RevertCapture rolls a captured attempt back to failed and returns the
	// order to pending with the full amount due again. Used when the
	// pre-confirm stock reservation on the webhook path fails after the
	// capture write won. A no-op when the attempt is not captured.
	RevertCapture(ctx context.Context, orderID, attemptID, reason string) error

	// AppendTimeline appends audit events to the order timeline
	AppendTimeline(ctx context.Context, orderID string, events ...domain.TimelineEvent) error

	// SetAutoInvoice records the auto-generated invoice slot and appends the
	// matching timeline event
	SetAutoInvoice(ctx context.Context, orderID string, invoice domain.InvoiceRecord, event domain.TimelineEvent) error
}

// GatewayOrder is the gateway's payment-intent order
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
}

// GatewayPayment is the gateway's authoritative payment record
type GatewayPayment struct {
	ID       string
	OrderID  string
	Amount   int64
	Currency string
	Status   string
	Method   string
	Raw      map[string]interface{}
}

// PaymentGateway defines the interface to the payment provider. The client
// is constructed once and injected; nothing in the core reaches for global
// gateway state.
type PaymentGateway interface {
	// CreateOrder creates a payment-intent order in minor units with
	// auto-capture enabled
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]interface{}) (*GatewayOrder, error)

	// FetchPayment fetches the authoritative payment record by payment ID
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)

	// VerifyPaymentSignature checks the checkout callback signature
	// HMAC-SHA256(order_id + "|" + payment_id, key_secret)
	VerifyPaymentSignature(razorpayOrderID, razorpayPaymentID, signature string) bool

	// VerifyWebhookSignature checks the webhook body signature
	// HMAC-SHA256(raw_body, webhook_secret)
	VerifyWebhookSignature(body []byte, signature string) bool
}

// StockReserver reserves inventory for a paid order. The reservation is
// all-or-nothing: any line with insufficient stock aborts the whole pass
// with no partial decrement left behind.
type StockReserver interface {
	ReserveForOrder(ctx context.Context, order *domain.Order) error
}

// SnapshotRequest asks the catalog for a priced line item
type SnapshotRequest struct {
	ProductType domain.ProductType
	ProductID   string
	VariantID   string
	Quantity    int
}

// ProductCatalog prices order lines against the live catalog at checkout time
type ProductCatalog interface {
	Snapshot(ctx context.Context, req SnapshotRequest) (*domain.OrderItem, error)
}

// CartService clears the payer's cart after capture
type CartService interface {
	ClearCart(ctx context.Context, userID string) error
}

// InvoiceGenerator produces the auto-generated invoice for a paid order
type InvoiceGenerator interface {
	Generate(ctx context.Context, order *domain.Order) (*domain.InvoiceRecord, error)
}

// NotificationDispatcher delivers order-paid notifications to the external
// automation webhook; delivery is at-least-once and must be safely re-callable
type NotificationDispatcher interface {
	OrderPaid(ctx context.Context, order *domain.Order, attempt *domain.PaymentAttempt) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// PublishOrderCreated publishes an order created event
	PublishOrderCreated(ctx context.Context, order *domain.Order) error

	// PublishPaymentCaptured publishes a payment captured event
	PublishPaymentCaptured(ctx context.Context, order *domain.Order, attempt *domain.PaymentAttempt) error

	// PublishPaymentFailed publishes a payment failed event
	PublishPaymentFailed(ctx context.Context, order *domain.Order, attempt *domain.PaymentAttempt, reason string) error
}
