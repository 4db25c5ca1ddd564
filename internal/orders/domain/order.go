package domain

import (
	"crypto/rand"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// PaymentStatus represents the state of a payment attempt
type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusAttempted PaymentStatus = "attempted"
	PaymentStatusCaptured  PaymentStatus = "captured"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// ProductType distinguishes catalog items on an order line
type ProductType string

const (
	ProductTypeProduct    ProductType = "product"
	ProductTypePrebuiltPC ProductType = "prebuilt-pc"
)

// MaxPaymentAttempts is the hard cap on gateway attempts per order
const MaxPaymentAttempts = 5

// Timeline event names
const (
	EventOrderCreated            = "order_created"
	EventPaymentAttemptCreated   = "payment_attempt_created"
	EventPaymentAttempted        = "payment_attempted"
	EventPaymentCaptured         = "payment_captured"
	EventPaymentFailed           = "payment_failed"
	EventStockReduced            = "stock_reduced"
	EventStockReductionFailed    = "stock_reduction_failed"
	EventInvoiceGenerated        = "invoice_generated"
	EventInvoiceGenerationFailed = "invoice_generation_failed"
)

// VariantSnapshot identifies the variant a line item was priced against
type VariantSnapshot struct {
	VariantID  string            `bson:"variant_id"`
	Attributes map[string]string `bson:"attributes,omitempty"`
}

// OrderItem is an immutable price/quantity snapshot taken at order creation.
// Snapshots are never recalculated, so later catalog price changes cannot
// affect an existing order.
type OrderItem struct {
	ProductType     ProductType      `bson:"product_type"`
	ProductID       string           `bson:"product_id"`
	Name            string           `bson:"name"`
	Variant         *VariantSnapshot `bson:"variant,omitempty"`
	Quantity        int              `bson:"quantity"`
	OriginalPrice   float64          `bson:"original_price"`
	DiscountedPrice float64          `bson:"discounted_price"`
	TaxRate         float64          `bson:"tax_rate"`
	TaxAmount       float64          `bson:"tax_amount"`
	Total           float64          `bson:"total"`
}

// Pricing is the order-level money block
type Pricing struct {
	Subtotal   float64 `bson:"subtotal"`
	Shipping   float64 `bson:"shipping"`
	Tax        float64 `bson:"tax"`
	Discount   float64 `bson:"discount"`
	Total      float64 `bson:"total"`
	AmountPaid float64 `bson:"amount_paid"`
	AmountDue  float64 `bson:"amount_due"`
	Currency   string  `bson:"currency"`
}

// PaymentAttempt is one instance of the customer trying to pay for the order.
// At most one attempt per order ever reaches captured.
type PaymentAttempt struct {
	ID                string                 `bson:"_id"`
	RazorpayOrderID   string                 `bson:"razorpay_order_id"`
	RazorpayPaymentID string                 `bson:"razorpay_payment_id,omitempty"`
	RazorpaySignature string                 `bson:"razorpay_signature,omitempty"`
	Amount            int64                  `bson:"amount"`
	Currency          string                 `bson:"currency"`
	Status            PaymentStatus          `bson:"status"`
	SignatureVerified bool                   `bson:"signature_verified"`
	GatewayResponse   map[string]interface{} `bson:"gateway_response,omitempty"`
	ErrorReason       string                 `bson:"error_reason,omitempty"`
	CreatedAt         time.Time              `bson:"created_at"`
	CapturedAt        *time.Time             `bson:"captured_at,omitempty"`
}

// PaymentInfo is the order's embedded payment sub-document
type PaymentInfo struct {
	Method           string           `bson:"method"`
	Status           PaymentStatus    `bson:"status"`
	Attempts         []PaymentAttempt `bson:"attempts"`
	CurrentAttemptID string           `bson:"current_attempt_id,omitempty"`
	TotalAttempts    int              `bson:"total_attempts"`
	RetryAllowed     bool             `bson:"retry_allowed"`
}

// TimelineEvent is an immutable audit record of a domain occurrence.
// Timeline entries are append-only; they are the system of record for what
// happened to an order and when.
type TimelineEvent struct {
	ID        string                 `bson:"_id"`
	Event     string                 `bson:"event"`
	Message   string                 `bson:"message"`
	Metadata  map[string]interface{} `bson:"metadata,omitempty"`
	Actor     string                 `bson:"actor"`
	Timestamp time.Time              `bson:"timestamp"`
}

// InvoiceRecord describes a single invoice attached to an order
type InvoiceRecord struct {
	Number      string    `bson:"number"`
	Status      string    `bson:"status"` // generated | failed
	URL         string    `bson:"url,omitempty"`
	GeneratedAt time.Time `bson:"generated_at"`
}

// Invoices holds the two independent invoice slots
type Invoices struct {
	AutoGenerated *InvoiceRecord `bson:"auto_generated,omitempty"`
	AdminUploaded *InvoiceRecord `bson:"admin_uploaded,omitempty"`
}

// Order is the root aggregate
type Order struct {
	ID          string          `bson:"_id"`
	OrderNumber string          `bson:"order_number"`
	UserID      string          `bson:"user_id"`
	Items       []OrderItem     `bson:"items"`
	Pricing     Pricing         `bson:"pricing"`
	Payment     PaymentInfo     `bson:"payment"`
	Status      OrderStatus     `bson:"status"`
	Timeline    []TimelineEvent `bson:"timeline"`
	Invoices    Invoices        `bson:"invoices"`
	ExpiresAt   *time.Time      `bson:"expires_at,omitempty"`
	CreatedAt   time.Time       `bson:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at"`
}

const orderNumberAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewOrderNumber generates a human-readable order number of the form
// ORD-YYYYMMDD-XXXXX where the suffix is 5 random base36 characters.
func NewOrderNumber(now time.Time) string {
	buf := make([]byte, 5)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = orderNumberAlphabet[int(buf[i])%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), string(buf))
}

// NewTimelineEvent creates a timeline event with a generated ID
func NewTimelineEvent(event, message, actor string, metadata map[string]interface{}) TimelineEvent {
	return TimelineEvent{
		ID:        uuid.New().String(),
		Event:     event,
		Message:   message,
		Metadata:  metadata,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
	}
}

// BuildPricing derives the order pricing block from line item snapshots.
// At creation amountDue equals total and nothing has been paid yet.
func BuildPricing(items []OrderItem, shipping, discount float64, currency string) Pricing {
	var subtotal, tax float64
	for _, it := range items {
		subtotal += it.DiscountedPrice * float64(it.Quantity)
		tax += it.TaxAmount
	}
	total := subtotal + shipping + tax - discount
	return Pricing{
		Subtotal:   subtotal,
		Shipping:   shipping,
		Tax:        tax,
		Discount:   discount,
		Total:      total,
		AmountPaid: 0,
		AmountDue:  total,
		Currency:   currency,
	}
}

// NewOrder creates a pending order with the given item snapshots. Unpaid
// orders expire after ttl; the backing TTL index removes them.
func NewOrder(userID string, items []OrderItem, pricing Pricing, method string, ttl time.Duration) (*Order, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if pricing.Total <= 0 {
		return nil, ErrInvalidTotal
	}

	now := time.Now().UTC()
	expires := now.Add(ttl)

	order := &Order{
		ID:          uuid.New().String(),
		OrderNumber: NewOrderNumber(now),
		UserID:      userID,
		Items:       items,
		Pricing:     pricing,
		Payment: PaymentInfo{
			Method:       method,
			Status:       PaymentStatusCreated,
			Attempts:     []PaymentAttempt{},
			RetryAllowed: true,
		},
		Status: OrderStatusPending,
		Timeline: []TimelineEvent{
			NewTimelineEvent(EventOrderCreated, "Order placed", userID, map[string]interface{}{
				"total":    pricing.Total,
				"currency": pricing.Currency,
			}),
		},
		ExpiresAt: &expires,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return order, nil
}

// IsPaid reports whether any attempt has been captured
func (o *Order) IsPaid() bool {
	for i := range o.Payment.Attempts {
		if o.Payment.Attempts[i].Status == PaymentStatusCaptured {
			return true
		}
	}
	return o.Status == OrderStatusConfirmed
}

// CanRetryPayment reports whether a new gateway attempt may be created
func (o *Order) CanRetryPayment() bool {
	return o.Payment.RetryAllowed &&
		o.Payment.Status != PaymentStatusCaptured &&
		o.Status == OrderStatusPending &&
		o.Payment.TotalAttempts < MaxPaymentAttempts
}

// AttemptByID looks up an embedded attempt by its ID
func (o *Order) AttemptByID(attemptID string) *PaymentAttempt {
	for i := range o.Payment.Attempts {
		if o.Payment.Attempts[i].ID == attemptID {
			return &o.Payment.Attempts[i]
		}
	}
	return nil
}

// AttemptByGatewayOrderID looks up an embedded attempt by its Razorpay order ID
func (o *Order) AttemptByGatewayOrderID(razorpayOrderID string) *PaymentAttempt {
	for i := range o.Payment.Attempts {
		if o.Payment.Attempts[i].RazorpayOrderID == razorpayOrderID {
			return &o.Payment.Attempts[i]
		}
	}
	return nil
}

// AttemptByGatewayPaymentID looks up an embedded attempt by its Razorpay payment ID
func (o *Order) AttemptByGatewayPaymentID(razorpayPaymentID string) *PaymentAttempt {
	for i := range o.Payment.Attempts {
		if o.Payment.Attempts[i].RazorpayPaymentID == razorpayPaymentID {
			return &o.Payment.Attempts[i]
		}
	}
	return nil
}

// HasTimelineEvent reports whether the timeline contains the given event
func (o *Order) HasTimelineEvent(event string) bool {
	for i := range o.Timeline {
		if o.Timeline[i].Event == event {
			return true
		}
	}
	return false
}

// NewPaymentAttempt builds an embedded attempt for a freshly created gateway order
func NewPaymentAttempt(razorpayOrderID string, amount int64, currency string) PaymentAttempt {
	return PaymentAttempt{
		ID:              uuid.New().String(),
		RazorpayOrderID: razorpayOrderID,
		Amount:          amount,
		Currency:        currency,
		Status:          PaymentStatusCreated,
		CreatedAt:       time.Now().UTC(),
	}
}

// RegisterAttempt appends a new payment attempt, increments the attempt
// counter and forces retryAllowed off once the cap is reached. The caller
// must have checked CanRetryPayment first.
func (o *Order) RegisterAttempt(attempt PaymentAttempt, actor string) {
	o.Payment.Attempts = append(o.Payment.Attempts, attempt)
	o.Payment.TotalAttempts++
	o.Payment.CurrentAttemptID = attempt.ID
	o.Payment.Status = PaymentStatusCreated
	o.Payment.RetryAllowed = o.Payment.TotalAttempts < MaxPaymentAttempts
	o.Timeline = append(o.Timeline, NewTimelineEvent(
		EventPaymentAttemptCreated,
		fmt.Sprintf("Payment attempt %d created", o.Payment.TotalAttempts),
		actor,
		map[string]interface{}{
			"attempt_id":        attempt.ID,
			"razorpay_order_id": attempt.RazorpayOrderID,
		},
	))
	o.UpdatedAt = time.Now().UTC()
}

// AttemptUpdate is a partial update applied to a single payment attempt
type AttemptUpdate struct {
	Status            PaymentStatus
	RazorpayPaymentID string
	RazorpaySignature string
	SignatureVerified bool
	GatewayResponse   map[string]interface{}
	ErrorReason       string
}

// ApplyAttemptUpdate is the single state-machine mutator for payment
// attempts. It returns false without touching the order when the update is
// the idempotent double-capture no-op (the attempt is already captured).
//
// On a transition to captured the order-level status and pricing are derived:
// status becomes confirmed, amountPaid covers the total and expiresAt is
// cleared. A failed attempt never regresses a previously confirmed order.
// The top-level payment.status always mirrors the most recently touched
// attempt.
func (o *Order) ApplyAttemptUpdate(attemptID string, up AttemptUpdate, actor string) (bool, error) {
	attempt := o.AttemptByID(attemptID)
	if attempt == nil {
		return false, NewAttemptNotFound(attemptID)
	}

	if attempt.Status == PaymentStatusCaptured {
		// captured is terminal for an attempt
		return false, nil
	}

	now := time.Now().UTC()

	attempt.Status = up.Status
	if up.RazorpayPaymentID != "" {
		attempt.RazorpayPaymentID = up.RazorpayPaymentID
	}
	if up.RazorpaySignature != "" {
		attempt.RazorpaySignature = up.RazorpaySignature
	}
	if up.SignatureVerified {
		attempt.SignatureVerified = true
	}
	if up.GatewayResponse != nil {
		attempt.GatewayResponse = up.GatewayResponse
	}
	if up.ErrorReason != "" {
		attempt.ErrorReason = up.ErrorReason
	}

	switch up.Status {
	case PaymentStatusCaptured:
		attempt.CapturedAt = &now
		if o.Status != OrderStatusConfirmed {
			o.Status = OrderStatusConfirmed
			o.Pricing.AmountPaid = o.Pricing.Total
			o.Pricing.AmountDue = 0
			o.ExpiresAt = nil
		}
		o.Timeline = append(o.Timeline, NewTimelineEvent(
			EventPaymentCaptured,
			"Payment captured",
			actor,
			map[string]interface{}{
				"attempt_id": attemptID,
				"payment_id": attempt.RazorpayPaymentID,
				"amount":     attempt.Amount,
			},
		))
	case PaymentStatusAttempted:
		o.Timeline = append(o.Timeline, NewTimelineEvent(
			EventPaymentAttempted,
			"Payment attempted",
			actor,
			map[string]interface{}{"attempt_id": attemptID},
		))
	case PaymentStatusFailed:
		o.Timeline = append(o.Timeline, NewTimelineEvent(
			EventPaymentFailed,
			"Payment failed",
			actor,
			map[string]interface{}{
				"attempt_id": attemptID,
				"reason":     up.ErrorReason,
			},
		))
	}

	o.Payment.Status = up.Status
	o.UpdatedAt = now

	return true, nil
}

// ToMinorUnits converts a major-unit amount to gateway minor units
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
