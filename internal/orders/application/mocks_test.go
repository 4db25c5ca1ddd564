package application

import (
	"context"
	"fmt"
	"time"

	"commerce-payments/internal/orders/domain"
	"commerce-payments/internal/orders/ports"
	"commerce-payments/pkg/errors"
)

// MockOrderRepository is an in-memory implementation of OrderRepository. It
// applies attempt transitions through the same domain mutator the real store
// persists, so the test double and the production write path cannot drift.
type MockOrderRepository struct {
	orders        map[string]*domain.Order
	reverts       []string
	registerError error
	updateError   error
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string]*domain.Order)}
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	m.orders[order.ID] = order
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, domain.NewOrderNotFound(id)
	}
	return order, nil
}

func (m *MockOrderRepository) GetByIDForUser(ctx context.Context, id, userID string) (*domain.Order, error) {
	order, ok := m.orders[id]
	if !ok || order.UserID != userID {
		return nil, domain.NewOrderNotFound(id)
	}
	return order, nil
}

func (m *MockOrderRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	var result []*domain.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			result = append(result, order)
		}
	}
	return result, nil
}

func (m *MockOrderRepository) GetByGatewayPaymentID(ctx context.Context, razorpayPaymentID string) (*domain.Order, error) {
	for _, order := range m.orders {
		if order.AttemptByGatewayPaymentID(razorpayPaymentID) != nil {
			return order, nil
		}
	}
	return nil, domain.NewOrderNotFound(razorpayPaymentID)
}

func (m *MockOrderRepository) GetByGatewayOrderID(ctx context.Context, razorpayOrderID string) (*domain.Order, error) {
	for _, order := range m.orders {
		if order.AttemptByGatewayOrderID(razorpayOrderID) != nil {
			return order, nil
		}
	}
	return nil, domain.NewOrderNotFound(razorpayOrderID)
}

func (m *MockOrderRepository) RegisterAttempt(ctx context.Context, order *domain.Order, attempt domain.PaymentAttempt) error {
	if m.registerError != nil {
		return m.registerError
	}
	m.orders[order.ID] = order
	return nil
}

func (m *MockOrderRepository) UpdateAttempt(ctx context.Context, orderID, attemptID string, up domain.AttemptUpdate, actor string) (*domain.Order, bool, error) {
	if m.updateError != nil {
		return nil, false, m.updateError
	}
	order, ok := m.orders[orderID]
	if !ok {
		return nil, false, domain.NewOrderNotFound(orderID)
	}
	applied, err := order.ApplyAttemptUpdate(attemptID, up, actor)
	if err != nil {
		return nil, false, err
	}
	return order, applied, nil
}

func (m *MockOrderRepository) RevertCapture(ctx context.Context, orderID, attemptID, reason string) error {
	m.reverts = append(m.reverts, attemptID)
	order, ok := m.orders[orderID]
	if !ok {
		return domain.NewOrderNotFound(orderID)
	}
	attempt := order.AttemptByID(attemptID)
	if attempt == nil || attempt.Status != domain.PaymentStatusCaptured {
		return nil
	}
	attempt.Status = domain.PaymentStatusFailed
	attempt.ErrorReason = reason
	attempt.CapturedAt = nil
	order.Payment.Status = domain.PaymentStatusFailed
	order.Status = domain.OrderStatusPending
	order.Pricing.AmountPaid = 0
	order.Pricing.AmountDue = order.Pricing.Total
	order.Timeline = append(order.Timeline,
		domain.NewTimelineEvent(domain.EventStockReductionFailed, reason, "webhook", nil),
		domain.NewTimelineEvent(domain.EventPaymentFailed, reason, "webhook", nil),
	)
	return nil
}

func (m *MockOrderRepository) AppendTimeline(ctx context.Context, orderID string, events ...domain.TimelineEvent) error {
	order, ok := m.orders[orderID]
	if !ok {
		return domain.NewOrderNotFound(orderID)
	}
	order.Timeline = append(order.Timeline, events...)
	return nil
}

func (m *MockOrderRepository) SetAutoInvoice(ctx context.Context, orderID string, invoice domain.InvoiceRecord, event domain.TimelineEvent) error {
	order, ok := m.orders[orderID]
	if !ok {
		return domain.NewOrderNotFound(orderID)
	}
	order.Invoices.AutoGenerated = &invoice
	order.Timeline = append(order.Timeline, event)
	return nil
}

// MockPaymentGateway is a mock implementation of PaymentGateway
type MockPaymentGateway struct {
	createCalls     int
	createError     error
	payments        map[string]*ports.GatewayPayment
	fetchError      error
	signatureValid  bool
	webhookSigValid bool
}

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{
		payments:        make(map[string]*ports.GatewayPayment),
		signatureValid:  true,
		webhookSigValid: true,
	}
}

func (m *MockPaymentGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]interface{}) (*ports.GatewayOrder, error) {
	if m.createError != nil {
		return nil, m.createError
	}
	m.createCalls++
	return &ports.GatewayOrder{
		ID:       fmt.Sprintf("rzp_order_%d", m.createCalls),
		Amount:   amountMinor,
		Currency: currency,
	}, nil
}

func (m *MockPaymentGateway) FetchPayment(ctx context.Context, paymentID string) (*ports.GatewayPayment, error) {
	if m.fetchError != nil {
		return nil, m.fetchError
	}
	payment, ok := m.payments[paymentID]
	if !ok {
		return nil, errors.NewNotFound("payment", paymentID)
	}
	return payment, nil
}

func (m *MockPaymentGateway) VerifyPaymentSignature(razorpayOrderID, razorpayPaymentID, signature string) bool {
	return m.signatureValid
}

func (m *MockPaymentGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return m.webhookSigValid
}

// MockStockReserver is a mock implementation of StockReserver
type MockStockReserver struct {
	calls int
	err   error
}

func (m *MockStockReserver) ReserveForOrder(ctx context.Context, order *domain.Order) error {
	if m.err != nil {
		return m.err
	}
	m.calls++
	return nil
}

// MockCartService is a mock implementation of CartService
type MockCartService struct {
	cleared []string
}

func (m *MockCartService) ClearCart(ctx context.Context, userID string) error {
	m.cleared = append(m.cleared, userID)
	return nil
}

// MockInvoiceGenerator is a mock implementation of InvoiceGenerator
type MockInvoiceGenerator struct {
	err error
}

func (m *MockInvoiceGenerator) Generate(ctx context.Context, order *domain.Order) (*domain.InvoiceRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.InvoiceRecord{
		Number:      "INV-" + order.OrderNumber,
		Status:      "generated",
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	created  int
	captured int
	failed   int
}

func (m *MockEventPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	m.created++
	return nil
}

func (m *MockEventPublisher) PublishPaymentCaptured(ctx context.Context, order *domain.Order, attempt *domain.PaymentAttempt) error {
	m.captured++
	return nil
}

func (m *MockEventPublisher) PublishPaymentFailed(ctx context.Context, order *domain.Order, attempt *domain.PaymentAttempt, reason string) error {
	m.failed++
	return nil
}

// MockProductCatalog prices lines from a fixed table
type MockProductCatalog struct {
	items map[string]domain.OrderItem
}

func NewMockProductCatalog() *MockProductCatalog {
	return &MockProductCatalog{items: map[string]domain.OrderItem{
		"prod-1": {
			ProductType:     domain.ProductTypeProduct,
			ProductID:       "prod-1",
			Name:            "Mechanical Keyboard",
			OriginalPrice:   2500,
			DiscountedPrice: 2000,
			TaxRate:         0.18,
		},
	}}
}

func (m *MockProductCatalog) Snapshot(ctx context.Context, req ports.SnapshotRequest) (*domain.OrderItem, error) {
	item, ok := m.items[req.ProductID]
	if !ok {
		return nil, errors.NewNotFound("product", req.ProductID)
	}
	item.Quantity = req.Quantity
	item.TaxAmount = item.DiscountedPrice * float64(req.Quantity) * item.TaxRate
	item.Total = item.DiscountedPrice*float64(req.Quantity) + item.TaxAmount
	return &item, nil
}
