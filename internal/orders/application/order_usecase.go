package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"commerce-payments/internal/orders/domain"
	"commerce-payments/internal/orders/ports"
	"commerce-payments/pkg/logger"
)

// OrderUseCase handles order placement and owner-scoped reads
type OrderUseCase struct {
	repo      ports.OrderRepository
	catalog   ports.ProductCatalog
	publisher ports.EventPublisher
	log       *logger.Logger
	orderTTL  time.Duration
}

// NewOrderUseCase creates a new order use case
func NewOrderUseCase(
	repo ports.OrderRepository,
	catalog ports.ProductCatalog,
	publisher ports.EventPublisher,
	log *logger.Logger,
	orderTTL time.Duration,
) *OrderUseCase {
	return &OrderUseCase{
		repo:      repo,
		catalog:   catalog,
		publisher: publisher,
		log:       log,
		orderTTL:  orderTTL,
	}
}

// OrderItemInput is one requested line at checkout
type OrderItemInput struct {
	ProductType domain.ProductType
	ProductID   string
	VariantID   string
	Quantity    int
}

// CreateOrderInput represents the input for placing an order
type CreateOrderInput struct {
	Items    []OrderItemInput
	Method   string
	Currency string
	Shipping float64
	Discount float64
}

// CreateOrder places a new pending order. Every line is priced against the
// live catalog exactly once; the resulting snapshots are immutable.
func (uc *OrderUseCase) CreateOrder(ctx context.Context, userID string, input CreateOrderInput) (*domain.Order, error) {
	if len(input.Items) == 0 {
		return nil, domain.ErrNoItems
	}

	currency := input.Currency
	if currency == "" {
		currency = "INR"
	}
	method := input.Method
	if method == "" {
		method = "razorpay"
	}

	items := make([]domain.OrderItem, 0, len(input.Items))
	for _, in := range input.Items {
		item, err := uc.catalog.Snapshot(ctx, ports.SnapshotRequest{
			ProductType: in.ProductType,
			ProductID:   in.ProductID,
			VariantID:   in.VariantID,
			Quantity:    in.Quantity,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	pricing := domain.BuildPricing(items, input.Shipping, input.Discount, currency)

	order, err := domain.NewOrder(userID, items, pricing, method, uc.orderTTL)
	if err != nil {
		return nil, err
	}

	if err := uc.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	// Publish event (best effort, don't fail the order on publish errors)
	if uc.publisher != nil {
		if err := uc.publisher.PublishOrderCreated(ctx, order); err != nil {
			uc.log.WithContext(ctx).Error("failed to publish order created event",
				zap.Error(err),
				zap.String("order_id", order.ID),
			)
		}
	}

	uc.log.WithContext(ctx).Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID),
		zap.Float64("total", order.Pricing.Total),
	)

	return order, nil
}

// GetOrder retrieves an order scoped to its owner
func (uc *OrderUseCase) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	return uc.repo.GetByIDForUser(ctx, orderID, userID)
}

// ListOrders retrieves all orders belonging to the user
func (uc *OrderUseCase) ListOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	return uc.repo.GetByUserID(ctx, userID)
}
