package application

import (
	"context"
	"testing"
	"time"

	"commerce-payments/internal/orders/domain"
	"commerce-payments/pkg/errors"
	"commerce-payments/pkg/logger"
)

func newOrderUseCase() (*OrderUseCase, *MockOrderRepository, *MockEventPublisher) {
	repo := NewMockOrderRepository()
	publisher := &MockEventPublisher{}
	catalog := NewMockProductCatalog()
	log := logger.New("test", "debug")
	return NewOrderUseCase(repo, catalog, publisher, log, 24*time.Hour), repo, publisher
}

func TestCreateOrder_Success(t *testing.T) {
	// Arrange
	useCase, repo, publisher := newOrderUseCase()
	input := CreateOrderInput{
		Items: []OrderItemInput{{
			ProductType: domain.ProductTypeProduct,
			ProductID:   "prod-1",
			Quantity:    2,
		}},
		Shipping: 100,
	}

	// Act
	order, err := useCase.CreateOrder(context.Background(), "user-1", input)

	// Assert
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending order, got %s", order.Status)
	}
	if order.Pricing.Currency != "INR" {
		t.Errorf("expected INR default, got %s", order.Pricing.Currency)
	}
	if order.Payment.Method != "razorpay" {
		t.Errorf("expected razorpay default, got %s", order.Payment.Method)
	}
	// 2 x 2000 + 18% tax + 100 shipping
	if order.Pricing.Total != 4820 {
		t.Errorf("expected total 4820, got %.2f", order.Pricing.Total)
	}
	if _, err := repo.GetByID(context.Background(), order.ID); err != nil {
		t.Errorf("order not persisted: %v", err)
	}
	if publisher.created != 1 {
		t.Errorf("expected one order created event, got %d", publisher.created)
	}
}

func TestCreateOrder_NoItems(t *testing.T) {
	useCase, _, _ := newOrderUseCase()

	_, err := useCase.CreateOrder(context.Background(), "user-1", CreateOrderInput{})

	if !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	useCase, _, publisher := newOrderUseCase()
	input := CreateOrderInput{
		Items: []OrderItemInput{{
			ProductType: domain.ProductTypeProduct,
			ProductID:   "prod-missing",
			Quantity:    1,
		}},
	}

	_, err := useCase.CreateOrder(context.Background(), "user-1", input)

	if !errors.Is(err, errors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if publisher.created != 0 {
		t.Error("no event for a rejected order")
	}
}

func TestGetOrder_OwnerScoped(t *testing.T) {
	useCase, _, _ := newOrderUseCase()
	order, err := useCase.CreateOrder(context.Background(), "user-1", CreateOrderInput{
		Items: []OrderItemInput{{ProductType: domain.ProductTypeProduct, ProductID: "prod-1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	if _, err := useCase.GetOrder(context.Background(), "user-1", order.ID); err != nil {
		t.Errorf("owner read failed: %v", err)
	}
	if _, err := useCase.GetOrder(context.Background(), "user-2", order.ID); !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("expected not found for foreign reads, got %v", err)
	}
}

func TestListOrders(t *testing.T) {
	useCase, _, _ := newOrderUseCase()
	for i := 0; i < 3; i++ {
		if _, err := useCase.CreateOrder(context.Background(), "user-1", CreateOrderInput{
			Items: []OrderItemInput{{ProductType: domain.ProductTypeProduct, ProductID: "prod-1", Quantity: 1}},
		}); err != nil {
			t.Fatalf("failed to create order: %v", err)
		}
	}

	orders, err := useCase.ListOrders(context.Background(), "user-1")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 3 {
		t.Errorf("expected 3 orders, got %d", len(orders))
	}
}
