package application

import (
	"context"

	"go.uber.org/zap"

	"commerce-payments/internal/inventory/domain"
	"commerce-payments/internal/inventory/ports"
	ordersdomain "commerce-payments/internal/orders/domain"
	ordersports "commerce-payments/internal/orders/ports"
	"commerce-payments/pkg/errors"
	"commerce-payments/pkg/logger"
)

// StockUseCase exposes the inventory store to the order flow: pricing
// snapshots at checkout and atomic reservations after capture.
type StockUseCase struct {
	repo ports.InventoryRepository
	log  *logger.Logger
}

// NewStockUseCase creates a new stock use case
func NewStockUseCase(repo ports.InventoryRepository, log *logger.Logger) *StockUseCase {
	return &StockUseCase{repo: repo, log: log}
}

// ReserveForOrder reserves stock for every line item of the order in one
// all-or-nothing pass
func (uc *StockUseCase) ReserveForOrder(ctx context.Context, order *ordersdomain.Order) error {
	lines := make([]domain.ReservationLine, 0, len(order.Items))
	for _, item := range order.Items {
		line := domain.ReservationLine{
			ProductID: item.ProductID,
			Prebuilt:  item.ProductType == ordersdomain.ProductTypePrebuiltPC,
			Quantity:  item.Quantity,
		}
		if item.Variant != nil {
			line.VariantID = item.Variant.VariantID
		}
		lines = append(lines, line)
	}

	if err := uc.repo.Reserve(ctx, lines); err != nil {
		uc.log.WithContext(ctx).Warn("stock reservation failed",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return err
	}

	uc.log.WithContext(ctx).Info("stock reserved",
		zap.String("order_id", order.ID),
		zap.Int("lines", len(lines)),
	)
	return nil
}

// Snapshot prices one order line against the live catalog. The returned
// item is the immutable snapshot stored on the order.
func (uc *StockUseCase) Snapshot(ctx context.Context, req ordersports.SnapshotRequest) (*ordersdomain.OrderItem, error) {
	if req.Quantity <= 0 {
		return nil, errors.NewValidation("quantity must be greater than 0", nil)
	}

	product, err := uc.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, errors.NewConflict("product is not available: " + product.Name)
	}

	item := &ordersdomain.OrderItem{
		ProductType:     req.ProductType,
		ProductID:       product.ID,
		Name:            product.Name,
		Quantity:        req.Quantity,
		OriginalPrice:   product.Price,
		DiscountedPrice: product.DiscountPrice,
		TaxRate:         product.TaxRate,
	}

	available := product.StockQuantity
	if req.VariantID != "" {
		variant, err := uc.repo.GetVariant(ctx, req.ProductID, req.VariantID)
		if err != nil {
			return nil, err
		}
		if !variant.IsActive {
			return nil, errors.NewConflict("variant is not available: " + product.Name)
		}
		item.Variant = &ordersdomain.VariantSnapshot{
			VariantID:  variant.ID,
			Attributes: variant.Attributes,
		}
		item.OriginalPrice = variant.Price
		item.DiscountedPrice = variant.DiscountPrice
		available = variant.StockQuantity
	}

	if available < req.Quantity {
		return nil, errors.NewInsufficientStock("insufficient stock for "+product.Name, map[string]interface{}{
			"product_id": product.ID,
			"available":  available,
			"requested":  req.Quantity,
		})
	}

	if item.DiscountedPrice == 0 {
		item.DiscountedPrice = item.OriginalPrice
	}
	subtotal := item.DiscountedPrice * float64(req.Quantity)
	item.TaxAmount = subtotal * item.TaxRate
	item.Total = subtotal + item.TaxAmount

	return item, nil
}
