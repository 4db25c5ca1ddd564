package ports

import (
	"context"

	"commerce-payments/internal/inventory/domain"
)

// InventoryRepository defines the interface for inventory persistence.
//
// Reserve must run all lines inside one transaction: a conditional
// decrement (`stock = stock - qty WHERE stock >= qty`) per line, aborting
// the whole transaction on the first line whose condition matches no rows.
// Stock never goes negative and no partial reservation is left committed.
type InventoryRepository interface {
	// Reserve atomically decrements stock for all lines or none
	Reserve(ctx context.Context, lines []domain.ReservationLine) error

	// GetProduct retrieves a product by ID
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// GetVariant retrieves a product variant
	GetVariant(ctx context.Context, productID, variantID string) (*domain.Variant, error)
}
