package adapters

import (
	"context"
	"time"

	"commerce-payments/internal/orders/domain"
)

// InvoiceService produces the auto-generated invoice record for a paid
// order. The invoice number is derived from the order number so regenerating
// for the same order is idempotent.
type InvoiceService struct{}

// NewInvoiceService creates a new invoice service
func NewInvoiceService() *InvoiceService {
	return &InvoiceService{}
}

// Generate builds the invoice record for the order
func (s *InvoiceService) Generate(ctx context.Context, order *domain.Order) (*domain.InvoiceRecord, error) {
	return &domain.InvoiceRecord{
		Number:      "INV-" + order.OrderNumber,
		Status:      "generated",
		GeneratedAt: time.Now().UTC(),
	}, nil
}
