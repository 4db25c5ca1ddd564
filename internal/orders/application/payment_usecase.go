package application

import (
	"context"

	"go.uber.org/zap"

	"commerce-payments/internal/orders/domain"
	"commerce-payments/internal/orders/ports"
	"commerce-payments/pkg/errors"
	"commerce-payments/pkg/logger"
)

// PaymentUseCase drives the gateway payment protocol: attempt creation,
// verification and the capture side effects.
type PaymentUseCase struct {
	repo      ports.OrderRepository
	gateway   ports.PaymentGateway
	stock     ports.StockReserver
	carts     ports.CartService
	invoices  ports.InvoiceGenerator
	notifier  ports.NotificationDispatcher
	publisher ports.EventPublisher
	log       *logger.Logger
}

// NewPaymentUseCase creates a new payment use case
func NewPaymentUseCase(
	repo ports.OrderRepository,
	gateway ports.PaymentGateway,
	stock ports.StockReserver,
	carts ports.CartService,
	invoices ports.InvoiceGenerator,
	notifier ports.NotificationDispatcher,
	publisher ports.EventPublisher,
	log *logger.Logger,
) *PaymentUseCase {
	return &PaymentUseCase{
		repo:      repo,
		gateway:   gateway,
		stock:     stock,
		carts:     carts,
		invoices:  invoices,
		notifier:  notifier,
		publisher: publisher,
		log:       log,
	}
}

// CreateGatewayOrderOutput is returned to the client for use with the
// gateway's checkout widget
type CreateGatewayOrderOutput struct {
	AlreadyPaid     bool
	RazorpayOrderID string
	Amount          int64
	Currency        string
	OrderID         string
	OrderNumber     string
	AttemptID       string
}

// CreateGatewayOrder creates a payment-intent order at the gateway and
// registers a new payment attempt on the order.
func (uc *PaymentUseCase) CreateGatewayOrder(ctx context.Context, userID, orderID string) (*CreateGatewayOrderOutput, error) {
	order, err := uc.repo.GetByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	// Already paid is a success for the client flow, not an error
	if order.IsPaid() {
		return &CreateGatewayOrderOutput{
			AlreadyPaid: true,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
		}, nil
	}

	if !order.CanRetryPayment() {
		return nil, domain.ErrRetryExhausted
	}

	if order.Pricing.Total <= 0 {
		return nil, domain.ErrInvalidTotal
	}

	gatewayOrder, err := uc.gateway.CreateOrder(ctx,
		domain.ToMinorUnits(order.Pricing.Total),
		order.Pricing.Currency,
		order.OrderNumber,
		map[string]interface{}{
			"order_id": order.ID,
			"user_id":  order.UserID,
		},
	)
	if err != nil {
		return nil, err
	}

	attempt := domain.NewPaymentAttempt(gatewayOrder.ID, gatewayOrder.Amount, gatewayOrder.Currency)
	order.RegisterAttempt(attempt, userID)

	if err := uc.repo.RegisterAttempt(ctx, order, attempt); err != nil {
		return nil, err
	}

	uc.log.WithContext(ctx).Info("payment attempt created",
		zap.String("order_id", order.ID),
		zap.String("attempt_id", attempt.ID),
		zap.String("razorpay_order_id", gatewayOrder.ID),
		zap.Int("total_attempts", order.Payment.TotalAttempts),
	)

	return &CreateGatewayOrderOutput{
		RazorpayOrderID: gatewayOrder.ID,
		Amount:          gatewayOrder.Amount,
		Currency:        gatewayOrder.Currency,
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		AttemptID:       attempt.ID,
	}, nil
}

// VerifyPaymentInput is the client-submitted gateway callback
type VerifyPaymentInput struct {
	OrderID           string
	AttemptID         string
	RazorpayOrderID   string
	RazorpayPaymentID string
	RazorpaySignature string
}

// VerifyPaymentOutput reports the verification result
type VerifyPaymentOutput struct {
	AlreadyVerified bool
	OrderID         string
	OrderNumber     string
	PaymentID       string
	Amount          int64
	Status          domain.OrderStatus
	StockReduced    bool
}

// VerifyPayment validates a client-submitted payment against the gateway and
// commits the capture. The checks run in strict order and short-circuit on
// the first failure: signature, then the authoritative gateway fetch, then
// amount integrity, then capture status. Only after all of them pass is the
// capture committed, as one conditional write. Side effects after the commit
// are fault-isolated; a failing side effect never makes a paid order look
// unpaid.
func (uc *PaymentUseCase) VerifyPayment(ctx context.Context, userID string, in VerifyPaymentInput) (*VerifyPaymentOutput, error) {
	if in.RazorpayOrderID == "" || in.RazorpayPaymentID == "" || in.RazorpaySignature == "" {
		return nil, errors.NewValidation("missing payment verification fields", nil)
	}

	order, err := uc.repo.GetByIDForUser(ctx, in.OrderID, userID)
	if err != nil {
		return nil, err
	}

	// Idempotency: a re-delivered callback for a fully processed order is a
	// success, with zero additional side effects.
	if order.IsPaid() && order.HasTimelineEvent(domain.EventStockReduced) {
		return uc.alreadyVerifiedOutput(order), nil
	}

	attempt := order.AttemptByGatewayOrderID(in.RazorpayOrderID)
	if attempt == nil && in.AttemptID != "" {
		attempt = order.AttemptByID(in.AttemptID)
	}
	if attempt == nil {
		return nil, domain.NewAttemptNotFound(in.RazorpayOrderID)
	}

	// Signature first: nothing the client reports is trusted beyond it, and
	// a forged request must not cost a gateway round trip.
	if !uc.gateway.VerifyPaymentSignature(in.RazorpayOrderID, in.RazorpayPaymentID, in.RazorpaySignature) {
		uc.failAttempt(ctx, order, attempt.ID, in, "Signature verification failed")
		return nil, errors.NewValidation("Payment signature verification failed", nil)
	}

	// Authoritative fetch: only the gateway's own record of the payment
	// counts from here on.
	payment, err := uc.gateway.FetchPayment(ctx, in.RazorpayPaymentID)
	if err != nil {
		// Retryable; the attempt is not failed for a gateway outage
		return nil, err
	}

	if domain.ToMinorUnits(order.Pricing.Total) != payment.Amount {
		uc.failAttempt(ctx, order, attempt.ID, in, "Amount mismatch")
		return nil, errors.NewValidation("Payment amount mismatch", nil)
	}

	if payment.Status != "captured" {
		uc.failAttempt(ctx, order, attempt.ID, in, "Payment not captured by gateway")
		return nil, errors.NewValidation("Payment not captured", nil)
	}

	updated, applied, err := uc.repo.UpdateAttempt(ctx, order.ID, attempt.ID, domain.AttemptUpdate{
		Status:            domain.PaymentStatusCaptured,
		RazorpayPaymentID: in.RazorpayPaymentID,
		RazorpaySignature: in.RazorpaySignature,
		SignatureVerified: true,
		GatewayResponse:   payment.Raw,
	}, userID)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent webhook delivery won the capture; its side effects
		// already ran or are running.
		return uc.alreadyVerifiedOutput(updated), nil
	}

	uc.log.WithContext(ctx).Info("payment captured",
		zap.String("order_id", updated.ID),
		zap.String("attempt_id", attempt.ID),
		zap.String("payment_id", in.RazorpayPaymentID),
		zap.Int64("amount", payment.Amount),
	)

	stockReduced := uc.runCaptureSideEffects(ctx, updated, attempt.ID, in.RazorpayPaymentID)

	return &VerifyPaymentOutput{
		OrderID:      updated.ID,
		OrderNumber:  updated.OrderNumber,
		PaymentID:    in.RazorpayPaymentID,
		Amount:       payment.Amount,
		Status:       updated.Status,
		StockReduced: stockReduced,
	}, nil
}

func (uc *PaymentUseCase) alreadyVerifiedOutput(order *domain.Order) *VerifyPaymentOutput {
	out := &VerifyPaymentOutput{
		AlreadyVerified: true,
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		StockReduced:    order.HasTimelineEvent(domain.EventStockReduced),
	}
	if attempt := order.AttemptByID(order.Payment.CurrentAttemptID); attempt != nil {
		out.PaymentID = attempt.RazorpayPaymentID
		out.Amount = attempt.Amount
	}
	return out
}

// failAttempt records an integrity failure on the attempt before it is
// surfaced, so the audit trail shows why the attempt failed even if the
// caller never retries.
func (uc *PaymentUseCase) failAttempt(ctx context.Context, order *domain.Order, attemptID string, in VerifyPaymentInput, reason string) {
	updated, _, err := uc.repo.UpdateAttempt(ctx, order.ID, attemptID, domain.AttemptUpdate{
		Status:            domain.PaymentStatusFailed,
		RazorpayPaymentID: in.RazorpayPaymentID,
		RazorpaySignature: in.RazorpaySignature,
		ErrorReason:       reason,
	}, order.UserID)
	if err != nil {
		uc.log.WithContext(ctx).Error("failed to record attempt failure",
			zap.Error(err),
			zap.String("order_id", order.ID),
			zap.String("attempt_id", attemptID),
		)
		return
	}

	if uc.publisher != nil {
		if attempt := updated.AttemptByID(attemptID); attempt != nil {
			if err := uc.publisher.PublishPaymentFailed(ctx, updated, attempt, reason); err != nil {
				uc.log.WithContext(ctx).Error("failed to publish payment failed event", zap.Error(err))
			}
		}
	}
}

// runCaptureSideEffects executes the post-commit collaborator calls. Each is
// wrapped in its own failure boundary: the payment is already durably
// committed and stays committed whatever happens here.
func (uc *PaymentUseCase) runCaptureSideEffects(ctx context.Context, order *domain.Order, attemptID, paymentID string) bool {
	log := uc.log.WithContext(ctx)

	// Stock reduction
	stockReduced := false
	if err := uc.stock.ReserveForOrder(ctx, order); err != nil {
		log.Error("stock reduction failed after capture",
			zap.Error(err),
			zap.String("order_id", order.ID),
		)
		uc.appendTimeline(ctx, order.ID, domain.NewTimelineEvent(
			domain.EventStockReductionFailed,
			"Stock reduction failed: "+err.Error(),
			"system",
			map[string]interface{}{"payment_id": paymentID},
		))
	} else {
		stockReduced = true
		uc.appendTimeline(ctx, order.ID, domain.NewTimelineEvent(
			domain.EventStockReduced,
			"Stock reduced for all items",
			"system",
			map[string]interface{}{"payment_id": paymentID},
		))
	}

	// Cart clearing
	if uc.carts != nil {
		if err := uc.carts.ClearCart(ctx, order.UserID); err != nil {
			log.Error("failed to clear cart after capture",
				zap.Error(err),
				zap.String("user_id", order.UserID),
			)
		}
	}

	// Invoice generation
	uc.generateInvoice(ctx, order)

	// Outbound automation notification, fire and forget
	if uc.notifier != nil {
		attempt := order.AttemptByID(attemptID)
		go func() {
			if err := uc.notifier.OrderPaid(context.WithoutCancel(ctx), order, attempt); err != nil {
				log.Error("failed to dispatch order paid notification",
					zap.Error(err),
					zap.String("order_id", order.ID),
				)
			}
		}()
	}

	// Domain event
	if uc.publisher != nil {
		if attempt := order.AttemptByID(attemptID); attempt != nil {
			if err := uc.publisher.PublishPaymentCaptured(ctx, order, attempt); err != nil {
				log.Error("failed to publish payment captured event", zap.Error(err))
			}
		}
	}

	return stockReduced
}

func (uc *PaymentUseCase) generateInvoice(ctx context.Context, order *domain.Order) {
	if uc.invoices == nil {
		return
	}

	invoice, err := uc.invoices.Generate(ctx, order)
	if err != nil {
		uc.log.WithContext(ctx).Error("invoice generation failed",
			zap.Error(err),
			zap.String("order_id", order.ID),
		)
		failed := domain.InvoiceRecord{
			Number: "INV-" + order.OrderNumber,
			Status: "failed",
		}
		event := domain.NewTimelineEvent(
			domain.EventInvoiceGenerationFailed,
			"Invoice generation failed: "+err.Error(),
			"system",
			nil,
		)
		if err := uc.repo.SetAutoInvoice(ctx, order.ID, failed, event); err != nil {
			uc.log.WithContext(ctx).Error("failed to record invoice failure", zap.Error(err))
		}
		return
	}

	event := domain.NewTimelineEvent(
		domain.EventInvoiceGenerated,
		"Invoice "+invoice.Number+" generated",
		"system",
		map[string]interface{}{"invoice_number": invoice.Number},
	)
	if err := uc.repo.SetAutoInvoice(ctx, order.ID, *invoice, event); err != nil {
		uc.log.WithContext(ctx).Error("failed to persist invoice", zap.Error(err))
	}
}

func (uc *PaymentUseCase) appendTimeline(ctx context.Context, orderID string, events ...domain.TimelineEvent) {
	if err := uc.repo.AppendTimeline(ctx, orderID, events...); err != nil {
		uc.log.WithContext(ctx).Error("failed to append timeline events",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
	}
}

// PaymentStatusOutput summarizes the payment state of an order
type PaymentStatusOutput struct {
	OrderID        string
	OrderNumber    string
	Status         domain.OrderStatus
	PaymentStatus  domain.PaymentStatus
	AmountPaid     float64
	AmountDue      float64
	IsPaid         bool
	CurrentAttempt *domain.PaymentAttempt
	RetryAllowed   bool
	TotalAttempts  int
}

// PaymentStatus reports the payment state of an order to its owner
func (uc *PaymentUseCase) PaymentStatus(ctx context.Context, userID, orderID string) (*PaymentStatusOutput, error) {
	order, err := uc.repo.GetByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	return &PaymentStatusOutput{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		PaymentStatus:  order.Payment.Status,
		AmountPaid:     order.Pricing.AmountPaid,
		AmountDue:      order.Pricing.AmountDue,
		IsPaid:         order.IsPaid(),
		CurrentAttempt: order.AttemptByID(order.Payment.CurrentAttemptID),
		RetryAllowed:   order.CanRetryPayment(),
		TotalAttempts:  order.Payment.TotalAttempts,
	}, nil
}
