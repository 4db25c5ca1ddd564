package adapters

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"commerce-payments/internal/orders/domain"
	apperrors "commerce-payments/pkg/errors"
)

// MongoOrderRepository implements OrderRepository using MongoDB. Attempt
// transitions are written as conditional updates matched on the embedded
// attempt's ID and prior state, so two writers racing on the same attempt
// can never both observe a successful capture.
type MongoOrderRepository struct {
	col *mongo.Collection
}

// NewMongoOrderRepository creates a new MongoDB order repository
func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{col: db.Collection("orders")}
}

// EnsureIndexes creates the indexes the order collection relies on,
// including the TTL index that removes unpaid expired orders.
func (r *MongoOrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "payment.attempts.razorpay_order_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "payment.attempts.razorpay_payment_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	return err
}

// Create inserts a new order
func (r *MongoOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if _, err := r.col.InsertOne(ctx, order); err != nil {
		return apperrors.NewInternal("failed to create order", err)
	}
	return nil
}

func (r *MongoOrderRepository) findOne(ctx context.Context, filter bson.M, id string) (*domain.Order, error) {
	var order domain.Order
	err := r.col.FindOne(ctx, filter).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewOrderNotFound(id)
		}
		return nil, apperrors.NewInternal("failed to get order", err)
	}
	return &order, nil
}

// GetByID retrieves an order by ID
func (r *MongoOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id}, id)
}

// GetByIDForUser retrieves an order scoped to its owner
func (r *MongoOrderRepository) GetByIDForUser(ctx context.Context, id, userID string) (*domain.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id, "user_id": userID}, id)
}

// GetByUserID retrieves all orders belonging to a user
func (r *MongoOrderRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, apperrors.NewInternal("failed to list orders", err)
	}
	defer cur.Close(ctx)

	var out []*domain.Order
	for cur.Next(ctx) {
		var order domain.Order
		if err := cur.Decode(&order); err != nil {
			return nil, apperrors.NewInternal("failed to decode order", err)
		}
		out = append(out, &order)
	}
	return out, cur.Err()
}

// GetByGatewayPaymentID retrieves the order holding the attempt with the
// given Razorpay payment ID
func (r *MongoOrderRepository) GetByGatewayPaymentID(ctx context.Context, razorpayPaymentID string) (*domain.Order, error) {
	return r.findOne(ctx, bson.M{"payment.attempts.razorpay_payment_id": razorpayPaymentID}, razorpayPaymentID)
}

// GetByGatewayOrderID retrieves the order holding the attempt with the
// given Razorpay order ID
func (r *MongoOrderRepository) GetByGatewayOrderID(ctx context.Context, razorpayOrderID string) (*domain.Order, error) {
	return r.findOne(ctx, bson.M{"payment.attempts.razorpay_order_id": razorpayOrderID}, razorpayOrderID)
}

// RegisterAttempt persists a freshly registered payment attempt. The write
// is conditional on the order still being pending with the previous attempt
// count, which rejects concurrent attempt creation.
func (r *MongoOrderRepository) RegisterAttempt(ctx context.Context, order *domain.Order, attempt domain.PaymentAttempt) error {
	event := order.Timeline[len(order.Timeline)-1]

	filter := bson.M{
		"_id":                    order.ID,
		"status":                 domain.OrderStatusPending,
		"payment.total_attempts": order.Payment.TotalAttempts - 1,
	}
	update := bson.M{
		"$push": bson.M{
			"payment.attempts": attempt,
			"timeline":         event,
		},
		"$set": bson.M{
			"payment.current_attempt_id": attempt.ID,
			"payment.total_attempts":     order.Payment.TotalAttempts,
			"payment.retry_allowed":      order.Payment.RetryAllowed,
			"payment.status":             domain.PaymentStatusCreated,
			"updated_at":                 order.UpdatedAt,
		},
	}

	result, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return apperrors.NewInternal("failed to register payment attempt", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.NewConflict("order is no longer accepting payment attempts")
	}
	return nil
}

// UpdateAttempt applies the payment attempt state machine as one conditional
// write. The transition semantics live in domain.ApplyAttemptUpdate; this
// method persists its outcome with a compare-and-swap matched on the attempt
// ID and its not-yet-captured state.
func (r *MongoOrderRepository) UpdateAttempt(ctx context.Context, orderID, attemptID string, up domain.AttemptUpdate, actor string) (*domain.Order, bool, error) {
	order, err := r.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}

	timelineBefore := len(order.Timeline)
	applied, err := order.ApplyAttemptUpdate(attemptID, up, actor)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		// Idempotent double-capture no-op
		return order, false, nil
	}

	attempt := order.AttemptByID(attemptID)
	newEvents := order.Timeline[timelineBefore:]

	filter := bson.M{
		"_id": orderID,
		"payment.attempts": bson.M{"$elemMatch": bson.M{
			"_id":    attemptID,
			"status": bson.M{"$ne": domain.PaymentStatusCaptured},
		}},
	}

	set := bson.M{
		"payment.attempts.$.status":             attempt.Status,
		"payment.attempts.$.signature_verified": attempt.SignatureVerified,
		"payment.status":                        order.Payment.Status,
		"updated_at":                            order.UpdatedAt,
	}
	if attempt.RazorpayPaymentID != "" {
		set["payment.attempts.$.razorpay_payment_id"] = attempt.RazorpayPaymentID
	}
	if attempt.RazorpaySignature != "" {
		set["payment.attempts.$.razorpay_signature"] = attempt.RazorpaySignature
	}
	if attempt.GatewayResponse != nil {
		set["payment.attempts.$.gateway_response"] = attempt.GatewayResponse
	}
	if attempt.ErrorReason != "" {
		set["payment.attempts.$.error_reason"] = attempt.ErrorReason
	}

	update := bson.M{
		"$set":  set,
		"$push": bson.M{"timeline": bson.M{"$each": newEvents}},
	}

	if up.Status == domain.PaymentStatusCaptured {
		set["payment.attempts.$.captured_at"] = attempt.CapturedAt
		set["status"] = order.Status
		set["pricing.amount_paid"] = order.Pricing.AmountPaid
		set["pricing.amount_due"] = order.Pricing.AmountDue
		update["$unset"] = bson.M{"expires_at": ""}
	}

	result, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, false, apperrors.NewInternal("failed to update payment attempt", err)
	}
	if result.MatchedCount == 0 {
		// Either a concurrent writer captured the attempt between our read
		// and the write, or the document is gone. Reload to tell them apart.
		current, err := r.GetByID(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		if a := current.AttemptByID(attemptID); a != nil && a.Status == domain.PaymentStatusCaptured {
			return current, false, nil
		}
		return nil, false, apperrors.NewInternal("payment attempt update matched no documents", nil)
	}

	return order, true, nil
}

// RevertCapture rolls a captured attempt back to failed and returns the
// order to pending with the full amount due again
func (r *MongoOrderRepository) RevertCapture(ctx context.Context, orderID, attemptID, reason string) error {
	order, err := r.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	events := []domain.TimelineEvent{
		domain.NewTimelineEvent(domain.EventStockReductionFailed, reason, "webhook", map[string]interface{}{
			"attempt_id": attemptID,
		}),
		domain.NewTimelineEvent(domain.EventPaymentFailed, "Payment capture reverted: "+reason, "webhook", map[string]interface{}{
			"attempt_id": attemptID,
		}),
	}

	filter := bson.M{
		"_id": orderID,
		"payment.attempts": bson.M{"$elemMatch": bson.M{
			"_id":    attemptID,
			"status": domain.PaymentStatusCaptured,
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"payment.attempts.$.status":       domain.PaymentStatusFailed,
			"payment.attempts.$.error_reason": reason,
			"payment.status":                  domain.PaymentStatusFailed,
			"status":                          domain.OrderStatusPending,
			"pricing.amount_paid":             float64(0),
			"pricing.amount_due":              order.Pricing.Total,
			"updated_at":                      now,
		},
		"$unset": bson.M{"payment.attempts.$.captured_at": ""},
		"$push":  bson.M{"timeline": bson.M{"$each": events}},
	}

	result, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return apperrors.NewInternal("failed to revert capture", err)
	}
	if result.MatchedCount == 0 {
		// Attempt is no longer captured; nothing to revert
		return nil
	}
	return nil
}

// AppendTimeline appends audit events to the order timeline
func (r *MongoOrderRepository) AppendTimeline(ctx context.Context, orderID string, events ...domain.TimelineEvent) error {
	result, err := r.col.UpdateOne(ctx,
		bson.M{"_id": orderID},
		bson.M{
			"$push": bson.M{"timeline": bson.M{"$each": events}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return apperrors.NewInternal("failed to append timeline events", err)
	}
	if result.MatchedCount == 0 {
		return domain.NewOrderNotFound(orderID)
	}
	return nil
}

// SetAutoInvoice records the auto-generated invoice slot and appends the
// matching timeline event
func (r *MongoOrderRepository) SetAutoInvoice(ctx context.Context, orderID string, invoice domain.InvoiceRecord, event domain.TimelineEvent) error {
	result, err := r.col.UpdateOne(ctx,
		bson.M{"_id": orderID},
		bson.M{
			"$set": bson.M{
				"invoices.auto_generated": invoice,
				"updated_at":              time.Now().UTC(),
			},
			"$push": bson.M{"timeline": event},
		},
	)
	if err != nil {
		return apperrors.NewInternal("failed to set invoice", err)
	}
	if result.MatchedCount == 0 {
		return domain.NewOrderNotFound(orderID)
	}
	return nil
}
