package adapters

import (
	"context"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"commerce-payments/internal/orders/ports"
	apperrors "commerce-payments/pkg/errors"
)

// RazorpayGateway implements PaymentGateway against the Razorpay API. The
// client is constructed here and injected into the use cases; the secrets
// never leave this adapter.
type RazorpayGateway struct {
	client        *razorpay.Client
	keySecret     string
	webhookSecret string
}

// NewRazorpayGateway creates a new Razorpay gateway adapter
func NewRazorpayGateway(keyID, keySecret, webhookSecret string, timeout time.Duration) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	client.SetTimeout(int16(timeout.Seconds()))

	return &RazorpayGateway{
		client:        client,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

// CreateOrder creates a payment-intent order with auto-capture enabled
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]interface{}) (*ports.GatewayOrder, error) {
	data := map[string]interface{}{
		"amount":          amountMinor,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
		"notes":           notes,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, apperrors.NewGatewayUnavailable("failed to create gateway order", err)
	}

	id, _ := body["id"].(string)
	gatewayCurrency, _ := body["currency"].(string)

	return &ports.GatewayOrder{
		ID:       id,
		Amount:   asInt64(body["amount"]),
		Currency: gatewayCurrency,
	}, nil
}

// FetchPayment fetches the authoritative payment record by payment ID
func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (*ports.GatewayPayment, error) {
	body, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, apperrors.NewGatewayUnavailable("failed to fetch payment from gateway", err)
	}

	id, _ := body["id"].(string)
	orderID, _ := body["order_id"].(string)
	currency, _ := body["currency"].(string)
	status, _ := body["status"].(string)
	method, _ := body["method"].(string)

	return &ports.GatewayPayment{
		ID:       id,
		OrderID:  orderID,
		Amount:   asInt64(body["amount"]),
		Currency: currency,
		Status:   status,
		Method:   method,
		Raw:      body,
	}, nil
}

// VerifyPaymentSignature checks the checkout callback signature
func (g *RazorpayGateway) VerifyPaymentSignature(razorpayOrderID, razorpayPaymentID, signature string) bool {
	params := map[string]interface{}{
		"razorpay_order_id":   razorpayOrderID,
		"razorpay_payment_id": razorpayPaymentID,
	}
	return utils.VerifyPaymentSignature(params, signature, g.keySecret)
}

// VerifyWebhookSignature checks the webhook body signature
func (g *RazorpayGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return utils.VerifyWebhookSignature(string(body), signature, g.webhookSecret)
}

// asInt64 normalizes the numeric types the gateway JSON may decode into
func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
