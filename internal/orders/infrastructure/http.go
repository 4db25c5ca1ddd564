package infrastructure

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"commerce-payments/internal/orders/application"
	"commerce-payments/internal/orders/domain"
	"commerce-payments/pkg/errors"
	"commerce-payments/pkg/middleware"
)

// WebhookSignatureHeader carries the gateway's HMAC of the raw body
const WebhookSignatureHeader = "X-Razorpay-Signature"

// HTTPHandler handles HTTP requests for orders and payments
type HTTPHandler struct {
	orders   *application.OrderUseCase
	payments *application.PaymentUseCase
	webhooks *application.WebhookUseCase
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	orders *application.OrderUseCase,
	payments *application.PaymentUseCase,
	webhooks *application.WebhookUseCase,
) *HTTPHandler {
	return &HTTPHandler{
		orders:   orders,
		payments: payments,
		webhooks: webhooks,
	}
}

// RegisterRoutes registers the authenticated order and payment routes
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:orderId", h.GetOrder)
	}

	payment := r.Group("/payment")
	{
		payment.POST("/razorpay/create-order", h.CreateGatewayOrder)
		payment.POST("/razorpay/verify", h.VerifyPayment)
		payment.GET("/order/:orderId/status", h.PaymentStatus)
	}
}

// RegisterWebhookRoutes registers the unauthenticated gateway webhook
func (h *HTTPHandler) RegisterWebhookRoutes(r *gin.Engine) {
	r.POST("/webhook/razorpay", h.RazorpayWebhook)
}

// OrderItemRequest is one requested line at checkout
type OrderItemRequest struct {
	ProductType string `json:"product_type" binding:"required,oneof=product prebuilt-pc"`
	ProductID   string `json:"product_id" binding:"required"`
	VariantID   string `json:"variant_id"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
}

// CreateOrderRequest is the request body for placing an order
type CreateOrderRequest struct {
	Items    []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Method   string             `json:"method"`
	Currency string             `json:"currency"`
	Shipping float64            `json:"shipping"`
	Discount float64            `json:"discount"`
}

// OrderResponse is the response body for order reads
type OrderResponse struct {
	ID          string                 `json:"id"`
	OrderNumber string                 `json:"order_number"`
	Status      string                 `json:"status"`
	Items       []domain.OrderItem     `json:"items"`
	Pricing     domain.Pricing         `json:"pricing"`
	Payment     domain.PaymentInfo     `json:"payment"`
	Timeline    []domain.TimelineEvent `json:"timeline"`
	CreatedAt   string                 `json:"created_at"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		Items:       o.Items,
		Pricing:     o.Pricing,
		Payment:     o.Payment,
		Timeline:    o.Timeline,
		CreatedAt:   o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// CreateOrder handles POST /orders
func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	input := application.CreateOrderInput{
		Method:   req.Method,
		Currency: req.Currency,
		Shipping: req.Shipping,
		Discount: req.Discount,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, application.OrderItemInput{
			ProductType: domain.ProductType(item.ProductType),
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			Quantity:    item.Quantity,
		})
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), c.GetString(middleware.UserIDKey), input)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":     toOrderResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// ListOrders handles GET /orders
func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     out,
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// GetOrder handles GET /orders/:orderId
func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("orderId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toOrderResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// CreateGatewayOrderRequest is the request body for starting a payment
type CreateGatewayOrderRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// CreateGatewayOrder handles POST /payment/razorpay/create-order
func (h *HTTPHandler) CreateGatewayOrder(c *gin.Context) {
	var req CreateGatewayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	out, err := h.payments.CreateGatewayOrder(c.Request.Context(), c.GetString(middleware.UserIDKey), req.OrderID)
	if err != nil {
		c.Error(err)
		return
	}

	if out.AlreadyPaid {
		c.JSON(http.StatusOK, gin.H{
			"data": gin.H{
				"alreadyPaid": true,
				"orderId":     out.OrderID,
				"orderNumber": out.OrderNumber,
			},
			"trace_id": c.GetString(middleware.TraceIDKey),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data": gin.H{
			"razorpayOrderId": out.RazorpayOrderID,
			"amount":          out.Amount,
			"currency":        out.Currency,
			"orderId":         out.OrderID,
			"attemptId":       out.AttemptID,
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// VerifyPaymentRequest is the client-submitted gateway callback
type VerifyPaymentRequest struct {
	OrderID           string `json:"orderId" binding:"required"`
	AttemptID         string `json:"attemptId"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

// VerifyPayment handles POST /payment/razorpay/verify
func (h *HTTPHandler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	out, err := h.payments.VerifyPayment(c.Request.Context(), c.GetString(middleware.UserIDKey), application.VerifyPaymentInput{
		OrderID:           req.OrderID,
		AttemptID:         req.AttemptID,
		RazorpayOrderID:   req.RazorpayOrderID,
		RazorpayPaymentID: req.RazorpayPaymentID,
		RazorpaySignature: req.RazorpaySignature,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"alreadyVerified": out.AlreadyVerified,
			"orderId":         out.OrderID,
			"orderNumber":     out.OrderNumber,
			"paymentId":       out.PaymentID,
			"amount":          out.Amount,
			"status":          out.Status,
			"stockReduced":    out.StockReduced,
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// PaymentStatus handles GET /payment/order/:orderId/status
func (h *HTTPHandler) PaymentStatus(c *gin.Context) {
	out, err := h.payments.PaymentStatus(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("orderId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"orderId":        out.OrderID,
			"orderNumber":    out.OrderNumber,
			"status":         out.Status,
			"paymentStatus":  out.PaymentStatus,
			"amountPaid":     out.AmountPaid,
			"amountDue":      out.AmountDue,
			"isPaid":         out.IsPaid,
			"currentAttempt": out.CurrentAttempt,
			"retryAllowed":   out.RetryAllowed,
			"totalAttempts":  out.TotalAttempts,
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// RazorpayWebhook handles POST /webhook/razorpay. The body must be read raw:
// the signature is an HMAC of the exact bytes the gateway sent.
func (h *HTTPHandler) RazorpayWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.Error(errors.NewValidation("unreadable webhook body", nil))
		return
	}

	if err := h.webhooks.HandleEvent(c.Request.Context(), body, c.GetHeader(WebhookSignatureHeader)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
