package domain

import "commerce-payments/pkg/errors"

// Domain-specific errors
var (
	ErrUserIDRequired = errors.NewValidation("user_id is required", nil)
	ErrNoItems        = errors.NewValidation("order must contain at least one item", nil)
	ErrInvalidTotal   = errors.NewValidation("order total must be greater than 0", nil)
	ErrRetryExhausted = errors.NewConflict("payment retries are no longer allowed for this order")
)

// NewOrderNotFound creates a not found error with the order ID
func NewOrderNotFound(id string) error {
	return errors.NewNotFound("order", id)
}

// NewAttemptNotFound creates a not found error for a payment attempt
func NewAttemptNotFound(id string) error {
	return errors.NewNotFound("payment attempt", id)
}
