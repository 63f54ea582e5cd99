package payments

import (
	"github.com/google/uuid"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
)

// CreateIntentInput identifies the order a client wants to pay for.
type CreateIntentInput struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

// PaymentIntent is everything a client needs to open the gateway checkout.
// The key secret never leaves the server.
type PaymentIntent struct {
	PaymentID      uuid.UUID      `json:"payment_id"`
	GatewayOrderID string         `json:"gateway_order_id"`
	AmountMinor    int64          `json:"amount"`
	Currency       enums.Currency `json:"currency"`
	KeyID          string         `json:"key_id"`
}

// VerifyInput carries the gateway callback fields the client relays after
// checkout completes.
type VerifyInput struct {
	OrderID          uuid.UUID `json:"order_id" validate:"required"`
	GatewayOrderID   string    `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string    `json:"gateway_payment_id" validate:"required"`
	Signature        string    `json:"signature" validate:"required"`
}

// RefundInput carries the admin-supplied refund context.
type RefundInput struct {
	Reason string `json:"reason"`
}
