package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
)

// OrderCreatedEvent signals a cart was converted into a placed order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	UserID      uuid.UUID       `json:"user_id"`
	CartID      uuid.UUID       `json:"cart_id"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    enums.Currency  `json:"currency"`
}

// OrderConfirmationEmailEvent tells the notification pipeline to email the buyer.
type OrderConfirmationEmailEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}

// OrderStatusChangedEvent is emitted on every fulfillment transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	UserID    uuid.UUID         `json:"user_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderCancelledEvent is emitted whenever an order is cancelled before delivery.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderDeliveredEvent surfaces the terminal delivery transition.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// PaymentCapturedEvent is emitted when a gateway payment verifies successfully.
type PaymentCapturedEvent struct {
	PaymentID      uuid.UUID           `json:"payment_id"`
	OrderID        uuid.UUID           `json:"order_id"`
	GatewayOrderID string              `json:"gateway_order_id"`
	TransactionID  string              `json:"transaction_id"`
	Amount         decimal.Decimal     `json:"amount"`
	Method         enums.PaymentMethod `json:"method"`
}

// PaymentRefundedEvent is emitted when the gateway accepts a refund.
type PaymentRefundedEvent struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	OrderID    uuid.UUID       `json:"order_id"`
	RefundID   string          `json:"refund_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason,omitempty"`
	RefundedAt time.Time       `json:"refunded_at"`
}
