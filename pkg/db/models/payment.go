package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
)

// Payment tracks one checkout attempt against the gateway. It is created in
// pending state alongside the gateway order and settled by signature
// verification; refunds mutate it exactly once.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	GatewayOrderID string              `gorm:"column:gateway_order_id;not null;uniqueIndex"`
	TransactionID  *string             `gorm:"column:transaction_id"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency       enums.Currency      `gorm:"column:currency;type:text;not null;default:'INR'"`
	Method         enums.PaymentMethod `gorm:"column:method;type:text;not null;default:'card'"`
	Status         enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PaidAt         *time.Time          `gorm:"column:paid_at"`
	IsRefunded     bool                `gorm:"column:is_refunded;not null;default:false"`
	RefundID       *string             `gorm:"column:refund_id"`
	RefundReason   *string             `gorm:"column:refund_reason"`
	RefundedAt     *time.Time          `gorm:"column:refunded_at"`
	FailureReason  *string             `gorm:"column:failure_reason"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
