package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	"github.com/nikhilbhat/swiftcart-backend/pkg/types"
)

// Order is the immutable-item snapshot produced from a cart at checkout.
// The item list never changes after creation; status, payment, and location
// fields are the only mutable surface.
type Order struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID              uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Status              enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'processing'"`
	Currency            enums.Currency        `gorm:"column:currency;type:text;not null;default:'INR'"`
	PaymentMethod       enums.PaymentMethod   `gorm:"column:payment_method;type:text;not null;default:'card'"`
	ShippingAddress     types.Address         `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	ItemsAmount         decimal.Decimal       `gorm:"column:items_amount;type:numeric(12,2);not null"`
	TaxAmount           decimal.Decimal       `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	ShippingAmount      decimal.Decimal       `gorm:"column:shipping_amount;type:numeric(12,2);not null;default:0"`
	TotalAmount         decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	IsPaid              bool                  `gorm:"column:is_paid;not null;default:false"`
	PaidAt              *time.Time            `gorm:"column:paid_at"`
	DeliveredAt         *time.Time            `gorm:"column:delivered_at"`
	CancelledAt         *time.Time            `gorm:"column:cancelled_at"`
	CurrentLocation     *types.GeographyPoint `gorm:"column:current_location;type:geography(Point,4326)"`
	EstimatedDeliveryAt *time.Time            `gorm:"column:estimated_delivery_at"`
	Items               []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment             *Payment              `gorm:"foreignKey:OrderID"`
	LocationEvents      []LocationEvent       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// GrandTotal is the amount a payment must settle.
func (o *Order) GrandTotal() decimal.Decimal {
	return o.TotalAmount
}
