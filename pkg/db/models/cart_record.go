package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
)

// CartRecord is the single active pre-checkout cart owned by a user. It is
// emptied, never deleted, when an order is created from it.
type CartRecord struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_cart_records_user_active,where:status = 'active'"`
	Status      enums.CartStatus `gorm:"column:status;type:text;not null;default:'active'"`
	Currency    enums.Currency   `gorm:"column:currency;type:text;not null;default:'INR'"`
	TotalItems  int              `gorm:"column:total_items;not null;default:0"`
	TotalAmount decimal.Decimal  `gorm:"column:total_amount;type:numeric(12,2);not null;default:0"`
	Items       []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
