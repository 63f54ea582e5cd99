package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem persists a product-level snapshot tied to a CartRecord. Name,
// price, and image are captured at add time so later catalog edits do not
// shift a cart under the buyer.
type CartItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID     uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ShopID     uuid.UUID       `gorm:"column:shop_id;type:uuid;not null"`
	Name       string          `gorm:"column:name;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	FinalPrice decimal.Decimal `gorm:"column:final_price;type:numeric(12,2);not null"`
	ImageURL   string          `gorm:"column:image_url"`
	Quantity   int             `gorm:"column:quantity;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// LineTotal is the snapshot price times quantity.
func (c CartItem) LineTotal() decimal.Decimal {
	return c.FinalPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}
