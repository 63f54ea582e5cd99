package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
)

// Product is the catalog listing carts and orders snapshot from. Catalog
// management mutates everything here except stock, which only the inventory
// ledger touches.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID      uuid.UUID       `gorm:"column:shop_id;type:uuid;not null"`
	Name        string          `gorm:"column:name;not null"`
	Description *string         `gorm:"column:description"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	FinalPrice  decimal.Decimal `gorm:"column:final_price;type:numeric(12,2);not null"`
	Currency    enums.Currency  `gorm:"column:currency;type:text;not null;default:'INR'"`
	Images      pq.StringArray  `gorm:"column:images;type:text[]"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true"`
	Inventory   *InventoryItem  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// PrimaryImage returns the first catalog image, if any.
func (p *Product) PrimaryImage() string {
	if p == nil || len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
