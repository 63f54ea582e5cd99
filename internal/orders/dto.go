package orders

import (
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/swiftcart-backend/pkg/db/models"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	"github.com/nikhilbhat/swiftcart-backend/pkg/types"
)

// CreateFromCartInput carries the checkout payload. Tax and shipping are
// optional overrides; when nil the configured defaults apply.
type CreateFromCartInput struct {
	ShippingAddress types.Address       `json:"shipping_address" validate:"required"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method" validate:"required"`
	TaxAmount       *decimal.Decimal    `json:"tax_amount,omitempty"`
	ShippingAmount  *decimal.Decimal    `json:"shipping_amount,omitempty"`
}

// ListFilter narrows an order listing.
type ListFilter struct {
	Status *enums.OrderStatus
}

// OrderList is one page of a user's orders plus the cursor for the next page.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
