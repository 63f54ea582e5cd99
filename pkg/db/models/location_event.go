package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	"github.com/nikhilbhat/swiftcart-backend/pkg/types"
)

// LocationEvent is one append-only entry in an order's delivery history,
// ordered by RecordedAt.
type LocationEvent struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index:ix_location_events_order_time,priority:1"`
	Point       types.GeographyPoint `gorm:"column:point;type:geography(Point,4326);not null"`
	Status      enums.OrderStatus    `gorm:"column:status;type:text;not null"`
	Description *string              `gorm:"column:description"`
	RecordedAt  time.Time            `gorm:"column:recorded_at;not null;index:ix_location_events_order_time,priority:2"`
}
