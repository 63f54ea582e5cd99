package tracking

import (
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhat/swiftcart-backend/pkg/db/models"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	"github.com/nikhilbhat/swiftcart-backend/pkg/types"
)

// RecordLocationInput is one courier position report. Status and ETA are
// optional; when Status is set the order advances through the fulfillment
// chain in the same transaction.
type RecordLocationInput struct {
	Lat         float64            `json:"lat" validate:"required"`
	Lng         float64            `json:"lng" validate:"required"`
	Description *string            `json:"description,omitempty"`
	Status      *enums.OrderStatus `json:"status,omitempty"`
	ETA         *time.Time         `json:"eta,omitempty"`
}

// NearbyInput is a proximity query around a point.
type NearbyInput struct {
	Lat     float64 `json:"lat" validate:"required"`
	Lng     float64 `json:"lng" validate:"required"`
	RadiusM int     `json:"radius_m"`
}

// TrackingInfo is the delivery view of one order: where it is now and every
// position it has reported.
type TrackingInfo struct {
	OrderID         uuid.UUID              `json:"order_id"`
	Status          enums.OrderStatus      `json:"status"`
	CurrentLocation *types.GeographyPoint  `json:"current_location,omitempty"`
	ETA             *time.Time             `json:"eta,omitempty"`
	DeliveredAt     *time.Time             `json:"delivered_at,omitempty"`
	History         []models.LocationEvent `json:"history"`
}
