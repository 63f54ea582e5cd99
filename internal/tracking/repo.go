package tracking

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nikhilbhat/swiftcart-backend/pkg/db/models"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	"github.com/nikhilbhat/swiftcart-backend/pkg/types"
)

// Repository defines persistence operations for delivery tracking.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	AppendEvent(ctx context.Context, event *models.LocationEvent) error
	ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.LocationEvent, error)
	FindNearby(ctx context.Context, point types.GeographyPoint, radiusM int, statuses []enums.OrderStatus) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a tracking repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) AppendEvent(ctx context.Context, event *models.LocationEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.LocationEvent, error) {
	var events []models.LocationEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("recorded_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// FindNearby returns in-flight orders within radiusM meters of the point.
// ST_DWithin on geography operates in meters and uses the gist index on
// current_location.
func (r *repository) FindNearby(ctx context.Context, point types.GeographyPoint, radiusM int, statuses []enums.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("current_location IS NOT NULL").
		Where("status IN ?", statuses).
		Where(
			"ST_DWithin(current_location, ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography, ?)",
			point.Lng, point.Lat, radiusM,
		).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
