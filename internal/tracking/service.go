package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nikhilbhat/swiftcart-backend/internal/access"
	"github.com/nikhilbhat/swiftcart-backend/internal/orders"
	"github.com/nikhilbhat/swiftcart-backend/pkg/db/models"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
	"github.com/nikhilbhat/swiftcart-backend/pkg/logger"
	"github.com/nikhilbhat/swiftcart-backend/pkg/outbox"
	"github.com/nikhilbhat/swiftcart-backend/pkg/outbox/payloads"
	"github.com/nikhilbhat/swiftcart-backend/pkg/types"
)

const defaultNearbyRadiusM = 2000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines the delivery tracking operations exposed to controllers.
type Service interface {
	RecordLocation(ctx context.Context, actor access.Actor, orderID uuid.UUID, input RecordLocationInput) (*TrackingInfo, error)
	Get(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*TrackingInfo, error)
	Nearby(ctx context.Context, actor access.Actor, input NearbyInput) ([]models.Order, error)
}

type service struct {
	repo       Repository
	orders     orders.Repository
	tx         txRunner
	events     eventEmitter
	maxRadiusM int
	logg       *logger.Logger
}

// NewService builds a tracking service with the required dependencies.
func NewService(
	repo Repository,
	orderRepo orders.Repository,
	tx txRunner,
	events eventEmitter,
	maxRadiusM int,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tracking repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if maxRadiusM <= 0 {
		return nil, fmt.Errorf("max nearby radius must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       repo,
		orders:     orderRepo,
		tx:         tx,
		events:     events,
		maxRadiusM: maxRadiusM,
		logg:       logg,
	}, nil
}

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("latitude %f out of range", lat))
	}
	if lng < -180 || lng > 180 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("longitude %f out of range", lng))
	}
	return nil
}

// RecordLocation stores a courier position report against an in-flight order.
// The order's current location, the appended history event, and any status
// advance commit together.
func (s *service) RecordLocation(ctx context.Context, actor access.Actor, orderID uuid.UUID, input RecordLocationInput) (*TrackingInfo, error) {
	if err := access.RequireFulfillmentStaff(actor); err != nil {
		return nil, err
	}
	if err := validateCoordinates(input.Lat, input.Lng); err != nil {
		return nil, err
	}

	point := types.GeographyPoint{Lat: input.Lat, Lng: input.Lng}
	now := time.Now()

	var info *TrackingInfo
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		repo := s.repo.WithTx(tx)

		order, err := orderRepo.FindByID(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s and no longer tracked", order.Status))
		}

		status := order.Status
		updates := map[string]any{"current_location": point}
		if input.ETA != nil {
			updates["estimated_delivery_at"] = *input.ETA
		}
		if input.Status != nil && *input.Status != order.Status {
			if err := orders.CheckTransition(order.Status, *input.Status); err != nil {
				return err
			}
			status = *input.Status
			updates["status"] = status
			if status == enums.OrderStatusDelivered {
				updates["delivered_at"] = now
			}
		}
		if err := orderRepo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order location")
		}

		event := &models.LocationEvent{
			OrderID:     order.ID,
			Point:       point,
			Status:      status,
			Description: input.Description,
			RecordedAt:  now,
		}
		if err := repo.AppendEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append location event")
		}

		if status != order.Status {
			actorRef := &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
			err = s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderStatusChanged,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actorRef,
				Data: payloads.OrderStatusChangedEvent{
					OrderID:   order.ID,
					UserID:    order.UserID,
					From:      order.Status,
					To:        status,
					ChangedAt: now,
				},
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status changed event")
			}
			if status == enums.OrderStatusDelivered {
				err = s.events.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventOrderDelivered,
					AggregateType: enums.AggregateOrder,
					AggregateID:   order.ID,
					Actor:         actorRef,
					Data: payloads.OrderDeliveredEvent{
						OrderID:     order.ID,
						UserID:      order.UserID,
						DeliveredAt: now,
					},
				})
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit delivered event")
				}
			}
		}

		history, err := repo.ListEvents(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load location history")
		}

		eta := order.EstimatedDeliveryAt
		if input.ETA != nil {
			eta = input.ETA
		}
		var deliveredAt *time.Time
		if status == enums.OrderStatusDelivered {
			deliveredAt = &now
		}
		info = &TrackingInfo{
			OrderID:         order.ID,
			Status:          status,
			CurrentLocation: &point,
			ETA:             eta,
			DeliveredAt:     deliveredAt,
			History:         history,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": info.OrderID.String(),
		"status":   info.Status,
		"lat":      input.Lat,
		"lng":      input.Lng,
	})
	s.logg.Info(logCtx, "location recorded")
	return info, nil
}

// Get returns the tracking view of an order. Owners and admins only.
func (s *service) Get(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*TrackingInfo, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := access.RequireOwnerOrAdmin(actor, order.UserID); err != nil {
		return nil, err
	}

	history, err := s.repo.ListEvents(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load location history")
	}
	return &TrackingInfo{
		OrderID:         order.ID,
		Status:          order.Status,
		CurrentLocation: order.CurrentLocation,
		ETA:             order.EstimatedDeliveryAt,
		DeliveredAt:     order.DeliveredAt,
		History:         history,
	}, nil
}

// Nearby lists in-flight orders within the requested radius of a point.
// Fulfillment staff only; the radius is clamped to the configured maximum.
func (s *service) Nearby(ctx context.Context, actor access.Actor, input NearbyInput) ([]models.Order, error) {
	if err := access.RequireFulfillmentStaff(actor); err != nil {
		return nil, err
	}
	if err := validateCoordinates(input.Lat, input.Lng); err != nil {
		return nil, err
	}

	radius := input.RadiusM
	if radius <= 0 {
		radius = defaultNearbyRadiusM
	}
	if radius > s.maxRadiusM {
		radius = s.maxRadiusM
	}

	found, err := s.repo.FindNearby(ctx,
		types.GeographyPoint{Lat: input.Lat, Lng: input.Lng},
		radius,
		enums.ActiveDeliveryStatuses(),
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "nearby query")
	}
	return found, nil
}
