package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nikhilbhat/swiftcart-backend/internal/access"
	"github.com/nikhilbhat/swiftcart-backend/internal/cart"
	"github.com/nikhilbhat/swiftcart-backend/internal/inventory"
	"github.com/nikhilbhat/swiftcart-backend/pkg/config"
	"github.com/nikhilbhat/swiftcart-backend/pkg/db/models"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
	"github.com/nikhilbhat/swiftcart-backend/pkg/logger"
	"github.com/nikhilbhat/swiftcart-backend/pkg/metrics"
	"github.com/nikhilbhat/swiftcart-backend/pkg/outbox"
	"github.com/nikhilbhat/swiftcart-backend/pkg/outbox/payloads"
	"github.com/nikhilbhat/swiftcart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines the order operations exposed to controllers.
type Service interface {
	CreateFromCart(ctx context.Context, actor access.Actor, input CreateFromCartInput) (*models.Order, error)
	Get(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, actor access.Actor, params pagination.Params, filter ListFilter) (*OrderList, error)
	UpdateStatus(ctx context.Context, actor access.Actor, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
	Cancel(ctx context.Context, actor access.Actor, orderID uuid.UUID, reason string) (*models.Order, error)
}

type service struct {
	repo            Repository
	carts           cart.Repository
	products        productCatalog
	ledger          inventory.Ledger
	tx              txRunner
	events          eventEmitter
	metrics         *metrics.CheckoutMetrics
	defaultTax      decimal.Decimal
	defaultShipping decimal.Decimal
	logg            *logger.Logger
}

// NewService builds an order service with the required dependencies.
// Metrics may be nil.
func NewService(
	repo Repository,
	carts cart.Repository,
	products productCatalog,
	ledger inventory.Ledger,
	tx txRunner,
	events eventEmitter,
	checkoutMetrics *metrics.CheckoutMetrics,
	cfg config.CheckoutConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	defaultTax, err := decimal.NewFromString(cfg.DefaultTaxAmount)
	if err != nil {
		return nil, fmt.Errorf("parse default tax amount: %w", err)
	}
	defaultShipping, err := decimal.NewFromString(cfg.DefaultShippingAmount)
	if err != nil {
		return nil, fmt.Errorf("parse default shipping amount: %w", err)
	}
	return &service{
		repo:            repo,
		carts:           carts,
		products:        products,
		ledger:          ledger,
		tx:              tx,
		events:          events,
		metrics:         checkoutMetrics,
		defaultTax:      defaultTax,
		defaultShipping: defaultShipping,
		logg:            logg,
	}, nil
}

// CreateFromCart converts the actor's active cart into an order. Stock
// reservation, order creation, cart emptying, and event emission all commit
// in one transaction, so a reservation failure on any line leaves every
// product's stock untouched.
func (s *service) CreateFromCart(ctx context.Context, actor access.Actor, input CreateFromCartInput) (*models.Order, error) {
	started := time.Now()
	order, err := s.createFromCart(ctx, actor, input)
	result := "success"
	if err != nil {
		result = "error"
		if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeInsufficientStock {
			result = "stock_conflict"
			s.metrics.IncStockConflicts()
		}
	}
	s.metrics.ObserveDuration(result, time.Since(started))
	return order, err
}

func (s *service) createFromCart(ctx context.Context, actor access.Actor, input CreateFromCartInput) (*models.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}

	tax := s.defaultTax
	if input.TaxAmount != nil {
		tax = *input.TaxAmount
	}
	shipping := s.defaultShipping
	if input.ShippingAmount != nil {
		shipping = *input.ShippingAmount
	}
	if tax.IsNegative() || shipping.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax and shipping amounts cannot be negative")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		repo := s.repo.WithTx(tx)

		activeCart, err := carts.FindActiveByUser(ctx, actor.UserID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(activeCart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		if err := s.reserveCartStock(ctx, tx, activeCart.Items); err != nil {
			return err
		}

		itemsAmount := decimal.Zero
		orderItems := make([]models.OrderItem, 0, len(activeCart.Items))
		for _, item := range activeCart.Items {
			itemsAmount = itemsAmount.Add(item.LineTotal())
			orderItems = append(orderItems, models.OrderItem{
				ProductID: item.ProductID,
				Name:      item.Name,
				UnitPrice: item.FinalPrice,
				Quantity:  item.Quantity,
				ImageURL:  item.ImageURL,
			})
		}

		order = &models.Order{
			UserID:          actor.UserID,
			Status:          enums.OrderStatusProcessing,
			Currency:        activeCart.Currency,
			PaymentMethod:   input.PaymentMethod,
			ShippingAddress: input.ShippingAddress.Normalized(),
			ItemsAmount:     itemsAmount,
			TaxAmount:       tax,
			ShippingAmount:  shipping,
			TotalAmount:     itemsAmount.Add(tax).Add(shipping),
			Items:           orderItems,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		// The cart record survives checkout; only its items go.
		if err := carts.DeleteItems(ctx, activeCart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "empty cart")
		}
		if err := carts.UpdateTotals(ctx, activeCart.ID, 0, decimal.Zero); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset cart totals")
		}

		actorRef := &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
		err = s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				CartID:      activeCart.ID,
				ItemCount:   len(order.Items),
				TotalAmount: order.TotalAmount,
				Currency:    order.Currency,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created event")
		}
		err = s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmationEmail,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef,
			Data: payloads.OrderConfirmationEmailEvent{
				OrderID: order.ID,
				UserID:  order.UserID,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit confirmation email event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncOrdersCreated()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"user_id":      actor.UserID.String(),
		"item_count":   len(order.Items),
		"total_amount": order.TotalAmount.String(),
	})
	s.logg.Info(logCtx, "order created from cart")
	return order, nil
}

// reserveCartStock validates every line against the catalog and decrements
// stock. All lines are attempted so a failure response can name every
// product that ran short, then the enclosing transaction rolls back.
func (s *service) reserveCartStock(ctx context.Context, tx *gorm.DB, items []models.CartItem) error {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var failed []map[string]any
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok || !product.IsActive {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product no longer available").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if err := s.ledger.Reserve(ctx, tx, item.ProductID, item.Quantity); err != nil {
			appErr := pkgerrors.As(err)
			if appErr != nil && appErr.Code() == pkgerrors.CodeInsufficientStock {
				failed = append(failed, map[string]any{
					"product_id": item.ProductID.String(),
					"requested":  item.Quantity,
				})
				continue
			}
			return err
		}
	}
	if len(failed) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for cart items").
			WithDetails(map[string]any{"failed_products": failed})
	}
	return nil
}

// Get returns an order with items, payment, and location history. Owners and
// admins only.
func (s *service) Get(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindDetail(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := access.RequireOwnerOrAdmin(actor, order.UserID); err != nil {
		return nil, err
	}
	return order, nil
}

// List pages through the actor's own orders, newest first.
func (s *service) List(ctx context.Context, actor access.Actor, params pagination.Params, filter ListFilter) (*OrderList, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid order status %q", *filter.Status))
	}
	list, err := s.repo.ListByUser(ctx, actor.UserID, params, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// UpdateStatus advances an order along the fulfillment chain. Admin only.
func (s *service) UpdateStatus(ctx context.Context, actor access.Actor, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if err := CheckTransition(order.Status, status); err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]any{"status": status}
		if status == enums.OrderStatusDelivered {
			updates["delivered_at"] = now
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

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

		order.Status = status
		if status == enums.OrderStatusDelivered {
			order.DeliveredAt = &now
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": updated.ID.String(),
		"status":   updated.Status,
	})
	s.logg.Info(logCtx, "order status updated")
	return updated, nil
}

// Cancel halts an order before delivery, restoring every reserved unit. The
// restores, the status flip, and the cancellation event commit atomically.
func (s *service) Cancel(ctx context.Context, actor access.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if err := access.RequireOwnerOrAdmin(actor, order.UserID); err != nil {
			return err
		}
		if err := CheckCancellable(order.Status); err != nil {
			return err
		}

		for _, item := range order.Items {
			if err := s.ledger.Restore(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		now := time.Now()
		updates := map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}

		err = s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				CancelledAt: now,
				Reason:      reason,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit cancelled event")
		}

		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCancellations()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": cancelled.ID.String(),
		"user_id":  cancelled.UserID.String(),
	})
	s.logg.Info(logCtx, "order cancelled")
	return cancelled, nil
}
