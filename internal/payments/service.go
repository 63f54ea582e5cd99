package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nikhilbhat/swiftcart-backend/internal/access"
	"github.com/nikhilbhat/swiftcart-backend/internal/orders"
	"github.com/nikhilbhat/swiftcart-backend/pkg/db/models"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
	"github.com/nikhilbhat/swiftcart-backend/pkg/logger"
	"github.com/nikhilbhat/swiftcart-backend/pkg/metrics"
	"github.com/nikhilbhat/swiftcart-backend/pkg/outbox"
	"github.com/nikhilbhat/swiftcart-backend/pkg/outbox/payloads"
	"github.com/nikhilbhat/swiftcart-backend/pkg/razorpay"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// gateway is the slice of the payment provider the service depends on.
type gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, params razorpay.OrderCreateParams) (*razorpay.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	CreateRefund(ctx context.Context, params razorpay.RefundCreateParams) (*razorpay.Refund, error)
	VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// Service defines the payment operations exposed to controllers.
type Service interface {
	CreateIntent(ctx context.Context, actor access.Actor, input CreateIntentInput) (*PaymentIntent, error)
	Verify(ctx context.Context, actor access.Actor, input VerifyInput) (*models.Payment, error)
	Refund(ctx context.Context, actor access.Actor, paymentID uuid.UUID, input RefundInput) (*models.Payment, error)
	Get(ctx context.Context, actor access.Actor, paymentID uuid.UUID) (*models.Payment, error)
}

type service struct {
	repo    Repository
	orders  orders.Repository
	gateway gateway
	tx      txRunner
	events  eventEmitter
	metrics *metrics.PaymentMetrics
	logg    *logger.Logger
}

// NewService builds a payment service with the required dependencies.
// Metrics may be nil.
func NewService(
	repo Repository,
	orderRepo orders.Repository,
	gw gateway,
	tx txRunner,
	events eventEmitter,
	paymentMetrics *metrics.PaymentMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if gw == nil {
		return nil, fmt.Errorf("payment gateway required")
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
	return &service{
		repo:    repo,
		orders:  orderRepo,
		gateway: gw,
		tx:      tx,
		events:  events,
		metrics: paymentMetrics,
		logg:    logg,
	}, nil
}

// minorUnits converts a decimal major amount into the gateway's integer
// minor units (paise for INR).
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CreateIntent opens a gateway order for an unpaid order and records the
// pending payment attempt. Repeated calls for the same order reuse the open
// attempt instead of opening a second gateway order.
func (s *service) CreateIntent(ctx context.Context, actor access.Actor, input CreateIntentInput) (*PaymentIntent, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := access.RequireOwner(actor, order.UserID); err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	if order.Status == enums.OrderStatusCancelled || order.Status == enums.OrderStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s and cannot be paid", order.Status))
	}

	if existing, err := s.repo.FindPendingByOrderID(ctx, order.ID); err == nil {
		return &PaymentIntent{
			PaymentID:      existing.ID,
			GatewayOrderID: existing.GatewayOrderID,
			AmountMinor:    minorUnits(existing.Amount),
			Currency:       existing.Currency,
			KeyID:          s.gateway.KeyID(),
		}, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending payment")
	}

	started := time.Now()
	gatewayOrder, err := s.gateway.CreateOrder(ctx, razorpay.OrderCreateParams{
		AmountMinor: minorUnits(order.GrandTotal()),
		Currency:    order.Currency,
		Receipt:     order.ID.String(),
		Notes: map[string]string{
			"order_id": order.ID.String(),
			"user_id":  order.UserID.String(),
		},
	})
	s.metrics.ObserveGatewayDuration("create_order", time.Since(started))
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:        order.ID,
		UserID:         order.UserID,
		GatewayOrderID: gatewayOrder.ID,
		Amount:         order.GrandTotal(),
		Currency:       order.Currency,
		Method:         order.PaymentMethod,
		Status:         enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment record")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":       payment.ID.String(),
		"order_id":         order.ID.String(),
		"gateway_order_id": gatewayOrder.ID,
	})
	s.logg.Info(logCtx, "payment intent created")

	return &PaymentIntent{
		PaymentID:      payment.ID,
		GatewayOrderID: gatewayOrder.ID,
		AmountMinor:    gatewayOrder.AmountMinor,
		Currency:       order.Currency,
		KeyID:          s.gateway.KeyID(),
	}, nil
}

// Verify settles a pending payment from the client-relayed gateway callback.
// A signature mismatch changes nothing; a valid, captured payment marks both
// the payment and its order paid in one transaction.
func (s *service) Verify(ctx context.Context, actor access.Actor, input VerifyInput) (*models.Payment, error) {
	if input.GatewayOrderID == "" || input.GatewayPaymentID == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order, payment, and signature are required")
	}

	payment, err := s.repo.FindByGatewayOrderID(ctx, input.GatewayOrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if input.OrderID != uuid.Nil && payment.OrderID != input.OrderID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to order")
	}
	if err := access.RequireOwner(actor, payment.UserID); err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment is already %s", payment.Status))
	}

	if !s.gateway.VerifyPaymentSignature(input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		s.metrics.IncVerification("signature_mismatch")
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_id": payment.ID.String(),
			"order_id":   payment.OrderID.String(),
		})
		s.logg.Warn(logCtx, "payment signature mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "payment signature mismatch")
	}

	started := time.Now()
	gatewayPayment, err := s.gateway.FetchPayment(ctx, input.GatewayPaymentID)
	s.metrics.ObserveGatewayDuration("fetch_payment", time.Since(started))
	if err != nil {
		s.metrics.IncVerification("gateway_error")
		return nil, err
	}
	if gatewayPayment.Status != razorpay.PaymentStatusCaptured {
		s.metrics.IncVerification("not_captured")
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("gateway payment is %s, expected captured", gatewayPayment.Status)).
			WithDetails(map[string]any{"gateway_payment_id": gatewayPayment.ID})
	}
	if gatewayPayment.AmountMinor != minorUnits(payment.Amount) {
		s.metrics.IncVerification("amount_mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway amount does not match payment").
			WithDetails(map[string]any{
				"expected": minorUnits(payment.Amount),
				"actual":   gatewayPayment.AmountMinor,
			})
	}

	now := time.Now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		err := repo.Update(ctx, payment.ID, map[string]any{
			"status":         enums.PaymentStatusCompleted,
			"paid_at":        now,
			"transaction_id": gatewayPayment.ID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payment")
		}
		err = orderRepo.Update(ctx, payment.OrderID, map[string]any{
			"is_paid": true,
			"paid_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}

		err = s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCaptured,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.PaymentCapturedEvent{
				PaymentID:      payment.ID,
				OrderID:        payment.OrderID,
				GatewayOrderID: payment.GatewayOrderID,
				TransactionID:  gatewayPayment.ID,
				Amount:         payment.Amount,
				Method:         payment.Method,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment captured event")
		}
		return nil
	})
	if err != nil {
		s.metrics.IncVerification("error")
		return nil, err
	}

	payment.Status = enums.PaymentStatusCompleted
	payment.PaidAt = &now
	payment.TransactionID = &gatewayPayment.ID

	s.metrics.IncVerification("success")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":     payment.ID.String(),
		"order_id":       payment.OrderID.String(),
		"transaction_id": gatewayPayment.ID,
	})
	s.logg.Info(logCtx, "payment verified and captured")
	return payment, nil
}

// Refund returns a completed payment in full. Admin only. The gateway call
// happens first; local state flips only after the gateway accepts, so a
// gateway failure leaves the payment untouched and retryable.
func (s *service) Refund(ctx context.Context, actor access.Actor, paymentID uuid.UUID, input RefundInput) (*models.Payment, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}

	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.IsRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is already refunded")
	}
	if payment.Status != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment is %s and cannot be refunded", payment.Status))
	}
	if payment.TransactionID == nil || *payment.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment has no gateway transaction")
	}

	started := time.Now()
	refund, err := s.gateway.CreateRefund(ctx, razorpay.RefundCreateParams{
		PaymentID:   *payment.TransactionID,
		AmountMinor: minorUnits(payment.Amount),
		Reason:      input.Reason,
		Notes:       map[string]string{"order_id": payment.OrderID.String()},
	})
	s.metrics.ObserveGatewayDuration("create_refund", time.Since(started))
	if err != nil {
		s.metrics.IncRefund("gateway_error")
		return nil, err
	}

	now := time.Now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		updates := map[string]any{
			"status":      enums.PaymentStatusRefunded,
			"is_refunded": true,
			"refund_id":   refund.ID,
			"refunded_at": now,
		}
		if input.Reason != "" {
			updates["refund_reason"] = input.Reason
		}
		if err := repo.Update(ctx, payment.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}

		// Only delivered orders move to the refunded status; an order still
		// in flight keeps its fulfillment status and is cancelled separately.
		order, err := orderRepo.FindByID(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == enums.OrderStatusDelivered {
			err = orderRepo.Update(ctx, order.ID, map[string]any{
				"status": enums.OrderStatusRefunded,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
			}
		}

		err = s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.PaymentRefundedEvent{
				PaymentID:  payment.ID,
				OrderID:    payment.OrderID,
				RefundID:   refund.ID,
				Amount:     payment.Amount,
				Reason:     input.Reason,
				RefundedAt: now,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment refunded event")
		}
		return nil
	})
	if err != nil {
		s.metrics.IncRefund("error")
		return nil, err
	}

	payment.Status = enums.PaymentStatusRefunded
	payment.IsRefunded = true
	payment.RefundID = &refund.ID
	payment.RefundedAt = &now
	if input.Reason != "" {
		payment.RefundReason = &input.Reason
	}

	s.metrics.IncRefund("success")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   payment.OrderID.String(),
		"refund_id":  refund.ID,
	})
	s.logg.Info(logCtx, "payment refunded")
	return payment, nil
}

// Get returns a payment record. Owners and admins only.
func (s *service) Get(ctx context.Context, actor access.Actor, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if err := access.RequireOwnerOrAdmin(actor, payment.UserID); err != nil {
		return nil, err
	}
	return payment, nil
}
