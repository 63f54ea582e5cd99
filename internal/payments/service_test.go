package payments

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nikhilbhat/swiftcart-backend/internal/access"
	"github.com/nikhilbhat/swiftcart-backend/internal/orders"
	"github.com/nikhilbhat/swiftcart-backend/pkg/db/models"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
	"github.com/nikhilbhat/swiftcart-backend/pkg/logger"
	"github.com/nikhilbhat/swiftcart-backend/pkg/outbox"
	"github.com/nikhilbhat/swiftcart-backend/pkg/razorpay"
	"github.com/nikhilbhat/swiftcart-backend/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type capturedEvents struct {
	events []outbox.DomainEvent
}

func (c *capturedEvents) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		panic("emit outside transaction")
	}
	c.events = append(c.events, event)
	return nil
}

// stubGateway fakes the provider: one canned payment and refund, and a single
// accepted signature value.
type stubGateway struct {
	createOrderCalls int
	gatewayPayment   *razorpay.Payment
	fetchErr         error
	refund           *razorpay.Refund
	refundErr        error
	validSignature   string
}

func (g *stubGateway) KeyID() string { return "rzp_test_1DP5mmOlF5G5ag" }

func (g *stubGateway) CreateOrder(_ context.Context, params razorpay.OrderCreateParams) (*razorpay.Order, error) {
	g.createOrderCalls++
	return &razorpay.Order{
		ID:          "order_stub_001",
		AmountMinor: params.AmountMinor,
		Currency:    params.Currency.String(),
		Receipt:     params.Receipt,
		Status:      razorpay.OrderStatusCreated,
	}, nil
}

func (g *stubGateway) FetchPayment(_ context.Context, paymentID string) (*razorpay.Payment, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	payment := *g.gatewayPayment
	payment.ID = paymentID
	return &payment, nil
}

func (g *stubGateway) CreateRefund(_ context.Context, params razorpay.RefundCreateParams) (*razorpay.Refund, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	refund := *g.refund
	refund.PaymentID = params.PaymentID
	refund.AmountMinor = params.AmountMinor
	return &refund, nil
}

func (g *stubGateway) VerifyPaymentSignature(_, _, signature string) bool {
	return signature == g.validSignature
}

func setupPaymentTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'processing',
  currency TEXT NOT NULL DEFAULT 'INR',
  payment_method TEXT NOT NULL DEFAULT 'card',
  shipping_address TEXT NOT NULL,
  items_amount NUMERIC NOT NULL,
  tax_amount NUMERIC NOT NULL DEFAULT 0,
  shipping_amount NUMERIC NOT NULL DEFAULT 0,
  total_amount NUMERIC NOT NULL,
  is_paid INTEGER NOT NULL DEFAULT 0,
  paid_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  current_location TEXT,
  estimated_delivery_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price NUMERIC NOT NULL,
  quantity INTEGER NOT NULL,
  image_url TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  gateway_order_id TEXT NOT NULL UNIQUE,
  transaction_id TEXT,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT 'INR',
  method TEXT NOT NULL DEFAULT 'card',
  status TEXT NOT NULL DEFAULT 'pending',
  paid_at DATETIME,
  is_refunded INTEGER NOT NULL DEFAULT 0,
  refund_id TEXT,
  refund_reason TEXT,
  refunded_at DATETIME,
  failure_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type paymentTestRig struct {
	db      *gorm.DB
	svc     Service
	repo    Repository
	orders  orders.Repository
	gateway *stubGateway
	events  *capturedEvents
}

func newPaymentTestRig(t *testing.T) *paymentTestRig {
	t.Helper()

	db := setupPaymentTestDB(t)
	gw := &stubGateway{
		gatewayPayment: &razorpay.Payment{
			Status: razorpay.PaymentStatusCaptured,
		},
		refund:         &razorpay.Refund{ID: "rfnd_stub_001", Status: razorpay.RefundStatusProcessed},
		validSignature: "good-signature",
	}
	events := &capturedEvents{}
	repo := NewRepository(db)
	orderRepo := orders.NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})

	svc, err := NewService(repo, orderRepo, gw, gormTxRunner{db: db}, events, nil, logg)
	require.NoError(t, err)

	return &paymentTestRig{db: db, svc: svc, repo: repo, orders: orderRepo, gateway: gw, events: events}
}

func (r *paymentTestRig) seedOrder(t *testing.T, userID uuid.UUID, total string, status enums.OrderStatus) *models.Order {
	t.Helper()
	amount := decimal.RequireFromString(total)
	order := &models.Order{
		UserID:        userID,
		Status:        status,
		Currency:      enums.CurrencyINR,
		PaymentMethod: enums.PaymentMethodUPI,
		ShippingAddress: types.Address{
			Line1:      "14 MG Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560001",
			Country:    "IN",
		},
		ItemsAmount: amount,
		TotalAmount: amount,
	}
	require.NoError(t, r.orders.Create(context.Background(), order))
	return order
}

func (r *paymentTestRig) reloadPayment(t *testing.T, id uuid.UUID) *models.Payment {
	t.Helper()
	payment, err := r.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return payment
}

func (r *paymentTestRig) reloadOrder(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := r.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func TestCreateIntentOpensGatewayOrderOnce(t *testing.T) {
	rig := newPaymentTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	order := rig.seedOrder(t, actor.UserID, "499.00", enums.OrderStatusProcessing)

	intent, err := rig.svc.CreateIntent(context.Background(), actor, CreateIntentInput{OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, "order_stub_001", intent.GatewayOrderID)
	require.Equal(t, int64(49900), intent.AmountMinor)
	require.Equal(t, enums.CurrencyINR, intent.Currency)
	require.NotEmpty(t, intent.KeyID)

	payment := rig.reloadPayment(t, intent.PaymentID)
	require.Equal(t, enums.PaymentStatusPending, payment.Status)
	require.Equal(t, order.ID, payment.OrderID)

	// A second intent for the same order reuses the open attempt.
	again, err := rig.svc.CreateIntent(context.Background(), actor, CreateIntentInput{OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, intent.PaymentID, again.PaymentID)
	require.Equal(t, 1, rig.gateway.createOrderCalls)
}

func TestCreateIntentGuards(t *testing.T) {
	rig := newPaymentTestRig(t)
	owner := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	stranger := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}

	_, err := rig.svc.CreateIntent(context.Background(), owner, CreateIntentInput{OrderID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeNotFound)

	order := rig.seedOrder(t, owner.UserID, "100.00", enums.OrderStatusProcessing)
	_, err = rig.svc.CreateIntent(context.Background(), stranger, CreateIntentInput{OrderID: order.ID})
	requireCode(t, err, pkgerrors.CodeForbidden)

	require.NoError(t, rig.orders.Update(context.Background(), order.ID, map[string]any{"is_paid": true}))
	_, err = rig.svc.CreateIntent(context.Background(), owner, CreateIntentInput{OrderID: order.ID})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	cancelled := rig.seedOrder(t, owner.UserID, "50.00", enums.OrderStatusCancelled)
	_, err = rig.svc.CreateIntent(context.Background(), owner, CreateIntentInput{OrderID: cancelled.ID})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestVerifySettlesPaymentAndOrder(t *testing.T) {
	rig := newPaymentTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	order := rig.seedOrder(t, actor.UserID, "250.00", enums.OrderStatusProcessing)
	rig.gateway.gatewayPayment.AmountMinor = 25000

	intent, err := rig.svc.CreateIntent(context.Background(), actor, CreateIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	settled, err := rig.svc.Verify(context.Background(), actor, VerifyInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_stub_001",
		Signature:        "good-signature",
	})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, settled.Status)
	require.NotNil(t, settled.PaidAt)
	require.NotNil(t, settled.TransactionID)
	require.Equal(t, "pay_stub_001", *settled.TransactionID)

	reloaded := rig.reloadOrder(t, order.ID)
	require.True(t, reloaded.IsPaid)
	require.NotNil(t, reloaded.PaidAt)

	require.Len(t, rig.events.events, 1)
	require.Equal(t, enums.EventPaymentCaptured, rig.events.events[0].EventType)

	// Settling twice is a state conflict.
	_, err = rig.svc.Verify(context.Background(), actor, VerifyInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_stub_001",
		Signature:        "good-signature",
	})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestVerifyBadSignatureChangesNothing(t *testing.T) {
	rig := newPaymentTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	order := rig.seedOrder(t, actor.UserID, "250.00", enums.OrderStatusProcessing)

	intent, err := rig.svc.CreateIntent(context.Background(), actor, CreateIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	_, err = rig.svc.Verify(context.Background(), actor, VerifyInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_stub_001",
		Signature:        "tampered",
	})
	requireCode(t, err, pkgerrors.CodeInvalidSignature)

	payment := rig.reloadPayment(t, intent.PaymentID)
	require.Equal(t, enums.PaymentStatusPending, payment.Status)
	require.False(t, rig.reloadOrder(t, order.ID).IsPaid)
	require.Empty(t, rig.events.events)
}

func TestVerifyAmountMismatchRejected(t *testing.T) {
	rig := newPaymentTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	order := rig.seedOrder(t, actor.UserID, "250.00", enums.OrderStatusProcessing)
	rig.gateway.gatewayPayment.AmountMinor = 9900 // gateway says less than owed

	intent, err := rig.svc.CreateIntent(context.Background(), actor, CreateIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	_, err = rig.svc.Verify(context.Background(), actor, VerifyInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_stub_001",
		Signature:        "good-signature",
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Equal(t, enums.PaymentStatusPending, rig.reloadPayment(t, intent.PaymentID).Status)
}

func TestVerifyUncapturedPaymentRejected(t *testing.T) {
	rig := newPaymentTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	order := rig.seedOrder(t, actor.UserID, "250.00", enums.OrderStatusProcessing)
	rig.gateway.gatewayPayment.Status = razorpay.PaymentStatusFailed
	rig.gateway.gatewayPayment.AmountMinor = 25000

	intent, err := rig.svc.CreateIntent(context.Background(), actor, CreateIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	_, err = rig.svc.Verify(context.Background(), actor, VerifyInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_stub_001",
		Signature:        "good-signature",
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.False(t, rig.reloadOrder(t, order.ID).IsPaid)
}

func TestRefundCompletesOnceAndOnlyWhenCompleted(t *testing.T) {
	rig := newPaymentTestRig(t)
	customer := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	admin := access.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	order := rig.seedOrder(t, customer.UserID, "250.00", enums.OrderStatusProcessing)
	rig.gateway.gatewayPayment.AmountMinor = 25000

	intent, err := rig.svc.CreateIntent(context.Background(), customer, CreateIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	// Pending payments cannot be refunded.
	_, err = rig.svc.Refund(context.Background(), admin, intent.PaymentID, RefundInput{Reason: "early"})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = rig.svc.Verify(context.Background(), customer, VerifyInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_stub_001",
		Signature:        "good-signature",
	})
	require.NoError(t, err)

	// Customers cannot refund.
	_, err = rig.svc.Refund(context.Background(), customer, intent.PaymentID, RefundInput{})
	requireCode(t, err, pkgerrors.CodeForbidden)

	refunded, err := rig.svc.Refund(context.Background(), admin, intent.PaymentID, RefundInput{Reason: "damaged item"})
	require.NoError(t, err)
	require.True(t, refunded.IsRefunded)
	require.Equal(t, enums.PaymentStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundID)
	require.Equal(t, "rfnd_stub_001", *refunded.RefundID)

	// The order was still in flight, so its fulfillment status is untouched.
	require.Equal(t, enums.OrderStatusProcessing, rig.reloadOrder(t, order.ID).Status)

	_, err = rig.svc.Refund(context.Background(), admin, intent.PaymentID, RefundInput{})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestRefundDeliveredOrderBecomesRefunded(t *testing.T) {
	rig := newPaymentTestRig(t)
	customer := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	admin := access.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	order := rig.seedOrder(t, customer.UserID, "99.00", enums.OrderStatusProcessing)
	rig.gateway.gatewayPayment.AmountMinor = 9900

	intent, err := rig.svc.CreateIntent(context.Background(), customer, CreateIntentInput{OrderID: order.ID})
	require.NoError(t, err)
	_, err = rig.svc.Verify(context.Background(), customer, VerifyInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_stub_001",
		Signature:        "good-signature",
	})
	require.NoError(t, err)
	require.NoError(t, rig.orders.Update(context.Background(), order.ID,
		map[string]any{"status": enums.OrderStatusDelivered}))

	_, err = rig.svc.Refund(context.Background(), admin, intent.PaymentID, RefundInput{Reason: "returned"})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusRefunded, rig.reloadOrder(t, order.ID).Status)
}

func TestRefundGatewayFailureLeavesPaymentUntouched(t *testing.T) {
	rig := newPaymentTestRig(t)
	customer := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	admin := access.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	order := rig.seedOrder(t, customer.UserID, "99.00", enums.OrderStatusProcessing)
	rig.gateway.gatewayPayment.AmountMinor = 9900

	intent, err := rig.svc.CreateIntent(context.Background(), customer, CreateIntentInput{OrderID: order.ID})
	require.NoError(t, err)
	_, err = rig.svc.Verify(context.Background(), customer, VerifyInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_stub_001",
		Signature:        "good-signature",
	})
	require.NoError(t, err)

	rig.gateway.refundErr = pkgerrors.New(pkgerrors.CodeDependency, "gateway unavailable")
	_, err = rig.svc.Refund(context.Background(), admin, intent.PaymentID, RefundInput{})
	requireCode(t, err, pkgerrors.CodeDependency)

	payment := rig.reloadPayment(t, intent.PaymentID)
	require.False(t, payment.IsRefunded)
	require.Equal(t, enums.PaymentStatusCompleted, payment.Status)

	// Retry succeeds once the gateway recovers.
	rig.gateway.refundErr = nil
	_, err = rig.svc.Refund(context.Background(), admin, intent.PaymentID, RefundInput{})
	require.NoError(t, err)
}

func requireCode(t *testing.T, err error, want pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, want, typed.Code())
}
