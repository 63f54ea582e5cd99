package orders

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nikhilbhat/swiftcart-backend/internal/access"
	"github.com/nikhilbhat/swiftcart-backend/internal/cart"
	"github.com/nikhilbhat/swiftcart-backend/internal/catalog"
	"github.com/nikhilbhat/swiftcart-backend/internal/inventory"
	"github.com/nikhilbhat/swiftcart-backend/pkg/config"
	"github.com/nikhilbhat/swiftcart-backend/pkg/db/models"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
	"github.com/nikhilbhat/swiftcart-backend/pkg/logger"
	"github.com/nikhilbhat/swiftcart-backend/pkg/outbox"
	"github.com/nikhilbhat/swiftcart-backend/pkg/pagination"
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

func (c *capturedEvents) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	for _, existing := range c.events {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			return nil
		}
	}
	return c.Emit(ctx, tx, event)
}

func (c *capturedEvents) ofType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	var matched []outbox.DomainEvent
	for _, event := range c.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func setupOrderTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A plain ":memory:" DSN gives every pooled connection its own empty
	// database; a named shared-cache DSN keeps all connections on one DB.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  shop_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  price NUMERIC NOT NULL,
  final_price NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT 'INR',
  images TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE inventory_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
		`CREATE TABLE cart_records (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  currency TEXT NOT NULL DEFAULT 'INR',
  total_items INTEGER NOT NULL DEFAULT 0,
  total_amount NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  shop_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price NUMERIC NOT NULL,
  final_price NUMERIC NOT NULL,
  image_url TEXT,
  quantity INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
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
  gateway_order_id TEXT NOT NULL,
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
		`CREATE TABLE location_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  point TEXT NOT NULL,
  status TEXT NOT NULL,
  description TEXT,
  recorded_at DATETIME NOT NULL
);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type orderTestRig struct {
	db     *gorm.DB
	svc    Service
	carts  cart.Repository
	ledger inventory.Ledger
	events *capturedEvents
}

func newOrderTestRig(t *testing.T) *orderTestRig {
	t.Helper()

	db := setupOrderTestDB(t)
	ledger, err := inventory.NewLedger(db)
	require.NoError(t, err)

	events := &capturedEvents{}
	carts := cart.NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})

	svc, err := NewService(
		NewRepository(db),
		carts,
		catalog.NewRepository(db),
		ledger,
		gormTxRunner{db: db},
		events,
		nil,
		config.CheckoutConfig{DefaultTaxAmount: "0", DefaultShippingAmount: "0"},
		logg,
	)
	require.NoError(t, err)

	return &orderTestRig{db: db, svc: svc, carts: carts, ledger: ledger, events: events}
}

func (r *orderTestRig) seedProduct(t *testing.T, name, price string, qty int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		ShopID:     uuid.New(),
		Name:       name,
		Price:      decimal.RequireFromString(price),
		FinalPrice: decimal.RequireFromString(price),
		Currency:   enums.CurrencyINR,
		IsActive:   true,
	}
	require.NoError(t, r.db.Exec(
		"INSERT INTO products (id, shop_id, name, price, final_price, currency, is_active) VALUES (?, ?, ?, ?, ?, ?, 1)",
		product.ID, product.ShopID, product.Name, product.Price, product.FinalPrice, product.Currency,
	).Error)
	require.NoError(t, r.db.Exec(
		"INSERT INTO inventory_items (product_id, available_qty) VALUES (?, ?)",
		product.ID, qty,
	).Error)
	return product
}

func (r *orderTestRig) seedCart(t *testing.T, userID uuid.UUID, lines ...models.CartItem) *models.CartRecord {
	t.Helper()
	record, err := r.carts.Create(context.Background(), &models.CartRecord{
		UserID:   userID,
		Status:   enums.CartStatusActive,
		Currency: enums.CurrencyINR,
	})
	require.NoError(t, err)

	total := decimal.Zero
	count := 0
	for i := range lines {
		lines[i].CartID = record.ID
		require.NoError(t, r.carts.CreateItem(context.Background(), &lines[i]))
		total = total.Add(lines[i].LineTotal())
		count += lines[i].Quantity
	}
	require.NoError(t, r.carts.UpdateTotals(context.Background(), record.ID, count, total))
	return record
}

func (r *orderTestRig) stockOf(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	qty, err := r.ledger.Available(context.Background(), productID)
	require.NoError(t, err)
	return qty
}

func cartLine(product *models.Product, qty int) models.CartItem {
	return models.CartItem{
		ProductID:  product.ID,
		ShopID:     product.ShopID,
		Name:       product.Name,
		Price:      product.Price,
		FinalPrice: product.FinalPrice,
		Quantity:   qty,
	}
}

func testAddress() types.Address {
	return types.Address{
		Line1:      "14 MG Road",
		City:       "Bengaluru",
		State:      "Karnataka",
		PostalCode: "560001",
	}
}

func checkoutInput(tax, shipping string) CreateFromCartInput {
	taxAmount := decimal.RequireFromString(tax)
	shippingAmount := decimal.RequireFromString(shipping)
	return CreateFromCartInput{
		ShippingAddress: testAddress(),
		PaymentMethod:   enums.PaymentMethodUPI,
		TaxAmount:       &taxAmount,
		ShippingAmount:  &shippingAmount,
	}
}

func TestCreateFromCartSnapshotsAndDecrementsStock(t *testing.T) {
	rig := newOrderTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	product := rig.seedProduct(t, "Steel Bottle 1L", "10.00", 3)
	cartRecord := rig.seedCart(t, actor.UserID, cartLine(product, 3))

	order, err := rig.svc.CreateFromCart(context.Background(), actor, checkoutInput("1.00", "2.00"))
	require.NoError(t, err)

	require.Equal(t, enums.OrderStatusProcessing, order.Status)
	require.Len(t, order.Items, 1)
	require.Equal(t, product.ID, order.Items[0].ProductID)
	require.Equal(t, 3, order.Items[0].Quantity)
	require.True(t, order.ItemsAmount.Equal(decimal.RequireFromString("30.00")), order.ItemsAmount.String())
	require.True(t, order.TotalAmount.Equal(decimal.RequireFromString("33.00")), order.TotalAmount.String())

	require.Equal(t, 0, rig.stockOf(t, product.ID))

	// The cart record itself survives, emptied.
	reloaded, err := rig.carts.FindByID(context.Background(), cartRecord.ID)
	require.NoError(t, err)
	require.Empty(t, reloaded.Items)
	require.Equal(t, 0, reloaded.TotalItems)
	require.True(t, reloaded.TotalAmount.IsZero())

	require.Len(t, rig.events.ofType(enums.EventOrderCreated), 1)
	require.Len(t, rig.events.ofType(enums.EventOrderConfirmationEmail), 1)
}

func TestCreateFromCartEmptyCartRejected(t *testing.T) {
	rig := newOrderTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}

	_, err := rig.svc.CreateFromCart(context.Background(), actor, checkoutInput("0", "0"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())

	// Same outcome when the cart exists but holds nothing.
	rig.seedCart(t, actor.UserID)
	_, err = rig.svc.CreateFromCart(context.Background(), actor, checkoutInput("0", "0"))
	require.Error(t, err)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestCreateFromCartInsufficientStockRollsBackEverything(t *testing.T) {
	rig := newOrderTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	plenty := rig.seedProduct(t, "Notebook A5", "5.00", 10)
	scarce := rig.seedProduct(t, "Desk Lamp", "40.00", 1)
	cartRecord := rig.seedCart(t, actor.UserID, cartLine(plenty, 2), cartLine(scarce, 2))

	_, err := rig.svc.CreateFromCart(context.Background(), actor, checkoutInput("0", "0"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	// Nothing moved: both stocks intact, cart intact, no order rows.
	require.Equal(t, 10, rig.stockOf(t, plenty.ID))
	require.Equal(t, 1, rig.stockOf(t, scarce.ID))

	reloaded, err := rig.carts.FindByID(context.Background(), cartRecord.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 2)

	var orderCount int64
	require.NoError(t, rig.db.Model(&models.Order{}).Count(&orderCount).Error)
	require.Zero(t, orderCount)
	require.Empty(t, rig.events.events)
}

func TestCreateFromCartInactiveProductRejected(t *testing.T) {
	rig := newOrderTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	product := rig.seedProduct(t, "Retired Poster", "15.00", 5)
	rig.seedCart(t, actor.UserID, cartLine(product, 1))
	require.NoError(t, rig.db.Exec("UPDATE products SET is_active = 0 WHERE id = ?", product.ID).Error)

	_, err := rig.svc.CreateFromCart(context.Background(), actor, checkoutInput("0", "0"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	require.Equal(t, 5, rig.stockOf(t, product.ID))
}

func TestUpdateStatusWalksForwardOnly(t *testing.T) {
	rig := newOrderTestRig(t)
	customer := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	admin := access.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	product := rig.seedProduct(t, "Ceramic Mug", "8.00", 4)
	rig.seedCart(t, customer.UserID, cartLine(product, 1))

	order, err := rig.svc.CreateFromCart(context.Background(), customer, checkoutInput("0", "0"))
	require.NoError(t, err)

	updated, err := rig.svc.UpdateStatus(context.Background(), admin, order.ID, enums.OrderStatusPacked)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPacked, updated.Status)

	// Backwards is refused.
	_, err = rig.svc.UpdateStatus(context.Background(), admin, order.ID, enums.OrderStatusProcessing)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	// Customers cannot drive fulfillment.
	_, err = rig.svc.UpdateStatus(context.Background(), customer, order.ID, enums.OrderStatusShipped)
	require.Error(t, err)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	require.Len(t, rig.events.ofType(enums.EventOrderStatusChanged), 1)
}

func TestUpdateStatusDeliveredStampsAndEmits(t *testing.T) {
	rig := newOrderTestRig(t)
	customer := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	admin := access.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	product := rig.seedProduct(t, "Wall Clock", "25.00", 2)
	rig.seedCart(t, customer.UserID, cartLine(product, 1))

	order, err := rig.svc.CreateFromCart(context.Background(), customer, checkoutInput("0", "0"))
	require.NoError(t, err)

	delivered, err := rig.svc.UpdateStatus(context.Background(), admin, order.ID, enums.OrderStatusDelivered)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	require.Len(t, rig.events.ofType(enums.EventOrderDelivered), 1)

	// Delivered is terminal for fulfillment updates.
	_, err = rig.svc.UpdateStatus(context.Background(), admin, order.ID, enums.OrderStatusShipped)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestCancelRestoresStockAtomically(t *testing.T) {
	rig := newOrderTestRig(t)
	customer := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	product := rig.seedProduct(t, "Yoga Mat", "20.00", 6)
	rig.seedCart(t, customer.UserID, cartLine(product, 4))

	order, err := rig.svc.CreateFromCart(context.Background(), customer, checkoutInput("0", "0"))
	require.NoError(t, err)
	require.Equal(t, 2, rig.stockOf(t, product.ID))

	cancelled, err := rig.svc.Cancel(context.Background(), customer, order.ID, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Equal(t, 6, rig.stockOf(t, product.ID))
	require.Len(t, rig.events.ofType(enums.EventOrderCancelled), 1)

	// Cancelling twice is a state conflict and must not restore again.
	_, err = rig.svc.Cancel(context.Background(), customer, order.ID, "again")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Equal(t, 6, rig.stockOf(t, product.ID))
}

func TestCancelForeignOrderForbidden(t *testing.T) {
	rig := newOrderTestRig(t)
	owner := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	stranger := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	product := rig.seedProduct(t, "Table Fan", "30.00", 3)
	rig.seedCart(t, owner.UserID, cartLine(product, 1))

	order, err := rig.svc.CreateFromCart(context.Background(), owner, checkoutInput("0", "0"))
	require.NoError(t, err)

	_, err = rig.svc.Cancel(context.Background(), stranger, order.ID, "")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	// Admins may cancel on the owner's behalf.
	admin := access.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	cancelled, err := rig.svc.Cancel(context.Background(), admin, order.ID, "support request")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, 3, rig.stockOf(t, product.ID))
}

func TestGetEnforcesOwnership(t *testing.T) {
	rig := newOrderTestRig(t)
	owner := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	stranger := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	product := rig.seedProduct(t, "Reading Light", "12.50", 2)
	rig.seedCart(t, owner.UserID, cartLine(product, 2))

	order, err := rig.svc.CreateFromCart(context.Background(), owner, checkoutInput("0", "0"))
	require.NoError(t, err)

	fetched, err := rig.svc.Get(context.Background(), owner, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, fetched.ID)
	require.Len(t, fetched.Items, 1)

	_, err = rig.svc.Get(context.Background(), stranger, order.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	_, err = rig.svc.Get(context.Background(), owner, uuid.New())
	require.Error(t, err)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestListPagesNewestFirst(t *testing.T) {
	rig := newOrderTestRig(t)
	actor := access.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	product := rig.seedProduct(t, "Spice Jar Set", "6.00", 100)

	// Checkout empties the cart but keeps it active, so one record serves
	// every round.
	cartRecord := rig.seedCart(t, actor.UserID)
	for i := 0; i < 5; i++ {
		line := cartLine(product, 1)
		line.CartID = cartRecord.ID
		require.NoError(t, rig.carts.CreateItem(context.Background(), &line))
		require.NoError(t, rig.carts.UpdateTotals(context.Background(), cartRecord.ID, 1, line.LineTotal()))
		_, err := rig.svc.CreateFromCart(context.Background(), actor, checkoutInput("0", "0"))
		require.NoError(t, err)
	}

	page1, err := rig.svc.List(context.Background(), actor, pagination.Params{Limit: 3}, ListFilter{})
	require.NoError(t, err)
	require.Len(t, page1.Orders, 3)
	require.NotEmpty(t, page1.NextCursor)

	page2, err := rig.svc.List(context.Background(), actor,
		pagination.Params{Limit: 3, Cursor: page1.NextCursor}, ListFilter{})
	require.NoError(t, err)
	require.Len(t, page2.Orders, 2)
	require.Empty(t, page2.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, o := range append(page1.Orders, page2.Orders...) {
		require.False(t, seen[o.ID], "order repeated across pages")
		seen[o.ID] = true
	}
}

func TestCheckTransitionTable(t *testing.T) {
	cases := []struct {
		name    string
		from    enums.OrderStatus
		to      enums.OrderStatus
		wantErr bool
	}{
		{"processing to packed", enums.OrderStatusProcessing, enums.OrderStatusPacked, false},
		{"packed to shipped", enums.OrderStatusPacked, enums.OrderStatusShipped, false},
		{"skip ahead", enums.OrderStatusProcessing, enums.OrderStatusDelivered, false},
		{"shipped to cancelled", enums.OrderStatusShipped, enums.OrderStatusCancelled, false},
		{"backwards", enums.OrderStatusShipped, enums.OrderStatusPacked, true},
		{"same status", enums.OrderStatusPacked, enums.OrderStatusPacked, true},
		{"delivered is terminal", enums.OrderStatusDelivered, enums.OrderStatusCancelled, true},
		{"cancelled is terminal", enums.OrderStatusCancelled, enums.OrderStatusPacked, true},
		{"refunded is terminal", enums.OrderStatusRefunded, enums.OrderStatusPacked, true},
		{"refund edge is off limits", enums.OrderStatusDelivered, enums.OrderStatusRefunded, true},
		{"unknown target", enums.OrderStatusProcessing, enums.OrderStatus("misplaced"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckTransition(tc.from, tc.to)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
