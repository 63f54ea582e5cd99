package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE inventory_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func seedStock(t *testing.T, db *gorm.DB, productID uuid.UUID, qty int) {
	t.Helper()
	require.NoError(t, db.Exec(
		"INSERT INTO inventory_items (product_id, available_qty) VALUES (?, ?)",
		productID, qty,
	).Error)
}

func stockOf(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var qty int
	require.NoError(t, db.Raw(
		"SELECT available_qty FROM inventory_items WHERE product_id = ?", productID,
	).Scan(&qty).Error)
	return qty
}

func TestReserveDecrementsStock(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger, err := NewLedger(db)
	require.NoError(t, err)

	productID := uuid.New()
	seedStock(t, db, productID, 5)

	require.NoError(t, ledger.Reserve(context.Background(), db, productID, 3))
	require.Equal(t, 2, stockOf(t, db, productID))
}

func TestReserveFailsWhenInsufficient(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger, err := NewLedger(db)
	require.NoError(t, err)

	productID := uuid.New()
	seedStock(t, db, productID, 2)

	err = ledger.Reserve(context.Background(), db, productID, 3)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	// stock untouched on failure
	require.Equal(t, 2, stockOf(t, db, productID))
}

func TestReserveUnknownProduct(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger, err := NewLedger(db)
	require.NoError(t, err)

	err = ledger.Reserve(context.Background(), db, uuid.New(), 1)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
}

func TestReserveToZeroThenFail(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger, err := NewLedger(db)
	require.NoError(t, err)

	productID := uuid.New()
	seedStock(t, db, productID, 3)

	require.NoError(t, ledger.Reserve(context.Background(), db, productID, 3))
	require.Equal(t, 0, stockOf(t, db, productID))

	err = ledger.Reserve(context.Background(), db, productID, 1)
	require.Error(t, err)
}

func TestRestoreIncrementsStock(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger, err := NewLedger(db)
	require.NoError(t, err)

	productID := uuid.New()
	seedStock(t, db, productID, 1)

	require.NoError(t, ledger.Restore(context.Background(), db, productID, 4))
	require.Equal(t, 5, stockOf(t, db, productID))

	// zero and negative quantities are no-ops
	require.NoError(t, ledger.Restore(context.Background(), db, productID, 0))
	require.Equal(t, 5, stockOf(t, db, productID))
}

func TestRestoreUnknownProduct(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger, err := NewLedger(db)
	require.NoError(t, err)

	err = ledger.Restore(context.Background(), db, uuid.New(), 2)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestAvailable(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger, err := NewLedger(db)
	require.NoError(t, err)

	productID := uuid.New()
	seedStock(t, db, productID, 7)

	qty, err := ledger.Available(context.Background(), productID)
	require.NoError(t, err)
	require.Equal(t, 7, qty)

	_, err = ledger.Available(context.Background(), uuid.New())
	require.Error(t, err)
}
