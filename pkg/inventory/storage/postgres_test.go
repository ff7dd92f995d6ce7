package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonet1337/pharmastock/pkg/inventory"
)

var entryColumns = []string{
	"id", "item_id", "location", "unit_cost", "pack_qty", "pill_qty", "created_at", "last_updated",
	"item_name", "item_weight", "pack_size", "reorder_level",
}

func newMockStorage(t *testing.T) (*PostgreSQLStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgreSQLStorageFromDB(sqlx.NewDb(db, "postgres"), zap.NewNop()), mock
}

func posKey() inventory.LotKey {
	return inventory.NewLotKey("ITEM-1", inventory.LocationPointOfSale, inventory.MustMoney("10"))
}

func TestPostgreSQLStorage_DecrementEntry(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// モック設定
	mock.ExpectQuery(`UPDATE ledger_entries SET pack_qty = pack_qty - \$4`).
		WithArgs("ITEM-1", "point_of_sale", sqlmock.AnyArg(), int64(5), now).
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("e-1", "ITEM-1", "point_of_sale", "10.00", 15, 0, now, now, "Paracetamol", "500mg", 10, 0))

	// テスト実行
	var entry *inventory.LedgerEntry
	err := store.View(ctx, func(q inventory.Queries) error {
		var err error
		entry, err = q.DecrementEntry(ctx, posKey(), 5, now)
		return err
	})

	// アサーション
	require.NoError(t, err)
	assert.Equal(t, int64(15), entry.PackQty)
	assert.Equal(t, inventory.LocationPointOfSale, entry.Location)
	assert.Equal(t, "10.00", entry.UnitCost.StringFixed(2))
	assert.Equal(t, "Paracetamol", entry.ItemName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_DecrementEntry_NoRowUpdated(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		want   error
	}{
		{"在庫不足", true, inventory.ErrInsufficientStock},
		{"エントリなし", false, inventory.ErrEntryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStorage(t)
			ctx := context.Background()

			mock.ExpectQuery(`UPDATE ledger_entries SET pack_qty = pack_qty - \$4`).
				WillReturnRows(sqlmock.NewRows(entryColumns))
			mock.ExpectQuery(`SELECT EXISTS`).
				WithArgs("ITEM-1", "point_of_sale", sqlmock.AnyArg()).
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			err := store.View(ctx, func(q inventory.Queries) error {
				_, err := q.DecrementEntry(ctx, posKey(), 50, time.Now())
				return err
			})

			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgreSQLStorage_WithinTx_RollsBackOnError(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(q inventory.Queries) error {
		return inventory.ErrInsufficientStock
	})

	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_WithinTx_CommitConflict(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "23505", Constraint: "sales_idempotency_key_key"})

	err := store.WithinTx(context.Background(), func(q inventory.Queries) error {
		return nil
	})

	assert.ErrorIs(t, err, inventory.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_CreateSale_DuplicateKey(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sales`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "sales_idempotency_key_key"})
	mock.ExpectRollback()

	err := store.WithinTx(ctx, func(q inventory.Queries) error {
		return q.CreateSale(ctx, &inventory.Sale{
			ID:             "sale-1",
			IdempotencyKey: "pos-1:0001",
			Total:          inventory.MustMoney("75"),
			CreatedAt:      time.Now(),
			CreatedBy:      "tester",
			Lines: []inventory.SaleLineItem{
				{ID: "line-1", SaleID: "sale-1", ItemID: "ITEM-1", Qty: 5},
			},
		})
	})

	assert.ErrorIs(t, err, inventory.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_CreateSale_WritesHeaderAndLines(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sales`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sale_items`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.WithinTx(ctx, func(q inventory.Queries) error {
		return q.CreateSale(ctx, &inventory.Sale{
			ID:        "sale-1",
			Total:     inventory.MustMoney("30"),
			CreatedAt: time.Now(),
			CreatedBy: "tester",
			Lines: []inventory.SaleLineItem{
				{ID: "line-1", SaleID: "sale-1", ItemID: "ITEM-1", Qty: 1, UnitSellPrice: inventory.MustMoney("15"), LineTotal: inventory.MustMoney("15")},
				{ID: "line-2", SaleID: "sale-1", ItemID: "ITEM-2", Qty: 1, UnitSellPrice: inventory.MustMoney("15"), LineTotal: inventory.MustMoney("15")},
			},
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_LatestBuyPrices(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT DISTINCT ON \(item_id\) item_id, buy_price`).
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "buy_price"}).
			AddRow("ITEM-1", "9.50").
			AddRow("ITEM-2", "1.10"))

	var prices map[string]string
	err := store.View(ctx, func(q inventory.Queries) error {
		result, err := q.LatestBuyPrices(ctx, []string{"ITEM-1", "ITEM-2", "ITEM-3"})
		if err != nil {
			return err
		}
		prices = make(map[string]string, len(result))
		for id, price := range result {
			prices[id] = price.StringFixed(2)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ITEM-1": "9.50", "ITEM-2": "1.10"}, prices)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_ResolveAlert_NotActive(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE stock_alerts SET is_active = FALSE`).
		WithArgs("alert-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.View(ctx, func(q inventory.Queries) error {
		return q.ResolveAlert(ctx, "alert-1", time.Now())
	})

	assert.ErrorIs(t, err, inventory.ErrAlertNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_GetItem_NotFound(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectQuery(`FROM items`).
		WithArgs("ITEM-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "weight", "pack_size", "reorder_level", "created_at"}))

	err := store.View(ctx, func(q inventory.Queries) error {
		_, err := q.GetItem(ctx, "ITEM-9")
		return err
	})

	assert.ErrorIs(t, err, inventory.ErrItemNotFound)
}

func TestPostgreSQLStorage_CreateItem_NameWeightConflict(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()

	// モック設定
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO items .* ON CONFLICT ON CONSTRAINT items_name_weight DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// テスト実行
	err := store.WithinTx(ctx, func(q inventory.Queries) error {
		return q.CreateItem(ctx, &inventory.Item{ID: "ITEM-2", Name: "Panadol", Weight: "500mg", CreatedAt: time.Now()})
	})

	// アサーション
	assert.ErrorIs(t, err, inventory.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_CreateItem_Inserted(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO items`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.View(ctx, func(q inventory.Queries) error {
		return q.CreateItem(ctx, &inventory.Item{ID: "ITEM-2", Name: "Panadol", Weight: "500mg", CreatedAt: time.Now()})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_CreateAlert_ActiveAlertExists(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO stock_alerts .* DO NOTHING`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.View(ctx, func(q inventory.Queries) error {
		return q.CreateAlert(ctx, &inventory.StockAlert{
			ID:        "alert-2",
			Type:      inventory.AlertTypeLowStock,
			Status:    inventory.StockStatusWarning,
			ItemID:    "ITEM-1",
			Location:  inventory.LocationPointOfSale,
			IsActive:  true,
			CreatedAt: time.Now(),
		})
	})

	assert.ErrorIs(t, err, inventory.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_GetSale_LinesInEntryOrder(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()
	soldAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM sales WHERE id = \$1`).
		WithArgs("sale-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "idempotency_key", "total_amount", "created_at", "created_by"}).
			AddRow("sale-1", "", "30.00", soldAt, "tester"))
	mock.ExpectQuery(`WHERE si.sale_id = \$1 ORDER BY si.line_no`).
		WithArgs("sale-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "sale_id", "line_no", "item_id", "qty", "unit_sell_price", "unit_cost", "line_total", "item_name", "sold_at",
		}).
			AddRow("f3a1", "sale-1", 1, "ITEM-2", 1, "20.00", "0", "20.00", "Cetirizine", soldAt).
			AddRow("0b7c", "sale-1", 2, "ITEM-1", 1, "10.00", "0", "10.00", "Paracetamol", soldAt))

	var sale *inventory.Sale
	err := store.View(ctx, func(q inventory.Queries) error {
		var err error
		sale, err = q.GetSale(ctx, "sale-1")
		return err
	})

	require.NoError(t, err)
	require.Len(t, sale.Lines, 2)
	assert.Equal(t, []string{"ITEM-2", "ITEM-1"}, []string{sale.Lines[0].ItemID, sale.Lines[1].ItemID})
	assert.Equal(t, 1, sale.Lines[0].LineNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"23505", inventory.ErrDuplicateKey},
		{"23514", inventory.ErrInsufficientStock},
		{"23503", inventory.ErrItemNotFound},
	}

	for _, tt := range tests {
		err := mapError(&pq.Error{Code: pq.ErrorCode(tt.code), Constraint: "c"})
		assert.ErrorIs(t, err, tt.want, tt.code)
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))

	serialization := &pq.Error{Code: "40001"}
	assert.Equal(t, error(serialization), mapError(serialization))
}

func TestNullableLimit(t *testing.T) {
	assert.Nil(t, nullableLimit(0))
	assert.Nil(t, nullableLimit(-1))
	assert.Equal(t, 10, nullableLimit(10))
}
