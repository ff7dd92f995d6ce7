package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/pharmastock/pkg/inventory"
)

// PoolOptions configures the connection pool
// 接続プール設定
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolOptions returns the pool settings used when none are configured
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// PostgreSQLStorage implements the Storage interface using PostgreSQL
// PostgreSQLを使用したStorageインターフェースの実装
type PostgreSQLStorage struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var (
	_ inventory.Storage = (*PostgreSQLStorage)(nil)
	_ inventory.Queries = (*pgQueries)(nil)
)

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
// 新しいPostgreSQLストレージインスタンスを作成
func NewPostgreSQLStorage(ctx context.Context, dsn string, pool PoolOptions, logger *zap.Logger) (*PostgreSQLStorage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	return NewPostgreSQLStorageFromDB(db, logger), nil
}

// NewPostgreSQLStorageFromDB wraps an existing connection
// 既存の接続からストレージを作成
func NewPostgreSQLStorageFromDB(db *sqlx.DB, logger *zap.Logger) *PostgreSQLStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgreSQLStorage{db: db, logger: logger}
}

// WithinTx executes fn within a database transaction
// トランザクション内でfnを実行
func (s *PostgreSQLStorage) WithinTx(ctx context.Context, fn func(q inventory.Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}

	if err := fn(&pgQueries{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("トランザクションのロールバックに失敗しました", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("トランザクションのコミットに失敗しました: %w", err))
	}
	return nil
}

// View runs fn on the connection pool without a transaction
func (s *PostgreSQLStorage) View(ctx context.Context, fn func(q inventory.Queries) error) error {
	return fn(&pgQueries{ext: s.db})
}

// Ping checks the database connection
func (s *PostgreSQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}

// mapError converts PostgreSQL constraint violations into inventory errors
// PostgreSQLの制約違反を在庫エラーに変換
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case "23505": // unique_violation
		return fmt.Errorf("%w: %s", inventory.ErrDuplicateKey, pqErr.Constraint)
	case "23514": // check_violation
		return fmt.Errorf("%w: %s", inventory.ErrInsufficientStock, pqErr.Constraint)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%w: %s", inventory.ErrItemNotFound, pqErr.Constraint)
	}
	return err
}

// noRowInserted turns an ON CONFLICT DO NOTHING that skipped the row into ErrDuplicateKey
func noRowInserted(result sql.Result, constraint string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("影響行数の取得に失敗しました: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrDuplicateKey, constraint)
	}
	return nil
}

// pgQueries runs the row operations against either the pool or a transaction
type pgQueries struct {
	ext sqlx.ExtContext
}

const entrySelect = `
	SELECT e.id, e.item_id, e.location, e.unit_cost, e.pack_qty, e.pill_qty, e.created_at, e.last_updated,
	       i.name AS item_name, i.weight AS item_weight, i.pack_size, i.reorder_level
	FROM %s e
	JOIN items i ON i.id = e.item_id`

// 商品操作

func (q *pgQueries) FindItems(ctx context.Context, name, weight string) ([]inventory.Item, error) {
	query := `
		SELECT id, name, weight, pack_size, reorder_level, created_at
		FROM items
		WHERE name = $1 AND weight = $2
		ORDER BY created_at`

	items := []inventory.Item{}
	if err := sqlx.SelectContext(ctx, q.ext, &items, query, name, weight); err != nil {
		return nil, fmt.Errorf("商品検索に失敗しました: %w", err)
	}
	return items, nil
}

func (q *pgQueries) GetItem(ctx context.Context, itemID string) (*inventory.Item, error) {
	query := `
		SELECT id, name, weight, pack_size, reorder_level, created_at
		FROM items
		WHERE id = $1`

	item := &inventory.Item{}
	if err := sqlx.GetContext(ctx, q.ext, item, query, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrItemNotFound
		}
		return nil, fmt.Errorf("商品取得に失敗しました: %w", err)
	}
	return item, nil
}

// CreateItem inserts an item. When another transaction already holds the
// same name and weight the insert waits for it and reports ErrDuplicateKey.
func (q *pgQueries) CreateItem(ctx context.Context, item *inventory.Item) error {
	query := `
		INSERT INTO items (id, name, weight, pack_size, reorder_level, created_at)
		VALUES (:id, :name, :weight, :pack_size, :reorder_level, :created_at)
		ON CONFLICT ON CONSTRAINT items_name_weight DO NOTHING`

	result, err := sqlx.NamedExecContext(ctx, q.ext, query, item)
	if err != nil {
		return mapError(fmt.Errorf("商品作成に失敗しました: %w", err))
	}
	return noRowInserted(result, "items_name_weight")
}

// 台帳操作

func (q *pgQueries) GetEntry(ctx context.Context, key inventory.LotKey) (*inventory.LedgerEntry, error) {
	query := fmt.Sprintf(entrySelect, "ledger_entries") + `
		WHERE e.item_id = $1 AND e.location = $2 AND e.unit_cost = $3`

	entry := &inventory.LedgerEntry{}
	if err := sqlx.GetContext(ctx, q.ext, entry, query, key.ItemID, key.Location, key.UnitCost); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrEntryNotFound
		}
		return nil, fmt.Errorf("台帳エントリ取得に失敗しました: %w", err)
	}
	return entry, nil
}

// IncrementEntry creates the lot or adds to it in a single upsert
func (q *pgQueries) IncrementEntry(ctx context.Context, key inventory.LotKey, packs int64, at time.Time) (*inventory.LedgerEntry, error) {
	query := `
		WITH upserted AS (
			INSERT INTO ledger_entries (id, item_id, location, unit_cost, pack_qty, pill_qty, created_at, last_updated)
			VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
			ON CONFLICT (item_id, location, unit_cost)
			DO UPDATE SET pack_qty = ledger_entries.pack_qty + EXCLUDED.pack_qty, last_updated = EXCLUDED.last_updated
			RETURNING *
		)` + fmt.Sprintf(entrySelect, "upserted")

	entry := &inventory.LedgerEntry{}
	err := sqlx.GetContext(ctx, q.ext, entry, query, inventory.NewID(), key.ItemID, key.Location, key.UnitCost, packs, at)
	if err != nil {
		return nil, mapError(fmt.Errorf("台帳エントリ加算に失敗しました: %w", err))
	}
	return entry, nil
}

// DecrementEntry subtracts packs only when enough are on hand; the check and
// the write are one statement
func (q *pgQueries) DecrementEntry(ctx context.Context, key inventory.LotKey, packs int64, at time.Time) (*inventory.LedgerEntry, error) {
	query := `
		WITH updated AS (
			UPDATE ledger_entries SET pack_qty = pack_qty - $4, last_updated = $5
			WHERE item_id = $1 AND location = $2 AND unit_cost = $3 AND pack_qty >= $4
			RETURNING *
		)` + fmt.Sprintf(entrySelect, "updated")

	entry := &inventory.LedgerEntry{}
	err := sqlx.GetContext(ctx, q.ext, entry, query, key.ItemID, key.Location, key.UnitCost, packs, at)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapError(fmt.Errorf("台帳エントリ減算に失敗しました: %w", err))
	}

	// 行が更新されなかった場合、存在しないのか不足なのかを判別
	var exists bool
	existsQuery := `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE item_id = $1 AND location = $2 AND unit_cost = $3)`
	if err := sqlx.GetContext(ctx, q.ext, &exists, existsQuery, key.ItemID, key.Location, key.UnitCost); err != nil {
		return nil, fmt.Errorf("台帳エントリ確認に失敗しました: %w", err)
	}
	if !exists {
		return nil, inventory.ErrEntryNotFound
	}
	return nil, inventory.ErrInsufficientStock
}

func (q *pgQueries) SetEntryQuantity(ctx context.Context, key inventory.LotKey, packs, pills int64, at time.Time) (*inventory.LedgerEntry, error) {
	query := `
		WITH updated AS (
			UPDATE ledger_entries SET pack_qty = $4, pill_qty = $5, last_updated = $6
			WHERE item_id = $1 AND location = $2 AND unit_cost = $3
			RETURNING *
		)` + fmt.Sprintf(entrySelect, "updated")

	entry := &inventory.LedgerEntry{}
	err := sqlx.GetContext(ctx, q.ext, entry, query, key.ItemID, key.Location, key.UnitCost, packs, pills, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrEntryNotFound
		}
		return nil, mapError(fmt.Errorf("台帳エントリ更新に失敗しました: %w", err))
	}
	return entry, nil
}

func (q *pgQueries) ListEntries(ctx context.Context, filter inventory.EntryFilter) ([]inventory.LedgerEntry, error) {
	query := fmt.Sprintf(entrySelect, "ledger_entries") + `
		WHERE ($1 = '' OR e.item_id = $1) AND ($2 = '' OR e.location = $2)
		ORDER BY i.name, e.created_at, e.id`

	entries := []inventory.LedgerEntry{}
	if err := sqlx.SelectContext(ctx, q.ext, &entries, query, filter.ItemID, string(filter.Location)); err != nil {
		return nil, fmt.Errorf("台帳エントリ一覧の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// 仕入操作

const intakeSelect = `
	SELECT r.id, COALESCE(r.idempotency_key, '') AS idempotency_key, r.intake_date, r.destination, r.item_id,
	       r.pack_qty, r.free_packs, r.buy_price, r.retail_price, r.created_at, r.created_by,
	       i.name AS item_name, i.weight AS item_weight
	FROM intake_records r
	JOIN items i ON i.id = r.item_id`

func (q *pgQueries) CreateIntake(ctx context.Context, record *inventory.IntakeRecord) error {
	query := `
		INSERT INTO intake_records (id, idempotency_key, intake_date, destination, item_id, pack_qty, free_packs, buy_price, retail_price, created_at, created_by)
		VALUES (:id, NULLIF(:idempotency_key, ''), :intake_date, :destination, :item_id, :pack_qty, :free_packs, :buy_price, :retail_price, :created_at, :created_by)`

	if _, err := sqlx.NamedExecContext(ctx, q.ext, query, record); err != nil {
		return mapError(fmt.Errorf("仕入記録作成に失敗しました: %w", err))
	}
	return nil
}

func (q *pgQueries) FindIntakeByKey(ctx context.Context, idempotencyKey string) (*inventory.IntakeRecord, error) {
	query := intakeSelect + ` WHERE r.idempotency_key = $1`

	record := &inventory.IntakeRecord{}
	if err := sqlx.GetContext(ctx, q.ext, record, query, idempotencyKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrIntakeNotFound
		}
		return nil, fmt.Errorf("仕入記録取得に失敗しました: %w", err)
	}
	return record, nil
}

func (q *pgQueries) ListIntakes(ctx context.Context, limit int) ([]inventory.IntakeRecord, error) {
	query := intakeSelect + `
		ORDER BY r.intake_date DESC, r.created_at DESC
		LIMIT $1`

	records := []inventory.IntakeRecord{}
	if err := sqlx.SelectContext(ctx, q.ext, &records, query, nullableLimit(limit)); err != nil {
		return nil, fmt.Errorf("仕入記録一覧の取得に失敗しました: %w", err)
	}
	return records, nil
}

// LatestBuyPrices returns the buy price of the most recent intake per item
// 商品ごとの最新仕入単価を取得
func (q *pgQueries) LatestBuyPrices(ctx context.Context, itemIDs []string) (map[string]decimal.Decimal, error) {
	query := `
		SELECT DISTINCT ON (item_id) item_id, buy_price
		FROM intake_records
		WHERE item_id = ANY($1)
		ORDER BY item_id, intake_date DESC, created_at DESC`

	var rows []struct {
		ItemID   string          `db:"item_id"`
		BuyPrice decimal.Decimal `db:"buy_price"`
	}
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, pq.Array(itemIDs)); err != nil {
		return nil, fmt.Errorf("最新仕入単価の取得に失敗しました: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		prices[row.ItemID] = row.BuyPrice
	}
	return prices, nil
}

// 売上操作

const saleSelect = `
	SELECT id, COALESCE(idempotency_key, '') AS idempotency_key, total_amount, created_at, created_by
	FROM sales`

const saleLineSelect = `
	SELECT si.id, si.sale_id, si.line_no, si.item_id, si.qty, si.unit_sell_price, si.unit_cost, si.line_total,
	       i.name AS item_name, s.created_at AS sold_at
	FROM sale_items si
	JOIN sales s ON s.id = si.sale_id
	JOIN items i ON i.id = si.item_id`

func (q *pgQueries) CreateSale(ctx context.Context, sale *inventory.Sale) error {
	header := `
		INSERT INTO sales (id, idempotency_key, total_amount, created_at, created_by)
		VALUES (:id, NULLIF(:idempotency_key, ''), :total_amount, :created_at, :created_by)`

	if _, err := sqlx.NamedExecContext(ctx, q.ext, header, sale); err != nil {
		return mapError(fmt.Errorf("売上ヘッダー作成に失敗しました: %w", err))
	}

	if len(sale.Lines) == 0 {
		return nil
	}

	lines := `
		INSERT INTO sale_items (id, sale_id, line_no, item_id, qty, unit_sell_price, unit_cost, line_total)
		VALUES (:id, :sale_id, :line_no, :item_id, :qty, :unit_sell_price, :unit_cost, :line_total)`

	if _, err := sqlx.NamedExecContext(ctx, q.ext, lines, sale.Lines); err != nil {
		return mapError(fmt.Errorf("売上明細作成に失敗しました: %w", err))
	}
	return nil
}

func (q *pgQueries) getSale(ctx context.Context, where string, arg string) (*inventory.Sale, error) {
	sale := &inventory.Sale{}
	if err := sqlx.GetContext(ctx, q.ext, sale, saleSelect+" WHERE "+where, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrSaleNotFound
		}
		return nil, fmt.Errorf("売上取得に失敗しました: %w", err)
	}

	sale.Lines = []inventory.SaleLineItem{}
	query := saleLineSelect + ` WHERE si.sale_id = $1 ORDER BY si.line_no`
	if err := sqlx.SelectContext(ctx, q.ext, &sale.Lines, query, sale.ID); err != nil {
		return nil, fmt.Errorf("売上明細取得に失敗しました: %w", err)
	}
	return sale, nil
}

func (q *pgQueries) GetSale(ctx context.Context, saleID string) (*inventory.Sale, error) {
	return q.getSale(ctx, "id = $1", saleID)
}

func (q *pgQueries) FindSaleByKey(ctx context.Context, idempotencyKey string) (*inventory.Sale, error) {
	return q.getSale(ctx, "idempotency_key = $1", idempotencyKey)
}

func (q *pgQueries) ListSaleLines(ctx context.Context, filter inventory.SaleLineFilter) ([]inventory.SaleLineItem, error) {
	query := saleLineSelect + `
		WHERE ($1::timestamptz IS NULL OR s.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR s.created_at < $2)
		ORDER BY s.created_at DESC, si.sale_id, si.line_no
		LIMIT $3`

	var from, to sql.NullTime
	if filter.Period != nil {
		from = sql.NullTime{Time: filter.Period.From, Valid: !filter.Period.From.IsZero()}
		to = sql.NullTime{Time: filter.Period.To, Valid: !filter.Period.To.IsZero()}
	}

	lines := []inventory.SaleLineItem{}
	if err := sqlx.SelectContext(ctx, q.ext, &lines, query, from, to, nullableLimit(filter.Limit)); err != nil {
		return nil, fmt.Errorf("売上明細一覧の取得に失敗しました: %w", err)
	}
	return lines, nil
}

// 移動履歴操作

const movementSelect = `
	SELECT m.id, m.kind, COALESCE(m.idempotency_key, '') AS idempotency_key, m.item_id, m.from_location, m.to_location,
	       m.unit_cost, m.quantity, m.reference, m.created_at, m.created_by, i.name AS item_name
	FROM movements m
	JOIN items i ON i.id = m.item_id`

func (q *pgQueries) CreateMovement(ctx context.Context, movement *inventory.Movement) error {
	query := `
		INSERT INTO movements (id, kind, idempotency_key, item_id, from_location, to_location, unit_cost, quantity, reference, created_at, created_by)
		VALUES (:id, :kind, NULLIF(:idempotency_key, ''), :item_id, :from_location, :to_location, :unit_cost, :quantity, :reference, :created_at, :created_by)`

	if _, err := sqlx.NamedExecContext(ctx, q.ext, query, movement); err != nil {
		return mapError(fmt.Errorf("移動記録作成に失敗しました: %w", err))
	}
	return nil
}

func (q *pgQueries) FindMovementByKey(ctx context.Context, idempotencyKey string) (*inventory.Movement, error) {
	movement := &inventory.Movement{}
	if err := sqlx.GetContext(ctx, q.ext, movement, movementSelect+` WHERE m.idempotency_key = $1`, idempotencyKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrMovementNotFound
		}
		return nil, fmt.Errorf("移動記録取得に失敗しました: %w", err)
	}
	return movement, nil
}

func (q *pgQueries) ListMovements(ctx context.Context, limit int) ([]inventory.Movement, error) {
	query := movementSelect + `
		ORDER BY m.created_at DESC, m.id
		LIMIT $1`

	movements := []inventory.Movement{}
	if err := sqlx.SelectContext(ctx, q.ext, &movements, query, nullableLimit(limit)); err != nil {
		return nil, fmt.Errorf("移動履歴の取得に失敗しました: %w", err)
	}
	return movements, nil
}

// アラート操作

const alertSelect = `
	SELECT id, type, status, item_id, location, current_qty, threshold, message, is_active, created_at, resolved_at
	FROM stock_alerts`

// CreateAlert inserts an alert. A concurrent active alert for the same item
// and location wins and ErrDuplicateKey is returned.
func (q *pgQueries) CreateAlert(ctx context.Context, alert *inventory.StockAlert) error {
	query := `
		INSERT INTO stock_alerts (id, type, status, item_id, location, current_qty, threshold, message, is_active, created_at)
		VALUES (:id, :type, :status, :item_id, :location, :current_qty, :threshold, :message, :is_active, :created_at)
		ON CONFLICT (item_id, location) WHERE is_active DO NOTHING`

	result, err := sqlx.NamedExecContext(ctx, q.ext, query, alert)
	if err != nil {
		return mapError(fmt.Errorf("アラート作成に失敗しました: %w", err))
	}
	return noRowInserted(result, "idx_stock_alerts_active")
}

func (q *pgQueries) FindActiveAlert(ctx context.Context, itemID string, location inventory.Location) (*inventory.StockAlert, error) {
	alert := &inventory.StockAlert{}
	query := alertSelect + ` WHERE is_active AND item_id = $1 AND location = $2`
	if err := sqlx.GetContext(ctx, q.ext, alert, query, itemID, location); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrAlertNotFound
		}
		return nil, fmt.Errorf("アラート取得に失敗しました: %w", err)
	}
	return alert, nil
}

func (q *pgQueries) ListActiveAlerts(ctx context.Context, location inventory.Location) ([]inventory.StockAlert, error) {
	query := alertSelect + `
		WHERE is_active AND ($1 = '' OR location = $1)
		ORDER BY created_at DESC`

	alerts := []inventory.StockAlert{}
	if err := sqlx.SelectContext(ctx, q.ext, &alerts, query, string(location)); err != nil {
		return nil, fmt.Errorf("アラート一覧の取得に失敗しました: %w", err)
	}
	return alerts, nil
}

func (q *pgQueries) ResolveAlert(ctx context.Context, alertID string, at time.Time) error {
	query := `UPDATE stock_alerts SET is_active = FALSE, resolved_at = $2 WHERE id = $1 AND is_active`

	result, err := q.ext.ExecContext(ctx, query, alertID, at)
	if err != nil {
		return fmt.Errorf("アラート解決に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return inventory.ErrAlertNotFound
	}
	return nil
}

// nullableLimit turns a non-positive limit into NULL, which PostgreSQL treats as no limit
func nullableLimit(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
