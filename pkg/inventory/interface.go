package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockLedger defines the ledger operations exposed to callers
// 在庫台帳の操作インターフェースを定義
type StockLedger interface {
	UpsertQuantity(ctx context.Context, key LotKey, delta int64) (*LedgerEntry, error)
	ListByLocation(ctx context.Context, location Location) ([]LedgerEntry, error)
	GetEntry(ctx context.Context, key LotKey) (*LedgerEntry, error)
	Adjust(ctx context.Context, req AdjustRequest) (*LedgerEntry, error)
	Dispose(ctx context.Context, req DisposeRequest) (*LedgerEntry, error)
}

// StockOperations defines the multi-step workflows
// 複数ステップの在庫業務を定義
type StockOperations interface {
	RecordIntake(ctx context.Context, req IntakeRequest) (*IntakeRecord, error)
	Transfer(ctx context.Context, req TransferRequest) (*Movement, error)
	RecordSale(ctx context.Context, req SaleRequest) (*Sale, error)
}

// Reporting defines read-only analytics
// 読み取り専用の分析インターフェースを定義
type Reporting interface {
	ComputeMetrics(ctx context.Context, period *Period) (*Metrics, error)
	LowStock(ctx context.Context, location Location, filter StatusFilter) (*LowStockReport, error)
	LocationValue(ctx context.Context, location Location) (*LocationValuation, error)
	ListIntakes(ctx context.Context, limit int) ([]IntakeRecord, error)
	ListRecentSaleLines(ctx context.Context, period *Period, limit int) ([]SaleLineItem, error)
	RecentActivity(ctx context.Context, limit int) ([]Movement, error)
}

// InventoryManager is the full surface served over HTTP
// 在庫管理の全操作を定義
type InventoryManager interface {
	StockLedger
	StockOperations
	Reporting

	GetSale(ctx context.Context, saleID string) (*Sale, error)
	GetAlerts(ctx context.Context, location Location) ([]StockAlert, error)
	ResolveAlert(ctx context.Context, alertID string) error
	TotalValue(ctx context.Context) (decimal.Decimal, error)
	Ping(ctx context.Context) error
}

// EntryFilter selects ledger entries; empty fields match everything
// 台帳エントリの絞り込み条件（空欄は全件）
type EntryFilter struct {
	ItemID   string
	Location Location
}

// SaleLineFilter selects sale lines, newest first
// 売上明細の絞り込み条件（新しい順）
type SaleLineFilter struct {
	Period *Period
	Limit  int // 0は無制限
}

// Queries is the set of row operations available inside a unit of work
// 作業単位内で利用できる行操作
type Queries interface {
	// Item catalog
	FindItems(ctx context.Context, name, weight string) ([]Item, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)
	CreateItem(ctx context.Context, item *Item) error

	// Ledger entries; Decrement is a single conditional update
	GetEntry(ctx context.Context, key LotKey) (*LedgerEntry, error)
	IncrementEntry(ctx context.Context, key LotKey, packs int64, at time.Time) (*LedgerEntry, error)
	DecrementEntry(ctx context.Context, key LotKey, packs int64, at time.Time) (*LedgerEntry, error)
	SetEntryQuantity(ctx context.Context, key LotKey, packs, pills int64, at time.Time) (*LedgerEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error)

	// Intake log
	CreateIntake(ctx context.Context, record *IntakeRecord) error
	FindIntakeByKey(ctx context.Context, idempotencyKey string) (*IntakeRecord, error)
	ListIntakes(ctx context.Context, limit int) ([]IntakeRecord, error)
	LatestBuyPrices(ctx context.Context, itemIDs []string) (map[string]decimal.Decimal, error)

	// Sales
	CreateSale(ctx context.Context, sale *Sale) error
	GetSale(ctx context.Context, saleID string) (*Sale, error)
	FindSaleByKey(ctx context.Context, idempotencyKey string) (*Sale, error)
	ListSaleLines(ctx context.Context, filter SaleLineFilter) ([]SaleLineItem, error)

	// Movement log
	CreateMovement(ctx context.Context, movement *Movement) error
	FindMovementByKey(ctx context.Context, idempotencyKey string) (*Movement, error)
	ListMovements(ctx context.Context, limit int) ([]Movement, error)

	// Alerts
	CreateAlert(ctx context.Context, alert *StockAlert) error
	FindActiveAlert(ctx context.Context, itemID string, location Location) (*StockAlert, error)
	ListActiveAlerts(ctx context.Context, location Location) ([]StockAlert, error)
	ResolveAlert(ctx context.Context, alertID string, at time.Time) error
}

// Storage defines the interface for data persistence layer
// データ永続化層のインターフェースを定義
type Storage interface {
	// WithinTx runs fn in one all-or-nothing transaction
	WithinTx(ctx context.Context, fn func(q Queries) error) error
	// View runs fn against a consistent read-only view
	View(ctx context.Context, fn func(q Queries) error) error

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher defines interface for publishing inventory events
// 在庫イベント発行のインターフェースを定義
type EventPublisher interface {
	PublishStockChanged(ctx context.Context, event StockChangedEvent) error
	PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error
	PublishItemTransferred(ctx context.Context, event ItemTransferredEvent) error
	PublishSaleRecorded(ctx context.Context, event SaleRecordedEvent) error
}

// Observer receives the outcome of each manager operation
// 各操作の結果を受け取るオブザーバー
type Observer interface {
	ObserveOperation(operation string, err error, elapsed time.Duration)
}

// Events for inventory operations
// 在庫操作のイベント定義

// StockChangedEvent represents a stock level change
// 在庫レベル変更イベントを表現
type StockChangedEvent struct {
	ItemID      string          `json:"item_id"`
	Location    Location        `json:"location"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	OldQuantity int64           `json:"old_quantity"`
	NewQuantity int64           `json:"new_quantity"`
	ChangeType  MovementKind    `json:"change_type"`
	Reference   string          `json:"reference"`
	MovementID  string          `json:"movement_id"`
	Timestamp   time.Time       `json:"timestamp"`
	UserID      string          `json:"user_id"`
}

// LowStockAlertEvent represents a low stock alert
// 低在庫アラートイベントを表現
type LowStockAlertEvent struct {
	AlertID    string      `json:"alert_id"`
	ItemID     string      `json:"item_id"`
	Location   Location    `json:"location"`
	Status     StockStatus `json:"status"`
	CurrentQty int64       `json:"current_qty"`
	Threshold  int64       `json:"threshold"`
	Timestamp  time.Time   `json:"timestamp"`
}

// ItemTransferredEvent represents an item transfer
// 商品移動イベントを表現
type ItemTransferredEvent struct {
	ItemID       string          `json:"item_id"`
	FromLocation Location        `json:"from_location"`
	ToLocation   Location        `json:"to_location"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Quantity     int64           `json:"quantity"`
	MovementID   string          `json:"movement_id"`
	Timestamp    time.Time       `json:"timestamp"`
	UserID       string          `json:"user_id"`
}

// SaleRecordedEvent represents a completed sale
// 売上確定イベントを表現
type SaleRecordedEvent struct {
	SaleID    string          `json:"sale_id"`
	Total     decimal.Decimal `json:"total"`
	LineCount int             `json:"line_count"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"user_id"`
}
