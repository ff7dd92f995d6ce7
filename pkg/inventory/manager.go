package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Manager implements the stock ledger, the stock workflows and reporting
// 在庫台帳・在庫業務・レポートの実装
type Manager struct {
	storage   Storage          // ストレージ層
	publisher EventPublisher   // イベント発行者
	observer  Observer         // メトリクス
	logger    *zap.Logger      // ログ
	config    *Config          // 設定
	now       func() time.Time // 時刻取得
}

// すべてのインターフェースを実装することを明示
var (
	_ StockLedger      = (*Manager)(nil)
	_ StockOperations  = (*Manager)(nil)
	_ Reporting        = (*Manager)(nil)
	_ InventoryManager = (*Manager)(nil)
)

// Config holds configuration for the inventory manager
// 在庫マネージャーの設定を保持
type Config struct {
	DefaultReorderLevel int64  `yaml:"default_reorder_level"` // 既定の発注点（パック数）
	RecentLimit         int    `yaml:"recent_limit"`          // 一覧の既定件数
	AlertsEnabled       bool   `yaml:"alerts_enabled"`        // 低在庫アラート有効
	Currency            string `yaml:"currency"`              // 通貨コード
}

// DefaultConfig returns the settings used when none are supplied
// 既定の設定を返す
func DefaultConfig() *Config {
	return &Config{
		DefaultReorderLevel: 20,
		RecentLimit:         50,
		AlertsEnabled:       true,
		Currency:            "LKR",
	}
}

// NewManager creates a new inventory manager
// 新しい在庫マネージャーを作成
func NewManager(storage Storage, publisher EventPublisher, logger *zap.Logger, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		storage:   storage,
		publisher: publisher,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// WithObserver attaches an operation observer and returns the manager
// オペレーションオブザーバーを設定
func (m *Manager) WithObserver(o Observer) *Manager {
	m.observer = o
	return m
}

// Config returns the active configuration
func (m *Manager) Config() Config {
	return *m.config
}

// Ping checks the storage connection
func (m *Manager) Ping(ctx context.Context) error {
	return m.storage.Ping(ctx)
}

type actorKey struct{}

// WithActor returns a context that carries the acting user
// 操作ユーザーをコンテキストに設定
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext extracts the acting user, defaulting to "system"
// コンテキストから操作ユーザーを取得
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

// threshold returns the reorder level to classify an item against
func (m *Manager) threshold(reorderLevel int64) int64 {
	if reorderLevel > 0 {
		return reorderLevel
	}
	return m.config.DefaultReorderLevel
}

func (m *Manager) recentLimit(limit int) int {
	if limit > 0 {
		return limit
	}
	return m.config.RecentLimit
}

func (m *Manager) observe(operation string, start time.Time, err error) {
	if m.observer != nil {
		m.observer.ObserveOperation(operation, err, m.now().Sub(start))
	}
}

// outbox collects events raised inside a transaction; they are published
// only after the transaction commits
type outbox struct {
	stock     []StockChangedEvent
	transfers []ItemTransferredEvent
	sales     []SaleRecordedEvent
	alerts    []LowStockAlertEvent
}

// publish sends collected events; failures are logged because the
// underlying change is already committed
// コミット済みのイベントを発行（失敗はログのみ）
func (m *Manager) publish(ctx context.Context, o *outbox) {
	if m.publisher == nil || o == nil {
		return
	}

	for _, event := range o.stock {
		if err := m.publisher.PublishStockChanged(ctx, event); err != nil {
			m.logger.Error("在庫変更イベント発行に失敗しました", zap.String("item_id", event.ItemID), zap.Error(err))
		}
	}
	for _, event := range o.transfers {
		if err := m.publisher.PublishItemTransferred(ctx, event); err != nil {
			m.logger.Error("商品移動イベント発行に失敗しました", zap.String("movement_id", event.MovementID), zap.Error(err))
		}
	}
	for _, event := range o.sales {
		if err := m.publisher.PublishSaleRecorded(ctx, event); err != nil {
			m.logger.Error("売上イベント発行に失敗しました", zap.String("sale_id", event.SaleID), zap.Error(err))
		}
	}
	for _, event := range o.alerts {
		if err := m.publisher.PublishLowStockAlert(ctx, event); err != nil {
			m.logger.Error("低在庫アラートイベント発行に失敗しました", zap.String("alert_id", event.AlertID), zap.Error(err))
		}
	}
}
