// Package inventory provides the pharmacy stock ledger and profit accounting
package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Location identifies one of the places stock can reside
// 在庫を保管できる場所を識別
type Location string

const (
	LocationMainStore   Location = "main_store"    // 本倉庫
	LocationPharmacy    Location = "pharmacy"      // 薬局棚
	LocationPointOfSale Location = "point_of_sale" // 販売カウンター
)

// Locations lists every valid location in stock-flow order
var Locations = []Location{LocationMainStore, LocationPharmacy, LocationPointOfSale}

// Valid reports whether l is a known location
func (l Location) Valid() bool {
	switch l {
	case LocationMainStore, LocationPharmacy, LocationPointOfSale:
		return true
	}
	return false
}

func (l Location) String() string {
	return string(l)
}

// ParseLocation converts a string into a Location
// 文字列をロケーションに変換
func ParseLocation(s string) (Location, error) {
	l := Location(s)
	if !l.Valid() {
		return "", NewValidationError("location", "無効なロケーションです", s)
	}
	return l, nil
}

// Item represents a medicine in the catalog
// カタログ上の医薬品を表現
type Item struct {
	ID           string    `json:"id" db:"id"`                       // 商品ID
	Name         string    `json:"name" db:"name"`                   // 商品名
	Weight       string    `json:"weight" db:"weight"`               // 規格（含有量）
	PackSize     int64     `json:"pack_size" db:"pack_size"`         // 1パックあたりの錠数
	ReorderLevel int64     `json:"reorder_level" db:"reorder_level"` // 発注点（パック数、0は既定値）
	CreatedAt    time.Time `json:"created_at" db:"created_at"`       // 作成日時
}

// ItemSpec identifies an item on intake, either by ID or by name and weight
// 入庫時に商品をIDまたは名称と規格で指定
type ItemSpec struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Weight   string `json:"weight"`
	PackSize int64  `json:"pack_size"`
}

// LotKey is the natural key of a ledger entry
// 台帳エントリの自然キー（商品、ロケーション、単価）
type LotKey struct {
	ItemID   string          `json:"item_id"`
	Location Location        `json:"location"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// NewLotKey builds a LotKey with the unit cost normalized to money precision
func NewLotKey(itemID string, location Location, unitCost decimal.Decimal) LotKey {
	return LotKey{ItemID: itemID, Location: location, UnitCost: RoundMoney(unitCost)}
}

// String renders the key in a form usable as a map key
func (k LotKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.ItemID, k.Location, k.UnitCost.StringFixed(MoneyScale))
}

// LedgerEntry is the quantity on hand for one cost lot at one location
// 1ロケーション・1原価ロットの在庫数量
type LedgerEntry struct {
	ID          string          `json:"id" db:"id"`                     // エントリID
	ItemID      string          `json:"item_id" db:"item_id"`           // 商品ID
	Location    Location        `json:"location" db:"location"`         // ロケーション
	UnitCost    decimal.Decimal `json:"unit_cost" db:"unit_cost"`       // 仕入単価
	PackQty     int64           `json:"pack_qty" db:"pack_qty"`         // パック数
	PillQty     int64           `json:"pill_qty" db:"pill_qty"`         // バラ錠数
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`     // 作成日時
	LastUpdated time.Time       `json:"last_updated" db:"last_updated"` // 最終更新日時

	// 商品情報（結合結果）
	ItemName     string `json:"item_name,omitempty" db:"item_name"`
	ItemWeight   string `json:"item_weight,omitempty" db:"item_weight"`
	PackSize     int64  `json:"pack_size,omitempty" db:"pack_size"`
	ReorderLevel int64  `json:"reorder_level,omitempty" db:"reorder_level"`
}

// Key returns the lot key of the entry
func (e LedgerEntry) Key() LotKey {
	return NewLotKey(e.ItemID, e.Location, e.UnitCost)
}

// StockValue returns packs multiplied by unit cost
// 在庫金額（パック数×単価）を返す
func (e LedgerEntry) StockValue() decimal.Decimal {
	return RoundMoney(e.UnitCost.Mul(decimal.NewFromInt(e.PackQty)))
}

// IntakeRecord is an immutable purchase event
// 変更不可の仕入記録
type IntakeRecord struct {
	ID             string          `json:"id" db:"id"`                           // 記録ID
	IdempotencyKey string          `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Date           time.Time       `json:"date" db:"intake_date"`                // 仕入日
	Destination    Location        `json:"destination" db:"destination"`         // 入庫先
	ItemID         string          `json:"item_id" db:"item_id"`                 // 商品ID
	PackQty        int64           `json:"pack_qty" db:"pack_qty"`               // 購入パック数
	FreePacks      int64           `json:"free_packs" db:"free_packs"`           // 無償パック数
	BuyPrice       decimal.Decimal `json:"buy_price" db:"buy_price"`             // 仕入単価
	RetailPrice    decimal.Decimal `json:"retail_price" db:"retail_price"`       // 小売単価
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`           // 作成日時
	CreatedBy      string          `json:"created_by" db:"created_by"`           // 作成者
	ItemName       string          `json:"item_name,omitempty" db:"item_name"`   // 商品名（結合結果）
	ItemWeight     string          `json:"item_weight,omitempty" db:"item_weight"`
}

// TotalPacks returns purchased plus free packs
func (r IntakeRecord) TotalPacks() int64 {
	return r.PackQty + r.FreePacks
}

// Sale is an immutable sale header with its line items
// 明細を持つ変更不可の売上ヘッダー
type Sale struct {
	ID             string          `json:"id" db:"id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Total          decimal.Decimal `json:"total" db:"total_amount"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	CreatedBy      string          `json:"created_by" db:"created_by"`
	Lines          []SaleLineItem  `json:"lines" db:"-"`
}

// SaleLineItem is one line of a sale
// 売上明細
type SaleLineItem struct {
	ID            string          `json:"id" db:"id"`
	SaleID        string          `json:"sale_id" db:"sale_id"`
	LineNo        int             `json:"line_no" db:"line_no"` // 登録順（1始まり）
	ItemID        string          `json:"item_id" db:"item_id"`
	Qty           int64           `json:"qty" db:"qty"`
	UnitSellPrice decimal.Decimal `json:"unit_sell_price" db:"unit_sell_price"`
	UnitCost      decimal.Decimal `json:"unit_cost" db:"unit_cost"` // 販売時の原価（0は不明）
	LineTotal     decimal.Decimal `json:"line_total" db:"line_total"`

	// 一覧表示用（結合結果）
	ItemName string    `json:"item_name,omitempty" db:"item_name"`
	SoldAt   time.Time `json:"sold_at,omitempty" db:"sold_at"`
}

// Movement is an audit record of a ledger mutation
// 台帳変更の監査記録
type Movement struct {
	ID             string          `json:"id" db:"id"`
	Kind           MovementKind    `json:"kind" db:"kind"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" db:"idempotency_key"`
	ItemID         string          `json:"item_id" db:"item_id"`
	FromLocation   *Location       `json:"from_location,omitempty" db:"from_location"` // nilの場合は入庫
	ToLocation     *Location       `json:"to_location,omitempty" db:"to_location"`     // nilの場合は出庫
	UnitCost       decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	Quantity       int64           `json:"quantity" db:"quantity"`
	Reference      string          `json:"reference" db:"reference"` // 関連記録ID（売上ID、仕入ID）
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	CreatedBy      string          `json:"created_by" db:"created_by"`
	ItemName       string          `json:"item_name,omitempty" db:"item_name"`
}

// MovementKind defines the kind of ledger mutation
// 台帳変更の種類を定義
type MovementKind string

const (
	MovementKindIntake   MovementKind = "intake"   // 仕入
	MovementKindTransfer MovementKind = "transfer" // 移動
	MovementKindSale     MovementKind = "sale"     // 販売
	MovementKindAdjust   MovementKind = "adjust"   // 棚卸調整
	MovementKindDispose  MovementKind = "dispose"  // 廃棄
)

// StockStatus is the classification of a quantity against its minimum
// 最小在庫に対する在庫状態
type StockStatus string

const (
	StockStatusCritical StockStatus = "critical" // 危険
	StockStatusWarning  StockStatus = "warning"  // 注意
	StockStatusOK       StockStatus = "ok"       // 正常
)

// StockAlert represents a low stock alert for an item at a location
// ロケーション単位の低在庫アラートを表現
type StockAlert struct {
	ID         string      `json:"id" db:"id"`                   // アラートID
	Type       AlertType   `json:"type" db:"type"`               // アラートタイプ
	Status     StockStatus `json:"status" db:"status"`           // 発生時の在庫状態
	ItemID     string      `json:"item_id" db:"item_id"`         // 商品ID
	Location   Location    `json:"location" db:"location"`       // ロケーション
	CurrentQty int64       `json:"current_qty" db:"current_qty"` // 現在数量
	Threshold  int64       `json:"threshold" db:"threshold"`     // 閾値
	Message    string      `json:"message" db:"message"`         // メッセージ
	IsActive   bool        `json:"is_active" db:"is_active"`     // アクティブ状態
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`   // 作成日時
	ResolvedAt *time.Time  `json:"resolved_at" db:"resolved_at"` // 解決日時
}

// AlertType defines types of inventory alerts
// 在庫アラートのタイプを定義
type AlertType string

const (
	AlertTypeLowStock   AlertType = "low_stock"    // 低在庫
	AlertTypeOutOfStock AlertType = "out_of_stock" // 在庫切れ
)

// Period bounds a time range; a zero From or To leaves that side open
// 期間（From/Toがゼロ値の場合は無制限）
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the period (From inclusive, To exclusive)
func (p *Period) Contains(t time.Time) bool {
	if p == nil {
		return true
	}
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}

// Metrics is the result of revenue and profit aggregation
// 売上・利益の集計結果
type Metrics struct {
	Revenue       decimal.Decimal `json:"revenue"`        // 売上
	Cost          decimal.Decimal `json:"cost"`           // 売上原価
	Profit        decimal.Decimal `json:"profit"`         // 利益
	LineCount     int             `json:"line_count"`     // 明細数
	UnitsSold     int64           `json:"units_sold"`     // 販売パック数
	FallbackLines int             `json:"fallback_lines"` // 仕入記録の原価を使った明細数
	ZeroCostLines int             `json:"zero_cost_lines"`
	Period        *Period         `json:"period,omitempty"`
}

// NewID generates a new record ID
// 新しい記録IDを生成
func NewID() string {
	return uuid.New().String()
}
