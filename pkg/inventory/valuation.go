package inventory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// ShelfLowStockPacks is the pack count below which a shelf row is labeled low
const ShelfLowStockPacks = 10

// ShelfLabel is the display state of a single ledger row on a shelf view
// 棚表示用の在庫ラベル
type ShelfLabel string

const (
	ShelfLabelOutOfStock ShelfLabel = "out_of_stock" // 在庫切れ
	ShelfLabelLowStock   ShelfLabel = "low_stock"    // 残りわずか
	ShelfLabelInStock    ShelfLabel = "in_stock"     // 在庫あり
)

// LabelFor returns the shelf label for a pack count
func LabelFor(packs int64) ShelfLabel {
	switch {
	case packs <= 0:
		return ShelfLabelOutOfStock
	case packs < ShelfLowStockPacks:
		return ShelfLabelLowStock
	}
	return ShelfLabelInStock
}

// ValuedEntry is a ledger entry with its stock value and shelf label
// 在庫金額と棚ラベル付きの台帳エントリ
type ValuedEntry struct {
	LedgerEntry
	Value decimal.Decimal `json:"value"`
	Label ShelfLabel      `json:"label"`
}

// LocationValuation summarizes the stock value held at a location
// ロケーションの在庫評価額
type LocationValuation struct {
	Location   Location        `json:"location"`
	TotalValue decimal.Decimal `json:"total_value"`
	TotalPacks int64           `json:"total_packs"`
	TotalPills int64           `json:"total_pills"`
	ItemCount  int             `json:"item_count"`
	Entries    []ValuedEntry   `json:"entries"`
}

// LocationValue values every lot at a location at its acquisition cost
// ロケーションの全ロットを仕入原価で評価
func (m *Manager) LocationValue(ctx context.Context, location Location) (*LocationValuation, error) {
	entries, err := m.ListByLocation(ctx, location)
	if err != nil {
		return nil, err
	}

	valuation := &LocationValuation{
		Location:   location,
		TotalValue: decimal.Zero,
		Entries:    make([]ValuedEntry, 0, len(entries)),
	}

	items := make(map[string]bool)
	for _, entry := range entries {
		value := entry.StockValue()
		valuation.TotalValue = valuation.TotalValue.Add(value)
		valuation.TotalPacks += entry.PackQty
		valuation.TotalPills += entry.PillQty
		items[entry.ItemID] = true
		valuation.Entries = append(valuation.Entries, ValuedEntry{
			LedgerEntry: entry,
			Value:       value,
			Label:       LabelFor(entry.PackQty),
		})
	}
	valuation.ItemCount = len(items)

	sort.SliceStable(valuation.Entries, func(i, j int) bool {
		return valuation.Entries[i].Value.GreaterThan(valuation.Entries[j].Value)
	})

	return valuation, nil
}

// TotalValue values stock across every location
// 全ロケーションの在庫評価額を計算
func (m *Manager) TotalValue(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, location := range Locations {
		valuation, err := m.LocationValue(ctx, location)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(valuation.TotalValue)
	}
	return total, nil
}
