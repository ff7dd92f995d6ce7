package inventory

import (
	"context"
	"sort"
)

// Classify rates a pack count against its minimum: critical at or below a
// quarter of the minimum, warning at or below the minimum, ok above it.
// 在庫数を最小在庫と比較して分類
func Classify(current, minimum int64) StockStatus {
	// current <= minimum*0.25 を整数演算で判定
	if 4*current <= minimum {
		return StockStatusCritical
	}
	if current <= minimum {
		return StockStatusWarning
	}
	return StockStatusOK
}

// StatusFilter narrows a low stock report
// 低在庫レポートの絞り込み
type StatusFilter string

const (
	StatusFilterLow      StatusFilter = "low"      // 危険と注意
	StatusFilterCritical StatusFilter = "critical" // 危険のみ
	StatusFilterWarning  StatusFilter = "warning"  // 注意のみ
	StatusFilterAll      StatusFilter = "all"      // 正常を含む全件
)

// ParseStatusFilter converts a query value into a StatusFilter; empty means low
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(s); f {
	case "":
		return StatusFilterLow, nil
	case StatusFilterLow, StatusFilterCritical, StatusFilterWarning, StatusFilterAll:
		return f, nil
	}
	return "", NewValidationError("status", "無効なステータスフィルターです", s)
}

func (f StatusFilter) matches(status StockStatus) bool {
	switch f {
	case StatusFilterAll:
		return true
	case StatusFilterCritical:
		return status == StockStatusCritical
	case StatusFilterWarning:
		return status == StockStatusWarning
	default:
		return status != StockStatusOK
	}
}

// LowStockItem is the pack total of one item at a location with its status
// ロケーション内の商品別在庫と状態
type LowStockItem struct {
	ItemID    string      `json:"item_id"`
	ItemName  string      `json:"item_name"`
	Weight    string      `json:"weight"`
	Location  Location    `json:"location"`
	PackQty   int64       `json:"pack_qty"`
	PillQty   int64       `json:"pill_qty"`
	Threshold int64       `json:"threshold"`
	Status    StockStatus `json:"status"`
	Lots      int         `json:"lots"`
}

// LowStockReport is the result of a low stock scan of one location
// 低在庫レポート
type LowStockReport struct {
	Location      Location       `json:"location"`
	Filter        StatusFilter   `json:"filter"`
	Items         []LowStockItem `json:"items"`
	CriticalCount int            `json:"critical_count"`
	WarningCount  int            `json:"warning_count"`
	OKCount       int            `json:"ok_count"`
}

// LowStock classifies every item at a location by its pack total across all
// cost lots. Loose pills are reported but do not count toward the threshold.
// ロケーション内の全商品をパック数で分類（バラ錠は閾値判定に含めない）
func (m *Manager) LowStock(ctx context.Context, location Location, filter StatusFilter) (*LowStockReport, error) {
	if err := ValidateLocation("location", location); err != nil {
		return nil, err
	}
	if filter == "" {
		filter = StatusFilterLow
	}

	entries, err := m.ListByLocation(ctx, location)
	if err != nil {
		return nil, err
	}

	byItem := make(map[string]*LowStockItem)
	var order []string
	for _, entry := range entries {
		item, ok := byItem[entry.ItemID]
		if !ok {
			item = &LowStockItem{
				ItemID:    entry.ItemID,
				ItemName:  entry.ItemName,
				Weight:    entry.ItemWeight,
				Location:  location,
				Threshold: m.threshold(entry.ReorderLevel),
			}
			byItem[entry.ItemID] = item
			order = append(order, entry.ItemID)
		}
		item.PackQty += entry.PackQty
		item.PillQty += entry.PillQty
		item.Lots++
	}

	report := &LowStockReport{Location: location, Filter: filter, Items: []LowStockItem{}}
	for _, id := range order {
		item := byItem[id]
		item.Status = Classify(item.PackQty, item.Threshold)
		switch item.Status {
		case StockStatusCritical:
			report.CriticalCount++
		case StockStatusWarning:
			report.WarningCount++
		default:
			report.OKCount++
		}
		if filter.matches(item.Status) {
			report.Items = append(report.Items, *item)
		}
	}

	sort.SliceStable(report.Items, func(i, j int) bool {
		a, b := report.Items[i], report.Items[j]
		if severity(a.Status) != severity(b.Status) {
			return severity(a.Status) > severity(b.Status)
		}
		return a.PackQty < b.PackQty
	})

	return report, nil
}

func severity(s StockStatus) int {
	switch s {
	case StockStatusCritical:
		return 2
	case StockStatusWarning:
		return 1
	}
	return 0
}
