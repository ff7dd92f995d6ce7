package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func saleLine(itemID string, qty int64, sell, cost string) SaleLineItem {
	return SaleLineItem{
		ItemID:        itemID,
		Qty:           qty,
		UnitSellPrice: MustMoney(sell),
		UnitCost:      MustMoney(cost),
		LineTotal:     LineTotal(qty, MustMoney(sell)),
	}
}

func TestResolveUnitCost(t *testing.T) {
	latest := map[string]decimal.Decimal{"ITEM-1": MustMoney("9.5")}

	tests := []struct {
		name   string
		line   SaleLineItem
		cost   string
		source CostSource
	}{
		{"明細原価を優先", saleLine("ITEM-1", 1, "15", "8"), "8", CostSourceLine},
		{"最新仕入単価にフォールバック", saleLine("ITEM-1", 1, "15", "0"), "9.5", CostSourceIntake},
		{"仕入記録なし", saleLine("ITEM-2", 1, "15", "0"), "0", CostSourceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost, source := ResolveUnitCost(tt.line, latest)
			assert.True(t, cost.Equal(MustMoney(tt.cost)), cost.String())
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestAggregateMetrics(t *testing.T) {
	lines := []SaleLineItem{
		saleLine("ITEM-1", 5, "15", "10"),
		saleLine("ITEM-2", 2, "3.35", "0"),
		saleLine("ITEM-3", 1, "4", "0"),
	}
	latest := map[string]decimal.Decimal{"ITEM-2": MustMoney("1.10")}

	// テスト実行
	metrics := AggregateMetrics(lines, latest)

	// アサーション
	assert.Equal(t, "85.70", metrics.Revenue.StringFixed(2))
	assert.Equal(t, "52.20", metrics.Cost.StringFixed(2))
	assert.Equal(t, "33.50", metrics.Profit.StringFixed(2))
	assert.Equal(t, 3, metrics.LineCount)
	assert.Equal(t, int64(8), metrics.UnitsSold)
	assert.Equal(t, 1, metrics.FallbackLines)
	assert.Equal(t, 1, metrics.ZeroCostLines)
}

func TestAggregateMetrics_RevenueIgnoresCost(t *testing.T) {
	costed := []SaleLineItem{saleLine("ITEM-1", 3, "12.10", "11")}
	uncosted := []SaleLineItem{saleLine("ITEM-1", 3, "12.10", "0")}

	a := AggregateMetrics(costed, nil)
	b := AggregateMetrics(uncosted, map[string]decimal.Decimal{"ITEM-1": MustMoney("99")})

	assert.True(t, a.Revenue.Equal(b.Revenue))
	// 原価が売価を上回る場合、利益は負になる
	assert.Equal(t, "-260.70", b.Profit.StringFixed(2))
}

func TestAggregateMetrics_Empty(t *testing.T) {
	metrics := AggregateMetrics(nil, nil)

	assert.True(t, metrics.Revenue.IsZero())
	assert.True(t, metrics.Profit.IsZero())
	assert.Equal(t, 0, metrics.LineCount)
}
