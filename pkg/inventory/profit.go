package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CostSource tells where the unit cost of a sale line came from
// 売上明細の原価の出所
type CostSource string

const (
	CostSourceLine   CostSource = "line"   // 販売時に記録された原価
	CostSourceIntake CostSource = "intake" // 最新の仕入単価
	CostSourceNone   CostSource = "none"   // 原価不明（0）
)

// ResolveUnitCost returns the cost used for profit on a sale line: the cost
// stored on the line when non-zero, else the latest intake buy price for the
// item, else zero.
// 原価の決定（明細原価→最新仕入単価→0）
func ResolveUnitCost(line SaleLineItem, latestBuyPrices map[string]decimal.Decimal) (decimal.Decimal, CostSource) {
	if !line.UnitCost.IsZero() {
		return line.UnitCost, CostSourceLine
	}
	if price, ok := latestBuyPrices[line.ItemID]; ok {
		return price, CostSourceIntake
	}
	return decimal.Zero, CostSourceNone
}

// AggregateMetrics computes revenue and profit over sale lines. Revenue never
// depends on cost data; profit is not clamped and may be negative.
// 売上明細から売上と利益を集計
func AggregateMetrics(lines []SaleLineItem, latestBuyPrices map[string]decimal.Decimal) Metrics {
	metrics := Metrics{
		Revenue: decimal.Zero,
		Cost:    decimal.Zero,
		Profit:  decimal.Zero,
	}

	for _, line := range lines {
		qty := decimal.NewFromInt(line.Qty)
		revenue := line.UnitSellPrice.Mul(qty)
		cost, source := ResolveUnitCost(line, latestBuyPrices)
		lineCost := cost.Mul(qty)

		metrics.Revenue = metrics.Revenue.Add(revenue)
		metrics.Cost = metrics.Cost.Add(lineCost)
		metrics.Profit = metrics.Profit.Add(revenue.Sub(lineCost))
		metrics.LineCount++
		metrics.UnitsSold += line.Qty

		switch source {
		case CostSourceIntake:
			metrics.FallbackLines++
		case CostSourceNone:
			metrics.ZeroCostLines++
		}
	}

	metrics.Revenue = RoundMoney(metrics.Revenue)
	metrics.Cost = RoundMoney(metrics.Cost)
	metrics.Profit = RoundMoney(metrics.Profit)
	return metrics
}

// ComputeMetrics aggregates revenue and profit over all sales, or only those
// inside period when it is non-nil
// 期間内（nilの場合は全期間）の売上と利益を計算
func (m *Manager) ComputeMetrics(ctx context.Context, period *Period) (metrics *Metrics, err error) {
	defer func(start time.Time) { m.observe("compute_metrics", start, err) }(m.now())

	var (
		lines  []SaleLineItem
		latest map[string]decimal.Decimal
	)
	err = m.storage.View(ctx, func(q Queries) error {
		var err error
		lines, err = q.ListSaleLines(ctx, SaleLineFilter{Period: period})
		if err != nil {
			return err
		}

		var missing []string
		seen := make(map[string]bool)
		for _, line := range lines {
			if line.UnitCost.IsZero() && !seen[line.ItemID] {
				seen[line.ItemID] = true
				missing = append(missing, line.ItemID)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		latest, err = q.LatestBuyPrices(ctx, missing)
		return err
	})
	if err != nil {
		return nil, wrapStorage("compute_metrics", "売上集計に失敗しました", err)
	}

	result := AggregateMetrics(lines, latest)
	result.Period = period

	m.logger.Debug("売上集計完了",
		zap.String("revenue", result.Revenue.StringFixed(MoneyScale)),
		zap.String("profit", result.Profit.StringFixed(MoneyScale)),
		zap.Int("lines", result.LineCount),
	)

	return &result, nil
}
