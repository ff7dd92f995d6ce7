package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleRequest is a point-of-sale checkout
// 販売リクエスト
type SaleRequest struct {
	IdempotencyKey string
	Lines          []SaleLineRequest
}

// SaleLineRequest is one requested line. LotCost selects the point-of-sale
// cost lot to consume; when nil the oldest lot holding enough packs is used.
// 販売明細リクエスト（LotCost未指定時は数量を満たす最古のロットを使用）
type SaleLineRequest struct {
	ItemID        string
	Qty           int64
	UnitSellPrice decimal.Decimal
	LotCost       *decimal.Decimal
}

// RecordSale decrements point-of-sale stock for every line and stores the
// sale header and lines in one transaction. Any line without enough stock
// rejects the whole sale.
// 全明細の在庫減算と売上登録を1トランザクションで実行
func (m *Manager) RecordSale(ctx context.Context, req SaleRequest) (sale *Sale, err error) {
	defer func(start time.Time) { m.observe("record_sale", start, err) }(m.now())

	if err := ValidateSale(req); err != nil {
		return nil, err
	}
	lines := make([]SaleLineRequest, len(req.Lines))
	for i, line := range req.Lines {
		line.UnitSellPrice = RoundMoney(line.UnitSellPrice)
		if line.LotCost != nil {
			cost := RoundMoney(*line.LotCost)
			line.LotCost = &cost
		}
		lines[i] = line
	}
	req.Lines = lines

	actor := ActorFromContext(ctx)
	replayed := false
	out := &outbox{}

	err = m.storage.WithinTx(ctx, func(q Queries) error {
		if req.IdempotencyKey != "" {
			existing, err := q.FindSaleByKey(ctx, req.IdempotencyKey)
			if err == nil {
				sale, replayed = existing, true
				return nil
			}
			if !errors.Is(err, ErrSaleNotFound) {
				return err
			}
		}

		now := m.now()
		sale = &Sale{
			ID:             NewID(),
			IdempotencyKey: req.IdempotencyKey,
			Total:          decimal.Zero,
			CreatedAt:      now,
			CreatedBy:      actor,
			Lines:          make([]SaleLineItem, 0, len(req.Lines)),
		}

		touched := make([]string, 0, len(req.Lines))
		seen := make(map[string]bool, len(req.Lines))
		for _, line := range req.Lines {
			key, err := m.selectSaleLot(ctx, q, line)
			if err != nil {
				return err
			}
			if _, err := m.applyDelta(ctx, q, key, -line.Qty, MovementKindSale, sale.ID, out); err != nil {
				return err
			}

			lineTotal := LineTotal(line.Qty, line.UnitSellPrice)
			sale.Total = sale.Total.Add(lineTotal)
			sale.Lines = append(sale.Lines, SaleLineItem{
				ID:            NewID(),
				SaleID:        sale.ID,
				LineNo:        len(sale.Lines) + 1,
				ItemID:        line.ItemID,
				Qty:           line.Qty,
				UnitSellPrice: line.UnitSellPrice,
				UnitCost:      key.UnitCost,
				LineTotal:     lineTotal,
				SoldAt:        now,
			})

			if !seen[line.ItemID] {
				seen[line.ItemID] = true
				touched = append(touched, line.ItemID)
			}
		}
		sale.Total = RoundMoney(sale.Total)

		if err := q.CreateSale(ctx, sale); err != nil {
			return err
		}

		for _, itemID := range touched {
			if err := m.evaluateStockLevel(ctx, q, itemID, LocationPointOfSale, out); err != nil {
				return err
			}
		}

		out.sales = append(out.sales, SaleRecordedEvent{
			SaleID:    sale.ID,
			Total:     sale.Total,
			LineCount: len(sale.Lines),
			Timestamp: now,
			UserID:    actor,
		})
		return nil
	})

	if errors.Is(err, ErrDuplicateKey) && req.IdempotencyKey != "" {
		// 同一キーの並行リクエストが先にコミットされた
		return m.findSaleByKey(ctx, req.IdempotencyKey)
	}
	if err != nil {
		return nil, wrapStorage("record_sale", "売上登録に失敗しました", err)
	}

	if replayed {
		m.logger.Info("売上は既に登録済みです",
			zap.String("sale_id", sale.ID),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
		return sale, nil
	}

	m.publish(ctx, out)

	m.logger.Info("売上登録完了",
		zap.String("sale_id", sale.ID),
		zap.String("total", sale.Total.StringFixed(MoneyScale)),
		zap.Int("lines", len(sale.Lines)),
	)

	return sale, nil
}

// GetSale returns a sale with its lines
// 売上を明細付きで取得
func (m *Manager) GetSale(ctx context.Context, saleID string) (*Sale, error) {
	var sale *Sale
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		sale, err = q.GetSale(ctx, saleID)
		return err
	})
	if err != nil {
		return nil, wrapStorage("get_sale", "売上取得に失敗しました", err)
	}
	return sale, nil
}

// ListRecentSaleLines returns sale lines joined with item name, newest first
// 売上明細を新しい順に取得
func (m *Manager) ListRecentSaleLines(ctx context.Context, period *Period, limit int) ([]SaleLineItem, error) {
	var lines []SaleLineItem
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		lines, err = q.ListSaleLines(ctx, SaleLineFilter{Period: period, Limit: m.recentLimit(limit)})
		return err
	})
	if err != nil {
		return nil, wrapStorage("list_sale_lines", "売上明細の取得に失敗しました", err)
	}
	return lines, nil
}

// selectSaleLot picks the point-of-sale lot a line consumes. Lines never
// split across lots.
func (m *Manager) selectSaleLot(ctx context.Context, q Queries, line SaleLineRequest) (LotKey, error) {
	if line.LotCost != nil {
		return NewLotKey(line.ItemID, LocationPointOfSale, *line.LotCost), nil
	}

	entries, err := q.ListEntries(ctx, EntryFilter{ItemID: line.ItemID, Location: LocationPointOfSale})
	if err != nil {
		return LotKey{}, err
	}
	for _, entry := range entries {
		if entry.PackQty >= line.Qty {
			return entry.Key(), nil
		}
	}
	return LotKey{}, ErrInsufficientStock
}

func (m *Manager) findSaleByKey(ctx context.Context, key string) (*Sale, error) {
	var sale *Sale
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		sale, err = q.FindSaleByKey(ctx, key)
		return err
	})
	if err != nil {
		return nil, wrapStorage("find_sale", "売上の取得に失敗しました", err)
	}
	return sale, nil
}
