package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IntakeRequest describes a purchase received into a location
// 仕入入庫リクエスト
type IntakeRequest struct {
	IdempotencyKey string
	Date           time.Time
	Destination    Location
	Item           ItemSpec
	PackQty        int64
	FreePacks      int64
	BuyPrice       decimal.Decimal
	RetailPrice    decimal.Decimal
}

// RecordIntake resolves or creates the item, appends the intake record and
// adds packQty+freePacks to the destination lot at the buy price, all in one
// transaction. A repeated idempotency key returns the original record.
// 商品解決・仕入記録・台帳更新を1トランザクションで実行
func (m *Manager) RecordIntake(ctx context.Context, req IntakeRequest) (record *IntakeRecord, err error) {
	defer func(start time.Time) { m.observe("record_intake", start, err) }(m.now())

	if err := ValidateIntake(req); err != nil {
		return nil, err
	}
	req.BuyPrice = RoundMoney(req.BuyPrice)
	req.RetailPrice = RoundMoney(req.RetailPrice)

	actor := ActorFromContext(ctx)
	replayed := false
	out := &outbox{}
	err = m.storage.WithinTx(ctx, func(q Queries) error {
		if req.IdempotencyKey != "" {
			existing, err := q.FindIntakeByKey(ctx, req.IdempotencyKey)
			if err == nil {
				record, replayed = existing, true
				return nil
			}
			if !errors.Is(err, ErrIntakeNotFound) {
				return err
			}
		}

		item, err := m.resolveItem(ctx, q, req.Item)
		if err != nil {
			return err
		}

		now := m.now()
		date := req.Date
		if date.IsZero() {
			date = now
		}

		record = &IntakeRecord{
			ID:             NewID(),
			IdempotencyKey: req.IdempotencyKey,
			Date:           date,
			Destination:    req.Destination,
			ItemID:         item.ID,
			PackQty:        req.PackQty,
			FreePacks:      req.FreePacks,
			BuyPrice:       req.BuyPrice,
			RetailPrice:    req.RetailPrice,
			CreatedAt:      now,
			CreatedBy:      actor,
			ItemName:       item.Name,
			ItemWeight:     item.Weight,
		}
		if err := q.CreateIntake(ctx, record); err != nil {
			return err
		}

		key := NewLotKey(item.ID, req.Destination, req.BuyPrice)
		if _, err := m.applyDelta(ctx, q, key, record.TotalPacks(), MovementKindIntake, record.ID, out); err != nil {
			return err
		}
		return m.evaluateStockLevel(ctx, q, item.ID, req.Destination, out)
	})

	if errors.Is(err, ErrDuplicateKey) && req.IdempotencyKey != "" {
		// 同一キーの並行リクエストが先にコミットされた
		return m.findIntakeByKey(ctx, req.IdempotencyKey)
	}
	if err != nil {
		return nil, wrapStorage("record_intake", "仕入記録に失敗しました", err)
	}

	if replayed {
		m.logger.Info("仕入記録は既に登録済みです",
			zap.String("intake_id", record.ID),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
		return record, nil
	}

	m.publish(ctx, out)

	m.logger.Info("仕入記録完了",
		zap.String("intake_id", record.ID),
		zap.String("item_id", record.ItemID),
		zap.Stringer("destination", record.Destination),
		zap.Int64("pack_qty", record.PackQty),
		zap.Int64("free_packs", record.FreePacks),
		zap.String("buy_price", record.BuyPrice.StringFixed(MoneyScale)),
	)

	return record, nil
}

// ListIntakes returns the inward register, newest first
// 仕入台帳を新しい順に取得
func (m *Manager) ListIntakes(ctx context.Context, limit int) ([]IntakeRecord, error) {
	var records []IntakeRecord
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		records, err = q.ListIntakes(ctx, m.recentLimit(limit))
		return err
	})
	if err != nil {
		return nil, wrapStorage("list_intakes", "仕入記録一覧の取得に失敗しました", err)
	}
	return records, nil
}

// resolveItem finds the item named by spec, creating it on first intake
// 商品を特定し、存在しなければ作成
func (m *Manager) resolveItem(ctx context.Context, q Queries, spec ItemSpec) (*Item, error) {
	if spec.ID != "" {
		return q.GetItem(ctx, spec.ID)
	}

	items, err := q.FindItems(ctx, spec.Name, spec.Weight)
	if err != nil {
		return nil, err
	}

	switch len(items) {
	case 0:
		item := &Item{
			ID:        NewID(),
			Name:      spec.Name,
			Weight:    spec.Weight,
			PackSize:  spec.PackSize,
			CreatedAt: m.now(),
		}
		if err := q.CreateItem(ctx, item); err != nil {
			if !errors.Is(err, ErrDuplicateKey) {
				return nil, err
			}
			// 同時に登録された商品を再取得
			return m.findSingleItem(ctx, q, spec)
		}
		m.logger.Info("商品を新規登録しました",
			zap.String("item_id", item.ID),
			zap.String("name", item.Name),
			zap.String("weight", item.Weight),
		)
		return item, nil
	case 1:
		return &items[0], nil
	default:
		return nil, ErrItemAmbiguous
	}
}

// findSingleItem re-reads an item created by a concurrent intake
func (m *Manager) findSingleItem(ctx context.Context, q Queries, spec ItemSpec) (*Item, error) {
	items, err := q.FindItems(ctx, spec.Name, spec.Weight)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, ErrItemNotFound
	case 1:
		return &items[0], nil
	default:
		return nil, ErrItemAmbiguous
	}
}

func (m *Manager) findIntakeByKey(ctx context.Context, key string) (*IntakeRecord, error) {
	var record *IntakeRecord
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		record, err = q.FindIntakeByKey(ctx, key)
		return err
	})
	if err != nil {
		return nil, wrapStorage("find_intake", "仕入記録の取得に失敗しました", err)
	}
	return record, nil
}
