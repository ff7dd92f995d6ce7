package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferRequest moves packs of one cost lot between locations
// 原価ロット単位のロケーション間移動リクエスト
type TransferRequest struct {
	IdempotencyKey string
	ItemID         string
	UnitCost       decimal.Decimal
	From           Location
	To             Location
	Qty            int64
}

// Transfer decrements the source lot and increments the destination lot in
// one transaction. The destination entry is created with zero loose pills
// when absent.
// 移動元の減算と移動先の加算を1トランザクションで実行
func (m *Manager) Transfer(ctx context.Context, req TransferRequest) (movement *Movement, err error) {
	defer func(start time.Time) { m.observe("transfer", start, err) }(m.now())

	if err := ValidateTransfer(req); err != nil {
		return nil, err
	}
	req.UnitCost = RoundMoney(req.UnitCost)

	from := NewLotKey(req.ItemID, req.From, req.UnitCost)
	to := NewLotKey(req.ItemID, req.To, req.UnitCost)
	actor := ActorFromContext(ctx)
	replayed := false
	out := &outbox{}

	err = m.storage.WithinTx(ctx, func(q Queries) error {
		if req.IdempotencyKey != "" {
			existing, err := q.FindMovementByKey(ctx, req.IdempotencyKey)
			if err == nil {
				movement, replayed = existing, true
				return nil
			}
			if !errors.Is(err, ErrMovementNotFound) {
				return err
			}
		}

		now := m.now()
		source, err := q.DecrementEntry(ctx, from, req.Qty, now)
		if err != nil {
			return err
		}
		dest, err := q.IncrementEntry(ctx, to, req.Qty, now)
		if err != nil {
			return err
		}

		fromLoc, toLoc := req.From, req.To
		movement = &Movement{
			ID:             NewID(),
			Kind:           MovementKindTransfer,
			IdempotencyKey: req.IdempotencyKey,
			ItemID:         req.ItemID,
			FromLocation:   &fromLoc,
			ToLocation:     &toLoc,
			UnitCost:       req.UnitCost,
			Quantity:       req.Qty,
			CreatedAt:      now,
			CreatedBy:      actor,
		}
		if err := q.CreateMovement(ctx, movement); err != nil {
			return err
		}

		out.stock = append(out.stock,
			m.stockChanged(from, source.PackQty+req.Qty, source.PackQty, movement),
			m.stockChanged(to, dest.PackQty-req.Qty, dest.PackQty, movement),
		)
		out.transfers = append(out.transfers, ItemTransferredEvent{
			ItemID:       req.ItemID,
			FromLocation: req.From,
			ToLocation:   req.To,
			UnitCost:     req.UnitCost,
			Quantity:     req.Qty,
			MovementID:   movement.ID,
			Timestamp:    now,
			UserID:       actor,
		})

		if err := m.evaluateStockLevel(ctx, q, req.ItemID, req.From, out); err != nil {
			return err
		}
		return m.evaluateStockLevel(ctx, q, req.ItemID, req.To, out)
	})

	if errors.Is(err, ErrDuplicateKey) && req.IdempotencyKey != "" {
		return m.findMovementByKey(ctx, req.IdempotencyKey)
	}
	if err != nil {
		return nil, wrapStorage("transfer", "在庫移動に失敗しました", err)
	}

	if replayed {
		m.logger.Info("在庫移動は既に登録済みです",
			zap.String("movement_id", movement.ID),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
		return movement, nil
	}

	m.publish(ctx, out)

	m.logger.Info("在庫移動完了",
		zap.String("movement_id", movement.ID),
		zap.String("item_id", req.ItemID),
		zap.Stringer("from", req.From),
		zap.Stringer("to", req.To),
		zap.String("unit_cost", req.UnitCost.StringFixed(MoneyScale)),
		zap.Int64("quantity", req.Qty),
	)

	return movement, nil
}

func (m *Manager) findMovementByKey(ctx context.Context, key string) (*Movement, error) {
	var movement *Movement
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		movement, err = q.FindMovementByKey(ctx, key)
		return err
	})
	if err != nil {
		return nil, wrapStorage("find_movement", "移動記録の取得に失敗しました", err)
	}
	return movement, nil
}
