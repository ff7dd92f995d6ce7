package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AdjustRequest sets an entry to counted quantities
// 棚卸による数量調整リクエスト
type AdjustRequest struct {
	Key     LotKey
	PackQty int64
	PillQty int64
	Reason  string
}

// DisposeRequest removes damaged or expired packs from an entry
// 破損・期限切れ品の廃棄リクエスト
type DisposeRequest struct {
	Key    LotKey
	Qty    int64
	Reason string
}

// UpsertQuantity adds delta packs to the entry for key. A missing entry is
// created for a positive delta; otherwise ErrEntryNotFound is returned. A
// delta that would leave the entry negative fails with ErrInsufficientStock.
// 台帳エントリのパック数をdelta分増減
func (m *Manager) UpsertQuantity(ctx context.Context, key LotKey, delta int64) (entry *LedgerEntry, err error) {
	defer func(start time.Time) { m.observe("upsert_quantity", start, err) }(m.now())

	if err := ValidateLotKey(key); err != nil {
		return nil, err
	}
	key = NewLotKey(key.ItemID, key.Location, key.UnitCost)

	out := &outbox{}
	err = m.storage.WithinTx(ctx, func(q Queries) error {
		var txErr error
		entry, txErr = m.applyDelta(ctx, q, key, delta, MovementKindAdjust, "", out)
		if txErr != nil {
			return txErr
		}
		return m.evaluateStockLevel(ctx, q, key.ItemID, key.Location, out)
	})
	if err != nil {
		return nil, wrapStorage("upsert_quantity", "台帳更新に失敗しました", err)
	}

	m.publish(ctx, out)

	m.logger.Info("台帳更新完了",
		zap.String("item_id", key.ItemID),
		zap.Stringer("location", key.Location),
		zap.String("unit_cost", key.UnitCost.StringFixed(MoneyScale)),
		zap.Int64("delta", delta),
		zap.Int64("pack_qty", entry.PackQty),
	)

	return entry, nil
}

// ListByLocation returns all entries at a location joined with item metadata
// ロケーションの全エントリを商品情報付きで取得
func (m *Manager) ListByLocation(ctx context.Context, location Location) ([]LedgerEntry, error) {
	if err := ValidateLocation("location", location); err != nil {
		return nil, err
	}

	var entries []LedgerEntry
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		entries, err = q.ListEntries(ctx, EntryFilter{Location: location})
		return err
	})
	if err != nil {
		return nil, wrapStorage("list_by_location", "ロケーション在庫取得に失敗しました", err)
	}
	return entries, nil
}

// GetEntry returns a single ledger entry
// 台帳エントリを取得
func (m *Manager) GetEntry(ctx context.Context, key LotKey) (*LedgerEntry, error) {
	if err := ValidateLotKey(key); err != nil {
		return nil, err
	}
	key = NewLotKey(key.ItemID, key.Location, key.UnitCost)

	var entry *LedgerEntry
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		entry, err = q.GetEntry(ctx, key)
		return err
	})
	if err != nil {
		return nil, wrapStorage("get_entry", "台帳エントリ取得に失敗しました", err)
	}
	return entry, nil
}

// Adjust overwrites pack and pill quantities of an existing entry after a count
// 棚卸結果で既存エントリの数量を上書き
func (m *Manager) Adjust(ctx context.Context, req AdjustRequest) (entry *LedgerEntry, err error) {
	defer func(start time.Time) { m.observe("adjust", start, err) }(m.now())

	if err := ValidateLotKey(req.Key); err != nil {
		return nil, err
	}
	key := NewLotKey(req.Key.ItemID, req.Key.Location, req.Key.UnitCost)
	if err := ValidateQuantity("pack_qty", req.PackQty); err != nil {
		return nil, err
	}
	if err := ValidateQuantity("pill_qty", req.PillQty); err != nil {
		return nil, err
	}
	if err := ValidateReason(req.Reason); err != nil {
		return nil, err
	}

	actor := ActorFromContext(ctx)
	out := &outbox{}
	err = m.storage.WithinTx(ctx, func(q Queries) error {
		before, err := q.GetEntry(ctx, key)
		if err != nil {
			return err
		}

		now := m.now()
		entry, err = q.SetEntryQuantity(ctx, key, req.PackQty, req.PillQty, now)
		if err != nil {
			return err
		}

		loc := key.Location
		movement := &Movement{
			ID:         NewID(),
			Kind:       MovementKindAdjust,
			ItemID:     key.ItemID,
			ToLocation: &loc,
			UnitCost:   key.UnitCost,
			Quantity:   entry.PackQty - before.PackQty,
			Reference:  req.Reason,
			CreatedAt:  now,
			CreatedBy:  actor,
		}
		if err := q.CreateMovement(ctx, movement); err != nil {
			return err
		}

		out.stock = append(out.stock, m.stockChanged(key, before.PackQty, entry.PackQty, movement))
		return m.evaluateStockLevel(ctx, q, key.ItemID, key.Location, out)
	})
	if err != nil {
		return nil, wrapStorage("adjust", "在庫調整に失敗しました", err)
	}

	m.publish(ctx, out)

	m.logger.Info("在庫調整完了",
		zap.String("item_id", key.ItemID),
		zap.Stringer("location", key.Location),
		zap.Int64("pack_qty", entry.PackQty),
		zap.Int64("pill_qty", entry.PillQty),
		zap.String("reason", req.Reason),
	)

	return entry, nil
}

// Dispose writes off packs from an entry without a sale
// 販売以外の理由で在庫を廃棄
func (m *Manager) Dispose(ctx context.Context, req DisposeRequest) (entry *LedgerEntry, err error) {
	defer func(start time.Time) { m.observe("dispose", start, err) }(m.now())

	if err := ValidateLotKey(req.Key); err != nil {
		return nil, err
	}
	key := NewLotKey(req.Key.ItemID, req.Key.Location, req.Key.UnitCost)
	if err := ValidatePositiveQuantity("qty", req.Qty); err != nil {
		return nil, err
	}
	if err := ValidateReason(req.Reason); err != nil {
		return nil, err
	}

	out := &outbox{}
	err = m.storage.WithinTx(ctx, func(q Queries) error {
		var txErr error
		entry, txErr = m.applyDelta(ctx, q, key, -req.Qty, MovementKindDispose, req.Reason, out)
		if txErr != nil {
			return txErr
		}
		return m.evaluateStockLevel(ctx, q, key.ItemID, key.Location, out)
	})
	if err != nil {
		return nil, wrapStorage("dispose", "在庫廃棄に失敗しました", err)
	}

	m.publish(ctx, out)

	m.logger.Info("在庫廃棄完了",
		zap.String("item_id", key.ItemID),
		zap.Stringer("location", key.Location),
		zap.Int64("quantity", req.Qty),
		zap.String("reason", req.Reason),
	)

	return entry, nil
}

// applyDelta performs the ledger mutation for one lot inside q and records
// the movement. Decrements use the storage's conditional update so the
// quantity can never go below zero.
func (m *Manager) applyDelta(ctx context.Context, q Queries, key LotKey, delta int64, kind MovementKind, reference string, out *outbox) (*LedgerEntry, error) {
	now := m.now()

	var (
		entry *LedgerEntry
		err   error
	)
	if delta > 0 {
		entry, err = q.IncrementEntry(ctx, key, delta, now)
	} else {
		entry, err = q.DecrementEntry(ctx, key, -delta, now)
	}
	if err != nil {
		return nil, err
	}

	if delta == 0 {
		return entry, nil
	}

	loc := key.Location
	movement := &Movement{
		ID:        NewID(),
		Kind:      kind,
		ItemID:    key.ItemID,
		UnitCost:  key.UnitCost,
		Quantity:  abs(delta),
		Reference: reference,
		CreatedAt: now,
		CreatedBy: ActorFromContext(ctx),
	}
	if delta > 0 {
		movement.ToLocation = &loc
	} else {
		movement.FromLocation = &loc
	}
	if err := q.CreateMovement(ctx, movement); err != nil {
		return nil, err
	}

	out.stock = append(out.stock, m.stockChanged(key, entry.PackQty-delta, entry.PackQty, movement))
	return entry, nil
}

func (m *Manager) stockChanged(key LotKey, oldQty, newQty int64, movement *Movement) StockChangedEvent {
	return StockChangedEvent{
		ItemID:      key.ItemID,
		Location:    key.Location,
		UnitCost:    key.UnitCost,
		OldQuantity: oldQty,
		NewQuantity: newQty,
		ChangeType:  movement.Kind,
		Reference:   movement.Reference,
		MovementID:  movement.ID,
		Timestamp:   movement.CreatedAt,
		UserID:      movement.CreatedBy,
	}
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
