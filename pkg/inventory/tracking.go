package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// RecentActivity returns the latest ledger movements, newest first
// 最近の在庫移動を新しい順に取得
func (m *Manager) RecentActivity(ctx context.Context, limit int) ([]Movement, error) {
	var movements []Movement
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		movements, err = q.ListMovements(ctx, m.recentLimit(limit))
		return err
	})
	if err != nil {
		return nil, wrapStorage("list_movements", "移動履歴の取得に失敗しました", err)
	}
	return movements, nil
}

// GetAlerts gets active alerts for a location; an empty location returns all
// ロケーションのアクティブアラートを取得
func (m *Manager) GetAlerts(ctx context.Context, location Location) ([]StockAlert, error) {
	if location != "" {
		if err := ValidateLocation("location", location); err != nil {
			return nil, err
		}
	}

	var alerts []StockAlert
	err := m.storage.View(ctx, func(q Queries) error {
		var err error
		alerts, err = q.ListActiveAlerts(ctx, location)
		return err
	})
	if err != nil {
		return nil, wrapStorage("list_alerts", "アラート取得に失敗しました", err)
	}
	return alerts, nil
}

// ResolveAlert resolves an alert
// アラートを解決
func (m *Manager) ResolveAlert(ctx context.Context, alertID string) error {
	err := m.storage.WithinTx(ctx, func(q Queries) error {
		return q.ResolveAlert(ctx, alertID, m.now())
	})
	if err != nil {
		return wrapStorage("resolve_alert", "アラート解決に失敗しました", err)
	}

	m.logger.Info("アラート解決完了", zap.String("alert_id", alertID))
	return nil
}

// evaluateStockLevel classifies the pack total of an item at a location after
// a mutation. A non-ok level opens an alert unless one is already active; an
// ok level resolves the active one.
// 変更後の在庫を分類し、アラートを作成または解決
func (m *Manager) evaluateStockLevel(ctx context.Context, q Queries, itemID string, location Location, out *outbox) error {
	if !m.config.AlertsEnabled {
		return nil
	}

	entries, err := q.ListEntries(ctx, EntryFilter{ItemID: itemID, Location: location})
	if err != nil {
		return err
	}

	var (
		current      int64
		reorderLevel int64
	)
	for _, entry := range entries {
		current += entry.PackQty
		reorderLevel = entry.ReorderLevel
	}
	threshold := m.threshold(reorderLevel)
	status := Classify(current, threshold)

	active, err := q.FindActiveAlert(ctx, itemID, location)
	if err != nil && !errors.Is(err, ErrAlertNotFound) {
		return err
	}

	if status == StockStatusOK {
		if active != nil {
			return q.ResolveAlert(ctx, active.ID, m.now())
		}
		return nil
	}
	if active != nil {
		return nil
	}

	alertType := AlertTypeLowStock
	if current == 0 {
		alertType = AlertTypeOutOfStock
	}
	alert := &StockAlert{
		ID:         NewID(),
		Type:       alertType,
		Status:     status,
		ItemID:     itemID,
		Location:   location,
		CurrentQty: current,
		Threshold:  threshold,
		Message:    fmt.Sprintf("商品 %s のロケーション %s での在庫が低下しています (現在: %d, 閾値: %d)", itemID, location, current, threshold),
		IsActive:   true,
		CreatedAt:  m.now(),
	}
	if err := q.CreateAlert(ctx, alert); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// 別トランザクションが先にアラートを作成済み
			return nil
		}
		return err
	}

	out.alerts = append(out.alerts, LowStockAlertEvent{
		AlertID:    alert.ID,
		ItemID:     itemID,
		Location:   location,
		Status:     status,
		CurrentQty: current,
		Threshold:  threshold,
		Timestamp:  alert.CreatedAt,
	})

	m.logger.Warn("低在庫アラートを作成しました",
		zap.String("item_id", itemID),
		zap.Stringer("location", location),
		zap.Int64("current_qty", current),
		zap.Int64("threshold", threshold),
		zap.String("status", string(status)),
	)
	return nil
}
