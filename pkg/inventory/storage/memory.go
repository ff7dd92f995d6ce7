package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nemonet1337/pharmastock/pkg/inventory"
)

// MemoryStorage implements the Storage interface in process memory.
// Transactions hold the write lock for their whole duration and work on a
// copy of the state that replaces the live state only on success.
// プロセス内メモリを使用したStorageインターフェースの実装
type MemoryStorage struct {
	mu    sync.RWMutex
	state *memState
}

var (
	_ inventory.Storage = (*MemoryStorage)(nil)
	_ inventory.Queries = (*memState)(nil)
)

// NewMemoryStorage creates an empty in-memory storage
// 空のメモリストレージを作成
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{state: newMemState()}
}

// WithinTx runs fn on a private copy of the state and commits it when fn succeeds
// 状態のコピー上でfnを実行し、成功時のみ反映
func (s *MemoryStorage) WithinTx(ctx context.Context, fn func(q inventory.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.state = work
	return nil
}

// View runs fn against the live state under the read lock
func (s *MemoryStorage) View(ctx context.Context, fn func(q inventory.Queries) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.state)
}

// Ping always succeeds for the in-memory store
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close releases nothing
func (s *MemoryStorage) Close() error {
	return nil
}

type memEntry struct {
	entry inventory.LedgerEntry
	seq   int64
}

type memState struct {
	seq       int64
	items     map[string]inventory.Item
	entries   map[string]*memEntry
	intakes   []inventory.IntakeRecord
	sales     []inventory.Sale
	movements []inventory.Movement
	alerts    []inventory.StockAlert
}

func newMemState() *memState {
	return &memState{
		items:   make(map[string]inventory.Item),
		entries: make(map[string]*memEntry),
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		seq:       st.seq,
		items:     make(map[string]inventory.Item, len(st.items)),
		entries:   make(map[string]*memEntry, len(st.entries)),
		intakes:   append([]inventory.IntakeRecord(nil), st.intakes...),
		movements: append([]inventory.Movement(nil), st.movements...),
		alerts:    append([]inventory.StockAlert(nil), st.alerts...),
		sales:     make([]inventory.Sale, len(st.sales)),
	}
	for id, item := range st.items {
		c.items[id] = item
	}
	for k, e := range st.entries {
		cp := *e
		c.entries[k] = &cp
	}
	for i, sale := range st.sales {
		sale.Lines = append([]inventory.SaleLineItem(nil), sale.Lines...)
		c.sales[i] = sale
	}
	return c
}

func (st *memState) next() int64 {
	st.seq++
	return st.seq
}

// withItem fills the joined item columns of an entry
func (st *memState) withItem(e inventory.LedgerEntry) inventory.LedgerEntry {
	if item, ok := st.items[e.ItemID]; ok {
		e.ItemName = item.Name
		e.ItemWeight = item.Weight
		e.PackSize = item.PackSize
		e.ReorderLevel = item.ReorderLevel
	}
	return e
}

// 商品操作

func (st *memState) FindItems(ctx context.Context, name, weight string) ([]inventory.Item, error) {
	var items []inventory.Item
	for _, item := range st.items {
		if item.Name == name && item.Weight == weight {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (st *memState) GetItem(ctx context.Context, itemID string) (*inventory.Item, error) {
	item, ok := st.items[itemID]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	return &item, nil
}

func (st *memState) CreateItem(ctx context.Context, item *inventory.Item) error {
	if _, ok := st.items[item.ID]; ok {
		return inventory.ErrDuplicateKey
	}
	for _, existing := range st.items {
		if existing.Name == item.Name && existing.Weight == item.Weight {
			return inventory.ErrDuplicateKey
		}
	}
	st.items[item.ID] = *item
	return nil
}

// 台帳操作

func (st *memState) GetEntry(ctx context.Context, key inventory.LotKey) (*inventory.LedgerEntry, error) {
	e, ok := st.entries[key.String()]
	if !ok {
		return nil, inventory.ErrEntryNotFound
	}
	entry := st.withItem(e.entry)
	return &entry, nil
}

func (st *memState) IncrementEntry(ctx context.Context, key inventory.LotKey, packs int64, at time.Time) (*inventory.LedgerEntry, error) {
	if _, ok := st.items[key.ItemID]; !ok {
		return nil, inventory.ErrItemNotFound
	}

	e, ok := st.entries[key.String()]
	if !ok {
		e = &memEntry{
			entry: inventory.LedgerEntry{
				ID:        inventory.NewID(),
				ItemID:    key.ItemID,
				Location:  key.Location,
				UnitCost:  key.UnitCost,
				CreatedAt: at,
			},
			seq: st.next(),
		}
		st.entries[key.String()] = e
	}
	e.entry.PackQty += packs
	e.entry.LastUpdated = at

	entry := st.withItem(e.entry)
	return &entry, nil
}

func (st *memState) DecrementEntry(ctx context.Context, key inventory.LotKey, packs int64, at time.Time) (*inventory.LedgerEntry, error) {
	e, ok := st.entries[key.String()]
	if !ok {
		return nil, inventory.ErrEntryNotFound
	}
	if e.entry.PackQty < packs {
		return nil, inventory.ErrInsufficientStock
	}
	e.entry.PackQty -= packs
	e.entry.LastUpdated = at

	entry := st.withItem(e.entry)
	return &entry, nil
}

func (st *memState) SetEntryQuantity(ctx context.Context, key inventory.LotKey, packs, pills int64, at time.Time) (*inventory.LedgerEntry, error) {
	e, ok := st.entries[key.String()]
	if !ok {
		return nil, inventory.ErrEntryNotFound
	}
	e.entry.PackQty = packs
	e.entry.PillQty = pills
	e.entry.LastUpdated = at

	entry := st.withItem(e.entry)
	return &entry, nil
}

func (st *memState) ListEntries(ctx context.Context, filter inventory.EntryFilter) ([]inventory.LedgerEntry, error) {
	matched := make([]*memEntry, 0)
	for _, e := range st.entries {
		if filter.ItemID != "" && e.entry.ItemID != filter.ItemID {
			continue
		}
		if filter.Location != "" && e.entry.Location != filter.Location {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		an, bn := st.items[a.entry.ItemID].Name, st.items[b.entry.ItemID].Name
		if an != bn {
			return an < bn
		}
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			return a.entry.CreatedAt.Before(b.entry.CreatedAt)
		}
		return a.seq < b.seq
	})

	entries := make([]inventory.LedgerEntry, 0, len(matched))
	for _, e := range matched {
		entries = append(entries, st.withItem(e.entry))
	}
	return entries, nil
}

// 仕入操作

func (st *memState) CreateIntake(ctx context.Context, record *inventory.IntakeRecord) error {
	if record.IdempotencyKey != "" {
		for _, r := range st.intakes {
			if r.IdempotencyKey == record.IdempotencyKey {
				return inventory.ErrDuplicateKey
			}
		}
	}
	st.intakes = append(st.intakes, *record)
	return nil
}

func (st *memState) FindIntakeByKey(ctx context.Context, idempotencyKey string) (*inventory.IntakeRecord, error) {
	for _, r := range st.intakes {
		if r.IdempotencyKey == idempotencyKey {
			r = st.intakeWithItem(r)
			return &r, nil
		}
	}
	return nil, inventory.ErrIntakeNotFound
}

func (st *memState) intakeWithItem(r inventory.IntakeRecord) inventory.IntakeRecord {
	if item, ok := st.items[r.ItemID]; ok {
		r.ItemName = item.Name
		r.ItemWeight = item.Weight
	}
	return r
}

// newestIntakes returns intake positions ordered by date, then creation, newest first
func (st *memState) newestIntakes() []int {
	idx := make([]int, len(st.intakes))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := st.intakes[idx[i]], st.intakes[idx[j]]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return idx[i] > idx[j]
	})
	return idx
}

func (st *memState) ListIntakes(ctx context.Context, limit int) ([]inventory.IntakeRecord, error) {
	records := make([]inventory.IntakeRecord, 0)
	for _, i := range st.newestIntakes() {
		if limit > 0 && len(records) >= limit {
			break
		}
		records = append(records, st.intakeWithItem(st.intakes[i]))
	}
	return records, nil
}

func (st *memState) LatestBuyPrices(ctx context.Context, itemIDs []string) (map[string]decimal.Decimal, error) {
	wanted := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}

	prices := make(map[string]decimal.Decimal)
	for _, i := range st.newestIntakes() {
		r := st.intakes[i]
		if !wanted[r.ItemID] {
			continue
		}
		if _, ok := prices[r.ItemID]; !ok {
			prices[r.ItemID] = r.BuyPrice
		}
	}
	return prices, nil
}

// 売上操作

func (st *memState) CreateSale(ctx context.Context, sale *inventory.Sale) error {
	if sale.IdempotencyKey != "" {
		for _, s := range st.sales {
			if s.IdempotencyKey == sale.IdempotencyKey {
				return inventory.ErrDuplicateKey
			}
		}
	}
	cp := *sale
	cp.Lines = append([]inventory.SaleLineItem(nil), sale.Lines...)
	st.sales = append(st.sales, cp)
	return nil
}

func (st *memState) saleCopy(s inventory.Sale) *inventory.Sale {
	s.Lines = append([]inventory.SaleLineItem(nil), s.Lines...)
	for i := range s.Lines {
		s.Lines[i].ItemName = st.items[s.Lines[i].ItemID].Name
		s.Lines[i].SoldAt = s.CreatedAt
	}
	return &s
}

func (st *memState) GetSale(ctx context.Context, saleID string) (*inventory.Sale, error) {
	for _, s := range st.sales {
		if s.ID == saleID {
			return st.saleCopy(s), nil
		}
	}
	return nil, inventory.ErrSaleNotFound
}

func (st *memState) FindSaleByKey(ctx context.Context, idempotencyKey string) (*inventory.Sale, error) {
	for _, s := range st.sales {
		if s.IdempotencyKey == idempotencyKey {
			return st.saleCopy(s), nil
		}
	}
	return nil, inventory.ErrSaleNotFound
}

func (st *memState) ListSaleLines(ctx context.Context, filter inventory.SaleLineFilter) ([]inventory.SaleLineItem, error) {
	lines := make([]inventory.SaleLineItem, 0)
	for i := len(st.sales) - 1; i >= 0; i-- {
		s := st.sales[i]
		if !filter.Period.Contains(s.CreatedAt) {
			continue
		}
		lines = append(lines, st.saleCopy(s).Lines...)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].SoldAt.After(lines[j].SoldAt)
	})
	if filter.Limit > 0 && len(lines) > filter.Limit {
		lines = lines[:filter.Limit]
	}
	return lines, nil
}

// 移動履歴操作

func (st *memState) CreateMovement(ctx context.Context, movement *inventory.Movement) error {
	if movement.IdempotencyKey != "" {
		for _, mv := range st.movements {
			if mv.IdempotencyKey == movement.IdempotencyKey {
				return inventory.ErrDuplicateKey
			}
		}
	}
	st.movements = append(st.movements, *movement)
	return nil
}

func (st *memState) FindMovementByKey(ctx context.Context, idempotencyKey string) (*inventory.Movement, error) {
	for _, mv := range st.movements {
		if mv.IdempotencyKey == idempotencyKey {
			mv.ItemName = st.items[mv.ItemID].Name
			return &mv, nil
		}
	}
	return nil, inventory.ErrMovementNotFound
}

func (st *memState) ListMovements(ctx context.Context, limit int) ([]inventory.Movement, error) {
	movements := make([]inventory.Movement, 0)
	for i := len(st.movements) - 1; i >= 0; i-- {
		if limit > 0 && len(movements) >= limit {
			break
		}
		mv := st.movements[i]
		mv.ItemName = st.items[mv.ItemID].Name
		movements = append(movements, mv)
	}
	return movements, nil
}

// アラート操作

func (st *memState) CreateAlert(ctx context.Context, alert *inventory.StockAlert) error {
	for _, a := range st.alerts {
		if a.IsActive && a.ItemID == alert.ItemID && a.Location == alert.Location {
			return inventory.ErrDuplicateKey
		}
	}
	st.alerts = append(st.alerts, *alert)
	return nil
}

func (st *memState) FindActiveAlert(ctx context.Context, itemID string, location inventory.Location) (*inventory.StockAlert, error) {
	for _, a := range st.alerts {
		if a.IsActive && a.ItemID == itemID && a.Location == location {
			return &a, nil
		}
	}
	return nil, inventory.ErrAlertNotFound
}

func (st *memState) ListActiveAlerts(ctx context.Context, location inventory.Location) ([]inventory.StockAlert, error) {
	alerts := make([]inventory.StockAlert, 0)
	for i := len(st.alerts) - 1; i >= 0; i-- {
		a := st.alerts[i]
		if !a.IsActive {
			continue
		}
		if location != "" && a.Location != location {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (st *memState) ResolveAlert(ctx context.Context, alertID string, at time.Time) error {
	for i := range st.alerts {
		if st.alerts[i].ID == alertID && st.alerts[i].IsActive {
			resolved := at
			st.alerts[i].IsActive = false
			st.alerts[i].ResolvedAt = &resolved
			return nil
		}
	}
	return inventory.ErrAlertNotFound
}
