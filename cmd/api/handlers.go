package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/pharmastock/pkg/inventory"
	"github.com/nemonet1337/pharmastock/pkg/inventory/reports"
)

// Handlers holds HTTP handlers for the stock API
// 在庫API用のHTTPハンドラーを保持
type Handlers struct {
	manager  inventory.InventoryManager
	validate *validator.Validate
	logger   *zap.Logger
	currency string
	now      func() time.Time
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(manager inventory.InventoryManager, logger *zap.Logger, currency string) *Handlers {
	return &Handlers{
		manager:  manager,
		validate: validator.New(),
		logger:   logger,
		currency: currency,
		now:      time.Now,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// ItemPayload identifies or describes the item of an intake
type ItemPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name" validate:"required_without=ID,max=200"`
	Weight   string `json:"weight" validate:"max=50"`
	PackSize int64  `json:"pack_size" validate:"gte=0"`
}

// IntakeRequest represents a stock intake
// 仕入リクエストを表現
type IntakeRequest struct {
	IdempotencyKey string          `json:"idempotency_key" validate:"max=100"`
	Date           string          `json:"date"`
	Destination    string          `json:"destination" validate:"required,oneof=main_store pharmacy point_of_sale"`
	Item           ItemPayload     `json:"item"`
	PackQty        int64           `json:"pack_qty" validate:"gte=0"`
	FreePacks      int64           `json:"free_packs" validate:"gte=0"`
	BuyPrice       decimal.Decimal `json:"buy_price"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
}

// TransferRequest represents a transfer between locations
// 在庫移動リクエストを表現
type TransferRequest struct {
	IdempotencyKey string          `json:"idempotency_key" validate:"max=100"`
	ItemID         string          `json:"item_id" validate:"required"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	From           string          `json:"from" validate:"required,oneof=main_store pharmacy point_of_sale"`
	To             string          `json:"to" validate:"required,oneof=main_store pharmacy point_of_sale"`
	Qty            int64           `json:"qty" validate:"gt=0"`
}

// SaleLine represents one requested sale line
type SaleLine struct {
	ItemID        string           `json:"item_id" validate:"required"`
	Qty           int64            `json:"qty" validate:"gt=0"`
	UnitSellPrice decimal.Decimal  `json:"unit_sell_price"`
	LotCost       *decimal.Decimal `json:"lot_cost,omitempty"`
}

// SaleRequest represents a point-of-sale checkout
// 販売リクエストを表現
type SaleRequest struct {
	IdempotencyKey string     `json:"idempotency_key" validate:"max=100"`
	Lines          []SaleLine `json:"lines" validate:"required,min=1,dive"`
}

// LotRequest identifies a ledger entry
type LotRequest struct {
	ItemID   string          `json:"item_id" validate:"required"`
	Location string          `json:"location" validate:"required,oneof=main_store pharmacy point_of_sale"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// UpsertRequest adds a signed pack delta to a ledger entry
// 台帳数量の増減リクエスト
type UpsertRequest struct {
	LotRequest
	Delta int64 `json:"delta"`
}

// AdjustRequest sets a ledger entry to counted quantities
// 棚卸調整リクエストを表現
type AdjustRequest struct {
	LotRequest
	PackQty int64  `json:"pack_qty" validate:"gte=0"`
	PillQty int64  `json:"pill_qty" validate:"gte=0"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

// DisposeRequest removes damaged or expired packs
// 廃棄リクエストを表現
type DisposeRequest struct {
	LotRequest
	Qty    int64  `json:"qty" validate:"gt=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}

func (l LotRequest) key() inventory.LotKey {
	return inventory.LotKey{ItemID: l.ItemID, Location: inventory.Location(l.Location), UnitCost: l.UnitCost}
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.manager.Ping(r.Context()); err != nil {
		h.logger.Warn("ヘルスチェックに失敗しました", zap.Error(err))
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.send(w, code, APIResponse{
		Success: code == http.StatusOK,
		Data: map[string]interface{}{
			"status":    status,
			"timestamp": h.now(),
			"service":   "pharmastock",
		},
	})
}

// RecordIntake handles intake requests
// 仕入リクエストを処理
func (h *Handlers) RecordIntake(w http.ResponseWriter, r *http.Request) {
	var req IntakeRequest
	if !h.decode(w, r, &req) {
		return
	}

	date := h.now()
	if req.Date != "" {
		parsed, err := parseTime(req.Date)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "無効な仕入日です")
			return
		}
		date = parsed
	}

	record, err := h.manager.RecordIntake(withActor(r), inventory.IntakeRequest{
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
		Date:           date,
		Destination:    inventory.Location(req.Destination),
		Item: inventory.ItemSpec{
			ID:       req.Item.ID,
			Name:     req.Item.Name,
			Weight:   req.Item.Weight,
			PackSize: req.Item.PackSize,
		},
		PackQty:     req.PackQty,
		FreePacks:   req.FreePacks,
		BuyPrice:    req.BuyPrice,
		RetailPrice: req.RetailPrice,
	})
	if err != nil {
		h.handleError(w, "仕入登録", err)
		return
	}

	h.sendCreated(w, record)
}

// ListIntakes handles inward register requests
// 仕入台帳の一覧を処理
func (h *Handlers) ListIntakes(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	records, err := h.manager.ListIntakes(r.Context(), limit)
	if err != nil {
		h.handleError(w, "仕入台帳取得", err)
		return
	}

	if r.URL.Query().Get("format") == string(reports.FormatCSV) {
		h.sendReport(w, reports.FormatCSV, "intakes", func(buf *bytes.Buffer) error {
			return reports.WriteIntakesCSV(buf, records)
		})
		return
	}
	h.sendSuccess(w, records)
}

// Transfer handles transfer requests
// 在庫移動リクエストを処理
func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	movement, err := h.manager.Transfer(withActor(r), inventory.TransferRequest{
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
		ItemID:         req.ItemID,
		UnitCost:       req.UnitCost,
		From:           inventory.Location(req.From),
		To:             inventory.Location(req.To),
		Qty:            req.Qty,
	})
	if err != nil {
		h.handleError(w, "在庫移動", err)
		return
	}

	h.sendCreated(w, movement)
}

// RecordSale handles sale requests
// 販売リクエストを処理
func (h *Handlers) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if !h.decode(w, r, &req) {
		return
	}

	lines := make([]inventory.SaleLineRequest, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, inventory.SaleLineRequest{
			ItemID:        line.ItemID,
			Qty:           line.Qty,
			UnitSellPrice: line.UnitSellPrice,
			LotCost:       line.LotCost,
		})
	}

	sale, err := h.manager.RecordSale(withActor(r), inventory.SaleRequest{
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
		Lines:          lines,
	})
	if err != nil {
		h.handleError(w, "販売登録", err)
		return
	}

	h.sendCreated(w, sale)
}

// GetSale handles sale lookup requests
// 売上照会を処理
func (h *Handlers) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.manager.GetSale(r.Context(), mux.Vars(r)["saleId"])
	if err != nil {
		h.handleError(w, "売上取得", err)
		return
	}
	h.sendSuccess(w, sale)
}

// ListSaleLines handles recent sales requests
// 最近の販売明細を処理
func (h *Handlers) ListSaleLines(w http.ResponseWriter, r *http.Request) {
	period, ok := h.period(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	lines, err := h.manager.ListRecentSaleLines(r.Context(), period, limit)
	if err != nil {
		h.handleError(w, "販売明細取得", err)
		return
	}

	if r.URL.Query().Get("format") == string(reports.FormatCSV) {
		h.sendReport(w, reports.FormatCSV, "sales", func(buf *bytes.Buffer) error {
			return reports.WriteSaleLinesCSV(buf, lines)
		})
		return
	}
	h.sendSuccess(w, lines)
}

// UpsertQuantity handles raw ledger delta requests
// 台帳数量の増減を処理
func (h *Handlers) UpsertQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpsertRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.manager.UpsertQuantity(withActor(r), req.key(), req.Delta)
	if err != nil {
		h.handleError(w, "台帳更新", err)
		return
	}
	h.sendSuccess(w, entry)
}

// Adjust handles stock count adjustments
// 棚卸調整を処理
func (h *Handlers) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.manager.Adjust(withActor(r), inventory.AdjustRequest{
		Key:     req.key(),
		PackQty: req.PackQty,
		PillQty: req.PillQty,
		Reason:  req.Reason,
	})
	if err != nil {
		h.handleError(w, "棚卸調整", err)
		return
	}
	h.sendSuccess(w, entry)
}

// Dispose handles disposal requests
// 廃棄を処理
func (h *Handlers) Dispose(w http.ResponseWriter, r *http.Request) {
	var req DisposeRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.manager.Dispose(withActor(r), inventory.DisposeRequest{
		Key:    req.key(),
		Qty:    req.Qty,
		Reason: req.Reason,
	})
	if err != nil {
		h.handleError(w, "廃棄", err)
		return
	}
	h.sendSuccess(w, entry)
}

// ListByLocation handles ledger listing requests
// ロケーション別台帳の一覧を処理
func (h *Handlers) ListByLocation(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}

	entries, err := h.manager.ListByLocation(r.Context(), location)
	if err != nil {
		h.handleError(w, "台帳取得", err)
		return
	}
	h.sendSuccess(w, entries)
}

// LowStock handles low stock report requests
// 低在庫レポートを処理
func (h *Handlers) LowStock(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}
	filter, err := inventory.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		h.handleError(w, "低在庫レポート", err)
		return
	}

	report, err := h.manager.LowStock(r.Context(), location, filter)
	if err != nil {
		h.handleError(w, "低在庫レポート", err)
		return
	}

	if r.URL.Query().Get("format") == string(reports.FormatCSV) {
		h.sendReport(w, reports.FormatCSV, "low-stock-"+location.String(), func(buf *bytes.Buffer) error {
			return reports.WriteLowStockCSV(buf, report)
		})
		return
	}
	h.sendSuccess(w, report)
}

// LocationValue handles valuation requests for one location
// ロケーションの在庫評価を処理
func (h *Handlers) LocationValue(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}

	valuation, err := h.manager.LocationValue(r.Context(), location)
	if err != nil {
		h.handleError(w, "在庫評価", err)
		return
	}
	h.sendSuccess(w, valuation)
}

// TotalValue handles valuation requests across all locations
// 全ロケーションの在庫評価を処理
func (h *Handlers) TotalValue(w http.ResponseWriter, r *http.Request) {
	total, err := h.manager.TotalValue(r.Context())
	if err != nil {
		h.handleError(w, "在庫評価", err)
		return
	}
	h.sendSuccess(w, map[string]interface{}{
		"total_value": total,
		"currency":    h.currency,
	})
}

// ProfitMetrics handles revenue and profit requests
// 売上・利益の集計を処理
func (h *Handlers) ProfitMetrics(w http.ResponseWriter, r *http.Request) {
	period, ok := h.period(w, r)
	if !ok {
		return
	}

	metrics, err := h.manager.ComputeMetrics(r.Context(), period)
	if err != nil {
		h.handleError(w, "利益集計", err)
		return
	}
	h.sendSuccess(w, metrics)
}

// RecentActivity handles movement log requests
// 最近の在庫移動履歴を処理
func (h *Handlers) RecentActivity(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	movements, err := h.manager.RecentActivity(r.Context(), limit)
	if err != nil {
		h.handleError(w, "移動履歴取得", err)
		return
	}
	h.sendSuccess(w, movements)
}

// GetAlerts handles active alert requests
// アクティブアラートの一覧を処理
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	var location inventory.Location
	if raw := r.URL.Query().Get("location"); raw != "" {
		parsed, err := inventory.ParseLocation(raw)
		if err != nil {
			h.handleError(w, "アラート取得", err)
			return
		}
		location = parsed
	}

	alerts, err := h.manager.GetAlerts(r.Context(), location)
	if err != nil {
		h.handleError(w, "アラート取得", err)
		return
	}
	h.sendSuccess(w, alerts)
}

// ResolveAlert handles alert resolution requests
// アラート解決を処理
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["alertId"]
	if err := h.manager.ResolveAlert(withActor(r), alertID); err != nil {
		h.handleError(w, "アラート解決", err)
		return
	}
	h.sendSuccess(w, map[string]string{
		"message": "アラートを解決しました",
	})
}

// LedgerReport handles ledger export requests
// 台帳レポートの出力を処理
func (h *Handlers) LedgerReport(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}
	format, err := reports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.handleError(w, "レポート出力", err)
		return
	}

	valuation, err := h.manager.LocationValue(r.Context(), location)
	if err != nil {
		h.handleError(w, "レポート出力", err)
		return
	}

	h.sendReport(w, format, "ledger-"+location.String(), func(buf *bytes.Buffer) error {
		if format == reports.FormatPDF {
			return reports.WriteLedgerPDF(buf, valuation, h.currency, h.now())
		}
		return reports.WriteLedgerCSV(buf, valuation)
	})
}

// ProfitReport handles profit export requests
// 利益レポートの出力を処理
func (h *Handlers) ProfitReport(w http.ResponseWriter, r *http.Request) {
	period, ok := h.period(w, r)
	if !ok {
		return
	}
	format, err := reports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.handleError(w, "レポート出力", err)
		return
	}

	metrics, err := h.manager.ComputeMetrics(r.Context(), period)
	if err != nil {
		h.handleError(w, "レポート出力", err)
		return
	}
	lines, err := h.manager.ListRecentSaleLines(r.Context(), period, 0)
	if err != nil {
		h.handleError(w, "レポート出力", err)
		return
	}

	h.sendReport(w, format, "profit", func(buf *bytes.Buffer) error {
		if format == reports.FormatPDF {
			return reports.WriteProfitPDF(buf, metrics, lines, h.currency, h.now())
		}
		return reports.WriteSaleLinesCSV(buf, lines)
	})
}

// ヘルパー関数

// decode reads and validates a JSON body; false means a response was sent
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
			return false
		}
		details := make(map[string]string, len(fieldErrors))
		for _, fe := range fieldErrors {
			details[fe.Namespace()] = formatValidationError(fe)
		}
		h.send(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Error:   "入力内容に誤りがあります",
			Details: details,
		})
		return false
	}
	return true
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "必須項目です"
	case "gt":
		return fe.Param() + "より大きい値を指定してください"
	case "gte":
		return fe.Param() + "以上の値を指定してください"
	case "max":
		return fe.Param() + "文字以内で指定してください"
	case "min":
		return fe.Param() + "件以上指定してください"
	case "oneof":
		return "次のいずれかを指定してください: " + fe.Param()
	}
	return "無効な値です"
}

func (h *Handlers) location(w http.ResponseWriter, r *http.Request) (inventory.Location, bool) {
	location, err := inventory.ParseLocation(mux.Vars(r)["location"])
	if err != nil {
		h.handleError(w, "ロケーション解析", err)
		return "", false
	}
	return location, true
}

func (h *Handlers) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		h.sendError(w, http.StatusBadRequest, "無効な件数です")
		return 0, false
	}
	return limit, true
}

// period parses from/to query values. A date-only "to" includes that whole day.
func (h *Handlers) period(w http.ResponseWriter, r *http.Request) (*inventory.Period, bool) {
	q := r.URL.Query()
	rawFrom, rawTo := q.Get("from"), q.Get("to")
	if rawFrom == "" && rawTo == "" {
		return nil, true
	}

	period := &inventory.Period{}
	if rawFrom != "" {
		from, err := parseTime(rawFrom)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "無効な開始日です")
			return nil, false
		}
		period.From = from
	}
	if rawTo != "" {
		to, err := parseTime(rawTo)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "無効な終了日です")
			return nil, false
		}
		if len(rawTo) == len(dateLayout) {
			to = to.AddDate(0, 0, 1)
		}
		period.To = to
	}
	if !period.From.IsZero() && !period.To.IsZero() && !period.From.Before(period.To) {
		h.sendError(w, http.StatusBadRequest, "開始日は終了日より前である必要があります")
		return nil, false
	}
	return period, true
}

const dateLayout = "2006-01-02"

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(dateLayout, s)
}

func withActor(r *http.Request) context.Context {
	actor := r.Header.Get("X-User-ID")
	if actor == "" {
		actor = "api_user"
	}
	return inventory.WithActor(r.Context(), actor)
}

// idempotencyKey prefers the body value and falls back to the Idempotency-Key header
func idempotencyKey(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get("Idempotency-Key")
}

// statusFor maps a manager error to an HTTP status code
// エラーをHTTPステータスに変換
func statusFor(err error) int {
	var validationErr *inventory.ValidationError
	var ruleErr *inventory.BusinessRuleError
	var storageErr *inventory.StorageError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrDuplicateKey),
		errors.Is(err, inventory.ErrItemAmbiguous):
		return http.StatusConflict
	case errors.As(err, &ruleErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, inventory.ErrEntryNotFound),
		errors.Is(err, inventory.ErrSaleNotFound),
		errors.Is(err, inventory.ErrIntakeNotFound),
		errors.Is(err, inventory.ErrMovementNotFound),
		errors.Is(err, inventory.ErrAlertNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *Handlers) handleError(w http.ResponseWriter, operation string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(operation+"に失敗しました", zap.Error(err))
		h.sendError(w, status, "内部エラーが発生しました")
		return
	}
	h.logger.Debug(operation+"を拒否しました", zap.Int("status", status), zap.Error(err))

	var validationErr *inventory.ValidationError
	if errors.As(err, &validationErr) {
		h.send(w, status, APIResponse{
			Success: false,
			Error:   err.Error(),
			Details: map[string]string{validationErr.Field: validationErr.Message},
		})
		return
	}
	h.sendError(w, status, err.Error())
}

// sendReport renders into a buffer first so a rendering failure can still
// produce a JSON error response
func (h *Handlers) sendReport(w http.ResponseWriter, format reports.Format, name string, render func(buf *bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		h.logger.Error("レポート生成に失敗しました", zap.String("report", name), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "レポート生成に失敗しました")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("レポート送信に失敗しました", zap.Error(err))
	}
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.send(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// sendCreated sends a 201 API response
func (h *Handlers) sendCreated(w http.ResponseWriter, data interface{}) {
	h.send(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.send(w, statusCode, APIResponse{Success: false, Error: message})
}

func (h *Handlers) send(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}
