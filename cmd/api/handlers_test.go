package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonet1337/pharmastock/internal/config"
	"github.com/nemonet1337/pharmastock/pkg/inventory"
	"github.com/nemonet1337/pharmastock/pkg/inventory/storage"
)

type apiEnvelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	manager := inventory.NewManager(storage.NewMemoryStorage(), nil, zap.NewNop(), nil)
	handlers := NewHandlers(manager, zap.NewNop(), "LKR")
	router := setupRouter(handlers, nil, config.Default().API)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, body interface{}, headers ...string) (int, apiEnvelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope apiEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

func intakeBody(key string) map[string]interface{} {
	return map[string]interface{}{
		"idempotency_key": key,
		"date":            "2024-03-01",
		"destination":     "main_store",
		"item":            map[string]interface{}{"name": "Paracetamol", "weight": "500mg", "pack_size": 10},
		"pack_qty":        100,
		"buy_price":       "10",
		"retail_price":    "15",
	}
}

// seedScenario runs intake, two transfers and a sale through the API and returns the item ID
func seedScenario(t *testing.T, server *httptest.Server) string {
	t.Helper()

	code, resp := doJSON(t, server, http.MethodPost, "/api/v1/intakes", intakeBody("intake-1"))
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var record inventory.IntakeRecord
	require.NoError(t, json.Unmarshal(resp.Data, &record))

	for _, tr := range []struct {
		from, to string
		qty      int
	}{
		{"main_store", "pharmacy", 40},
		{"pharmacy", "point_of_sale", 20},
	} {
		code, resp = doJSON(t, server, http.MethodPost, "/api/v1/transfers", map[string]interface{}{
			"item_id":   record.ItemID,
			"unit_cost": "10",
			"from":      tr.from,
			"to":        tr.to,
			"qty":       tr.qty,
		})
		require.Equal(t, http.StatusCreated, code, resp.Error)
	}

	code, resp = doJSON(t, server, http.MethodPost, "/api/v1/sales", map[string]interface{}{
		"lines": []map[string]interface{}{
			{"item_id": record.ItemID, "qty": 5, "unit_sell_price": "15"},
		},
	}, "Idempotency-Key", "sale-1")
	require.Equal(t, http.StatusCreated, code, resp.Error)

	return record.ItemID
}

func packsAt(t *testing.T, server *httptest.Server, location string) int64 {
	t.Helper()
	code, resp := doJSON(t, server, http.MethodGet, "/api/v1/ledger/"+location, nil)
	require.Equal(t, http.StatusOK, code, resp.Error)

	var entries []inventory.LedgerEntry
	require.NoError(t, json.Unmarshal(resp.Data, &entries))
	var total int64
	for _, e := range entries {
		total += e.PackQty
	}
	return total
}

func TestAPI_Scenario(t *testing.T) {
	server := newTestServer(t)
	seedScenario(t, server)

	// アサーション
	assert.Equal(t, int64(60), packsAt(t, server, "main_store"))
	assert.Equal(t, int64(15), packsAt(t, server, "pharmacy"))
	assert.Equal(t, int64(15), packsAt(t, server, "point_of_sale"))

	code, resp := doJSON(t, server, http.MethodGet, "/api/v1/metrics/profit", nil)
	require.Equal(t, http.StatusOK, code)
	var metrics inventory.Metrics
	require.NoError(t, json.Unmarshal(resp.Data, &metrics))
	assert.True(t, metrics.Revenue.Equal(decimal.NewFromInt(75)), metrics.Revenue.String())
	assert.True(t, metrics.Profit.Equal(decimal.NewFromInt(25)), metrics.Profit.String())
}

func TestAPI_SaleReplayWithHeaderKey(t *testing.T) {
	server := newTestServer(t)
	itemID := seedScenario(t, server)

	// 同じIdempotency-Keyで再送
	code, resp := doJSON(t, server, http.MethodPost, "/api/v1/sales", map[string]interface{}{
		"lines": []map[string]interface{}{
			{"item_id": itemID, "qty": 5, "unit_sell_price": "15"},
		},
	}, "Idempotency-Key", "sale-1")

	require.Equal(t, http.StatusCreated, code, resp.Error)
	assert.Equal(t, int64(15), packsAt(t, server, "point_of_sale"))
}

func TestAPI_InsufficientStock(t *testing.T) {
	server := newTestServer(t)
	itemID := seedScenario(t, server)

	code, resp := doJSON(t, server, http.MethodPost, "/api/v1/sales", map[string]interface{}{
		"lines": []map[string]interface{}{
			{"item_id": itemID, "qty": 16, "unit_sell_price": "15"},
		},
	})

	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, resp.Success)
	assert.Equal(t, int64(15), packsAt(t, server, "point_of_sale"))
}

func TestAPI_ValidationErrors(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{"小数点以下3桁の原価", "/api/v1/transfers", map[string]interface{}{
			"item_id": "X", "unit_cost": "10.004", "from": "main_store", "to": "pharmacy", "qty": 1,
		}},
		{"小数点以下3桁の台帳原価", "/api/v1/ledger/dispose", map[string]interface{}{
			"item_id": "X", "location": "main_store", "unit_cost": "10.004", "qty": 1, "reason": "damaged",
		}},
		{"明細なしの販売", "/api/v1/sales", map[string]interface{}{"lines": []interface{}{}}},
		{"数量ゼロの仕入", "/api/v1/intakes", map[string]interface{}{
			"destination": "main_store", "item": map[string]interface{}{"name": "A"}, "pack_qty": 0,
		}},
		{"無効なロケーション", "/api/v1/ledger/dispose", map[string]interface{}{
			"item_id": "X", "location": "warehouse", "qty": 1, "reason": "damaged",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := doJSON(t, server, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Details)
		})
	}
}

func TestAPI_TransferToSameLocation(t *testing.T) {
	server := newTestServer(t)

	code, resp := doJSON(t, server, http.MethodPost, "/api/v1/transfers", map[string]interface{}{
		"item_id": "X", "unit_cost": "10", "from": "pharmacy", "to": "pharmacy", "qty": 1,
	})

	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, resp.Success)
}

func TestAPI_FreePacksOnlyIntake(t *testing.T) {
	server := newTestServer(t)

	code, resp := doJSON(t, server, http.MethodPost, "/api/v1/intakes", map[string]interface{}{
		"destination": "main_store",
		"item":        map[string]interface{}{"name": "Cetirizine", "weight": "10mg"},
		"pack_qty":    0,
		"free_packs":  6,
		"buy_price":   "0",
	})

	require.Equal(t, http.StatusCreated, code, resp.Error)
	assert.Equal(t, int64(6), packsAt(t, server, "main_store"))
}

func TestAPI_MalformedJSON(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/v1/sales", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_NotFound(t *testing.T) {
	server := newTestServer(t)

	code, _ := doJSON(t, server, http.MethodGet, "/api/v1/sales/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doJSON(t, server, http.MethodPost, "/api/v1/alerts/missing/resolve", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doJSON(t, server, http.MethodGet, "/api/v1/ledger/warehouse", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_LowStockAndAlerts(t *testing.T) {
	server := newTestServer(t)
	seedScenario(t, server)

	// 既定の発注点20に対しPOSは15パック
	code, resp := doJSON(t, server, http.MethodGet, "/api/v1/ledger/point_of_sale/low-stock?status=warning", nil)
	require.Equal(t, http.StatusOK, code)
	var report inventory.LowStockReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	require.Len(t, report.Items, 1)
	assert.Equal(t, inventory.StockStatusWarning, report.Items[0].Status)

	code, resp = doJSON(t, server, http.MethodGet, "/api/v1/alerts?location=point_of_sale", nil)
	require.Equal(t, http.StatusOK, code)
	var alerts []inventory.StockAlert
	require.NoError(t, json.Unmarshal(resp.Data, &alerts))
	require.Len(t, alerts, 1)

	code, _ = doJSON(t, server, http.MethodPost, "/api/v1/alerts/"+alerts[0].ID+"/resolve", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, server, http.MethodGet, "/api/v1/ledger/point_of_sale/low-stock?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_AdjustAndDispose(t *testing.T) {
	server := newTestServer(t)
	itemID := seedScenario(t, server)

	code, resp := doJSON(t, server, http.MethodPost, "/api/v1/ledger/dispose", map[string]interface{}{
		"item_id": itemID, "location": "main_store", "unit_cost": "10", "qty": 10, "reason": "expired",
	})
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, int64(50), packsAt(t, server, "main_store"))

	code, resp = doJSON(t, server, http.MethodPost, "/api/v1/ledger/adjust", map[string]interface{}{
		"item_id": itemID, "location": "main_store", "unit_cost": "10", "pack_qty": 48, "pill_qty": 3, "reason": "stock count",
	})
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, int64(48), packsAt(t, server, "main_store"))

	code, _ = doJSON(t, server, http.MethodGet, "/api/v1/movements?limit=2", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_Reports(t *testing.T) {
	server := newTestServer(t)
	seedScenario(t, server)

	resp, err := http.Get(server.URL + "/api/v1/reports/ledger/main_store?format=csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	pdfResp, err := http.Get(server.URL + "/api/v1/reports/profit?format=pdf&from=2000-01-01")
	require.NoError(t, err)
	defer pdfResp.Body.Close()
	assert.Equal(t, http.StatusOK, pdfResp.StatusCode)
	assert.Equal(t, "application/pdf", pdfResp.Header.Get("Content-Type"))

	badResp, err := http.Get(server.URL + "/api/v1/reports/profit?format=xlsx")
	require.NoError(t, err)
	defer badResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
}

func TestAPI_InvalidPeriod(t *testing.T) {
	server := newTestServer(t)

	code, _ := doJSON(t, server, http.MethodGet, "/api/v1/metrics/profit?from=2024-03-02&to=2024-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, server, http.MethodGet, "/api/v1/metrics/profit?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_HealthCheck(t *testing.T) {
	server := newTestServer(t)

	code, resp := doJSON(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(inventory.ErrInsufficientStock))
	assert.Equal(t, http.StatusConflict, statusFor(inventory.ErrItemAmbiguous))
	assert.Equal(t, http.StatusNotFound, statusFor(inventory.ErrEntryNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(inventory.NewValidationError("f", "m", "v")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(inventory.NewBusinessRuleError("r", "m", "")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(inventory.NewStorageError("op", "m", inventory.ErrEntryNotFound)))
}
