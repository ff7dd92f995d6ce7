// Package reports renders ledger, intake, sale and low stock views as CSV or PDF
package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nemonet1337/pharmastock/pkg/inventory"
)

// Format is an export file format
// 出力形式
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat converts a query value into a Format; empty means CSV
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatPDF:
		return f, nil
	}
	return "", inventory.NewValidationError("format", "無効な出力形式です", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

const dateLayout = "2006-01-02"

func formatQty(n int64) string {
	return strconv.FormatInt(n, 10)
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("CSVヘッダー書き込みに失敗しました: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("CSV書き込みに失敗しました: %w", err)
	}
	return nil
}

// WriteLedgerCSV writes one row per lot of a location valuation
// 台帳評価をCSVで出力
func WriteLedgerCSV(w io.Writer, v *inventory.LocationValuation) error {
	header := []string{"item_id", "item_name", "weight", "location", "unit_cost", "pack_qty", "pill_qty", "value", "label", "last_updated"}
	rows := make([][]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		rows = append(rows, []string{
			e.ItemID,
			e.ItemName,
			e.ItemWeight,
			e.Location.String(),
			e.UnitCost.StringFixed(inventory.MoneyScale),
			formatQty(e.PackQty),
			formatQty(e.PillQty),
			e.Value.StringFixed(inventory.MoneyScale),
			string(e.Label),
			e.LastUpdated.UTC().Format(time.RFC3339),
		})
	}
	return writeAll(w, header, rows)
}

// WriteIntakesCSV writes the inward register
// 仕入台帳をCSVで出力
func WriteIntakesCSV(w io.Writer, records []inventory.IntakeRecord) error {
	header := []string{"id", "date", "destination", "item_id", "item_name", "weight", "pack_qty", "free_packs", "buy_price", "retail_price", "created_by"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.Date.Format(dateLayout),
			r.Destination.String(),
			r.ItemID,
			r.ItemName,
			r.ItemWeight,
			formatQty(r.PackQty),
			formatQty(r.FreePacks),
			r.BuyPrice.StringFixed(inventory.MoneyScale),
			r.RetailPrice.StringFixed(inventory.MoneyScale),
			r.CreatedBy,
		})
	}
	return writeAll(w, header, rows)
}

// WriteSaleLinesCSV writes sale lines with their per-line margin
// 売上明細をCSVで出力
func WriteSaleLinesCSV(w io.Writer, lines []inventory.SaleLineItem) error {
	header := []string{"sale_id", "sold_at", "item_id", "item_name", "qty", "unit_sell_price", "unit_cost", "line_total", "margin"}
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		margin := l.LineTotal.Sub(inventory.LineTotal(l.Qty, l.UnitCost))
		rows = append(rows, []string{
			l.SaleID,
			l.SoldAt.UTC().Format(time.RFC3339),
			l.ItemID,
			l.ItemName,
			formatQty(l.Qty),
			l.UnitSellPrice.StringFixed(inventory.MoneyScale),
			l.UnitCost.StringFixed(inventory.MoneyScale),
			l.LineTotal.StringFixed(inventory.MoneyScale),
			margin.StringFixed(inventory.MoneyScale),
		})
	}
	return writeAll(w, header, rows)
}

// WriteLowStockCSV writes a low stock report
// 低在庫レポートをCSVで出力
func WriteLowStockCSV(w io.Writer, report *inventory.LowStockReport) error {
	header := []string{"item_id", "item_name", "weight", "location", "pack_qty", "threshold", "status", "lots"}
	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		rows = append(rows, []string{
			item.ItemID,
			item.ItemName,
			item.Weight,
			item.Location.String(),
			formatQty(item.PackQty),
			formatQty(item.Threshold),
			string(item.Status),
			strconv.Itoa(item.Lots),
		})
	}
	return writeAll(w, header, rows)
}
