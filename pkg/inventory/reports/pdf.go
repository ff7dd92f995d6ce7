package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/nemonet1337/pharmastock/pkg/inventory"
)

// pdfColumn is one column of a tabular PDF report
type pdfColumn struct {
	title string
	width float64
	align string
}

type pdfReport struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newPDFReport(title, subtitle string, generatedAt time.Time) *pdfReport {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	r := &pdfReport{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, r.tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, r.tr(subtitle), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Generated "+generatedAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(3)
	return r
}

func (r *pdfReport) table(columns []pdfColumn, rows [][]string) {
	header := func() {
		r.pdf.SetFont("Helvetica", "B", 9)
		r.pdf.SetFillColor(230, 230, 230)
		for _, c := range columns {
			r.pdf.CellFormat(c.width, 7, r.tr(c.title), "1", 0, "C", true, 0, "")
		}
		r.pdf.Ln(-1)
		r.pdf.SetFont("Helvetica", "", 9)
	}

	header()
	_, pageHeight := r.pdf.GetPageSize()
	_, _, _, bottom := r.pdf.GetMargins()
	for _, row := range rows {
		// 改ページ時はヘッダーを再描画
		if r.pdf.GetY()+6 > pageHeight-bottom {
			r.pdf.AddPage()
			header()
		}
		for i, c := range columns {
			r.pdf.CellFormat(c.width, 6, r.tr(row[i]), "1", 0, c.align, false, 0, "")
		}
		r.pdf.Ln(-1)
	}
}

func (r *pdfReport) summary(lines ...[2]string) {
	r.pdf.Ln(4)
	r.pdf.SetFont("Helvetica", "B", 10)
	for _, l := range lines {
		r.pdf.CellFormat(60, 6, r.tr(l[0]), "", 0, "L", false, 0, "")
		r.pdf.CellFormat(50, 6, r.tr(l[1]), "", 1, "R", false, 0, "")
	}
}

func (r *pdfReport) output(w io.Writer) error {
	if err := r.pdf.Output(w); err != nil {
		return fmt.Errorf("PDF出力に失敗しました: %w", err)
	}
	return nil
}

// WriteLedgerPDF renders a location valuation as a PDF stock sheet
// 台帳評価をPDFで出力
func WriteLedgerPDF(w io.Writer, v *inventory.LocationValuation, currency string, generatedAt time.Time) error {
	r := newPDFReport("Stock ledger", "Location: "+v.Location.String(), generatedAt)

	columns := []pdfColumn{
		{"Item", 80, "L"},
		{"Weight", 30, "L"},
		{"Unit cost", 30, "R"},
		{"Packs", 22, "R"},
		{"Pills", 22, "R"},
		{"Value", 40, "R"},
		{"Status", 33, "C"},
	}
	rows := make([][]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		rows = append(rows, []string{
			e.ItemName,
			e.ItemWeight,
			e.UnitCost.StringFixed(inventory.MoneyScale),
			formatQty(e.PackQty),
			formatQty(e.PillQty),
			e.Value.StringFixed(inventory.MoneyScale),
			string(e.Label),
		})
	}
	r.table(columns, rows)
	r.summary(
		[2]string{"Items", fmt.Sprintf("%d", v.ItemCount)},
		[2]string{"Total packs", formatQty(v.TotalPacks)},
		[2]string{"Total value", currency + " " + v.TotalValue.StringFixed(inventory.MoneyScale)},
	)
	return r.output(w)
}

// WriteProfitPDF renders a profit summary with the sale lines it was computed from
// 利益サマリーをPDFで出力
func WriteProfitPDF(w io.Writer, metrics *inventory.Metrics, lines []inventory.SaleLineItem, currency string, generatedAt time.Time) error {
	subtitle := "Period: all time"
	if p := metrics.Period; p != nil {
		subtitle = "Period: " + periodBound(p.From) + " to " + periodBound(p.To)
	}
	r := newPDFReport("Profit summary", subtitle, generatedAt)

	columns := []pdfColumn{
		{"Sold at", 40, "L"},
		{"Item", 85, "L"},
		{"Qty", 20, "R"},
		{"Sell price", 35, "R"},
		{"Unit cost", 35, "R"},
		{"Line total", 42, "R"},
	}
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []string{
			l.SoldAt.UTC().Format("2006-01-02 15:04"),
			l.ItemName,
			formatQty(l.Qty),
			l.UnitSellPrice.StringFixed(inventory.MoneyScale),
			l.UnitCost.StringFixed(inventory.MoneyScale),
			l.LineTotal.StringFixed(inventory.MoneyScale),
		})
	}
	r.table(columns, rows)
	r.summary(
		[2]string{"Revenue", currency + " " + metrics.Revenue.StringFixed(inventory.MoneyScale)},
		[2]string{"Cost of goods", currency + " " + metrics.Cost.StringFixed(inventory.MoneyScale)},
		[2]string{"Profit", currency + " " + metrics.Profit.StringFixed(inventory.MoneyScale)},
		[2]string{"Units sold", formatQty(metrics.UnitsSold)},
	)
	return r.output(w)
}

func periodBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format(dateLayout)
}
