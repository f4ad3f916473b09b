// Package receipt renders sale receipts and daily summaries as PDF documents.
//
// Output is byte-for-byte stable for the same input: document dates are taken
// from the data being printed and the PDF catalog is written in sorted order.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"provisionstore/backend/internal/domain"
)

const (
	receiptWidth = 80.0
	margin       = 4.0
	lineHeight   = 5.0
)

// Render lays out a till receipt on an 80mm roll.
func Render(r domain.Receipt) ([]byte, error) {
	height := 70.0 + float64(len(r.Lines))*2*lineHeight
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: receiptWidth, Ht: height},
	})
	stamp(pdf, "Receipt "+r.SaleID, r.IssuedAt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.AddPage()
	width := receiptWidth - 2*margin

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(width, 6, tr(r.ShopName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(width, 4, "Receipt "+r.SaleID, "", 1, "C", false, 0, "")
	pdf.CellFormat(width, 4, r.IssuedAt.Format("2006-01-02 15:04:05"), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.CellFormat(width, 4, tr("Served by: "+r.SoldBy), "", 1, "L", false, 0, "")
	pdf.CellFormat(width, 4, "Payment: "+strings.ToUpper(r.PaymentMethod), "", 1, "L", false, 0, "")
	if r.CustomerName != "" {
		pdf.CellFormat(width, 4, tr("Customer: "+r.CustomerName), "", 1, "L", false, 0, "")
	}
	rule(pdf, width)

	for _, line := range r.Lines {
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(width, lineHeight, tr(line.Name), "", 1, "L", false, 0, "")
		pdf.CellFormat(width*0.6, lineHeight, fmt.Sprintf("  %d x %s", line.Quantity, money(line.UnitPrice)), "", 0, "L", false, 0, "")
		pdf.CellFormat(width*0.4, lineHeight, money(line.LineTotal), "", 1, "R", false, 0, "")
	}
	rule(pdf, width)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(width*0.5, 6, "TOTAL", "", 0, "L", false, 0, "")
	pdf.CellFormat(width*0.5, 6, money(r.Total), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	if r.BottlesTaken > 0 {
		pdf.CellFormat(width, 4, fmt.Sprintf("Bottles taken: %d", r.BottlesTaken), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
	pdf.CellFormat(width, 4, "Thank you for your patronage", "", 1, "C", false, 0, "")

	return output(pdf)
}

// RenderSummary prints the daily summary on A4.
func RenderSummary(shopName string, s domain.DailySummary) ([]byte, error) {
	day, err := time.Parse("2006-01-02", s.Date)
	if err != nil {
		return nil, fmt.Errorf("summary date: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	stamp(pdf, "Daily summary "+s.Date, day)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr(shopName)+" - Daily summary "+s.Date, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Sales: %d    Total: %s", s.SaleCount, money(s.TotalSales)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Bottles taken: %d    returned: %d    outstanding: %d", s.BottlesTaken, s.BottlesReturned, s.OutstandingBottles), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	table(pdf, "By payment method", []string{"Method", "Sales", "Total"}, func(row func(...string)) {
		for _, p := range s.ByPayment {
			row(strings.ToUpper(p.PaymentMethod), fmt.Sprint(p.Sales), money(p.Total))
		}
	})
	table(pdf, "By seller", []string{"Seller", "Sales", "Total"}, func(row func(...string)) {
		for _, seller := range s.BySeller {
			row(tr(seller.SoldBy), fmt.Sprint(seller.Sales), money(seller.Total))
		}
	})
	table(pdf, fmt.Sprintf("Low stock (threshold %d)", s.LowStockThreshold), []string{"Product", "Quantity", "Unit price"}, func(row func(...string)) {
		for _, p := range s.LowStockProducts {
			row(tr(p.Name), fmt.Sprint(p.Quantity), money(p.UnitPrice))
		}
	})

	return output(pdf)
}

func stamp(pdf *fpdf.Fpdf, title string, at time.Time) {
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(at)
	pdf.SetModificationDate(at)
	pdf.SetTitle(title, true)
	pdf.SetCreator("provisionstore", false)
}

func table(pdf *fpdf.Fpdf, heading string, columns []string, rows func(row func(...string))) {
	widths := []float64{90, 40, 50}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, heading, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 9)
	for i, col := range columns {
		pdf.CellFormat(widths[i], 6, col, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	rows(func(cells ...string) {
		for i, cell := range cells {
			align := "L"
			if i > 0 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, cell, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	})
	pdf.Ln(4)
}

func rule(pdf *fpdf.Fpdf, width float64) {
	y := pdf.GetY() + 1
	pdf.Line(margin, y, margin+width, y)
	pdf.SetY(y + 1)
}

func money(d decimal.Decimal) string {
	return "NGN " + d.StringFixed(2)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
