package httpapi

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"provisionstore/backend/internal/domain"
)

// summaryCSV flattens a daily summary into section,key,value rows.
func summaryCSV(s domain.DailySummary) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "date", s.Date},
		{"summary", "sale_count", strconv.Itoa(s.SaleCount)},
		{"summary", "total_sales_amount", s.TotalSales.StringFixed(2)},
		{"summary", "bottles_taken", strconv.Itoa(s.BottlesTaken)},
		{"summary", "bottles_returned", strconv.Itoa(s.BottlesReturned)},
		{"summary", "outstanding_bottles", strconv.Itoa(s.OutstandingBottles)},
		{"summary", "low_stock_threshold", strconv.Itoa(s.LowStockThreshold)},
	}
	for _, p := range s.ByPayment {
		rows = append(rows,
			[]string{"payment", p.PaymentMethod + "_sales", strconv.Itoa(p.Sales)},
			[]string{"payment", p.PaymentMethod + "_total", p.Total.StringFixed(2)},
		)
	}
	for _, seller := range s.BySeller {
		rows = append(rows,
			[]string{"seller", seller.SoldBy + "_sales", strconv.Itoa(seller.Sales)},
			[]string{"seller", seller.SoldBy + "_total", seller.Total.StringFixed(2)},
		)
	}
	for _, p := range s.LowStockProducts {
		rows = append(rows, []string{"low_stock", p.Name, strconv.Itoa(p.Quantity)})
	}

	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
