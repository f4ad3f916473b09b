package receipt

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisionstore/backend/internal/domain"
)

func sampleReceipt() domain.Receipt {
	return domain.Receipt{
		ShopName:      "Mama Nkechi Provisions",
		SaleID:        "sale-test-1",
		IssuedAt:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		SoldBy:        "Ada",
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.ReceiptLine{
			{Name: "Coca-Cola 35cl", Quantity: 2, UnitPrice: decimal.NewFromInt(250), LineTotal: decimal.NewFromInt(500)},
			{Name: "Café Biscuit", Quantity: 1, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(100)},
		},
		Total:        decimal.NewFromInt(600),
		BottlesTaken: 2,
	}
}

func TestRenderProducesPDF(t *testing.T) {
	out, err := Render(sampleReceipt())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")), "expected PDF header")
	assert.Greater(t, len(out), 500)
}

func TestRenderIsDeterministic(t *testing.T) {
	first, err := Render(sampleReceipt())
	require.NoError(t, err)
	second, err := Render(sampleReceipt())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second), "expected identical output for identical receipts")

	changed := sampleReceipt()
	changed.Total = decimal.NewFromInt(601)
	third, err := Render(changed)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(first, third))
}

func TestRenderSummary(t *testing.T) {
	summary := domain.DailySummary{
		Date:       "2026-03-14",
		SaleCount:  1,
		TotalSales: decimal.NewFromInt(600),
		ByPayment: []domain.PaymentTotal{
			{PaymentMethod: domain.PaymentCash, Sales: 1, Total: decimal.NewFromInt(600)},
		},
		BySeller:          []domain.SellerTotal{{SoldBy: "Ada", Sales: 1, Total: decimal.NewFromInt(600)}},
		LowStockThreshold: 5,
		LowStockProducts:  []domain.Product{{ID: "p1", Name: "Cabin Biscuit", Quantity: 3, UnitPrice: decimal.NewFromInt(100)}},
	}

	first, err := RenderSummary("Shop", summary)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(first, []byte("%PDF-")))

	second, err := RenderSummary("Shop", summary)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))

	_, err = RenderSummary("Shop", domain.DailySummary{Date: "not-a-date"})
	assert.Error(t, err)
}
