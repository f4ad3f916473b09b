package service

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/receipt"
)

var paymentOrder = []string{domain.PaymentCash, domain.PaymentPOS, domain.PaymentTransfer, domain.PaymentCredit}

// DailySummary aggregates one calendar day. The threshold comes from the
// settings loaded for the calling request.
func (s *Service) DailySummary(ctx context.Context, settings domain.Settings, date string) (domain.DailySummary, error) {
	label, from, to, err := s.dayBounds(date)
	if err != nil {
		return domain.DailySummary{}, err
	}

	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return domain.DailySummary{}, err
	}
	returns, err := s.repo.ListBottleReturns(ctx, from, to)
	if err != nil {
		return domain.DailySummary{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.DailySummary{}, err
	}

	return summarize(label, sales, returns, products, settings.LowStockThreshold), nil
}

// SummaryPDF prints an already aggregated summary under the shop name.
func (s *Service) SummaryPDF(summary domain.DailySummary) ([]byte, error) {
	return receipt.RenderSummary(s.shopName, summary)
}

// summarize is the pure aggregation step. Reversed sales are skipped.
func summarize(date string, sales []domain.Sale, returns []domain.BottleReturn, products []domain.Product, threshold int) domain.DailySummary {
	summary := domain.DailySummary{
		Date:              date,
		TotalSales:        decimal.Zero,
		LowStockThreshold: threshold,
		ByPayment:         make([]domain.PaymentTotal, 0, len(paymentOrder)),
		BySeller:          make([]domain.SellerTotal, 0, 4),
		LowStockProducts:  make([]domain.Product, 0, 4),
	}

	paymentIndex := make(map[string]int, len(paymentOrder))
	for i, method := range paymentOrder {
		summary.ByPayment = append(summary.ByPayment, domain.PaymentTotal{PaymentMethod: method, Total: decimal.Zero})
		paymentIndex[method] = i
	}
	bySeller := make(map[string]*domain.SellerTotal)

	for _, sale := range sales {
		if sale.Reversed() {
			continue
		}
		summary.SaleCount++
		summary.TotalSales = summary.TotalSales.Add(sale.Total)
		summary.BottlesTaken += sale.BottlesTaken

		idx, ok := paymentIndex[sale.PaymentMethod]
		if !ok {
			idx = len(summary.ByPayment)
			paymentIndex[sale.PaymentMethod] = idx
			summary.ByPayment = append(summary.ByPayment, domain.PaymentTotal{PaymentMethod: sale.PaymentMethod, Total: decimal.Zero})
		}
		summary.ByPayment[idx].Sales++
		summary.ByPayment[idx].Total = summary.ByPayment[idx].Total.Add(sale.Total)

		seller, ok := bySeller[sale.SoldBy]
		if !ok {
			seller = &domain.SellerTotal{SoldBy: sale.SoldBy, Total: decimal.Zero}
			bySeller[sale.SoldBy] = seller
		}
		seller.Sales++
		seller.Total = seller.Total.Add(sale.Total)
	}

	for _, seller := range bySeller {
		summary.BySeller = append(summary.BySeller, *seller)
	}
	slices.SortFunc(summary.BySeller, func(a, b domain.SellerTotal) int {
		return strings.Compare(a.SoldBy, b.SoldBy)
	})

	for _, ret := range returns {
		summary.BottlesReturned += ret.Quantity
	}

	for _, p := range products {
		summary.OutstandingBottles += p.OutstandingBottles
		if p.Quantity <= threshold {
			summary.LowStockProducts = append(summary.LowStockProducts, p)
		}
	}
	slices.SortFunc(summary.LowStockProducts, func(a, b domain.Product) int {
		if a.Quantity == b.Quantity {
			return strings.Compare(a.Name, b.Name)
		}
		return a.Quantity - b.Quantity
	})

	return summary
}
