package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/receipt"
	"provisionstore/backend/internal/store"
	"provisionstore/backend/internal/xid"
)

type SaleQuery struct {
	StartDate       string
	EndDate         string
	ProductName     string
	SellerName      string
	IncludeReversed bool
}

// RecordSale validates the request, prices every line at the current unit
// price and hands the sale to the repository, which applies it all-or-nothing.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	method, ok := domain.NormalizePaymentMethod(req.PaymentMethod)
	if !ok {
		return domain.Sale{}, fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, req.PaymentMethod)
	}
	soldBy := strings.TrimSpace(req.SoldBy)
	if soldBy == "" {
		return domain.Sale{}, fmt.Errorf("%w: sold_by required", store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: at least one item required", store.ErrValidation)
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if method == domain.PaymentCredit && customerID == "" {
		return domain.Sale{}, fmt.Errorf("%w: credit sales require a customer", store.ErrValidation)
	}
	if customerID != "" {
		if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
			return domain.Sale{}, fmt.Errorf("customer %s: %w", customerID, err)
		}
	}

	lines := make([]domain.SaleLine, 0, len(req.Items))
	barcodes := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Quantity < 1 {
			return domain.Sale{}, fmt.Errorf("%w: each item needs a product and a quantity of at least 1", store.ErrValidation)
		}
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("product %s: %w", productID, err)
		}

		bottles := 0
		if product.IsBottled && (item.BottleTaken == nil || *item.BottleTaken) {
			bottles = item.Quantity
		}
		lines = append(lines, domain.SaleLine{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Quantity:     item.Quantity,
			BottlesTaken: bottles,
		})
		barcodes = append(barcodes, product.Barcode)
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ID:            xid.New("sale"),
		Items:         lines,
		PaymentMethod: method,
		SoldBy:        soldBy,
		CustomerID:    customerID,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	amount, _ := created.Total.Float64()
	s.metrics.ObserveSale(created.PaymentMethod, amount)
	s.forgetBarcodes(ctx, barcodes...)
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"sale_id":        created.ID,
		"payment_method": created.PaymentMethod,
		"total":          created.Total.StringFixed(2),
	}), "sale recorded")

	return *created, nil
}

// UndoLastSale reverses the most recent sale while it is inside the undo window.
func (s *Service) UndoLastSale(ctx context.Context) (domain.UndoResponse, error) {
	latest, err := s.repo.LatestSale(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.UndoResponse{}, fmt.Errorf("no sale to undo: %w", err)
		}
		return domain.UndoResponse{}, err
	}
	if latest.Reversed() {
		s.metrics.ObserveUndo("already_reversed")
		return domain.UndoResponse{}, fmt.Errorf("sale %s: %w", latest.ID, store.ErrAlreadyReversed)
	}

	now := s.now().UTC()
	if now.Sub(latest.CreatedAt) > UndoWindow {
		s.metrics.ObserveUndo("window_expired")
		return domain.UndoResponse{}, fmt.Errorf("sale %s is older than %s: %w", latest.ID, UndoWindow, ErrUndoWindowExpired)
	}

	reversed, err := s.repo.ReverseSale(ctx, latest.ID, now)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyReversed) {
			s.metrics.ObserveUndo("already_reversed")
		}
		return domain.UndoResponse{}, err
	}

	s.metrics.ObserveUndo("reversed")
	s.logAudit(ctx, "sale_undo", "sale", reversed.ID, fmt.Sprintf("total=%s,payment=%s,sold_by=%s", reversed.Total.StringFixed(2), reversed.PaymentMethod, reversed.SoldBy))
	s.forgetSaleProducts(ctx, *reversed)

	return domain.UndoResponse{
		Sale:     *reversed,
		UndoneAt: now.Format(time.RFC3339),
	}, nil
}

func (s *Service) ListSales(ctx context.Context, q SaleQuery) ([]domain.Sale, error) {
	var from, to time.Time
	if strings.TrimSpace(q.StartDate) != "" {
		_, start, _, err := s.dayBounds(q.StartDate)
		if err != nil {
			return nil, err
		}
		from = start
	}
	if strings.TrimSpace(q.EndDate) != "" {
		_, _, end, err := s.dayBounds(q.EndDate)
		if err != nil {
			return nil, err
		}
		to = end
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, fmt.Errorf("%w: start_date must not be after end_date", store.ErrValidation)
	}

	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return nil, err
	}

	productName := strings.ToLower(strings.TrimSpace(q.ProductName))
	sellerName := strings.ToLower(strings.TrimSpace(q.SellerName))
	filtered := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if sale.Reversed() && !q.IncludeReversed {
			continue
		}
		if sellerName != "" && !strings.Contains(strings.ToLower(sale.SoldBy), sellerName) {
			continue
		}
		if productName != "" && !saleHasProduct(sale, productName) {
			continue
		}
		filtered = append(filtered, sale)
	}
	return filtered, nil
}

// Receipt returns the printable view of a completed sale.
func (s *Service) Receipt(ctx context.Context, saleID string) (domain.Receipt, error) {
	saleID = strings.TrimSpace(saleID)
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("sale %s: %w", saleID, err)
	}
	if sale.Reversed() {
		return domain.Receipt{}, fmt.Errorf("sale %s was reversed: %w", saleID, store.ErrNotFound)
	}

	out := domain.Receipt{
		ShopName:      s.shopName,
		SaleID:        sale.ID,
		IssuedAt:      sale.CreatedAt.In(s.loc),
		SoldBy:        sale.SoldBy,
		PaymentMethod: sale.PaymentMethod,
		Total:         sale.Total,
		BottlesTaken:  sale.BottlesTaken,
		Lines:         make([]domain.ReceiptLine, 0, len(sale.Items)),
	}
	for _, item := range sale.Items {
		out.Lines = append(out.Lines, domain.ReceiptLine{
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	if sale.CustomerID != "" {
		customer, err := s.repo.GetCustomer(ctx, sale.CustomerID)
		switch {
		case err == nil:
			out.CustomerName = customer.Name
		case !errors.Is(err, store.ErrNotFound):
			return domain.Receipt{}, err
		}
	}
	return out, nil
}

func (s *Service) ReceiptPDF(ctx context.Context, saleID string) ([]byte, error) {
	r, err := s.Receipt(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return receipt.Render(r)
}

func (s *Service) forgetSaleProducts(ctx context.Context, sale domain.Sale) {
	barcodes := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		product, err := s.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			continue
		}
		barcodes = append(barcodes, product.Barcode)
	}
	s.forgetBarcodes(ctx, barcodes...)
}

func saleHasProduct(sale domain.Sale, needle string) bool {
	for _, item := range sale.Items {
		if strings.Contains(strings.ToLower(item.ProductName), needle) {
			return true
		}
	}
	return false
}
