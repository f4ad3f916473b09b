package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSaleAndReverseRestoresInventory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-it-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bottle_returns WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:        productID,
		Name:      fmt.Sprintf("Malt IT %d", stamp),
		UnitPrice: decimal.NewFromInt(300),
		Quantity:  5,
		IsBottled: true,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		ID:            saleID,
		PaymentMethod: domain.PaymentCash,
		SoldBy:        "integration",
		Items:         []domain.SaleLine{{ProductID: productID, Quantity: 3, BottlesTaken: 3}},
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !sale.Total.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("expected total 900, got %s", sale.Total)
	}

	_, err = s.CreateSale(ctx, domain.Sale{
		PaymentMethod: domain.PaymentCash,
		SoldBy:        "integration",
		Items:         []domain.SaleLine{{ProductID: productID, Quantity: 3}},
	})
	var stockErr *store.StockError
	if !errors.As(err, &stockErr) || stockErr.Available != 2 {
		t.Fatalf("expected stock error with 2 available, got %v", err)
	}

	price := decimal.NewFromInt(320)
	repriced, err := s.UpdateProduct(ctx, productID, store.ProductPatch{UnitPrice: &price})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if repriced.Quantity != 2 || repriced.OutstandingBottles != 3 || !repriced.UnitPrice.Equal(price) {
		t.Fatalf("expected price-only edit to keep sale counters, got %+v", repriced)
	}

	if _, err := s.ReturnBottles(ctx, domain.BottleReturn{ProductID: productID, Quantity: 1}); err != nil {
		t.Fatalf("return bottles: %v", err)
	}

	latest, err := s.LatestSale(ctx)
	if err != nil {
		t.Fatalf("latest sale: %v", err)
	}
	if latest.ID != saleID || len(latest.Items) != 1 {
		t.Fatalf("unexpected latest sale: %+v", latest)
	}

	if _, err := s.ReverseSale(ctx, saleID, time.Now().UTC()); err != nil {
		t.Fatalf("reverse sale: %v", err)
	}
	if _, err := s.ReverseSale(ctx, saleID, time.Now().UTC()); !errors.Is(err, store.ErrAlreadyReversed) {
		t.Fatalf("expected already reversed, got %v", err)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 5 {
		t.Fatalf("expected stock restored to 5, got %d", product.Quantity)
	}
	if product.OutstandingBottles != 0 {
		t.Fatalf("expected no outstanding bottles, got %d", product.OutstandingBottles)
	}
	if product.BottlesTaken != 0 || product.BottlesReturned != 0 {
		t.Fatalf("expected bottle counters cleared, got taken=%d returned=%d", product.BottlesTaken, product.BottlesReturned)
	}
}

func TestDuplicateProductNameIsRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	name := fmt.Sprintf("Dup IT %d", stamp)
	first := fmt.Sprintf("prod-dup-a-%d", stamp)
	second := fmt.Sprintf("prod-dup-b-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ANY($1)`, []string{first, second})
	})

	if _, err := s.CreateProduct(ctx, domain.Product{ID: first, Name: name, UnitPrice: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	_, err := s.CreateProduct(ctx, domain.Product{ID: second, Name: strings.ToUpper(name), UnitPrice: decimal.NewFromInt(1)})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}
