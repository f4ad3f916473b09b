package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"provisionstore/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyReversed   = errors.New("sale already reversed")
	ErrExcessReturn      = errors.New("returned bottles exceed outstanding count")
	ErrDuplicate         = errors.New("already exists")
	ErrValidation        = errors.New("validation error")
)

// StockError names the product that blocked a sale.
type StockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// Repository is implemented by every persistence backend.
//
// CreateSale and ReverseSale apply stock, bottle and balance changes
// all-or-nothing. CreateSale decrements stock only where the remaining
// quantity stays non-negative and fails with a *StockError otherwise.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	LatestSale(ctx context.Context) (*domain.Sale, error)
	ReverseSale(ctx context.Context, id string, at time.Time) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)

	ReturnBottles(ctx context.Context, ret domain.BottleReturn) (*domain.Product, error)
	ListBottleReturns(ctx context.Context, from time.Time, to time.Time) ([]domain.BottleReturn, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	AdjustCustomerBalance(ctx context.Context, id string, delta decimal.Decimal) (*domain.Customer, error)

	GetSettings(ctx context.Context) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

// ProductPatch is a catalogue edit. Nil fields keep their stored value, and
// backends write only the fields that are set, so stock and bottle counters
// moved by a concurrent sale are not overwritten. An empty Barcode clears it.
type ProductPatch struct {
	Name          *string
	UnitPrice     *decimal.Decimal
	Quantity      *int
	IsBottled     *bool
	Barcode       *string
	BottleDeposit *decimal.Decimal
}

func (p ProductPatch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return fmt.Errorf("%w: name required", ErrValidation)
	}
	if (p.UnitPrice != nil && p.UnitPrice.IsNegative()) || (p.Quantity != nil && *p.Quantity < 0) {
		return fmt.Errorf("%w: price and quantity must not be negative", ErrValidation)
	}
	if p.BottleDeposit != nil && p.BottleDeposit.IsNegative() {
		return fmt.Errorf("%w: bottle deposit must not be negative", ErrValidation)
	}
	return nil
}

// Apply returns product with the set fields replaced.
func (p ProductPatch) Apply(product domain.Product) domain.Product {
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.UnitPrice != nil {
		product.UnitPrice = *p.UnitPrice
	}
	if p.Quantity != nil {
		product.Quantity = *p.Quantity
	}
	if p.IsBottled != nil {
		product.IsBottled = *p.IsBottled
	}
	if p.Barcode != nil {
		product.Barcode = *p.Barcode
	}
	if p.BottleDeposit != nil {
		deposit := *p.BottleDeposit
		product.BottleDeposit = &deposit
	}
	return product
}

// Window bounds are half-open: from <= t < to. A zero bound is unbounded.
func InWindow(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// PriceLine fills a sale line from the product's current price. Bottles are
// only counted for bottled products and never exceed the line quantity.
func PriceLine(product domain.Product, item domain.SaleLine) domain.SaleLine {
	bottles := item.BottlesTaken
	if !product.IsBottled || bottles < 0 {
		bottles = 0
	}
	if bottles > item.Quantity {
		bottles = item.Quantity
	}
	return domain.SaleLine{
		ProductID:    product.ID,
		ProductName:  product.Name,
		Quantity:     item.Quantity,
		UnitPrice:    product.UnitPrice,
		LineTotal:    product.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		BottlesTaken: bottles,
	}
}
