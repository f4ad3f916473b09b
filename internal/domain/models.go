package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentCash     = "cash"
	PaymentPOS      = "pos"
	PaymentTransfer = "transfer"
	PaymentCredit   = "credit"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusReversed  = "reversed"
)

const (
	DefaultPIN               = "1234"
	DefaultLowStockThreshold = 5
)

// NormalizePaymentMethod lowercases the method and reports whether it is known.
func NormalizePaymentMethod(method string) (string, bool) {
	m := strings.ToLower(strings.TrimSpace(method))
	switch m {
	case PaymentCash, PaymentPOS, PaymentTransfer, PaymentCredit:
		return m, true
	}
	return m, false
}

type Product struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	UnitPrice          decimal.Decimal  `json:"unit_price"`
	Quantity           int              `json:"quantity"`
	IsBottled          bool             `json:"is_bottled"`
	Barcode            string           `json:"barcode,omitempty"`
	BottleDeposit      *decimal.Decimal `json:"bottle_deposit,omitempty"`
	OutstandingBottles int              `json:"outstanding_bottles"`
	BottlesTaken       int              `json:"bottles_taken"`
	BottlesReturned    int              `json:"bottles_returned"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ProductView is a product as listed to the till, flagged against the current threshold.
type ProductView struct {
	Product
	LowStock bool `json:"low_stock"`
}

type ProductCreateRequest struct {
	Name          string           `json:"name" validate:"required,max=120"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	Quantity      int              `json:"quantity" validate:"min=0"`
	IsBottled     bool             `json:"is_bottled"`
	Barcode       string           `json:"barcode,omitempty" validate:"max=64"`
	BottleDeposit *decimal.Decimal `json:"bottle_deposit,omitempty"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty" validate:"omitempty,max=120"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Quantity      *int             `json:"quantity,omitempty" validate:"omitempty,min=0"`
	IsBottled     *bool            `json:"is_bottled,omitempty"`
	Barcode       *string          `json:"barcode,omitempty" validate:"omitempty,max=64"`
	BottleDeposit *decimal.Decimal `json:"bottle_deposit,omitempty"`
}

type SaleLine struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
	BottlesTaken int             `json:"bottles_taken"`
}

type Sale struct {
	ID            string          `json:"id"`
	Items         []SaleLine      `json:"items"`
	PaymentMethod string          `json:"payment_method"`
	SoldBy        string          `json:"sold_by"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Total         decimal.Decimal `json:"total_amount"`
	BottlesTaken  int             `json:"bottles_taken"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"timestamp"`
	ReversedAt    *time.Time      `json:"reversed_at,omitempty"`
}

func (s Sale) Reversed() bool {
	return s.Status == SaleStatusReversed
}

type SaleItemRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	Quantity    int    `json:"quantity" validate:"min=1"`
	BottleTaken *bool  `json:"bottle_taken,omitempty"`
}

type SaleRequest struct {
	Items         []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string            `json:"payment_method" validate:"required"`
	SoldBy        string            `json:"sold_by" validate:"required,max=80"`
	CustomerID    string            `json:"customer_id,omitempty"`
}

type SingleSaleRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"min=1"`
	BottleTaken   *bool  `json:"bottle_taken,omitempty"`
	PaymentMethod string `json:"payment_method" validate:"required"`
	SoldBy        string `json:"sold_by" validate:"required,max=80"`
	CustomerID    string `json:"customer_id,omitempty"`
}

func (r SingleSaleRequest) AsSaleRequest() SaleRequest {
	return SaleRequest{
		Items: []SaleItemRequest{{
			ProductID:   r.ProductID,
			Quantity:    r.Quantity,
			BottleTaken: r.BottleTaken,
		}},
		PaymentMethod: r.PaymentMethod,
		SoldBy:        r.SoldBy,
		CustomerID:    r.CustomerID,
	}
}

type UndoResponse struct {
	Sale     Sale   `json:"sale"`
	UndoneAt string `json:"undone_at"`
}

type Customer struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone,omitempty"`
	Email     string          `json:"email,omitempty"`
	Balance   decimal.Decimal `json:"outstanding_balance"`
	CreatedAt time.Time       `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone,omitempty" validate:"max=32"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

type CustomerBalance struct {
	CustomerID string          `json:"customer_id"`
	Name       string          `json:"name"`
	Balance    decimal.Decimal `json:"outstanding_balance"`
}

type SettlementRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty" validate:"max=200"`
}

type BottleReturn struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	CustomerName string    `json:"customer_name,omitempty"`
	Quantity     int       `json:"quantity"`
	CreatedAt    time.Time `json:"created_at"`
}

type BottleReturnRequest struct {
	ProductID    string `json:"product_id" validate:"required"`
	Quantity     int    `json:"quantity" validate:"min=1"`
	CustomerName string `json:"customer_name,omitempty" validate:"max=120"`
}

type BottleReturnResponse struct {
	Return  BottleReturn `json:"return"`
	Product Product      `json:"product"`
}

type BottleStatus struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Taken       int    `json:"bottles_taken"`
	Returned    int    `json:"bottles_returned"`
	Outstanding int    `json:"outstanding"`
}

type Settings struct {
	PIN               string    `json:"-"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func DefaultSettings() Settings {
	return Settings{PIN: DefaultPIN, LowStockThreshold: DefaultLowStockThreshold}
}

type LoginRequest struct {
	PIN string `json:"pin" validate:"required"`
}

type ChangePINRequest struct {
	OldPIN string `json:"old_pin" validate:"required"`
	NewPIN string `json:"new_pin" validate:"required"`
}

type SettingsUpdateRequest struct {
	LowStockThreshold int `json:"low_stock_threshold" validate:"min=0"`
}

type PaymentTotal struct {
	PaymentMethod string          `json:"payment_method"`
	Sales         int             `json:"sales"`
	Total         decimal.Decimal `json:"total"`
}

type SellerTotal struct {
	SoldBy string          `json:"sold_by"`
	Sales  int             `json:"sales"`
	Total  decimal.Decimal `json:"total"`
}

type DailySummary struct {
	Date               string          `json:"date"`
	SaleCount          int             `json:"sale_count"`
	TotalSales         decimal.Decimal `json:"total_sales_amount"`
	ByPayment          []PaymentTotal  `json:"by_payment"`
	BySeller           []SellerTotal   `json:"sales_by_seller"`
	BottlesTaken       int             `json:"bottles_taken"`
	BottlesReturned    int             `json:"bottles_returned"`
	OutstandingBottles int             `json:"outstanding_bottles"`
	LowStockThreshold  int             `json:"low_stock_threshold"`
	LowStockProducts   []Product       `json:"low_stock_products"`
}

type ReceiptLine struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Receipt struct {
	ShopName      string          `json:"shop_name"`
	SaleID        string          `json:"sale_id"`
	IssuedAt      time.Time       `json:"timestamp"`
	SoldBy        string          `json:"sold_by"`
	PaymentMethod string          `json:"payment_method"`
	CustomerName  string          `json:"customer_name,omitempty"`
	Lines         []ReceiptLine   `json:"items"`
	Total         decimal.Decimal `json:"total_amount"`
	BottlesTaken  int             `json:"bottles_taken"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
