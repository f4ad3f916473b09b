package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/store"
	"provisionstore/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	customers     map[string]domain.Customer
	salesByID     map[string]*domain.Sale
	saleOrder     []string
	bottleReturns []domain.BottleReturn
	auditLogs     []domain.AuditLog
	settings      *domain.Settings
}

// New returns an empty store. Settings are left unset so callers seed them.
func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		customers:     make(map[string]domain.Customer),
		salesByID:     make(map[string]*domain.Sale),
		saleOrder:     make([]string, 0, 64),
		bottleReturns: make([]domain.BottleReturn, 0, 16),
		auditLogs:     make([]domain.AuditLog, 0, 64),
	}
}

// NewSeeded returns a store with a demo catalogue and default settings.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	deposit := decimal.NewFromInt(50)
	products := []domain.Product{
		{ID: "prod-coke-35cl", Name: "Coca-Cola 35cl", UnitPrice: decimal.NewFromInt(250), Quantity: 48, IsBottled: true, Barcode: "5449000000996", BottleDeposit: &deposit},
		{ID: "prod-fanta-35cl", Name: "Fanta Orange 35cl", UnitPrice: decimal.NewFromInt(250), Quantity: 36, IsBottled: true, Barcode: "5449000011527", BottleDeposit: &deposit},
		{ID: "prod-star-60cl", Name: "Star Lager 60cl", UnitPrice: decimal.NewFromInt(700), Quantity: 24, IsBottled: true, BottleDeposit: &deposit},
		{ID: "prod-water-75cl", Name: "Table Water 75cl", UnitPrice: decimal.NewFromInt(150), Quantity: 60},
		{ID: "prod-biscuit", Name: "Cabin Biscuit", UnitPrice: decimal.NewFromInt(100), Quantity: 4},
		{ID: "prod-groundnut", Name: "Groundnut Pack", UnitPrice: decimal.RequireFromString("75.50"), Quantity: 20},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	settings := domain.DefaultSettings()
	settings.UpdatedAt = now
	s.settings = &settings
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if s.conflictingProductLocked(product) {
		return nil, store.ErrDuplicate
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := cloneProduct(product)
	return &dup, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if barcode == "" {
		return nil, store.ErrNotFound
	}
	for _, p := range s.products {
		if p.Barcode == barcode {
			dup := cloneProduct(p)
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateProduct(_ context.Context, id string, patch store.ProductPatch) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product := patch.Apply(cloneProduct(existing))
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if s.conflictingProductLocked(product) {
		return nil, store.ErrDuplicate
	}
	product.UpdatedAt = time.Now().UTC()

	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}

	requested := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}
		if _, exists := s.products[item.ProductID]; !exists {
			return nil, store.ErrNotFound
		}
		requested[item.ProductID] += item.Quantity
	}
	for _, item := range sale.Items {
		product := s.products[item.ProductID]
		if product.Quantity < requested[item.ProductID] {
			return nil, &store.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   requested[item.ProductID],
				Available:   product.Quantity,
			}
		}
	}

	var customer domain.Customer
	if sale.PaymentMethod == domain.PaymentCredit || sale.CustomerID != "" {
		c, exists := s.customers[sale.CustomerID]
		if !exists {
			return nil, store.ErrNotFound
		}
		customer = c
	}

	lines := make([]domain.SaleLine, 0, len(sale.Items))
	total := decimal.Zero
	bottles := 0
	for _, item := range sale.Items {
		product := s.products[item.ProductID]
		line := store.PriceLine(product, item)
		lines = append(lines, line)
		total = total.Add(line.LineTotal)
		bottles += line.BottlesTaken
	}

	for _, line := range lines {
		product := s.products[line.ProductID]
		product.Quantity -= line.Quantity
		product.OutstandingBottles += line.BottlesTaken
		product.BottlesTaken += line.BottlesTaken
		s.products[product.ID] = product
	}
	if sale.PaymentMethod == domain.PaymentCredit {
		customer.Balance = customer.Balance.Add(total)
		s.customers[customer.ID] = customer
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Items = lines
	sale.Total = total
	sale.BottlesTaken = bottles
	sale.Status = domain.SaleStatusCompleted
	sale.ReversedAt = nil

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	s.saleOrder = append(s.saleOrder, sale.ID)
	return cloneSale(saved), nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) LatestSale(_ context.Context) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Sale
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if latest == nil || !sale.CreatedAt.Before(latest.CreatedAt) {
			latest = sale
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return cloneSale(latest), nil
}

func (s *Store) ReverseSale(_ context.Context, id string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Reversed() {
		return nil, store.ErrAlreadyReversed
	}

	for _, line := range sale.Items {
		product, exists := s.products[line.ProductID]
		if !exists {
			continue
		}
		product.Quantity += line.Quantity
		product.OutstandingBottles = max(0, product.OutstandingBottles-line.BottlesTaken)
		product.BottlesTaken = max(0, product.BottlesTaken-line.BottlesTaken)
		product.BottlesReturned = min(product.BottlesReturned, product.BottlesTaken)
		s.products[product.ID] = product
	}
	if sale.PaymentMethod == domain.PaymentCredit {
		if customer, exists := s.customers[sale.CustomerID]; exists {
			customer.Balance = customer.Balance.Sub(sale.Total)
			s.customers[customer.ID] = customer
		}
	}

	sale.Status = domain.SaleStatusReversed
	reversedAt := at
	sale.ReversedAt = &reversedAt
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.saleOrder))
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if !store.InWindow(sale.CreatedAt, from, to) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortStableFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sales, nil
}

func (s *Store) ReturnBottles(_ context.Context, ret domain.BottleReturn) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ret.Quantity < 1 {
		return nil, store.ErrValidation
	}
	product, exists := s.products[ret.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !product.IsBottled {
		return nil, store.ErrValidation
	}
	if ret.Quantity > product.OutstandingBottles {
		return nil, store.ErrExcessReturn
	}

	product.OutstandingBottles -= ret.Quantity
	product.BottlesReturned += ret.Quantity
	s.products[product.ID] = product

	if ret.ID == "" {
		ret.ID = xid.New("bret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	ret.ProductName = product.Name
	s.bottleReturns = append(s.bottleReturns, ret)

	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) ListBottleReturns(_ context.Context, from time.Time, to time.Time) ([]domain.BottleReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	returns := make([]domain.BottleReturn, 0, len(s.bottleReturns))
	for _, ret := range s.bottleReturns {
		if store.InWindow(ret.CreatedAt, from, to) {
			returns = append(returns, ret)
		}
	}
	return returns, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) AdjustCustomerBalance(_ context.Context, id string, delta decimal.Decimal) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.Balance = customer.Balance.Add(delta)
	s.customers[id] = customer
	return &customer, nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, store.ErrNotFound
	}
	dup := *s.settings
	return &dup, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.PIN == "" || settings.LowStockThreshold < 0 {
		return store.ErrValidation
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	s.settings = &settings
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, len(s.auditLogs))
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if !store.InWindow(entry.CreatedAt, from, to) {
			continue
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (s *Store) conflictingProductLocked(product domain.Product) bool {
	name := strings.ToLower(strings.TrimSpace(product.Name))
	for _, existing := range s.products {
		if existing.ID == product.ID {
			continue
		}
		if strings.ToLower(existing.Name) == name {
			return true
		}
		if product.Barcode != "" && existing.Barcode == product.Barcode {
			return true
		}
	}
	return false
}

func validateProduct(product domain.Product) error {
	if strings.TrimSpace(product.Name) == "" || product.UnitPrice.IsNegative() || product.Quantity < 0 {
		return store.ErrValidation
	}
	if product.BottleDeposit != nil && product.BottleDeposit.IsNegative() {
		return store.ErrValidation
	}
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.BottleDeposit != nil {
		deposit := *src.BottleDeposit
		dup.BottleDeposit = &deposit
	}
	return dup
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.SaleLine, len(src.Items))
	copy(dupItems, src.Items)
	dup.Items = dupItems
	if src.ReversedAt != nil {
		at := *src.ReversedAt
		dup.ReversedAt = &at
	}
	return &dup
}
