package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"provisionstore/backend/internal/cache"
	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/logger"
	"provisionstore/backend/internal/metrics"
	"provisionstore/backend/internal/store"
	"provisionstore/backend/internal/xid"
)

const (
	UndoWindow      = 5 * time.Minute
	barcodeCacheTTL = 30 * time.Second
)

var (
	ErrInvalidPin        = errors.New("invalid pin")
	ErrUndoWindowExpired = errors.New("undo window expired")
)

type Options struct {
	ShopName        string
	Location        *time.Location
	BarcodeCacheTTL time.Duration
	Logger          *logger.Logger
	Metrics         *metrics.Metrics
	// Now overrides the wall clock. Tests use it to age sales.
	Now func() time.Time
}

type Service struct {
	repo       store.Repository
	products   cache.ProductCache
	log        *logger.Logger
	metrics    *metrics.Metrics
	shopName   string
	loc        *time.Location
	barcodeTTL time.Duration
	now        func() time.Time
}

func New(repo store.Repository, productCache cache.ProductCache, opts Options) *Service {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ShopName == "" {
		opts.ShopName = "Provision Store"
	}
	if opts.BarcodeCacheTTL <= 0 {
		opts.BarcodeCacheTTL = barcodeCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:       repo,
		products:   productCache,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		shopName:   opts.ShopName,
		loc:        opts.Location,
		barcodeTTL: opts.BarcodeCacheTTL,
		now:        opts.Now,
	}
}

func (s *Service) ListProducts(ctx context.Context, settings domain.Settings) ([]domain.ProductView, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, domain.ProductView{
			Product:  p,
			LowStock: p.Quantity <= settings.LowStockThreshold,
		})
	}
	return views, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id required", store.ErrValidation)
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, err)
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)

	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name required", store.ErrValidation)
	}
	if req.UnitPrice.IsNegative() || req.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: price and quantity must not be negative", store.ErrValidation)
	}
	if req.BottleDeposit != nil && req.BottleDeposit.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: bottle deposit must not be negative", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:            xid.New("prod"),
		Name:          req.Name,
		UnitPrice:     req.UnitPrice.Round(2),
		Quantity:      req.Quantity,
		IsBottled:     req.IsBottled,
		Barcode:       req.Barcode,
		BottleDeposit: req.BottleDeposit,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Product{}, fmt.Errorf("product %q: %w", req.Name, err)
		}
		return domain.Product{}, err
	}

	s.forgetBarcodes(ctx, created.Barcode)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	patch := store.ProductPatch{
		Quantity:      req.Quantity,
		IsBottled:     req.IsBottled,
		BottleDeposit: req.BottleDeposit,
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		patch.Name = &name
	}
	if req.UnitPrice != nil {
		price := req.UnitPrice.Round(2)
		patch.UnitPrice = &price
	}
	if req.Barcode != nil {
		barcode := strings.TrimSpace(*req.Barcode)
		patch.Barcode = &barcode
	}
	if err := patch.Validate(); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, existing.ID, patch)
	if err != nil {
		return domain.Product{}, err
	}

	s.forgetBarcodes(ctx, existing.Barcode, updated.Barcode)
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, existing.ID); err != nil {
		return err
	}
	s.forgetBarcodes(ctx, existing.Barcode)
	s.logAudit(ctx, "product_delete", "product", existing.ID, existing.Name)
	return nil
}

// LookupBarcode serves scanner lookups, read-through the product cache.
func (s *Service) LookupBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, fmt.Errorf("%w: barcode required", store.ErrValidation)
	}

	if cached, ok, err := s.products.Get(ctx, barcode); err != nil {
		s.log.Warn(ctx, "barcode cache read failed", err)
	} else if ok {
		return *cached, nil
	}

	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, fmt.Errorf("barcode %s: %w", barcode, err)
	}
	if err := s.products.Set(ctx, barcode, product, s.barcodeTTL); err != nil {
		s.log.Warn(ctx, "barcode cache write failed", err)
	}
	return *product, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: name required", store.ErrValidation)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cust"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CustomerBalance(ctx context.Context, id string) (domain.CustomerBalance, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.CustomerBalance{}, fmt.Errorf("customer %s: %w", id, err)
	}
	return domain.CustomerBalance{
		CustomerID: customer.ID,
		Name:       customer.Name,
		Balance:    customer.Balance,
	}, nil
}

// SettleBalance records a payment against the customer's account. The balance
// may go below zero, which leaves the customer in credit.
func (s *Service) SettleBalance(ctx context.Context, id string, req domain.SettlementRequest) (domain.CustomerBalance, error) {
	if !req.Amount.IsPositive() {
		return domain.CustomerBalance{}, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}

	customer, err := s.repo.AdjustCustomerBalance(ctx, strings.TrimSpace(id), req.Amount.Round(2).Neg())
	if err != nil {
		return domain.CustomerBalance{}, fmt.Errorf("customer %s: %w", id, err)
	}

	s.logAudit(ctx, "balance_settlement", "customer", customer.ID, fmt.Sprintf("amount=%s,note=%s", req.Amount.StringFixed(2), req.Note))
	return domain.CustomerBalance{
		CustomerID: customer.ID,
		Name:       customer.Name,
		Balance:    customer.Balance,
	}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	_, from, to, err := s.dayBounds(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		s.log.Warn(s.log.WithFields(ctx, map[string]any{
			"action": action,
			"entity": entityType + "/" + entityID,
		}), "failed to write audit log", err)
	}
}

func (s *Service) forgetBarcodes(ctx context.Context, barcodes ...string) {
	if err := s.products.Delete(ctx, barcodes...); err != nil {
		s.log.Warn(ctx, "barcode cache invalidation failed", err)
	}
}

// dayBounds resolves a YYYY-MM-DD date in the shop's timezone to [start, next start).
// An empty date means today.
func (s *Service) dayBounds(date string) (string, time.Time, time.Time, error) {
	date = strings.TrimSpace(date)
	var day time.Time
	if date == "" {
		now := s.now().In(s.loc)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	} else {
		parsed, err := time.ParseInLocation("2006-01-02", date, s.loc)
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("%w: date must use YYYY-MM-DD format", store.ErrValidation)
		}
		day = parsed
	}
	return day.Format("2006-01-02"), day, day.AddDate(0, 0, 1), nil
}
