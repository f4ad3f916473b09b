package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/store"
	"provisionstore/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

// New opens the pool, checks connectivity and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, unit_price, quantity, is_bottled, barcode, bottle_deposit,
	outstanding_bottles, bottles_taken, bottles_returned, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p       domain.Product
		barcode sql.NullString
		deposit decimal.NullDecimal
	)
	err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Quantity, &p.IsBottled, &barcode, &deposit,
		&p.OutstandingBottles, &p.BottlesTaken, &p.BottlesReturned, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.Barcode = barcode.String
	if deposit.Valid {
		d := deposit.Decimal
		p.BottleDeposit = &d
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.UnitPrice.IsNegative() || product.Quantity < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, unit_price, quantity, is_bottled, barcode, bottle_deposit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING `+productColumns,
		product.ID, product.Name, product.UnitPrice, product.Quantity, product.IsBottled,
		nullIfEmpty(product.Barcode), nullDecimal(product.BottleDeposit))
	created, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch store.ProductPatch) (*domain.Product, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var barcode any
	if patch.Barcode != nil {
		barcode = nullIfEmpty(*patch.Barcode)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = COALESCE($2::text, name),
			unit_price = COALESCE($3::numeric, unit_price),
			quantity = COALESCE($4::integer, quantity),
			is_bottled = COALESCE($5::boolean, is_bottled),
			barcode = CASE WHEN $6::boolean THEN $7::text ELSE barcode END,
			bottle_deposit = COALESCE($8::numeric, bottle_deposit),
			updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		id, nullPtr(patch.Name), nullDecimal(patch.UnitPrice), nullPtr(patch.Quantity), nullPtr(patch.IsBottled),
		patch.Barcode != nil, barcode, nullDecimal(patch.BottleDeposit))
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if sale.PaymentMethod == domain.PaymentCredit || sale.CustomerID != "" {
		var customerID string
		err := pgTx.QueryRowContext(ctx, `SELECT id FROM customers WHERE id = $1 FOR UPDATE`, sale.CustomerID).Scan(&customerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}

	requested := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}
		requested[item.ProductID] += item.Quantity
	}
	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	products := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, err := scanProduct(pgTx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if p.Quantity < requested[id] {
			return nil, &store.StockError{ProductID: p.ID, ProductName: p.Name, Requested: requested[id], Available: p.Quantity}
		}
		products[id] = p
	}

	lines := make([]domain.SaleLine, 0, len(sale.Items))
	total := decimal.Zero
	bottles := 0
	for _, item := range sale.Items {
		line := store.PriceLine(products[item.ProductID], item)
		lines = append(lines, line)
		total = total.Add(line.LineTotal)
		bottles += line.BottlesTaken
	}

	for _, line := range lines {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $2,
				outstanding_bottles = outstanding_bottles + $3,
				bottles_taken = bottles_taken + $3,
				updated_at = now()
			WHERE id = $1 AND quantity >= $2
		`, line.ProductID, line.Quantity, line.BottlesTaken)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			p := products[line.ProductID]
			return nil, &store.StockError{ProductID: p.ID, ProductName: p.Name, Requested: requested[p.ID], Available: p.Quantity}
		}
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, payment_method, sold_by, customer_id, total, bottles_taken, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, sale.PaymentMethod, sale.SoldBy, nullIfEmpty(sale.CustomerID), sale.Total, sale.BottlesTaken, sale.Status, sale.CreatedAt)
	if err != nil {
		return nil, err
	}
	for i, line := range lines {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, product_name, quantity, unit_price, line_total, bottles_taken)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, sale.ID, i+1, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice, line.LineTotal, line.BottlesTaken)
		if err != nil {
			return nil, err
		}
	}

	if sale.PaymentMethod == domain.PaymentCredit {
		_, err := pgTx.ExecContext(ctx, `UPDATE customers SET balance = balance + $2 WHERE id = $1`, sale.CustomerID, sale.Total)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

const saleColumns = `id, payment_method, sold_by, customer_id, total, bottles_taken, status, created_at, reversed_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale       domain.Sale
		customerID sql.NullString
		reversedAt sql.NullTime
	)
	err := row.Scan(&sale.ID, &sale.PaymentMethod, &sale.SoldBy, &customerID, &sale.Total,
		&sale.BottlesTaken, &sale.Status, &sale.CreatedAt, &reversedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.CustomerID = customerID.String
	if reversedAt.Valid {
		at := reversedAt.Time
		sale.ReversedAt = &at
	}
	return sale, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSaleItems(ctx context.Context, q queryer, saleIDs []string) (map[string][]domain.SaleLine, error) {
	items := make(map[string][]domain.SaleLine, len(saleIDs))
	if len(saleIDs) == 0 {
		return items, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, quantity, unit_price, line_total, bottles_taken
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			saleID string
			line   domain.SaleLine
		)
		if err := rows.Scan(&saleID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.LineTotal, &line.BottlesTaken); err != nil {
			return nil, err
		}
		items[saleID] = append(items[saleID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := loadSaleItems(ctx, s.db, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) LatestSale(ctx context.Context) (*domain.Sale, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id
		FROM sales
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.FindSaleByID(ctx, id)
}

func (s *Store) ReverseSale(ctx context.Context, id string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := scanSale(pgTx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if sale.Reversed() {
		return nil, store.ErrAlreadyReversed
	}
	items, err := loadSaleItems(ctx, pgTx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]

	for _, line := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $2,
				outstanding_bottles = GREATEST(outstanding_bottles - $3, 0),
				bottles_taken = GREATEST(bottles_taken - $3, 0),
				bottles_returned = LEAST(bottles_returned, GREATEST(bottles_taken - $3, 0)),
				updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Quantity, line.BottlesTaken)
		if err != nil {
			return nil, err
		}
	}
	if sale.PaymentMethod == domain.PaymentCredit && sale.CustomerID != "" {
		_, err := pgTx.ExecContext(ctx, `UPDATE customers SET balance = balance - $2 WHERE id = $1`, sale.CustomerID, sale.Total)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, reversed_at = $3
		WHERE id = $1 AND status = $4
	`, sale.ID, domain.SaleStatusReversed, at, domain.SaleStatusCompleted)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	sale.Status = domain.SaleStatusReversed
	sale.ReversedAt = &at
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := loadSaleItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) ReturnBottles(ctx context.Context, ret domain.BottleReturn) (*domain.Product, error) {
	if ret.Quantity < 1 {
		return nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	product, err := scanProduct(pgTx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, ret.ProductID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !product.IsBottled {
		return nil, store.ErrValidation
	}
	if ret.Quantity > product.OutstandingBottles {
		return nil, store.ErrExcessReturn
	}

	updated, err := scanProduct(pgTx.QueryRowContext(ctx, `
		UPDATE products
		SET outstanding_bottles = outstanding_bottles - $2,
			bottles_returned = bottles_returned + $2,
			updated_at = now()
		WHERE id = $1 AND outstanding_bottles >= $2
		RETURNING `+productColumns, ret.ProductID, ret.Quantity))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrExcessReturn
		}
		return nil, err
	}

	if ret.ID == "" {
		ret.ID = xid.New("bret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO bottle_returns (id, product_id, product_name, customer_name, quantity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, ret.ID, updated.ID, updated.Name, nullIfEmpty(ret.CustomerName), ret.Quantity, ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) ListBottleReturns(ctx context.Context, from time.Time, to time.Time) ([]domain.BottleReturn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, COALESCE(customer_name, ''), quantity, created_at
		FROM bottle_returns
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.BottleReturn, 0, 16)
	for rows.Next() {
		var ret domain.BottleReturn
		if err := rows.Scan(&ret.ID, &ret.ProductID, &ret.ProductName, &ret.CustomerName, &ret.Quantity, &ret.CreatedAt); err != nil {
			return nil, err
		}
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return returns, nil
}

const customerColumns = `id, name, COALESCE(phone, ''), COALESCE(email, ''), balance, created_at`

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Balance, &c.CreatedAt)
	return c, err
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, balance, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), customer.Balance, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) AdjustCustomerBalance(ctx context.Context, id string, delta decimal.Decimal) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET balance = balance + $2
		WHERE id = $1
		RETURNING `+customerColumns, id, delta))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var settings domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT pin, low_stock_threshold, updated_at
		FROM settings
		WHERE id = 1
	`).Scan(&settings.PIN, &settings.LowStockThreshold, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	if settings.PIN == "" || settings.LowStockThreshold < 0 {
		return store.ErrValidation
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, pin, low_stock_threshold, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET pin = EXCLUDED.pin, low_stock_threshold = EXCLUDED.low_stock_threshold, updated_at = EXCLUDED.updated_at
	`, settings.PIN, settings.LowStockThreshold, settings.UpdatedAt)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullPtr[T any](val *T) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
