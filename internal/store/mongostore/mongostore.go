// Package mongostore keeps the shop ledger in MongoDB.
//
// Writes that touch several documents run as conditional single-document
// updates. A multi-line sale that fails part way compensates the lines it
// already applied, so no replica set is needed.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/store"
	"provisionstore/backend/internal/xid"
)

const settingsID = "settings"

type Store struct {
	client        *mongo.Client
	products      *mongo.Collection
	customers     *mongo.Collection
	sales         *mongo.Collection
	bottleReturns *mongo.Collection
	settings      *mongo.Collection
	auditLogs     *mongo.Collection
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	db := client.Database(database)
	s := &Store{
		client:        client,
		products:      db.Collection("products"),
		customers:     db.Collection("customers"),
		sales:         db.Collection("sales"),
		bottleReturns: db.Collection("bottle_returns"),
		settings:      db.Collection("settings"),
		auditLogs:     db.Collection("audit_logs"),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.products.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "barcode", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("product indexes: %w", err)
	}
	for _, coll := range []*mongo.Collection{s.sales, s.bottleReturns, s.auditLogs} {
		_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}})
		if err != nil {
			return fmt.Errorf("%s index: %w", coll.Name(), err)
		}
	}
	return nil
}

type productDoc struct {
	ID                 string                `bson:"_id"`
	Name               string                `bson:"name"`
	NameKey            string                `bson:"name_key"`
	UnitPrice          primitive.Decimal128  `bson:"unit_price"`
	Quantity           int                   `bson:"quantity"`
	IsBottled          bool                  `bson:"is_bottled"`
	Barcode            string                `bson:"barcode,omitempty"`
	BottleDeposit      *primitive.Decimal128 `bson:"bottle_deposit,omitempty"`
	OutstandingBottles int                   `bson:"outstanding_bottles"`
	BottlesTaken       int                   `bson:"bottles_taken"`
	BottlesReturned    int                   `bson:"bottles_returned"`
	CreatedAt          time.Time             `bson:"created_at"`
	UpdatedAt          time.Time             `bson:"updated_at"`
}

func newProductDoc(p domain.Product) productDoc {
	doc := productDoc{
		ID:                 p.ID,
		Name:               p.Name,
		NameKey:            strings.ToLower(strings.TrimSpace(p.Name)),
		UnitPrice:          toDecimal128(p.UnitPrice),
		Quantity:           p.Quantity,
		IsBottled:          p.IsBottled,
		Barcode:            p.Barcode,
		OutstandingBottles: p.OutstandingBottles,
		BottlesTaken:       p.BottlesTaken,
		BottlesReturned:    p.BottlesReturned,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if p.BottleDeposit != nil {
		deposit := toDecimal128(*p.BottleDeposit)
		doc.BottleDeposit = &deposit
	}
	return doc
}

func (d productDoc) product() domain.Product {
	p := domain.Product{
		ID:                 d.ID,
		Name:               d.Name,
		UnitPrice:          fromDecimal128(d.UnitPrice),
		Quantity:           d.Quantity,
		IsBottled:          d.IsBottled,
		Barcode:            d.Barcode,
		OutstandingBottles: d.OutstandingBottles,
		BottlesTaken:       d.BottlesTaken,
		BottlesReturned:    d.BottlesReturned,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	if d.BottleDeposit != nil {
		deposit := fromDecimal128(*d.BottleDeposit)
		p.BottleDeposit = &deposit
	}
	return p
}

type saleLineDoc struct {
	ProductID    string               `bson:"product_id"`
	ProductName  string               `bson:"product_name"`
	Quantity     int                  `bson:"quantity"`
	UnitPrice    primitive.Decimal128 `bson:"unit_price"`
	LineTotal    primitive.Decimal128 `bson:"line_total"`
	BottlesTaken int                  `bson:"bottles_taken"`
}

type saleDoc struct {
	ID            string               `bson:"_id"`
	Items         []saleLineDoc        `bson:"items"`
	PaymentMethod string               `bson:"payment_method"`
	SoldBy        string               `bson:"sold_by"`
	CustomerID    string               `bson:"customer_id,omitempty"`
	Total         primitive.Decimal128 `bson:"total"`
	BottlesTaken  int                  `bson:"bottles_taken"`
	Status        string               `bson:"status"`
	CreatedAt     time.Time            `bson:"created_at"`
	ReversedAt    *time.Time           `bson:"reversed_at,omitempty"`
}

func newSaleDoc(sale domain.Sale) saleDoc {
	items := make([]saleLineDoc, 0, len(sale.Items))
	for _, line := range sale.Items {
		items = append(items, saleLineDoc{
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			Quantity:     line.Quantity,
			UnitPrice:    toDecimal128(line.UnitPrice),
			LineTotal:    toDecimal128(line.LineTotal),
			BottlesTaken: line.BottlesTaken,
		})
	}
	return saleDoc{
		ID:            sale.ID,
		Items:         items,
		PaymentMethod: sale.PaymentMethod,
		SoldBy:        sale.SoldBy,
		CustomerID:    sale.CustomerID,
		Total:         toDecimal128(sale.Total),
		BottlesTaken:  sale.BottlesTaken,
		Status:        sale.Status,
		CreatedAt:     sale.CreatedAt,
		ReversedAt:    sale.ReversedAt,
	}
}

func (d saleDoc) sale() domain.Sale {
	items := make([]domain.SaleLine, 0, len(d.Items))
	for _, line := range d.Items {
		items = append(items, domain.SaleLine{
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			Quantity:     line.Quantity,
			UnitPrice:    fromDecimal128(line.UnitPrice),
			LineTotal:    fromDecimal128(line.LineTotal),
			BottlesTaken: line.BottlesTaken,
		})
	}
	return domain.Sale{
		ID:            d.ID,
		Items:         items,
		PaymentMethod: d.PaymentMethod,
		SoldBy:        d.SoldBy,
		CustomerID:    d.CustomerID,
		Total:         fromDecimal128(d.Total),
		BottlesTaken:  d.BottlesTaken,
		Status:        d.Status,
		CreatedAt:     d.CreatedAt,
		ReversedAt:    d.ReversedAt,
	}
}

type customerDoc struct {
	ID        string               `bson:"_id"`
	Name      string               `bson:"name"`
	Phone     string               `bson:"phone,omitempty"`
	Email     string               `bson:"email,omitempty"`
	Balance   primitive.Decimal128 `bson:"balance"`
	CreatedAt time.Time            `bson:"created_at"`
}

func (d customerDoc) customer() domain.Customer {
	return domain.Customer{
		ID:        d.ID,
		Name:      d.Name,
		Phone:     d.Phone,
		Email:     d.Email,
		Balance:   fromDecimal128(d.Balance),
		CreatedAt: d.CreatedAt,
	}
}

type bottleReturnDoc struct {
	ID           string    `bson:"_id"`
	ProductID    string    `bson:"product_id"`
	ProductName  string    `bson:"product_name"`
	CustomerName string    `bson:"customer_name,omitempty"`
	Quantity     int       `bson:"quantity"`
	CreatedAt    time.Time `bson:"created_at"`
}

type settingsDoc struct {
	ID                string    `bson:"_id"`
	PIN               string    `bson:"pin"`
	LowStockThreshold int       `bson:"low_stock_threshold"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

type auditLogDoc struct {
	ID         string    `bson:"_id"`
	Action     string    `bson:"action"`
	EntityType string    `bson:"entity_type"`
	EntityID   string    `bson:"entity_id"`
	Detail     string    `bson:"detail"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cur, err := s.products.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name_key", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.product())
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := bsonTime(time.Now())
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.CreatedAt = bsonTime(product.CreatedAt)
	product.UpdatedAt = now

	if _, err := s.products.InsertOne(ctx, newProductDoc(product)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) findProduct(ctx context.Context, filter bson.D) (*domain.Product, error) {
	var doc productDoc
	if err := s.products.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p := doc.product()
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.findProduct(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	return s.findProduct(ctx, bson.D{{Key: "barcode", Value: barcode}})
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch store.ProductPatch) (*domain.Product, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var doc productDoc
	err := s.products.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		productPatchUpdate(patch, time.Now()),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	updated := doc.product()
	return &updated, nil
}

// productPatchUpdate sets only the patched fields. Clearing the barcode
// unsets it so the sparse unique index ignores the product.
func productPatchUpdate(patch store.ProductPatch, now time.Time) bson.D {
	set := bson.D{}
	if patch.Name != nil {
		set = append(set,
			bson.E{Key: "name", Value: *patch.Name},
			bson.E{Key: "name_key", Value: strings.ToLower(strings.TrimSpace(*patch.Name))},
		)
	}
	if patch.UnitPrice != nil {
		set = append(set, bson.E{Key: "unit_price", Value: toDecimal128(*patch.UnitPrice)})
	}
	if patch.Quantity != nil {
		set = append(set, bson.E{Key: "quantity", Value: *patch.Quantity})
	}
	if patch.IsBottled != nil {
		set = append(set, bson.E{Key: "is_bottled", Value: *patch.IsBottled})
	}
	if patch.BottleDeposit != nil {
		set = append(set, bson.E{Key: "bottle_deposit", Value: toDecimal128(*patch.BottleDeposit)})
	}
	if patch.Barcode != nil && *patch.Barcode != "" {
		set = append(set, bson.E{Key: "barcode", Value: *patch.Barcode})
	}
	set = append(set, bson.E{Key: "updated_at", Value: bsonTime(now)})

	update := bson.D{{Key: "$set", Value: set}}
	if patch.Barcode != nil && *patch.Barcode == "" {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "barcode", Value: ""}}})
	}
	return update
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.products.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}
	if sale.PaymentMethod == domain.PaymentCredit || sale.CustomerID != "" {
		if _, err := s.GetCustomer(ctx, sale.CustomerID); err != nil {
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
	products := make(map[string]domain.Product, len(requested))
	for id, qty := range requested {
		p, err := s.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Quantity < qty {
			return nil, &store.StockError{ProductID: p.ID, ProductName: p.Name, Requested: qty, Available: p.Quantity}
		}
		products[id] = *p
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

	deltas := stockDeltas(lines)
	applied := make([]stockDelta, 0, len(deltas))
	for _, d := range deltas {
		res, err := s.products.UpdateOne(ctx,
			bson.D{{Key: "_id", Value: d.productID}, {Key: "quantity", Value: bson.D{{Key: "$gte", Value: d.quantity}}}},
			applyUpdate(d))
		if err == nil && res.MatchedCount == 0 {
			rollbackErr := restoreStock(ctx, s.products, applied)
			p := products[d.productID]
			available := p.Quantity
			if current, getErr := s.GetProduct(ctx, d.productID); getErr == nil {
				available = current.Quantity
			}
			return nil, rollbackFailed(&store.StockError{ProductID: p.ID, ProductName: p.Name, Requested: d.quantity, Available: available}, rollbackErr)
		}
		if err != nil {
			return nil, rollbackFailed(err, restoreStock(ctx, s.products, applied))
		}
		applied = append(applied, d)
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now()
	}
	sale.CreatedAt = bsonTime(sale.CreatedAt)
	sale.Items = lines
	sale.Total = total
	sale.BottlesTaken = bottles
	sale.Status = domain.SaleStatusCompleted
	sale.ReversedAt = nil

	if _, err := s.sales.InsertOne(ctx, newSaleDoc(sale)); err != nil {
		return nil, rollbackFailed(err, restoreStock(ctx, s.products, applied))
	}
	if sale.PaymentMethod == domain.PaymentCredit {
		if _, err := s.AdjustCustomerBalance(ctx, sale.CustomerID, total); err != nil {
			var deleteErr error
			if _, delErr := s.sales.DeleteOne(context.WithoutCancel(ctx), bson.D{{Key: "_id", Value: sale.ID}}); delErr != nil {
				deleteErr = fmt.Errorf("delete sale %s: %w", sale.ID, delErr)
			}
			return nil, rollbackFailed(err, errors.Join(restoreStock(ctx, s.products, applied), deleteErr))
		}
	}
	return &sale, nil
}

type stockDelta struct {
	productID string
	quantity  int
	bottles   int
}

// stockDeltas folds lines into one delta per product, ordered by id.
func stockDeltas(lines []domain.SaleLine) []stockDelta {
	byID := make(map[string]*stockDelta, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		d, ok := byID[line.ProductID]
		if !ok {
			d = &stockDelta{productID: line.ProductID}
			byID[line.ProductID] = d
			ids = append(ids, line.ProductID)
		}
		d.quantity += line.Quantity
		d.bottles += line.BottlesTaken
	}
	slices.Sort(ids)
	out := make([]stockDelta, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byID[id])
	}
	return out
}

// productUpdater is the part of *mongo.Collection the stock helpers write through.
type productUpdater interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// restoreStock puts back quantities and bottle counters for deltas that were
// already applied. Every delta is attempted and the failures are joined. It
// runs even if the request context is cancelled.
func restoreStock(ctx context.Context, products productUpdater, deltas []stockDelta) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, d := range deltas {
		if _, err := products.UpdateOne(ctx, bson.D{{Key: "_id", Value: d.productID}}, restoreUpdate(d)); err != nil {
			errs = append(errs, fmt.Errorf("restore stock for %s: %w", d.productID, err))
		}
	}
	return errors.Join(errs...)
}

// applyStock takes deltas out of stock again without checking the quantity.
func applyStock(ctx context.Context, products productUpdater, deltas []stockDelta) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, d := range deltas {
		if _, err := products.UpdateOne(ctx, bson.D{{Key: "_id", Value: d.productID}}, applyUpdate(d)); err != nil {
			errs = append(errs, fmt.Errorf("reapply stock for %s: %w", d.productID, err))
		}
	}
	return errors.Join(errs...)
}

// reverseStock restores all deltas of a sale being undone. When one restore
// fails the deltas already restored are applied again, so stock matches the
// still-open sale.
func reverseStock(ctx context.Context, products productUpdater, deltas []stockDelta) error {
	ctx = context.WithoutCancel(ctx)
	for i, d := range deltas {
		if _, err := products.UpdateOne(ctx, bson.D{{Key: "_id", Value: d.productID}}, restoreUpdate(d)); err != nil {
			return errors.Join(
				fmt.Errorf("restore stock for %s: %w", d.productID, err),
				applyStock(ctx, products, deltas[:i]),
			)
		}
	}
	return nil
}

func applyUpdate(d stockDelta) bson.D {
	return bson.D{
		{Key: "$inc", Value: bson.D{
			{Key: "quantity", Value: -d.quantity},
			{Key: "outstanding_bottles", Value: d.bottles},
			{Key: "bottles_taken", Value: d.bottles},
		}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: bsonTime(time.Now())}}},
	}
}

// restoreUpdate floors the bottle counters at zero and keeps bottles_returned
// no larger than bottles_taken. Field paths in one $set stage read the values
// from before the stage.
func restoreUpdate(d stockDelta) mongo.Pipeline {
	floorSub := func(field string) bson.D {
		return bson.D{{Key: "$max", Value: bson.A{0, bson.D{{Key: "$subtract", Value: bson.A{"$" + field, d.bottles}}}}}}
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "quantity", Value: bson.D{{Key: "$add", Value: bson.A{"$quantity", d.quantity}}}},
			{Key: "outstanding_bottles", Value: floorSub("outstanding_bottles")},
			{Key: "bottles_taken", Value: floorSub("bottles_taken")},
			{Key: "bottles_returned", Value: bson.D{{Key: "$min", Value: bson.A{"$bottles_returned", floorSub("bottles_taken")}}}},
			{Key: "updated_at", Value: bsonTime(time.Now())},
		}}},
	}
}

// undoBottleReturn puts a counted return back on the product after its
// ledger entry could not be written.
func undoBottleReturn(ctx context.Context, products productUpdater, productID string, quantity int) error {
	_, err := products.UpdateOne(context.WithoutCancel(ctx),
		bson.D{{Key: "_id", Value: productID}},
		bson.D{{Key: "$inc", Value: bson.D{
			{Key: "outstanding_bottles", Value: quantity},
			{Key: "bottles_returned", Value: -quantity},
		}}},
	)
	if err != nil {
		return fmt.Errorf("undo bottle return for %s: %w", productID, err)
	}
	return nil
}

// rollbackFailed reports cause unless the compensation behind it failed too.
// A failed compensation is a storage fault, so the sentinel in cause is kept
// out of the chain and the caller sees a server error.
func rollbackFailed(cause error, rollback error) error {
	if rollback == nil {
		return cause
	}
	return fmt.Errorf("%v; rollback failed: %w", cause, rollback)
}

// bsonTime drops precision BSON dates cannot hold, so values returned to the
// caller match what a later read gives back.
func bsonTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var doc saleDoc
	if err := s.sales.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale := doc.sale()
	return &sale, nil
}

func (s *Store) LatestSale(ctx context.Context) (*domain.Sale, error) {
	var doc saleDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if err := s.sales.FindOne(ctx, bson.D{}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale := doc.sale()
	return &sale, nil
}

func (s *Store) ReverseSale(ctx context.Context, id string, at time.Time) (*domain.Sale, error) {
	at = bsonTime(at)
	var doc saleDoc
	err := s.sales.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "status", Value: domain.SaleStatusCompleted}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: domain.SaleStatusReversed},
			{Key: "reversed_at", Value: at},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, findErr := s.FindSaleByID(ctx, id); findErr != nil {
				return nil, findErr
			}
			return nil, store.ErrAlreadyReversed
		}
		return nil, err
	}

	sale := doc.sale()
	deltas := stockDeltas(sale.Items)
	if err := reverseStock(ctx, s.products, deltas); err != nil {
		return nil, errors.Join(err, s.reopenSale(ctx, sale.ID))
	}
	if sale.PaymentMethod == domain.PaymentCredit && sale.CustomerID != "" {
		if _, err := s.AdjustCustomerBalance(context.WithoutCancel(ctx), sale.CustomerID, sale.Total.Neg()); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, errors.Join(err, applyStock(ctx, s.products, deltas), s.reopenSale(ctx, sale.ID))
		}
	}
	return &sale, nil
}

// reopenSale marks a sale completed again after its reversal could not be
// carried through.
func (s *Store) reopenSale(ctx context.Context, id string) error {
	_, err := s.sales.UpdateOne(context.WithoutCancel(ctx),
		bson.D{{Key: "_id", Value: id}, {Key: "status", Value: domain.SaleStatusReversed}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "status", Value: domain.SaleStatusCompleted}}},
			{Key: "$unset", Value: bson.D{{Key: "reversed_at", Value: ""}}},
		},
	)
	if err != nil {
		return fmt.Errorf("reopen sale %s: %w", id, err)
	}
	return nil
}

func windowFilter(from time.Time, to time.Time) bson.D {
	bounds := bson.D{}
	if !from.IsZero() {
		bounds = append(bounds, bson.E{Key: "$gte", Value: from})
	}
	if !to.IsZero() {
		bounds = append(bounds, bson.E{Key: "$lt", Value: to})
	}
	if len(bounds) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "created_at", Value: bounds}}
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.sales.Find(ctx, windowFilter(from, to), opts)
	if err != nil {
		return nil, err
	}
	var docs []saleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(docs))
	for _, doc := range docs {
		sales = append(sales, doc.sale())
	}
	return sales, nil
}

func (s *Store) ReturnBottles(ctx context.Context, ret domain.BottleReturn) (*domain.Product, error) {
	if ret.Quantity < 1 {
		return nil, store.ErrValidation
	}
	product, err := s.GetProduct(ctx, ret.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsBottled {
		return nil, store.ErrValidation
	}

	var doc productDoc
	err = s.products.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: ret.ProductID}, {Key: "outstanding_bottles", Value: bson.D{{Key: "$gte", Value: ret.Quantity}}}},
		bson.D{
			{Key: "$inc", Value: bson.D{
				{Key: "outstanding_bottles", Value: -ret.Quantity},
				{Key: "bottles_returned", Value: ret.Quantity},
			}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: bsonTime(time.Now())}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrExcessReturn
		}
		return nil, err
	}

	if ret.ID == "" {
		ret.ID = xid.New("bret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now()
	}
	ret.CreatedAt = bsonTime(ret.CreatedAt)
	_, err = s.bottleReturns.InsertOne(ctx, bottleReturnDoc{
		ID:           ret.ID,
		ProductID:    doc.ID,
		ProductName:  doc.Name,
		CustomerName: ret.CustomerName,
		Quantity:     ret.Quantity,
		CreatedAt:    ret.CreatedAt,
	})
	if err != nil {
		return nil, rollbackFailed(err, undoBottleReturn(ctx, s.products, doc.ID, ret.Quantity))
	}
	updated := doc.product()
	return &updated, nil
}

func (s *Store) ListBottleReturns(ctx context.Context, from time.Time, to time.Time) ([]domain.BottleReturn, error) {
	cur, err := s.bottleReturns.Find(ctx, windowFilter(from, to), options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []bottleReturnDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	returns := make([]domain.BottleReturn, 0, len(docs))
	for _, doc := range docs {
		returns = append(returns, domain.BottleReturn{
			ID:           doc.ID,
			ProductID:    doc.ProductID,
			ProductName:  doc.ProductName,
			CustomerName: doc.CustomerName,
			Quantity:     doc.Quantity,
			CreatedAt:    doc.CreatedAt,
		})
	}
	return returns, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.customers.InsertOne(ctx, customerDoc{
		ID:        customer.ID,
		Name:      customer.Name,
		Phone:     customer.Phone,
		Email:     customer.Email,
		Balance:   toDecimal128(customer.Balance),
		CreatedAt: customer.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	cur, err := s.customers.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []customerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	customers := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		customers = append(customers, doc.customer())
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var doc customerDoc
	if err := s.customers.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c := doc.customer()
	return &c, nil
}

func (s *Store) AdjustCustomerBalance(ctx context.Context, id string, delta decimal.Decimal) (*domain.Customer, error) {
	var doc customerDoc
	err := s.customers.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "balance", Value: toDecimal128(delta)}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c := doc.customer()
	return &c, nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var doc settingsDoc
	if err := s.settings.FindOne(ctx, bson.D{{Key: "_id", Value: settingsID}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &domain.Settings{PIN: doc.PIN, LowStockThreshold: doc.LowStockThreshold, UpdatedAt: doc.UpdatedAt}, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	if settings.PIN == "" || settings.LowStockThreshold < 0 {
		return store.ErrValidation
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	_, err := s.settings.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: settingsID}},
		settingsDoc{ID: settingsID, PIN: settings.PIN, LowStockThreshold: settings.LowStockThreshold, UpdatedAt: settings.UpdatedAt},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = bsonTime(entry.CreatedAt)
	_, err := s.auditLogs.InsertOne(ctx, auditLogDoc(entry))
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.auditLogs.Find(ctx, windowFilter(from, to), opts)
	if err != nil {
		return nil, err
	}
	var docs []auditLogDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	logs := make([]domain.AuditLog, 0, len(docs))
	for _, doc := range docs {
		logs = append(logs, domain.AuditLog(doc))
	}
	return logs, nil
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

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
