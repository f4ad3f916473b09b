package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/service"
	"provisionstore/backend/internal/store/memory"
)

// newTestAPI wires a real service over the seeded memory store so handler
// tests exercise the complete request path.
func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	svc := service.New(memory.NewSeeded(), nil, service.Options{ShopName: "Test Provisions"})
	return New(svc, Options{AllowedOrigin: "http://till.local"}).Handler()
}

func do(t *testing.T, h http.Handler, method string, path string, pin string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if pin != "" {
		req.Header.Set("Authorization", "Bearer "+pin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), "body: %s", rec.Body.String())
	return body
}

func TestHandleHealth(t *testing.T) {
	h := newTestAPI(t)
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestLogin(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{PIN: domain.DefaultPIN})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{PIN: "0000"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_PIN", decodeBody(t, rec)["code"])

	rec = do(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, map[string]any{"pin": "is required"}, body["details"])
}

func TestProtectedRoutesRequirePIN(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/products", "9999", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/products", domain.DefaultPIN, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePINTakesEffectImmediately(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/v1/auth/change-pin", domain.DefaultPIN, domain.ChangePINRequest{OldPIN: domain.DefaultPIN, NewPIN: "12345"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/auth/change-pin", domain.DefaultPIN, domain.ChangePINRequest{OldPIN: domain.DefaultPIN, NewPIN: "8642"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/v1/settings", domain.DefaultPIN, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/settings", "8642", nil).Code)
}

func lowStockFlags(t *testing.T, rec *httptest.ResponseRecorder) map[string]bool {
	t.Helper()
	var body struct {
		Products []domain.ProductView `json:"products"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	flags := map[string]bool{}
	for _, p := range body.Products {
		flags[p.ID] = p.LowStock
	}
	return flags
}

func TestSettingsThresholdDrivesLowStockFlag(t *testing.T) {
	h := newTestAPI(t)

	flags := lowStockFlags(t, do(t, h, http.MethodGet, "/api/v1/products", domain.DefaultPIN, nil))
	assert.True(t, flags["prod-biscuit"])
	assert.False(t, flags["prod-groundnut"])

	rec := do(t, h, http.MethodPut, "/api/v1/settings", domain.DefaultPIN, domain.SettingsUpdateRequest{LowStockThreshold: 20})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 20, body["low_stock_threshold"])
	assert.NotContains(t, body, "pin")

	flags = lowStockFlags(t, do(t, h, http.MethodGet, "/api/v1/products", domain.DefaultPIN, nil))
	assert.True(t, flags["prod-groundnut"])
}

func TestProductCRUD(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/v1/products", domain.DefaultPIN, `{"name":"Indomie Chicken","unit_price":"180.00","quantity":40,"barcode":"8992388101013"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rec = do(t, h, http.MethodPost, "/api/v1/products", domain.DefaultPIN, `{"name":"indomie chicken","unit_price":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE", decodeBody(t, rec)["code"])

	rec = do(t, h, http.MethodGet, "/api/v1/products/barcode/8992388101013", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeBody(t, rec)["id"])

	rec = do(t, h, http.MethodPut, "/api/v1/products/"+id, domain.DefaultPIN, `{"quantity":12}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 12, decodeBody(t, rec)["quantity"])

	rec = do(t, h, http.MethodDelete, "/api/v1/products/"+id, domain.DefaultPIN, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/products/"+id, domain.DefaultPIN, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, rec)["code"])
}

func TestSaleAndUndoFlow(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/v1/sales", domain.DefaultPIN, domain.SingleSaleRequest{
		ProductID:     "prod-coke-35cl",
		Quantity:      2,
		PaymentMethod: "cash",
		SoldBy:        "Ada",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody(t, rec)
	saleID, _ := sale["id"].(string)
	assert.Equal(t, "500", sale["total_amount"])
	assert.EqualValues(t, 2, sale["bottles_taken"])

	rec = do(t, h, http.MethodGet, "/api/v1/sales/"+saleID+"/receipt/preview", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Test Provisions", decodeBody(t, rec)["shop_name"])

	rec = do(t, h, http.MethodGet, "/api/v1/sales/"+saleID+"/receipt", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = do(t, h, http.MethodPost, "/api/v1/sales/undo-last", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/sales/undo-last", domain.DefaultPIN, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_REVERSED", decodeBody(t, rec)["code"])

	rec = do(t, h, http.MethodGet, "/api/v1/sales?include_reversed=true", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["sales"], 1)

	rec = do(t, h, http.MethodGet, "/api/v1/sales", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["sales"], 0)

	rec = do(t, h, http.MethodGet, "/api/v1/sales?include_reversed=maybe", domain.DefaultPIN, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMultiItemSaleOversellReportsProduct(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/v1/sales/multi", domain.DefaultPIN, domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-water-75cl", Quantity: 1},
			{ProductID: "prod-biscuit", Quantity: 9},
		},
		PaymentMethod: "transfer",
		SoldBy:        "Ada",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "prod-biscuit", details["product_id"])
	assert.EqualValues(t, 4, details["available"])

	rec = do(t, h, http.MethodPost, "/api/v1/sales/undo-last", domain.DefaultPIN, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/v1/sales", domain.DefaultPIN, `{"product_id":"prod-biscuit","quantity":1,"payment_method":"cash"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, map[string]any{"sold_by": "is required"}, body["details"])

	rec = do(t, h, http.MethodPost, "/api/v1/sales", domain.DefaultPIN, `{"product_id":"prod-biscuit","quantity":1,"payment_method":"cash","sold_by":"Ada","discount":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/sales", domain.DefaultPIN, `{"product_id":"prod-biscuit","quantity":1,"payment_method":"cheque","sold_by":"Ada"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBottleEndpoints(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/v1/sales", domain.DefaultPIN, domain.SingleSaleRequest{
		ProductID: "prod-fanta-35cl", Quantity: 2, PaymentMethod: "cash", SoldBy: "Ada",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bottles/return", domain.DefaultPIN, domain.BottleReturnRequest{ProductID: "prod-fanta-35cl", Quantity: 3})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EXCESS_RETURN", decodeBody(t, rec)["code"])

	rec = do(t, h, http.MethodPost, "/api/v1/bottles/return", domain.DefaultPIN, domain.BottleReturnRequest{ProductID: "prod-fanta-35cl", Quantity: 2, CustomerName: "Emeka"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/bottles/status", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Bottles []domain.BottleStatus `json:"bottles"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	for _, st := range status.Bottles {
		if st.ProductID == "prod-fanta-35cl" {
			assert.Equal(t, 0, st.Outstanding)
			assert.Equal(t, 2, st.Returned)
		}
	}
}

func TestDailySummaryFormats(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/v1/sales", domain.DefaultPIN, domain.SingleSaleRequest{
		ProductID: "prod-water-75cl", Quantity: 3, PaymentMethod: "pos", SoldBy: "Bola, Jr",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/summary/daily", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["sale_count"])
	assert.Equal(t, "450", body["total_sales_amount"])

	rec = do(t, h, http.MethodGet, "/api/v1/summary/daily?format=csv", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "summary,total_sales_amount,450.00")
	assert.Contains(t, rec.Body.String(), `seller,"Bola, Jr_sales",1`)

	rec = do(t, h, http.MethodGet, "/api/v1/summary/daily?format=pdf", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = do(t, h, http.MethodGet, "/api/v1/summary/daily?format=xml", domain.DefaultPIN, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/summary/daily?date=yesterday", domain.DefaultPIN, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCustomerCreditFlow(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/v1/customers", domain.DefaultPIN, `{"name":"Iya Bisi","email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/customers", domain.DefaultPIN, `{"name":"Iya Bisi","phone":"08030000000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	customerID, _ := decodeBody(t, rec)["id"].(string)

	rec = do(t, h, http.MethodPost, "/api/v1/sales", domain.DefaultPIN, domain.SingleSaleRequest{
		ProductID: "prod-star-60cl", Quantity: 2, PaymentMethod: "credit", SoldBy: "Ada", CustomerID: customerID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/customers/"+customerID+"/payments", domain.DefaultPIN, `{"amount":1000,"note":"cash"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/customers/"+customerID+"/balance", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "400", decodeBody(t, rec)["outstanding_balance"])

	rec = do(t, h, http.MethodGet, "/api/v1/customers/cust-missing/balance", domain.DefaultPIN, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/audit-logs", domain.DefaultPIN, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["logs"], 1)
}
