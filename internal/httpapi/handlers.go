package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/service"
	"provisionstore/backend/internal/store"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), settingsFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLookupBarcode(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.LookupBarcode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleRecordSingleSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SingleSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sale, err := a.service.RecordSale(r.Context(), req.AsSaleRequest())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sale, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.SaleQuery{
		StartDate:   q.Get("start_date"),
		EndDate:     q.Get("end_date"),
		ProductName: q.Get("product_name"),
		SellerName:  q.Get("seller_name"),
	}
	if raw := strings.TrimSpace(q.Get("include_reversed")); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			a.writeError(w, r, fmt.Errorf("%w: include_reversed must be a boolean", store.ErrValidation))
			return
		}
		query.IncludeReversed = include
	}

	sales, err := a.service.ListSales(r.Context(), query)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleUndoLastSale(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.UndoLastSale(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReceiptPDF(w http.ResponseWriter, r *http.Request) {
	saleID := chi.URLParam(r, "id")
	pdf, err := a.service.ReceiptPDF(r.Context(), saleID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeFile(w, "application/pdf", "receipt-"+saleID+".pdf", pdf)
}

func (a *API) handleReceiptPreview(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.Receipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleReturnBottles(w http.ResponseWriter, r *http.Request) {
	var req domain.BottleReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.service.ReturnBottles(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleBottleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.BottleStatus(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bottles": status})
}

func (a *API) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "", "json", "csv", "pdf":
	default:
		a.writeError(w, r, fmt.Errorf("%w: format must be json, csv or pdf", store.ErrValidation))
		return
	}

	summary, err := a.service.DailySummary(r.Context(), settingsFrom(r.Context()), r.URL.Query().Get("date"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	switch format {
	case "csv":
		data, err := summaryCSV(summary)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeFile(w, "text/csv; charset=utf-8", "daily-summary-"+summary.Date+".csv", data)
	case "pdf":
		pdf, err := a.service.SummaryPDF(summary)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeFile(w, "application/pdf", "daily-summary-"+summary.Date+".pdf", pdf)
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (a *API) handleCustomerBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.service.CustomerBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleSettleBalance(w http.ResponseWriter, r *http.Request) {
	var req domain.SettlementRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	balance, err := a.service.SettleBalance(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
