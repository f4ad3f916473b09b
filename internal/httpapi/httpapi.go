package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"provisionstore/backend/internal/logger"
	"provisionstore/backend/internal/metrics"
	"provisionstore/backend/internal/service"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigin string
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
}

type API struct {
	service        *service.Service
	log            *logger.Logger
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	allowedOrigin  string
}

func New(svc *service.Service, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &API{
		service:        svc,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		metricsHandler: opts.MetricsHandler,
		allowedOrigin:  opts.AllowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		a.requestID,
		a.recoverer,
		a.accessLog,
		securityHeaders,
		a.cors(),
		limitBody,
	)

	r.Get("/healthz", a.handleHealth)
	if a.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", a.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requirePIN)

			r.Post("/auth/change-pin", a.handleChangePIN)
			r.Get("/settings", a.handleGetSettings)
			r.Put("/settings", a.handleUpdateSettings)

			r.Get("/products", a.handleListProducts)
			r.Post("/products", a.handleCreateProduct)
			r.Get("/products/barcode/{code}", a.handleLookupBarcode)
			r.Get("/products/{id}", a.handleGetProduct)
			r.Put("/products/{id}", a.handleUpdateProduct)
			r.Delete("/products/{id}", a.handleDeleteProduct)

			r.Post("/sales", a.handleRecordSingleSale)
			r.Post("/sales/multi", a.handleRecordSale)
			r.Get("/sales", a.handleListSales)
			r.Post("/sales/undo-last", a.handleUndoLastSale)
			r.Get("/sales/{id}/receipt", a.handleReceiptPDF)
			r.Get("/sales/{id}/receipt/preview", a.handleReceiptPreview)

			r.Post("/bottles/return", a.handleReturnBottles)
			r.Get("/bottles/status", a.handleBottleStatus)

			r.Get("/summary/daily", a.handleDailySummary)

			r.Get("/customers", a.handleListCustomers)
			r.Post("/customers", a.handleCreateCustomer)
			r.Get("/customers/{id}/balance", a.handleCustomerBalance)
			r.Post("/customers/{id}/payments", a.handleSettleBalance)

			r.Get("/audit-logs", a.handleAuditLogs)
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}
