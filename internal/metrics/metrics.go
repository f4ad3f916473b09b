package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the till counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	salesRecorded   *prometheus.CounterVec
	salesAmount     *prometheus.CounterVec
	undoAttempts    *prometheus.CounterVec
	bottlesReturned prometheus.Counter
	httpDuration    *prometheus.HistogramVec
}

// New registers the POS metrics on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		salesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sales_recorded_total",
			Help: "Sales recorded, by payment method.",
		}, []string{"payment_method"}),
		salesAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sales_amount_total",
			Help: "Sum of recorded sale totals, by payment method.",
		}, []string{"payment_method"}),
		undoAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sale_undo_total",
			Help: "Undo-last-sale attempts, by outcome.",
		}, []string{"outcome"}),
		bottlesReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_bottles_returned_total",
			Help: "Bottles returned to the shop.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.salesRecorded, m.salesAmount, m.undoAttempts, m.bottlesReturned, m.httpDuration)
	return m
}

func (m *Metrics) ObserveSale(paymentMethod string, amount float64) {
	if m == nil {
		return
	}
	label := normalizeLabel(paymentMethod)
	m.salesRecorded.WithLabelValues(label).Inc()
	if amount > 0 {
		m.salesAmount.WithLabelValues(label).Add(amount)
	}
}

func (m *Metrics) ObserveUndo(outcome string) {
	if m == nil {
		return
	}
	m.undoAttempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveBottleReturn(quantity int) {
	if m == nil || quantity < 1 {
		return
	}
	m.bottlesReturned.Add(float64(quantity))
}

func (m *Metrics) ObserveRequest(method string, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
