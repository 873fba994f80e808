package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/warp/debt-ledger/lending"
)

// Metrics holds the Prometheus collectors exposed on /metrics.
// Each instance owns its registry so tests can build routers side by side.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	payments *prometheus.CounterVec
	paid     *prometheus.CounterVec
	quotes   *prometheus.CounterVec
	statuses prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		}, []string{"method", "route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payments_total",
			Help: "Payment attempts by outcome (applied, rejected, preview).",
		}, []string{"outcome"}),
		paid: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payment_amount_total",
			Help: "Amount allocated by component (interest, principal).",
		}, []string{"component"}),
		quotes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_interest_quotes_total",
			Help: "Interest quotes by snapshot cache result (hit, miss).",
		}, []string{"cache"}),
		statuses: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_status_transitions_total",
			Help: "Loan status changes persisted by the status sweep.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency keyed by the chi route
// pattern, so /api/loans/{id} is one series regardless of id.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) paymentApplied(res lending.PaymentResult) {
	if res.Preview {
		m.payments.WithLabelValues("preview").Inc()
		return
	}
	m.payments.WithLabelValues("applied").Inc()

	interestPaid, principalPaid := decimal.Zero, decimal.Zero
	for _, a := range res.Allocations {
		interestPaid = interestPaid.Add(a.InterestPaid)
		principalPaid = principalPaid.Add(a.PrincipalPaid)
	}
	m.paid.WithLabelValues("interest").Add(interestPaid.InexactFloat64())
	m.paid.WithLabelValues("principal").Add(principalPaid.InexactFloat64())
}

func (m *Metrics) paymentRejected() {
	m.payments.WithLabelValues("rejected").Inc()
}

func (m *Metrics) quoteServed(cached bool) {
	if cached {
		m.quotes.WithLabelValues("hit").Inc()
		return
	}
	m.quotes.WithLabelValues("miss").Inc()
}

func (m *Metrics) statusesChanged(n int) {
	m.statuses.Add(float64(n))
}
