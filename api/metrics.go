// metrics.go - Prometheus instrumentation for the HTTP surface and the
// ledger write path. Scraped at /metrics.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_engine_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	ledgerEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_engine_ledger_entries_total",
		Help: "Stock ledger entries recorded through the API.",
	})

	workflowRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_engine_workflow_rejections_total",
		Help: "Rejected workflow operations by error kind.",
	}, []string{"kind"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests per route pattern and status. The chi
// pattern ({id}, not the concrete id) keeps the label set bounded.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}
