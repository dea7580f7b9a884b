/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. logrus:     Structured request logging
  4. prometheus: Request counters, scraped at /metrics
  5. CORS:       Cross-origin requests for upstream UIs

ROUTE GROUPS:
  /api/ledger/*       Stock ledger reads
  /api/adjustments/*  Correction workflow
  /api/jobwork/*      Consignment documents, rows, SLA, aging
  /api/bills/*        Vendor billing

SECURITY NOTE:
  No authentication middleware; identity arrives via X-Actor from an
  upstream gateway. Auth is out of scope for the engine.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Log))
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", h.ListLedger)
			r.Get("/balance", h.GetBalance)
			r.Get("/balances", h.ListBalances)
		})

		r.Route("/adjustments", func(r chi.Router) {
			r.Get("/", h.ListAdjustments)
			r.Post("/", h.CreateAdjustment)
			r.Get("/{id}", h.GetAdjustment)
			r.Post("/{id}/submit", h.SubmitAdjustment)
			r.Post("/{id}/approve", h.ApproveAdjustment)
			r.Post("/{id}/post", h.PostAdjustment)
			r.Post("/{id}/reverse", h.ReverseAdjustment)
		})

		r.Route("/jobwork", func(r chi.Router) {
			r.Get("/outwards", h.ListOutwards)
			r.Post("/outwards", h.CreateOutward)
			r.Get("/inwards", h.ListInwards)
			r.Post("/inwards", h.SubmitInward)
			r.Post("/inwards/{inwardNo}/reverse", h.ReverseInward)
			r.Post("/settlements", h.SettleShortage)
			r.Get("/rows", h.ListRows)
			r.Get("/vendors/{vendor}/balance", h.GetVendorBalance)
			r.Get("/vendors/{vendor}/sla", h.GetSLA)
			r.Get("/aging", h.GetAging)
		})

		r.Route("/bills", func(r chi.Router) {
			r.Get("/", h.ListBills)
			r.Post("/", h.CreateBill)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}
