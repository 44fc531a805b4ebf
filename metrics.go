package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/mmichie/umrahdesk/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	PermissionChecksTotal  *prometheus.CounterVec
	PermissionRefreshTotal *prometheus.CounterVec

	CatalogCacheTotal *prometheus.CounterVec

	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamErrorsTotal     *prometheus.CounterVec

	InvoicesTotal *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "umrahdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "umrahdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "umrahdesk_permission_checks_total",
				Help: "Route permission checks by outcome",
			},
			[]string{"resource", "action", "result"},
		),
		PermissionRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "umrahdesk_permission_refresh_total",
				Help: "Permission refreshes by outcome",
			},
			[]string{"result"},
		),
		CatalogCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "umrahdesk_catalog_cache_total",
				Help: "Catalog cache lookups by outcome",
			},
			[]string{"result"},
		),
		UpstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "umrahdesk_agency_api_duration_seconds",
				Help:    "Agency API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		UpstreamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "umrahdesk_agency_api_errors_total",
				Help: "Failed agency API calls",
			},
			[]string{"operation"},
		),
		InvoicesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "umrahdesk_invoices_total",
				Help: "Invoices computed, by split mode",
			},
			[]string{"mode"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionRefreshTotal,
		m.CatalogCacheTotal,
		m.UpstreamRequestDuration,
		m.UpstreamErrorsTotal,
		m.InvoicesTotal,
	)
	return m
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Instrument records request count and latency under the route pattern, not
// the raw path, so booking ids do not become label values.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// meteredAgencyAPI times every agency API call.
type meteredAgencyAPI struct {
	AgencyAPI
	metrics *Metrics
}

func (m meteredAgencyAPI) observe(operation string, start time.Time, err error) {
	m.metrics.UpstreamRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.metrics.UpstreamErrorsTotal.WithLabelValues(operation).Inc()
	}
}

func (m meteredAgencyAPI) Login(ctx context.Context, email, password string) (*oauth2.Token, error) {
	start := time.Now()
	token, err := m.AgencyAPI.Login(ctx, email, password)
	m.observe("login", start, err)
	return token, err
}

func (m meteredAgencyAPI) FetchPermissions(ctx context.Context, sess SessionContext) (*client.PermissionsResponse, error) {
	start := time.Now()
	resp, err := m.AgencyAPI.FetchPermissions(ctx, sess)
	m.observe("permissions", start, err)
	return resp, err
}

func (m meteredAgencyAPI) FetchBooking(ctx context.Context, sess SessionContext, bookingID string) (map[string]interface{}, error) {
	start := time.Now()
	booking, err := m.AgencyAPI.FetchBooking(ctx, sess, bookingID)
	m.observe("booking", start, err)
	return booking, err
}

func (m meteredAgencyAPI) FetchHotels(ctx context.Context, sess SessionContext) ([]map[string]interface{}, error) {
	start := time.Now()
	items, err := m.AgencyAPI.FetchHotels(ctx, sess)
	m.observe("hotels", start, err)
	return items, err
}

func (m meteredAgencyAPI) FetchFoodPrices(ctx context.Context, sess SessionContext) ([]map[string]interface{}, error) {
	start := time.Now()
	items, err := m.AgencyAPI.FetchFoodPrices(ctx, sess)
	m.observe("food_prices", start, err)
	return items, err
}

func (m meteredAgencyAPI) FetchZiaratPrices(ctx context.Context, sess SessionContext) ([]map[string]interface{}, error) {
	start := time.Now()
	items, err := m.AgencyAPI.FetchZiaratPrices(ctx, sess)
	m.observe("ziarat_prices", start, err)
	return items, err
}
