package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	auditEntries    *prometheus.CounterVec
	lockRejections  *prometheus.CounterVec
	sequenceIssued  *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobd_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gobd_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	auditEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobd_audit_entries_total",
		Help: "Audit entries appended to the ledger by action.",
	}, []string{"action"})
	lockRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobd_period_lock_rejections_total",
		Help: "Mutations rejected because their period is locked.",
	}, []string{"period_type"})
	sequenceIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobd_sequence_numbers_issued_total",
		Help: "Reference numbers handed out by document type.",
	}, []string{"document_type"})
	registry.MustRegister(requests, duration, auditEntries, lockRejections, sequenceIssued)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		auditEntries:    auditEntries,
		lockRejections:  lockRejections,
		sequenceIssued:  sequenceIssued,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// AuditEntriesRecorded counts ledger rows written for one mutation.
func (m *Metrics) AuditEntriesRecorded(action string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.auditEntries.WithLabelValues(action).Add(float64(count))
}

// PeriodLockRejected counts a mutation refused by the period gate.
func (m *Metrics) PeriodLockRejected(periodType string) {
	if m == nil {
		return
	}
	m.lockRejections.WithLabelValues(periodType).Inc()
}

// SequenceNumberIssued counts one allocated reference number.
func (m *Metrics) SequenceNumberIssued(documentType string) {
	if m == nil {
		return
	}
	m.sequenceIssued.WithLabelValues(documentType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
