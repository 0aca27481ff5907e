package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

const namespace = "funnel"

// unmatchedRoute labels requests no route answered, such as 404 scans.
const unmatchedRoute = "unmatched"

// Collector owns a private registry so several instances (tests, tenants) can
// coexist in one process.
type Collector struct {
	reg *prometheus.Registry

	normalized prometheus.Counter
	dropped    *prometheus.CounterVec
	insights   *prometheus.CounterVec
	analysis   *prometheus.HistogramVec
	requests   *prometheus.CounterVec
	ingested   prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		normalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "leads_normalized_total",
			Help: "Lead records that passed normalization.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "leads_dropped_total",
			Help: "Lead records dropped by the normalizer.",
		}, []string{"reason"}),
		insights: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "insights_total",
			Help: "Insights emitted by the classifier.",
		}, []string{"kind"}),
		analysis: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "analysis_duration_seconds",
			Help:    "Time spent in one engine analysis.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"dimension"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "crm_leads_ingested_total",
			Help: "New leads stored by the CRM ingest.",
		}),
	}
	c.reg.MustRegister(c.normalized, c.dropped, c.insights, c.analysis, c.requests, c.ingested,
		collectors.NewGoCollector())
	return c
}

func (c *Collector) LeadsNormalized(n int) { c.normalized.Add(float64(n)) }

func (c *Collector) LeadDropped(reason string) { c.dropped.WithLabelValues(reason).Inc() }

func (c *Collector) InsightEmitted(kind models.InsightKind) {
	c.insights.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) AnalysisObserved(dim models.Dimension, d time.Duration) {
	c.analysis.WithLabelValues(string(dim)).Observe(d.Seconds())
}

func (c *Collector) LeadsIngested(n int) { c.ingested.Add(float64(n)) }

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Middleware counts requests by chi route pattern so path parameters don't
// explode label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := unmatchedRoute
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		c.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
