// Package metrics exposes Prometheus metrics for screening runs, market
// data fetches and the HTTP API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/screening"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "optionseller"

// Registry holds all metrics on a private Prometheus registry
type Registry struct {
	reg *prometheus.Registry

	ScreenRuns      prometheus.Counter
	Candidates      prometheus.Counter
	Returned        prometheus.Gauge
	Rejections      *prometheus.CounterVec
	ScreenDuration  prometheus.Histogram
	FetchFailures   prometheus.Counter
	FetchRequests   *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	ScheduledJobs   *prometheus.CounterVec
	LastBackupBytes prometheus.Gauge
}

// NewRegistry creates and registers every metric
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		ScreenRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screen_runs_total",
			Help:      "Completed screening runs",
		}),
		Candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_evaluated_total",
			Help:      "Strategy candidates entering the screen",
		}),
		Returned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "opportunities_returned",
			Help:      "Opportunities returned by the most recent run",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Candidates dropped by the screen, by reason",
		}, []string{"reason"}),
		ScreenDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "screen_duration_seconds",
			Help:      "Duration of the filter, score and rank stages",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Symbols whose market data could not be fetched during a run",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Market data lookups by source and result",
		}, []string{"source", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Market data lookup latency by source",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		ScheduledJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_jobs_total",
			Help:      "Scheduled job executions by job and result",
		}, []string{"job", "result"}),
		LastBackupBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_backup_bytes",
			Help:      "Size of the most recent database backup archive",
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ScreenRuns,
		r.Candidates,
		r.Returned,
		r.Rejections,
		r.ScreenDuration,
		r.FetchFailures,
		r.FetchRequests,
		r.FetchDuration,
		r.HTTPRequests,
		r.HTTPDuration,
		r.ScheduledJobs,
		r.LastBackupBytes,
	)
	return r
}

// Gatherer exposes the registry for tests and custom exporters
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveScreen records one completed screening run
func (r *Registry) ObserveScreen(stats screening.Stats, fetchFailures int) {
	r.ScreenRuns.Inc()
	r.Candidates.Add(float64(stats.Candidates))
	r.Returned.Set(float64(stats.Returned))
	for reason, n := range stats.ByReason {
		r.Rejections.WithLabelValues(string(reason)).Add(float64(n))
	}
	r.ScreenDuration.Observe(stats.Duration.Seconds())
	r.FetchFailures.Add(float64(fetchFailures))
}

// ObserveFetch records one market data lookup
func (r *Registry) ObserveFetch(source string, err error, elapsed time.Duration) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, marketdata.ErrUnavailable):
		result = "unavailable"
	default:
		result = "error"
	}
	r.FetchRequests.WithLabelValues(source, result).Inc()
	r.FetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveJob records one scheduled job execution
func (r *Registry) ObserveJob(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ScheduledJobs.WithLabelValues(name, result).Inc()
}

// ObserveBackup records the size of an uploaded backup
func (r *Registry) ObserveBackup(bytes int64) {
	r.LastBackupBytes.Set(float64(bytes))
}

// Middleware records request counts and latency labeled by chi route pattern.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.HTTPRequests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
		r.HTTPDuration.WithLabelValues(route, req.Method).Observe(time.Since(start).Seconds())
	})
}
