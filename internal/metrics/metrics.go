// Package metrics provides Prometheus instrumentation for Fraudscope.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscope",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudscope",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RowsScoredTotal counts rows passed through the classifier.
	RowsScoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudscope",
		Name:      "rows_scored_total",
		Help:      "Total rows scored by the classifier.",
	})

	// PredictionsTotal counts predictions by label.
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscope",
			Name:      "predictions_total",
			Help:      "Total predictions by label.",
		},
		[]string{"label"},
	)

	// RunsTotal counts pipeline runs by outcome (succeeded or an error kind).
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscope",
			Name:      "runs_total",
			Help:      "Total pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)

	// AlertsTotal counts alert policy matches by policy.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscope",
			Name:      "alerts_total",
			Help:      "Total alert policy matches by policy and outcome.",
		},
		[]string{"policy", "outcome"},
	)

	// PipelineDuration observes end-to-end pipeline latency by source.
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudscope",
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline run duration in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	// RateLimitedTotal counts uploads rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudscope",
		Name:      "rate_limited_total",
		Help:      "Total uploads rejected by the rate limiter.",
	})

	// ModelFeatures reports the width of the loaded feature schema.
	ModelFeatures = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudscope",
		Name:      "model_features",
		Help:      "Number of features in the loaded model schema.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RowsScoredTotal,
		PredictionsTotal,
		RunsTotal,
		AlertsTotal,
		PipelineDuration,
		RateLimitedTotal,
		ModelFeatures,
	)
}

// Middleware records request counts and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		// Label by route pattern
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(rec.status)).Inc()
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
