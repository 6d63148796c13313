package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "mlserve"
	metricsSubsystem = "http"
)

var requestLabels = []string{"path", "method", "status"}

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern, method and status.",
	}, requestLabels)

	// 5ms to ~82s; training requests run long.
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern, method and status.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
	}, requestLabels)

	httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "inflight_requests",
		Help:      "HTTP requests currently being served, by method.",
	}, []string{"method"})

	predictionRowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "prediction_rows_total",
		Help:      "Rows scored by POST /models/predict.",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, predictionRowsTotal)
}

// MetricsMiddleware records count, latency and in-flight gauges per route.
// The path label is the chi route pattern, read after routing so that
// /models/{name} is one series regardless of the name.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inflight := httpInflight.WithLabelValues(r.Method)
		inflight.Inc()
		defer inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		observeRequest(r, ww.Status(), time.Since(start))
	})
}

func observeRequest(r *http.Request, status int, took time.Duration) {
	if status == 0 {
		status = http.StatusOK
	}
	labels := prometheus.Labels{
		"path":   routeLabel(r),
		"method": r.Method,
		"status": strconv.Itoa(status),
	}
	httpRequestsTotal.With(labels).Inc()
	httpRequestDuration.With(labels).Observe(took.Seconds())
}

// routeLabel is the matched route pattern, or "unmatched" for requests no
// route handled, which keeps arbitrary 404 paths out of the label set.
func routeLabel(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return r.URL.Path
	}
	if p := rc.RoutePattern(); p != "" {
		return p
	}
	return "unmatched"
}
