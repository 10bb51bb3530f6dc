// Package metrics exposes Prometheus metrics for the rating store and the HTTP layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

const namespace = "ratings"

// StoreObserver records rating store operations. It satisfies ratings.Observer.
type StoreObserver struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

func NewStoreObserver(reg prometheus.Registerer) *StoreObserver {
	f := promauto.With(reg)
	return &StoreObserver{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of rating store operations including the document store round trip.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		total: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Rating store operations by outcome code.",
		}, []string{"operation", "code"}),
	}
}

func (o *StoreObserver) ObserveOperation(op, code string, elapsed time.Duration) {
	o.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	o.total.WithLabelValues(op, code).Inc()
}

// HTTPMiddleware measures requests. The handler id groups routes; an empty id uses the URL path.
func HTTPMiddleware(reg prometheus.Registerer) func(handlerID string) func(http.Handler) http.Handler {
	mdlw := middleware.New(middleware.Config{
		Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Registry: reg, Prefix: namespace}),
	})
	return func(handlerID string) func(http.Handler) http.Handler {
		return std.HandlerProvider(handlerID, mdlw)
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
