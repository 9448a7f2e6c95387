// Package metrics exposes booking and availability measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engine"

// Collector records service outcomes on its own registry.
type Collector struct {
	registry  *prometheus.Registry
	bookings  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// New registers the engine collectors, plus Go runtime and process collectors, on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Booking operations by operation and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_duration_seconds",
			Help:      "Time spent answering availability queries.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"query"}),
	}
	c.registry.MustRegister(
		c.bookings,
		c.durations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// BookingOperation counts one booking operation.
func (c *Collector) BookingOperation(operation, result string) {
	c.bookings.WithLabelValues(operation, result).Inc()
}

// AvailabilityObserved records how long an availability query took.
func (c *Collector) AvailabilityObserved(query string, elapsed time.Duration) {
	c.durations.WithLabelValues(query).Observe(elapsed.Seconds())
}

// Registry returns the registry the collectors live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
