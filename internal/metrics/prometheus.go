package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicetracker",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of services started.",
		}, []string{"name"},
	)
	serviceEnds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicetracker",
			Subsystem: "service",
			Name:      "ends_total",
			Help:      "Number of services completed.",
		}, []string{"name"},
	)
	serviceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "servicetracker",
			Subsystem: "service",
			Name:      "duration_hours",
			Help:      "Elapsed hours of completed services.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 12, 24},
		},
	)
	openServices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "servicetracker",
			Subsystem: "service",
			Name:      "open",
			Help:      "Services started but not yet completed.",
		},
	)
	weeklyHours = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "servicetracker",
			Subsystem: "weekly",
			Name:      "hours",
			Help:      "Whole hours completed in the trailing week per name.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceStarts, serviceEnds, serviceDuration, openServices, weeklyHours}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register succeeds.

func IncStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}

func IncEnd(name string, hours float64) {
	if regOK.Load() {
		serviceEnds.WithLabelValues(name).Inc()
		serviceDuration.Observe(hours)
	}
}

func SetOpenServices(n int) {
	if regOK.Load() {
		openServices.Set(float64(n))
	}
}

// SetWeeklyHours replaces the per-name weekly gauge with the given totals.
func SetWeeklyHours(totals []WeeklyTotal) {
	if !regOK.Load() {
		return
	}
	weeklyHours.Reset()
	for _, t := range totals {
		weeklyHours.WithLabelValues(t.Name).Set(t.Hours)
	}
}
