package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the blink service collectors.
	Registry = prometheus.NewRegistry()

	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blinkd",
			Subsystem: "dispatch",
			Name:      "calls_total",
			Help:      "Total number of handled calls by method and result.",
		},
		[]string{"method", "result"},
	)

	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blinkd",
			Subsystem: "dispatch",
			Name:      "call_duration_seconds",
			Help:      "Time spent executing a call on the device.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
		},
		[]string{"method"},
	)

	dispatchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blinkd",
			Subsystem: "dispatch",
			Name:      "transport_errors_total",
			Help:      "Errors returned by the endpoint while waiting for calls.",
		},
	)

	serviceState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blinkd",
			Subsystem: "service",
			Name:      "state",
			Help:      "Lifecycle state: 0 stopped, 1 starting, 2 running, 3 stopping.",
		},
	)

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blinkd",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Start attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		callsTotal,
		callDuration,
		dispatchErrors,
		serviceState,
		serviceStarts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// MetricsHandler exposes Registry over HTTP.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
