package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherlog_fetches_total",
			Help: "Total current weather API calls",
		},
		[]string{"status"},
	)

	FetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weatherlog_fetch_latency_seconds",
			Help:    "Current weather API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ObservationsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherlog_observations_stored_total",
			Help: "Total observations appended to the store",
		},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherlog_exports_total",
			Help: "Total spreadsheet exports",
		},
		[]string{"status"},
	)

	LastObservationTemperature = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weatherlog_last_temperature_celsius",
			Help: "Temperature of the most recently stored observation",
		},
	)
)

// Status label values.
const (
	StatusOK           = "ok"
	StatusRequestError = "request_error"
	StatusParseError   = "parse_error"
	StatusError        = "error"
)
