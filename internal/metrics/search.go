package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperjump/sokuin/internal/engine"
)

var (
	searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Engine search call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"index"},
	)

	engineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Total failed engine calls",
		},
		[]string{"driver", "op"},
	)

	importedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imported_records_total",
			Help:      "Records pushed to a search index by imports",
		},
		[]string{"index"},
	)
)

func init() {
	prometheus.MustRegister(searchDuration, engineErrorsTotal, importedRecordsTotal)
}

// ObserveSearch records one engine search call on index.
func ObserveSearch(index string, d time.Duration, err error) {
	searchDuration.WithLabelValues(index).Observe(d.Seconds())
	ObserveEngineError(err)
}

// ObserveEngineError counts err when it is an engine failure.
func ObserveEngineError(err error) {
	var ee *engine.Error
	if errors.As(err, &ee) {
		engineErrorsTotal.WithLabelValues(ee.Driver, ee.Op).Inc()
	}
}

// AddImported adds n to the imported record count for index.
func AddImported(index string, n int) {
	importedRecordsTotal.WithLabelValues(index).Add(float64(n))
}
