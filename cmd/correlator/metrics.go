package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric definitions for the correlator binary

var (
	scenarioRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cce",
			Subsystem: "correlator",
			Name:      "scenario_runs_total",
			Help:      "Total number of scenario runs",
		},
		[]string{"scenario", "status"},
	)

	scenarioRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cce",
			Subsystem: "correlator",
			Name:      "scenario_run_duration_seconds",
			Help:      "Time to ingest, analyze and detect patterns for one scenario",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		},
		[]string{"scenario"},
	)

	scenarioEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cce",
			Subsystem: "correlator",
			Name:      "scenario_events",
			Help:      "Events ingested by the last run of a scenario",
		},
		[]string{"scenario"},
	)

	scenarioRelationships = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cce",
			Subsystem: "correlator",
			Name:      "scenario_relationships",
			Help:      "Relationships discovered by the last run of a scenario",
		},
		[]string{"scenario"},
	)

	patternsFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cce",
			Subsystem: "correlator",
			Name:      "patterns_found_total",
			Help:      "Patterns found across scenario runs",
		},
		[]string{"kind"},
	)

	sessionSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cce",
			Subsystem: "correlator",
			Name:      "session_saves_total",
			Help:      "Session snapshot writes by store",
		},
		[]string{"store", "status"},
	)
)

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func RecordScenarioRun(scenario string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	scenarioRunsTotal.WithLabelValues(scenario, status).Inc()
	scenarioRunDuration.WithLabelValues(scenario).Observe(duration.Seconds())
}

func UpdateScenarioSize(scenario string, events, relationships int) {
	scenarioEvents.WithLabelValues(scenario).Set(float64(events))
	scenarioRelationships.WithLabelValues(scenario).Set(float64(relationships))
}

func RecordPatternsFound(kind string, count int) {
	patternsFound.WithLabelValues(kind).Add(float64(count))
}

func RecordSessionSave(store string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	sessionSavesTotal.WithLabelValues(store, status).Inc()
}
