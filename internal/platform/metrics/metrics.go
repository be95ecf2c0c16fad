// Package metrics exposes Prometheus instrumentation for tracker imports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	importRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "import",
		Name:      "requests_total",
		Help:      "Total number of tracker imports broken down by report status.",
	}, []string{"status"})

	importObjects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "import",
		Name:      "objects_total",
		Help:      "Total number of tracker objects processed broken down by type and action.",
	}, []string{"type", "action"})

	importStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "import",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each import stage.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	validationFindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "validation",
		Name:      "findings_total",
		Help:      "Total number of validation findings broken down by code and severity.",
	}, []string{"code", "severity"})

	preheatCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "preheat_cache",
		Name:      "requests_total",
		Help:      "Total number of preheat metadata cache lookups broken down by kind and hit/miss.",
	}, []string{"kind", "result"})
)

// RecordImport counts a finished import.
func RecordImport(status string) {
	if status == "" {
		status = "unknown"
	}
	importRequests.WithLabelValues(status).Inc()
}

// RecordObjects counts objects of a tracker type that were created, updated,
// deleted or ignored.
func RecordObjects(trackerType, action string, n int) {
	if n <= 0 {
		return
	}
	importObjects.WithLabelValues(trackerType, action).Add(float64(n))
}

// ObserveStage records how long an import stage took.
func ObserveStage(stage string, start time.Time) {
	importStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func RecordFinding(code, severity string) {
	validationFindings.WithLabelValues(code, severity).Inc()
}

func RecordCacheLookup(kind string, hits, misses int) {
	if hits > 0 {
		preheatCacheRequests.WithLabelValues(kind, "hit").Add(float64(hits))
	}
	if misses > 0 {
		preheatCacheRequests.WithLabelValues(kind, "miss").Add(float64(misses))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
