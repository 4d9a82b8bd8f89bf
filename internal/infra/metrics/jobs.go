package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsCreatedTotal, unitTransitionsTotal, unitsProcessedTotal, unitDurationSeconds)
}

var (
	jobsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebook_jobs_created_total",
			Help: "Jobs accepted by the registry, labeled by content mode.",
		},
		[]string{"mode"},
	)

	unitTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebook_unit_transitions_total",
			Help: "Applied unit status transitions.",
		},
		[]string{"from", "to"},
	)

	unitsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebook_units_processed_total",
			Help: "Units finished by workers, labeled by outcome.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	unitDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ebook_unit_duration_seconds",
			Help:    "Wall time from claim to terminal status for one unit.",
			Buckets: []float64{1, 5, 10, 20, 40, 60, 120, 240},
		},
	)
)

func IncJobCreated(mode string) {
	jobsCreatedTotal.WithLabelValues(norm(mode)).Inc()
}

func IncTransition(from, to string) {
	unitTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func ObserveUnit(status string, seconds float64) {
	unitsProcessedTotal.WithLabelValues(norm(status)).Inc()
	unitDurationSeconds.Observe(seconds)
}
