package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(queueDepth, storeErrorsTotal, reconcilerRepairsTotal) }

var (
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ebook_queue_depth",
			Help: "Dispatch records waiting in the queue at last sample.",
		},
	)

	storeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebook_store_errors_total",
			Help: "Durable store failures by operation.",
		},
		[]string{"op"},
	)

	reconcilerRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebook_reconciler_repairs_total",
			Help: "Repairs applied by the reconciler.",
		},
		[]string{"kind"}, // 'counters', 'stale_unit', 'archived', 'retired'
	)
)

func SetQueueDepth(n int64) { queueDepth.Set(float64(n)) }

func IncStoreError(op string) { storeErrorsTotal.WithLabelValues(norm(op)).Inc() }

func IncRepair(kind string) { reconcilerRepairsTotal.WithLabelValues(norm(kind)).Inc() }
