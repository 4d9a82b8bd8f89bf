package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(archivePoolConns, archiveWritesTotal) }

var (
	archivePoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ebook_archive_pool_conns",
			Help: "Connections held by the library archive pool.",
		},
		[]string{"state"}, // total | idle | acquired
	)

	archiveWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebook_archive_writes_total",
			Help: "Finished ebooks written to the library archive.",
		},
		[]string{"result"},
	)
)

func SetArchivePoolConns(total, idle, acquired int32) {
	archivePoolConns.WithLabelValues("total").Set(float64(total))
	archivePoolConns.WithLabelValues("idle").Set(float64(idle))
	archivePoolConns.WithLabelValues("acquired").Set(float64(acquired))
}

func IncArchiveWrite(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	archiveWritesTotal.WithLabelValues(result).Inc()
}
