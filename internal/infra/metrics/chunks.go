package metrics

import "github.com/prometheus/client_golang/prometheus"

var chunkCacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ebook_chunk_cache_lookups_total",
		Help: "Chunk cache reads made before generating a chunk.",
	},
	// hit: final text reused, miss: nothing usable, error: backend failed
	[]string{"result"},
)

func init() { register(chunkCacheLookupsTotal) }

func IncChunkCacheLookup(result string) {
	chunkCacheLookupsTotal.WithLabelValues(norm(result)).Inc()
}
