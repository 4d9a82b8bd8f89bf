package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(generatorTokens, generatorCallSeconds, generationAttemptsTotal, generationPlaceholdersTotal)
}

var (
	generatorTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebook_generator_tokens_total",
			Help: "Tokens exchanged with the generator, split by direction.",
		},
		[]string{"provider", "model", "direction"}, // prompt | completion
	)

	generatorCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ebook_generator_call_seconds",
			Help:    "Duration of one streamed generator call.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15, 30, 60, 90},
		},
		[]string{"provider", "model", "outcome"},
	)

	generationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebook_generation_attempts_total",
			Help: "Chunk generation attempts by outcome.",
		},
		[]string{"result"}, // 'ok', 'error', 'fallback_ok', 'fallback_error'
	)

	generationPlaceholdersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ebook_generation_placeholders_total",
			Help: "Chunks that degraded to the placeholder text.",
		},
	)
)

func ObserveGeneration(provider, model string, promptTokens, completionTokens, latencyMs int, success bool) {
	p, m := norm(provider), norm(model)
	generatorTokens.WithLabelValues(p, m, "prompt").Add(float64(promptTokens))
	generatorTokens.WithLabelValues(p, m, "completion").Add(float64(completionTokens))
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	generatorCallSeconds.WithLabelValues(p, m, outcome).Observe(float64(latencyMs) / 1000)
}

func IncGenerationAttempt(result string) {
	generationAttemptsTotal.WithLabelValues(norm(result)).Inc()
}

func IncPlaceholder() { generationPlaceholdersTotal.Inc() }
