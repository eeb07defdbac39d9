package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(generationsTotal, transcriptionsTotal) }

var generationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relay_reply_generations_total",
		Help: "Reply generation attempts, labeled by outcome.",
	},
	[]string{"outcome"}, // 'ok', 'transient', 'failed'
)

var transcriptionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relay_transcriptions_total",
		Help: "Voice transcription attempts, labeled by outcome.",
	},
	[]string{"outcome"},
)

func IncGeneration(outcome string) { generationsTotal.WithLabelValues(outcome).Inc() }

func IncTranscription(outcome string) { transcriptionsTotal.WithLabelValues(outcome).Inc() }
