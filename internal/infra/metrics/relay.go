package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(bridgeSendsTotal, ingestCyclesTotal) }

var bridgeSendsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relay_bridge_sends_total",
		Help: "Outbound bridge sends, labeled by kind and outcome.",
	},
	[]string{"kind", "outcome"}, // kind: 'text', 'media'
)

var ingestCyclesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relay_ingest_cycles_total",
		Help: "Ingest poll cycles, labeled by outcome.",
	},
	[]string{"outcome"},
)

func IncBridgeSend(kind, outcome string) { bridgeSendsTotal.WithLabelValues(kind, outcome).Inc() }

func IncIngestCycle(outcome string) { ingestCyclesTotal.WithLabelValues(outcome).Inc() }
