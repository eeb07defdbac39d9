package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(itemsEnqueuedTotal, decisionsTotal, queuePendingDepth, batchFlushesTotal)
}

var itemsEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relay_items_enqueued_total",
		Help: "Queue items created, labeled by media kind.",
	},
	[]string{"media"},
)

var decisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relay_operator_decisions_total",
		Help: "Operator decisions, labeled by action.",
	},
	[]string{"action"}, // 'approve', 'reject', 'defer', 'voice', 'custom', 'expired'
)

var queuePendingDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "relay_queue_pending_depth",
		Help: "Pending queue items at last observation.",
	},
)

var batchFlushesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "relay_batch_flushes_total",
		Help: "Conversation batches flushed into the queue.",
	},
)

func IncEnqueued(media string) {
	if media == "" {
		media = "text"
	}
	itemsEnqueuedTotal.WithLabelValues(media).Inc()
}

func IncDecision(action string) { decisionsTotal.WithLabelValues(action).Inc() }

func SetPendingDepth(n int) { queuePendingDepth.Set(float64(n)) }

func IncBatchFlush() { batchFlushesTotal.Inc() }
