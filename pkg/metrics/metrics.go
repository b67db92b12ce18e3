package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HeartbeatQueueDepth is the current number of ordinary heartbeats
	// the manager's admission semaphore is holding.
	HeartbeatQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tfs",
		Subsystem: "heartbeat",
		Name:      "queue_depth",
		Help:      "Ordinary heartbeats currently admitted and being processed.",
	})

	// HeartbeatBusyRejectsTotal counts ordinary heartbeats rejected by
	// the back-pressure rule.
	HeartbeatBusyRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tfs",
		Subsystem: "heartbeat",
		Name:      "busy_rejects_total",
		Help:      "Ordinary heartbeats rejected because the admission bound was exhausted.",
	})

	// PlanCount is the number of active plans by kind and state.
	PlanCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tfs",
		Subsystem: "plan",
		Name:      "count",
		Help:      "Active plans by kind and state.",
	}, []string{"kind", "state"})

	// OplogSeqLag is the gap between the queue's next sequence number
	// and the standby's last acked sequence number.
	OplogSeqLag = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tfs",
		Subsystem: "oplog",
		Name:      "seq_lag",
		Help:      "Difference between the active's next seq and the standby's last acked seq.",
	})

	// BlockFileSize, BlockLiveSize and BlockDeletedSize track the
	// physical/live/deleted byte accounting the testable properties
	// require to sum to the physical size.
	BlockFileSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tfs",
		Subsystem: "block",
		Name:      "file_size_bytes",
		Help:      "Physical size of a logical block's main chain.",
	}, []string{"block_id"})

	BlockLiveSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tfs",
		Subsystem: "block",
		Name:      "live_size_bytes",
		Help:      "Live payload bytes in a logical block.",
	}, []string{"block_id"})

	BlockDeletedSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tfs",
		Subsystem: "block",
		Name:      "deleted_size_bytes",
		Help:      "Deleted payload bytes pending compaction in a logical block.",
	}, []string{"block_id"})

	// HARole exposes the HA controller's current role: 0 = slave,
	// 1 = master.
	HARole = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tfs",
		Subsystem: "ha",
		Name:      "role",
		Help:      "Current HA role of this coordinator instance (0=slave, 1=master).",
	})

	// CompactionDuration observes how long a block compaction took.
	CompactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tfs",
		Subsystem: "block",
		Name:      "compaction_duration_seconds",
		Help:      "Time spent compacting one logical block.",
		Buckets:   prometheus.DefBuckets,
	})
)
