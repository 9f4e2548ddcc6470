package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "devhub_cache"

var (
	SyncPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Sync passes by result (ok, feed_error, halted, skipped, error).",
	}, []string{"result"})

	SyncPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "pass_duration_seconds",
		Help:      "Wall time of one sync pass.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	Transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "transactions_total",
		Help:      "Feed transactions by dispatch outcome.",
	}, []string{"outcome"})

	LinkedProposalUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "linked_proposal_updates_total",
		Help:      "RFP snapshots rewritten because a proposal linked or unlinked.",
	}, []string{"action"})

	CursorTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cursor",
		Name:      "last_timestamp_seconds",
		Help:      "Chain timestamp of the last processed transaction.",
	})

	CursorBlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cursor",
		Name:      "last_block_height",
		Help:      "Block height of the last processed transaction.",
	})

	FeedPages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "pages_total",
		Help:      "Feed pages fetched.",
	})

	FeedErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "errors_total",
		Help:      "Feed page fetches that failed.",
	})

	RPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Contract view calls by method and result.",
	}, []string{"method", "result"})

	RPCFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "fallbacks_total",
		Help:      "Bootstraps that used the embedded body because the contract call failed.",
	}, []string{"entity"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route and status code.",
	}, []string{"route", "code"})
)
