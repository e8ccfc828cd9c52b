package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Consensus metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribd_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribd_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribd_raft_term",
			Help: "Current Raft term",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribd_raft_log_index",
			Help: "Index of the last log entry on this node",
		},
	)

	RaftCommitIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribd_raft_commit_index",
			Help: "Highest log index known to be committed",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribd_raft_applied_index",
			Help: "Last log index applied to the state reducer",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distribd_raft_apply_duration_seconds",
			Help:    "Time taken to apply a committed log entry to the reducer",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Submitter metrics
	SubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distribd_submit_duration_seconds",
			Help:    "Time taken for add_entry to reach commit, from submission to this node",
			Buckets: prometheus.DefBuckets,
		},
	)

	SubmitRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "distribd_submit_retries_total",
			Help: "Total number of times a submit was retried against a different peer",
		},
	)

	QuorumUnavailableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "distribd_submit_quorum_unavailable_total",
			Help: "Total number of submits that exhausted retries without finding a leader",
		},
	)

	// Registry state metrics
	BlobsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribd_blobs_total",
			Help: "Total number of distinct blob digests known to the reducer",
		},
	)

	ManifestsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribd_manifests_total",
			Help: "Total number of distinct manifest digests known to the reducer",
		},
	)

	// Mirror engine metrics
	MirrorTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distribd_mirror_transfers_total",
			Help: "Total number of mirror transfers by content kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	MirrorTransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distribd_mirror_transfer_duration_seconds",
			Help:    "Time taken to pull one blob or manifest from a peer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	MirrorBytesTransferredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "distribd_mirror_bytes_transferred_total",
			Help: "Total bytes pulled from peers by the mirror engine",
		},
	)

	MirrorPendingTransfers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribd_mirror_pending_transfers",
			Help: "Number of mirror transfers currently in flight",
		},
	)

	// Registry API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distribd_api_requests_total",
			Help: "Total number of registry API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distribd_api_request_duration_seconds",
			Help:    "Registry API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftTerm)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftCommitIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)

	prometheus.MustRegister(SubmitDuration)
	prometheus.MustRegister(SubmitRetriesTotal)
	prometheus.MustRegister(QuorumUnavailableTotal)

	prometheus.MustRegister(BlobsTotal)
	prometheus.MustRegister(ManifestsTotal)

	prometheus.MustRegister(MirrorTransfersTotal)
	prometheus.MustRegister(MirrorTransferDuration)
	prometheus.MustRegister(MirrorBytesTransferredTotal)
	prometheus.MustRegister(MirrorPendingTransfers)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
