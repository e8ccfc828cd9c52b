/*
Package metrics provides Prometheus metrics collection and exposition for
distribd.

All metrics are package-level variables registered at init against the
default Prometheus registry, and exposed for scraping via Handler.

# Metrics Catalog

Consensus (pkg/consensus):

	distribd_raft_is_leader        gauge   1 if this node is leader
	distribd_raft_peers_total      gauge   configured peer count
	distribd_raft_term             gauge   current term
	distribd_raft_log_index        gauge   last log index
	distribd_raft_commit_index     gauge   highest committed index
	distribd_raft_applied_index    gauge   last index applied to the reducer
	distribd_raft_apply_duration_seconds  histogram

Submitter (pkg/submitter):

	distribd_submit_duration_seconds             histogram
	distribd_submit_retries_total                counter
	distribd_submit_quorum_unavailable_total      counter

Reducer (pkg/reducer):

	distribd_blobs_total       gauge
	distribd_manifests_total   gauge

Mirror engine (pkg/mirror):

	distribd_mirror_transfers_total{kind,outcome}      counter
	distribd_mirror_transfer_duration_seconds{kind}    histogram
	distribd_mirror_bytes_transferred_total            counter
	distribd_mirror_pending_transfers                  gauge

Registry API:

	distribd_api_requests_total{method,status}          counter
	distribd_api_request_duration_seconds{method}       histogram

# Usage

	timer := metrics.NewTimer()
	// ... apply a committed entry ...
	timer.ObserveDuration(metrics.RaftApplyDuration)

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
