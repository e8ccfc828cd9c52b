/*
Package mirror drives a node's on-disk content toward the cluster's
logical inventory: it subscribes to the state reducer's delta stream,
and for every digest that becomes locally missing-but-wanted, downloads
it from a peer that has it, verifies the content hash, and submits a
completion event through pkg/submitter.

Downloads run on a bounded worker pool; a digest already in flight is
never re-enqueued (mirror idempotence), and callers waiting on a
digest's local availability register in a pending-transfer table that
is drained the moment the file is renamed into place and its
blob-stored/manifest-stored event is durably submitted.
*/
package mirror
