/*
Package snapshot persists a periodic, point-in-time cache of the state
reducer's indexes to a local BoltDB file, so a restarting node can skip
replaying the entire committed log and instead replay only the suffix
after the snapshot's index.

The snapshot is a cache, never the authority: the durable log
(pkg/logstore) remains the only source of truth, and deleting the
snapshot file and replaying from index 1 must produce identical reducer
indexes. This mirrors the snapshot/restore compaction BoltDB-backed
managers use for fast rejoin, narrowed here to a single latest snapshot
instead of a retained history.
*/
package snapshot
