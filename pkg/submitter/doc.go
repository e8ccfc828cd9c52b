/*
Package submitter implements the write path the out-of-scope HTTP
handlers use to turn a validated client action into a committed log
entry: Submit takes a batch, hands it to the local node if it is
leader, otherwise forwards it to the last node known to be leader and
retries against the rest of the cluster with capped exponential
backoff, and surfaces distribdtypes.ErrQuorumUnavailable if no leader
can be found within a bounded number of passes.
*/
package submitter
