/*
Package consensus implements the replicated log's leader election and
log replication: a hand-rolled Raft-style state machine, not
hashicorp/raft (see the root DESIGN.md for why).

All persistent and volatile consensus state — role, term, vote, log
position, leader-only next-index/match-index — is owned by a single
goroutine, the "loop" started by Node.Start. RPC handlers never touch
that state directly: they enqueue a closure onto the loop's action
channel and wait for it to run, and any network call a closure needs to
make (an outbound RequestVote or AppendEntries to a peer) is dispatched
from a separate goroutine whose result is itself funneled back through
the action channel. This keeps the Raft state machine single-writer
without serializing peer I/O behind it.

A small mutex-guarded snapshot of role/term/leader/commit-index is
published after every loop iteration that changes state, so read-only
callers (metrics, health checks, the submitter's leader cache) never
have to hop onto the loop.
*/
package consensus
