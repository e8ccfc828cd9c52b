/*
Package transport implements the plain HTTP+JSON peer protocol between
consensus nodes: request-vote, append-entries, and add-entry.

Client normalizes every transport failure (non-200, connection error,
context deadline) into the RPC's own negative response shape
({success:false} / {vote_granted:false}) so the consensus loop never has
to distinguish "peer said no" from "peer was unreachable" — both mean
the same thing to a Raft state machine. AddEntry is the one exception:
its caller (pkg/submitter) must tell a literal not-a-leader rejection
apart from an unreachable peer to decide which backoff to use, so it
returns a Go error alongside the decoded response.

ContentFetchClient is a separate, smaller client used by the mirror
engine to stream blob and manifest bodies; it is not part of the
consensus RPC set and is built for large-body streaming rather than
JSON decoding.
*/
package transport
