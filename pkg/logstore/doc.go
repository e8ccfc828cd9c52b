/*
Package logstore implements the durable log store behind a consensus node:
an append-only, one-entry-per-line file of (term, action) records that
survives process restart.

# Format at rest

Each line is a JSON array `[term, action_object]` terminated by "\n".
`action_object` carries a `type` discriminator plus the fields for that
action tag, matching the wire shape used in append-entries and add-entry
request bodies (see distribdtypes.Entry). Indexes are implicit: the Nth
line on disk is log index N, 1-indexed.

# Durability

Append holds an exclusive lock for the duration of "write line + fsync +
update in-memory log", so a concurrent follower append-entries and a local
leader append never interleave partial writes. Append does not return until
the line is on stable media.

# Recovery

Open scans the file line by line. A trailing line that fails to parse is
discarded as never durably written (the process crashed mid-write) and cut
from the file, so later appends follow the last good line. A malformed
line anywhere else is unrecoverable and Open returns
distribdtypes.ErrLogCorrupt; the caller must not start the node against a
corrupt log.
*/
package logstore
