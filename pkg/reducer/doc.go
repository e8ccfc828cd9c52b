/*
Package reducer implements the state reducer: a deterministic fold of
committed log entries into the in-memory indexes that answer "where is
this blob" and "what does this tag point at".

Apply is a pure mutator over the five indexes (blob locations, blob
repository memberships, manifest locations, manifest repository
memberships, tags). It never spawns goroutines and never makes a network
call — the side-effecting reaction to a state change (the mirror engine
deciding to download something) lives entirely in pkg/mirror, which
subscribes to the events.Delta stream the reducer publishes after each
mutation. This split is what lets a reducer be rebuilt from scratch by
replaying a log prefix and checked for determinism without any worker pool
attached (testable property 3).

Restore rebuilds a Reducer at node start: load the newest snapshot cached
in pkg/snapshot, if any, then replay only the committed log suffix after
it. The snapshot is never authoritative on its own; deleting it and
replaying from index 1 must produce an identical reducer.
*/
package reducer
