package reducer

import (
	"fmt"

	"github.com/distribd/distribd/pkg/distribdtypes"
	"github.com/distribd/distribd/pkg/events"
)

// LogReader is the slice of logstore.Store that Restore needs: reading
// entries after a snapshot's index. Declared here, rather than importing
// logstore directly, so reducer keeps importing only what Apply itself
// needs and a test can supply an in-memory stand-in.
type LogReader interface {
	At(index uint64) (distribdtypes.Entry, bool)
}

// SnapshotSource is the slice of snapshot.Store that Restore needs.
type SnapshotSource interface {
	Load() (index uint64, state []byte, ok bool, err error)
}

// Restore rebuilds a Reducer on node start: it loads the newest cached
// snapshot (if any) and replays only the committed log suffix after it,
// rather than the full log from index 1. The snapshot is strictly a
// cache — if snap has never been saved, or saving it is skipped
// entirely, Restore replays the whole of commitIndex from scratch and
// produces identical indexes (the invariant pkg/snapshot's doc comment
// requires).
func Restore(snap SnapshotSource, log LogReader, commitIndex uint64, broker *events.Broker) (*Reducer, error) {
	r := New(broker)

	startIndex := uint64(1)
	if snap != nil {
		snapIndex, state, ok, err := snap.Load()
		if err != nil {
			return nil, fmt.Errorf("load reducer snapshot: %w", err)
		}
		if ok {
			if err := r.RestoreState(state); err != nil {
				return nil, fmt.Errorf("restore reducer snapshot: %w", err)
			}
			startIndex = snapIndex + 1
		}
	}

	for idx := startIndex; idx <= commitIndex; idx++ {
		entry, ok := log.At(idx)
		if !ok {
			return nil, fmt.Errorf("replay committed log: missing index %d (commit index %d)", idx, commitIndex)
		}
		if _, err := r.Apply(idx, entry); err != nil {
			return nil, fmt.Errorf("replay committed log at index %d: %w", idx, err)
		}
	}

	return r, nil
}
