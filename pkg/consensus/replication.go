package consensus

import (
	"context"
	"sync/atomic"

	"github.com/distribd/distribd/pkg/log"
	"github.com/distribd/distribd/pkg/transport"
)

// broadcastHeartbeat runs on the loop goroutine. For each peer it reads
// next-index/match-index and the log (all loop-owned), builds that
// peer's AppendEntriesRequest, then dispatches the actual network call
// from a separate goroutine so a slow or unreachable peer never blocks
// the loop or other peers.
func (n *Node) broadcastHeartbeat() {
	if n.role != RoleLeader {
		return
	}
	term := n.currentTerm

	for _, peer := range n.peers {
		peer := peer
		nextIdx := n.nextIndex[peer.PeerAddr()]
		if nextIdx == 0 {
			nextIdx = 1
		}
		prevIndex := nextIdx - 1

		// prev_index is always next_index-1, never match_index: using
		// match_index here would replay already-matched entries as
		// "new" on every heartbeat and can desynchronize prev_term.
		prevTerm, _ := n.logStore.TermAt(prevIndex)
		entries := n.logStore.Read(nextIdx, maxEntriesPerAppend)

		req := transport.AppendEntriesRequest{
			Term:         term,
			LeaderID:     n.id,
			PrevIndex:    prevIndex,
			PrevTerm:     prevTerm,
			Entries:      entries,
			LeaderCommit: n.commitIndex,
		}
		numEntries := uint64(len(entries))

		go func() {
			resp := peer.AppendEntries(context.Background(), req)
			n.enqueue(func() { n.handleAppendResult(term, peer.PeerAddr(), prevIndex, numEntries, resp) })
		}()
	}
}

func (n *Node) handleAppendResult(term uint64, peerAddr string, prevIndex, numEntries uint64, resp transport.AppendEntriesResponse) {
	if n.role != RoleLeader || term != n.currentTerm {
		return // stale result from a prior term
	}
	if resp.Term > n.currentTerm {
		n.becomeFollower(resp.Term)
		return
	}

	if resp.Success {
		matched := prevIndex + numEntries
		if matched > n.matchIndex[peerAddr] {
			n.matchIndex[peerAddr] = matched
		}
		n.nextIndex[peerAddr] = n.matchIndex[peerAddr] + 1
		n.advanceCommitIndex()
	} else if n.nextIndex[peerAddr] > 1 {
		n.nextIndex[peerAddr]--
	}
	n.publishSnapshot()
}

// advanceCommitIndex implements §4.2's explicit commit rule: the highest
// N greater than the current commit index, in the leader's own term,
// held by a majority of match-indexes (leader included).
func (n *Node) advanceCommitIndex() {
	lastIndex := n.logStore.LastIndex()
	quorum := n.quorumSize()

	for N := lastIndex; N > n.commitIndex; N-- {
		term, ok := n.logStore.TermAt(N)
		if !ok || term != n.currentTerm {
			continue
		}

		count := 0
		for _, matched := range n.matchIndex {
			if matched >= N {
				count++
			}
		}
		if count >= quorum {
			n.commitIndex = N
			n.notifyCommitWaiters()
			n.applyCommitted()
			return
		}
	}
}

func (n *Node) applyCommitted() {
	for n.reducer.LastApplied() < n.commitIndex {
		idx := n.reducer.LastApplied() + 1
		entry, ok := n.logStore.At(idx)
		if !ok {
			log.Logger.Error().Uint64("index", idx).Msg("commit index ahead of local log")
			return
		}
		if _, err := n.reducer.Apply(idx, entry); err != nil {
			log.Logger.Fatal().Err(err).Uint64("index", idx).Msg("reducer rejected a committed entry")
			return
		}
		n.maybeSnapshot(idx)
	}
}

// maybeSnapshot saves a reducer snapshot every snapshotInterval applied
// entries. ExportState only takes the reducer's read lock, so the save
// itself runs off the loop goroutine; at most one save is ever in
// flight, and a save still running when the next interval is crossed is
// simply skipped rather than queued (the next one will cover it).
func (n *Node) maybeSnapshot(appliedIndex uint64) {
	if n.snapStore == nil || appliedIndex%n.snapshotInterval != 0 {
		return
	}
	if !atomic.CompareAndSwapInt32(&n.snapshotting, 0, 1) {
		return
	}

	go func() {
		defer atomic.StoreInt32(&n.snapshotting, 0)

		state, index, err := n.reducer.ExportState()
		if err != nil {
			log.Logger.Error().Err(err).Msg("export reducer state for snapshot")
			return
		}
		if err := n.snapStore.Save(index, state); err != nil {
			log.Logger.Error().Err(err).Uint64("index", index).Msg("save reducer snapshot")
			return
		}
		log.Logger.Debug().Uint64("index", index).Msg("saved reducer snapshot")
	}()
}

// registerCommitWaiter returns a channel that closes once index commits.
// If index has already committed, it returns an already-closed channel.
func (n *Node) registerCommitWaiter(index uint64) <-chan struct{} {
	if n.commitIndex >= index {
		return closedChan()
	}
	ch := make(chan struct{})
	n.commitWaiters[index] = append(n.commitWaiters[index], ch)
	return ch
}

func (n *Node) notifyCommitWaiters() {
	for idx, chans := range n.commitWaiters {
		if idx > n.commitIndex {
			continue
		}
		for _, ch := range chans {
			close(ch)
		}
		delete(n.commitWaiters, idx)
	}
}
