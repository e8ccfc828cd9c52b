package consensus

import (
	"context"

	"github.com/distribd/distribd/pkg/log"
	"github.com/distribd/distribd/pkg/transport"
)

// startElection runs on the loop goroutine: it transitions to candidate,
// bumps the term, votes for self, and fans out RequestVote RPCs. Peer
// calls happen off-loop; their results are funneled back through
// enqueue so the vote tally stays single-writer.
func (n *Node) startElection() {
	if n.role == RoleLeader {
		// A leader's own election timer is inert noise once elected; it
		// never stops ticking, but firing it must never demote a
		// healthy leader.
		n.resetElection = true
		return
	}

	n.role = RoleCandidate
	n.currentTerm++
	n.votedFor = n.id
	n.leaderID = ""
	n.votesGranted = map[string]bool{n.id: true}
	n.resetElection = true
	n.publishSnapshot()

	term := n.currentTerm
	req := transport.RequestVoteRequest{
		Term:        term,
		CandidateID: n.id,
		LastIndex:   n.logStore.LastIndex(),
		LastTerm:    n.logStore.LastTerm(),
	}

	log.Logger.Debug().Uint64("term", term).Str("node", n.id).Msg("starting election")

	if n.quorumSize() <= 1 {
		n.becomeLeader()
		return
	}

	for _, peer := range n.peers {
		peer := peer
		go func() {
			resp := peer.RequestVote(context.Background(), req)
			n.enqueue(func() { n.handleVoteResult(term, peer.PeerAddr(), resp) })
		}()
	}
}

func (n *Node) handleVoteResult(term uint64, peerAddr string, resp transport.RequestVoteResponse) {
	if n.role != RoleCandidate || term != n.currentTerm {
		return // stale result from a since-superseded election
	}
	if resp.Term > n.currentTerm {
		n.becomeFollower(resp.Term)
		return
	}
	if !resp.VoteGranted {
		return
	}

	n.votesGranted[peerAddr] = true
	if len(n.votesGranted) >= n.quorumSize() {
		n.becomeLeader()
	}
}

func (n *Node) becomeLeader() {
	n.role = RoleLeader
	n.leaderID = n.id

	lastIndex := n.logStore.LastIndex()
	n.nextIndex = make(map[string]uint64, len(n.peers))
	n.matchIndex = make(map[string]uint64, len(n.peers)+1)
	for _, p := range n.peers {
		n.nextIndex[p.PeerAddr()] = lastIndex + 1
		n.matchIndex[p.PeerAddr()] = 0
	}
	n.matchIndex[n.id] = lastIndex

	log.Logger.Info().Uint64("term", n.currentTerm).Str("node", n.id).Msg("elected leader")
	n.publishSnapshot()
	n.broadcastHeartbeat()
}

func (n *Node) becomeFollower(term uint64) {
	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = ""
	}
	if n.role == RoleLeader {
		log.Logger.Info().Uint64("term", term).Str("node", n.id).Msg("stepping down from leader")
	}
	n.role = RoleFollower
	n.resetElection = true
	n.publishSnapshot()
}
