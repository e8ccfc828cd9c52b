package consensus

import (
	"context"
	"net/http"

	"github.com/distribd/distribd/pkg/distribdtypes"
	"github.com/distribd/distribd/pkg/log"
	"github.com/distribd/distribd/pkg/transport"
)

// RequestVote implements transport.Handler. It hands the request to the
// loop goroutine and waits for the decision.
func (n *Node) RequestVote(ctx context.Context, req transport.RequestVoteRequest) transport.RequestVoteResponse {
	respCh := make(chan transport.RequestVoteResponse, 1)
	if !n.enqueue(func() { respCh <- n.handleRequestVote(req) }) {
		return transport.RequestVoteResponse{Term: req.Term, VoteGranted: false}
	}
	select {
	case resp := <-respCh:
		return resp
	case <-ctx.Done():
		return transport.RequestVoteResponse{Term: req.Term, VoteGranted: false}
	case <-n.stopCh:
		return transport.RequestVoteResponse{Term: req.Term, VoteGranted: false}
	}
}

func (n *Node) handleRequestVote(req transport.RequestVoteRequest) transport.RequestVoteResponse {
	if req.Term > n.currentTerm {
		n.becomeFollower(req.Term)
	}
	if req.Term < n.currentTerm {
		return transport.RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}
	}

	lastIndex := n.logStore.LastIndex()
	lastTerm := n.logStore.LastTerm()
	upToDate := req.LastTerm > lastTerm || (req.LastTerm == lastTerm && req.LastIndex >= lastIndex)
	canVote := n.votedFor == "" || n.votedFor == req.CandidateID

	if canVote && upToDate {
		n.votedFor = req.CandidateID
		n.resetElection = true
		n.publishSnapshot()
		return transport.RequestVoteResponse{Term: n.currentTerm, VoteGranted: true}
	}
	return transport.RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}
}

// AppendEntries implements transport.Handler.
func (n *Node) AppendEntries(ctx context.Context, req transport.AppendEntriesRequest) transport.AppendEntriesResponse {
	respCh := make(chan transport.AppendEntriesResponse, 1)
	if !n.enqueue(func() { respCh <- n.handleAppendEntries(req) }) {
		return transport.AppendEntriesResponse{Term: req.Term, Success: false}
	}
	select {
	case resp := <-respCh:
		return resp
	case <-ctx.Done():
		return transport.AppendEntriesResponse{Term: req.Term, Success: false}
	case <-n.stopCh:
		return transport.AppendEntriesResponse{Term: req.Term, Success: false}
	}
}

func (n *Node) handleAppendEntries(req transport.AppendEntriesRequest) transport.AppendEntriesResponse {
	if req.Term < n.currentTerm {
		return transport.AppendEntriesResponse{Term: n.currentTerm, Success: false}
	}

	if req.Term > n.currentTerm || n.role != RoleFollower {
		n.becomeFollower(req.Term)
	}
	n.leaderID = req.LeaderID
	n.resetElection = true

	lastIndex := n.logStore.LastIndex()
	if req.PrevIndex > lastIndex {
		n.publishSnapshot()
		return transport.AppendEntriesResponse{Term: n.currentTerm, Success: false}
	}
	if req.PrevIndex > 0 {
		prevTerm, ok := n.logStore.TermAt(req.PrevIndex)
		if !ok || prevTerm != req.PrevTerm {
			n.publishSnapshot()
			return transport.AppendEntriesResponse{Term: n.currentTerm, Success: false}
		}
	}

	// Truncate the conflicting suffix, if any, before appending — never
	// append unconditionally over a divergent log.
	next := 0
	idx := req.PrevIndex + 1
	for ; next < len(req.Entries); next, idx = next+1, idx+1 {
		existing, ok := n.logStore.At(idx)
		if !ok {
			break
		}
		if existing.Term != req.Entries[next].Term {
			if err := n.logStore.TruncateSuffix(idx); err != nil {
				log.Logger.Error().Err(err).Msg("truncate conflicting log suffix")
				n.publishSnapshot()
				return transport.AppendEntriesResponse{Term: n.currentTerm, Success: false}
			}
			break
		}
	}
	for ; next < len(req.Entries); next++ {
		if _, err := n.logStore.Append(req.Entries[next]); err != nil {
			log.Logger.Error().Err(err).Msg("append replicated entry")
			n.publishSnapshot()
			return transport.AppendEntriesResponse{Term: n.currentTerm, Success: false}
		}
	}

	if req.LeaderCommit > n.commitIndex {
		newCommit := req.LeaderCommit
		if last := n.logStore.LastIndex(); last < newCommit {
			newCommit = last
		}
		n.commitIndex = newCommit
		n.notifyCommitWaiters()
		n.applyCommitted()
	}

	n.publishSnapshot()
	return transport.AppendEntriesResponse{Term: n.currentTerm, Success: true}
}

type addEntryResult struct {
	resp   transport.AddEntryResponse
	status int
	waitCh <-chan struct{}
}

// AddEntry implements transport.Handler. On a leader it appends the
// batch, then blocks (bounded by ctx) until the batch's last entry
// commits, per §4.6's "awaits the entry's index reaching commit_index"
// contract — without stalling the consensus loop, since the wait happens
// here, off the loop.
func (n *Node) AddEntry(ctx context.Context, req transport.AddEntryRequest) (transport.AddEntryResponse, int) {
	resCh := make(chan addEntryResult, 1)
	if !n.enqueue(func() {
		resp, status, waitCh := n.handleAddEntry(req)
		resCh <- addEntryResult{resp, status, waitCh}
	}) {
		return transport.AddEntryResponse{Reason: "shutting-down"}, http.StatusInternalServerError
	}

	var res addEntryResult
	select {
	case res = <-resCh:
	case <-ctx.Done():
		return transport.AddEntryResponse{Reason: "timeout"}, http.StatusInternalServerError
	case <-n.stopCh:
		return transport.AddEntryResponse{Reason: "shutting-down"}, http.StatusInternalServerError
	}

	if res.status != http.StatusOK || res.waitCh == nil {
		return res.resp, res.status
	}

	select {
	case <-res.waitCh:
		return res.resp, http.StatusOK
	case <-ctx.Done():
		return transport.AddEntryResponse{Reason: "commit-timeout"}, http.StatusInternalServerError
	case <-n.stopCh:
		return transport.AddEntryResponse{Reason: "shutting-down"}, http.StatusInternalServerError
	}
}

func (n *Node) handleAddEntry(req transport.AddEntryRequest) (transport.AddEntryResponse, int, <-chan struct{}) {
	if n.role != RoleLeader {
		return transport.AddEntryResponse{Reason: transport.ReasonNotALeader}, http.StatusBadRequest, nil
	}
	if len(req.Actions) == 0 {
		return transport.AddEntryResponse{LastTerm: n.currentTerm, LastIndex: n.logStore.LastIndex()}, http.StatusOK, closedChan()
	}

	var lastIndex uint64
	for _, action := range req.Actions {
		idx, err := n.logStore.Append(distribdtypes.Entry{Term: n.currentTerm, Action: action})
		if err != nil {
			log.Logger.Error().Err(err).Msg("append local entry")
			return transport.AddEntryResponse{Reason: "append-failed"}, http.StatusInternalServerError, nil
		}
		lastIndex = idx
	}

	n.matchIndex[n.id] = lastIndex
	n.advanceCommitIndex()
	n.publishSnapshot()

	waitCh := n.registerCommitWaiter(lastIndex)
	return transport.AddEntryResponse{LastTerm: n.currentTerm, LastIndex: lastIndex}, http.StatusOK, waitCh
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
