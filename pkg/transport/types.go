package transport

import "github.com/distribd/distribd/pkg/distribdtypes"

// RequestVoteRequest is the body of POST /request-vote.
type RequestVoteRequest struct {
	Term        uint64 `json:"term"`
	CandidateID string `json:"candidate_id"`
	LastIndex   uint64 `json:"last_index"`
	LastTerm    uint64 `json:"last_term"`
}

// RequestVoteResponse is the body of the /request-vote reply.
type RequestVoteResponse struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"vote_granted"`
}

// AppendEntriesRequest is the body of POST /append-entries.
type AppendEntriesRequest struct {
	Term         uint64                  `json:"term"`
	LeaderID     string                  `json:"leader_id"`
	PrevIndex    uint64                  `json:"prev_index"`
	PrevTerm     uint64                  `json:"prev_term"`
	Entries      []distribdtypes.Entry   `json:"entries"`
	LeaderCommit uint64                  `json:"leader_commit"`
}

// AppendEntriesResponse is the body of the /append-entries reply.
type AppendEntriesResponse struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
}

// AddEntryRequest is the body of POST /add-entry: a batch of actions to be
// appended as a single group.
type AddEntryRequest struct {
	Actions []distribdtypes.ActionRecord `json:"actions"`
}

// AddEntryResponse is the body of the /add-entry reply on success, or the
// reason field alone accompanying a 400 when the receiver is not leader.
type AddEntryResponse struct {
	LastTerm  uint64 `json:"last_term,omitempty"`
	LastIndex uint64 `json:"last_index,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ReasonNotALeader is the AddEntryResponse.Reason value accompanying a 400
// when the receiving node is not the current leader.
const ReasonNotALeader = "NOT_A_LEADER"
