package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/distribd/distribd/pkg/distribdtypes"
	"github.com/distribd/distribd/pkg/log"
)

// Client is the consensus node's view of one peer: a thin wrapper over
// *http.Client with a per-call deadline and normalized failure responses.
type Client struct {
	peerAddr   string
	httpClient *http.Client

	voteTimeout     time.Duration
	appendTimeout   time.Duration
	addEntryTimeout time.Duration
}

// NewClient builds a Client for peerAddr (host:port). Zero timeouts fall
// back to the defaults spec'd for vote/append-entries (2s) and add-entry
// (5s).
func NewClient(peerAddr string, voteTimeout, appendTimeout, addEntryTimeout time.Duration) *Client {
	if voteTimeout == 0 {
		voteTimeout = 2 * time.Second
	}
	if appendTimeout == 0 {
		appendTimeout = 2 * time.Second
	}
	if addEntryTimeout == 0 {
		addEntryTimeout = 5 * time.Second
	}
	return &Client{
		peerAddr:        peerAddr,
		httpClient:      &http.Client{},
		voteTimeout:     voteTimeout,
		appendTimeout:   appendTimeout,
		addEntryTimeout: addEntryTimeout,
	}
}

// PeerAddr returns the address this client talks to.
func (c *Client) PeerAddr() string {
	return c.peerAddr
}

// RequestVote calls POST /request-vote on the peer. Any transport failure
// is normalized to {vote_granted: false} at the caller's current term —
// the consensus loop never sees a Go error from this call.
func (c *Client) RequestVote(ctx context.Context, req RequestVoteRequest) RequestVoteResponse {
	var resp RequestVoteResponse
	if err := c.call(ctx, c.voteTimeout, "/request-vote", req, &resp); err != nil {
		log.Logger.Debug().Err(err).Str("peer", c.peerAddr).Msg("request-vote transport failure")
		return RequestVoteResponse{Term: req.Term, VoteGranted: false}
	}
	return resp
}

// AppendEntries calls POST /append-entries on the peer. Any transport
// failure is normalized to {success: false}.
func (c *Client) AppendEntries(ctx context.Context, req AppendEntriesRequest) AppendEntriesResponse {
	var resp AppendEntriesResponse
	if err := c.call(ctx, c.appendTimeout, "/append-entries", req, &resp); err != nil {
		log.Logger.Debug().Err(err).Str("peer", c.peerAddr).Msg("append-entries transport failure")
		return AppendEntriesResponse{Term: req.Term, Success: false}
	}
	return resp
}

// AddEntry calls POST /add-entry on the peer. Unlike RequestVote and
// AppendEntries, a non-leader rejection and an unreachable peer are
// distinguishable here: the submitter needs to know which backoff to
// apply. ErrNotALeader and ErrPeerUnreachable are returned as sentinel
// errors wrapped with context; a successful commit returns a nil error.
func (c *Client) AddEntry(ctx context.Context, req AddEntryRequest) (AddEntryResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.addEntryTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return AddEntryResponse{}, fmt.Errorf("marshal add-entry request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+c.peerAddr+"/add-entry", bytes.NewReader(body))
	if err != nil {
		return AddEntryResponse{}, fmt.Errorf("build add-entry request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return AddEntryResponse{}, fmt.Errorf("%w: %s: %v", distribdtypes.ErrPeerUnreachable, c.peerAddr, err)
	}
	defer httpResp.Body.Close()

	var resp AddEntryResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return AddEntryResponse{}, fmt.Errorf("%w: %s: decode response: %v", distribdtypes.ErrPeerUnreachable, c.peerAddr, err)
	}

	if httpResp.StatusCode == http.StatusBadRequest && resp.Reason == ReasonNotALeader {
		return resp, fmt.Errorf("%w: %s", distribdtypes.ErrNotALeader, c.peerAddr)
	}
	if httpResp.StatusCode != http.StatusOK {
		return resp, fmt.Errorf("%w: %s: status %d", distribdtypes.ErrPeerUnreachable, c.peerAddr, httpResp.StatusCode)
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, timeout time.Duration, path string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+c.peerAddr+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
