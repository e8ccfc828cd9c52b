package submitter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/distribd/distribd/pkg/consensus"
	"github.com/distribd/distribd/pkg/distribdtypes"
	"github.com/distribd/distribd/pkg/log"
	"github.com/distribd/distribd/pkg/transport"
)

const (
	defaultMaxRounds  = 5
	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 2 * time.Second
)

// Submitter is the write path shared by every HTTP handler that needs to
// persist an action batch.
type Submitter struct {
	local *consensus.Node
	peers []*transport.Client

	maxRounds int

	mu              sync.Mutex
	lastKnownLeader string
}

// New builds a Submitter over the local consensus node and the clients
// for its peers.
func New(local *consensus.Node, peers []*transport.Client) *Submitter {
	return &Submitter{local: local, peers: peers, maxRounds: defaultMaxRounds}
}

// Submit appends batch as a single group: either every action in it
// commits, or none do. An empty batch is a no-op.
func (s *Submitter) Submit(ctx context.Context, batch []distribdtypes.ActionRecord) error {
	if len(batch) == 0 {
		return nil
	}
	req := transport.AddEntryRequest{Actions: batch}
	backoff := initialBackoff

	for round := 0; round < s.maxRounds; round++ {
		if s.local.IsLeader() {
			if _, status := s.local.AddEntry(ctx, req); status == http.StatusOK {
				return nil
			}
			// Stepped down between the check and the call; fall through
			// to the peer redirect path for this round.
		}

		for _, client := range s.candidateOrder() {
			_, err := client.AddEntry(ctx, req)
			if err == nil {
				s.setLastKnownLeader(client.PeerAddr())
				return nil
			}
			if errors.Is(err, distribdtypes.ErrNotALeader) || errors.Is(err, distribdtypes.ErrPeerUnreachable) {
				continue
			}
			return err
		}

		log.Logger.Debug().Int("round", round).Msg("submit found no leader this round")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return distribdtypes.ErrQuorumUnavailable
}

// candidateOrder returns peers to try, with the last known leader first.
func (s *Submitter) candidateOrder() []*transport.Client {
	s.mu.Lock()
	leader := s.lastKnownLeader
	s.mu.Unlock()

	if leader == "" {
		return s.peers
	}

	ordered := make([]*transport.Client, 0, len(s.peers))
	var rest []*transport.Client
	for _, p := range s.peers {
		if p.PeerAddr() == leader {
			ordered = append(ordered, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(ordered, rest...)
}

func (s *Submitter) setLastKnownLeader(addr string) {
	s.mu.Lock()
	s.lastKnownLeader = addr
	s.mu.Unlock()
}
