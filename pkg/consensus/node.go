package consensus

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/distribd/distribd/pkg/log"
	"github.com/distribd/distribd/pkg/logstore"
	"github.com/distribd/distribd/pkg/reducer"
	"github.com/distribd/distribd/pkg/snapshot"
	"github.com/distribd/distribd/pkg/transport"
)

// Role is the Raft role of a node.
type Role int

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		return "follower"
	}
}

const maxEntriesPerAppend = 256

// Config configures a Node.
type Config struct {
	ID    string
	Peers []*transport.Client

	ElectionTimeoutLow  time.Duration
	ElectionTimeoutHigh time.Duration
	HeartbeatInterval   time.Duration

	// SnapshotStore, if set, receives a cache of the reducer's indexes
	// every SnapshotInterval applied entries, so a restart can skip
	// replaying the whole committed log (see pkg/snapshot and
	// reducer.Restore). Nil disables snapshotting: every restart replays
	// from index 1, which is always correct, just slower to catch up.
	SnapshotStore    *snapshot.Store
	SnapshotInterval uint64
}

func (c Config) withDefaults() Config {
	if c.ElectionTimeoutLow == 0 {
		c.ElectionTimeoutLow = 300 * time.Millisecond
	}
	if c.ElectionTimeoutHigh == 0 {
		c.ElectionTimeoutHigh = 600 * time.Millisecond
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = c.ElectionTimeoutLow / 3
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = 1000
	}
	return c
}

// snapshot is a point-in-time, snapMu-guarded copy of the fields
// outside callers may want without hopping onto the loop goroutine.
type snapshot struct {
	role        Role
	term        uint64
	leaderID    string
	commitIndex uint64
	lastApplied uint64
}

// Node is one participant in the replicated log. Construct with New and
// start its loop with Start; a zero Node is not usable.
type Node struct {
	id    string
	peers []*transport.Client

	electionLow, electionHigh time.Duration
	heartbeatInterval         time.Duration

	logStore *logstore.Store
	reducer  *reducer.Reducer

	snapStore        *snapshot.Store
	snapshotInterval uint64
	snapshotting     int32 // atomic: 1 while a snapshot save is in flight

	actions chan func()
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Loop-owned state. Touched only inside run() or a closure it
	// executes; never accessed directly from another goroutine.
	role         Role
	currentTerm  uint64
	votedFor     string
	commitIndex  uint64
	leaderID     string
	votesGranted map[string]bool
	nextIndex    map[string]uint64
	matchIndex   map[string]uint64
	commitWaiters map[uint64][]chan struct{}

	resetElection bool
	wantHeartbeat bool // not read; run() arms the heartbeat ticker from role

	snapMu sync.RWMutex
	snap   snapshot
}

// New builds a Node over an already-recovered logstore.Store and
// reducer.Reducer. It does not start the loop; call Start for that.
func New(cfg Config, logStore *logstore.Store, red *reducer.Reducer) *Node {
	cfg = cfg.withDefaults()
	return &Node{
		id:                cfg.ID,
		peers:             cfg.Peers,
		electionLow:       cfg.ElectionTimeoutLow,
		electionHigh:      cfg.ElectionTimeoutHigh,
		heartbeatInterval: cfg.HeartbeatInterval,
		logStore:          logStore,
		reducer:           red,
		snapStore:         cfg.SnapshotStore,
		snapshotInterval:  cfg.SnapshotInterval,
		actions:           make(chan func(), 64),
		stopCh:            make(chan struct{}),
		role:              RoleFollower,
		commitWaiters:     make(map[uint64][]chan struct{}),
	}
}

// Start launches the consensus loop goroutine. It returns immediately;
// the loop runs until ctx is canceled or Stop is called.
func (n *Node) Start(ctx context.Context) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.run(ctx)
	}()
}

// Stop signals the loop to exit and waits for it to do so. All pending
// commit waiters are released with a failure signal (their channel is
// never closed successfully; callers must treat a Stop-interrupted wait
// as a failure via ctx/stopCh selection in the RPC wrappers).
func (n *Node) Stop() {
	close(n.stopCh)
	n.wg.Wait()
}

// enqueue runs fn on the loop goroutine, blocking until it starts
// running fn is not guaranteed, only that fn is queued; callers wait on
// their own response channel for the result.
func (n *Node) enqueue(fn func()) bool {
	select {
	case n.actions <- fn:
		return true
	case <-n.stopCh:
		return false
	}
}

func (n *Node) run(ctx context.Context) {
	electionTimer := time.NewTimer(n.randomElectionTimeout())
	defer electionTimer.Stop()

	var heartbeatTicker *time.Ticker
	defer func() {
		if heartbeatTicker != nil {
			heartbeatTicker.Stop()
		}
	}()

	n.publishSnapshot()

	for {
		var heartbeatC <-chan time.Time
		if heartbeatTicker != nil {
			heartbeatC = heartbeatTicker.C
		}

		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case fn := <-n.actions:
			fn()
		case <-electionTimer.C:
			n.startElection()
		case <-heartbeatC:
			n.broadcastHeartbeat()
		}

		if n.role == RoleLeader && heartbeatTicker == nil {
			heartbeatTicker = time.NewTicker(n.heartbeatInterval)
		} else if n.role != RoleLeader && heartbeatTicker != nil {
			heartbeatTicker.Stop()
			heartbeatTicker = nil
		}

		if n.resetElection {
			if !electionTimer.Stop() {
				select {
				case <-electionTimer.C:
				default:
				}
			}
			electionTimer.Reset(n.randomElectionTimeout())
			n.resetElection = false
		}
	}
}

func (n *Node) randomElectionTimeout() time.Duration {
	span := n.electionHigh - n.electionLow
	if span <= 0 {
		return n.electionLow
	}
	return n.electionLow + time.Duration(rand.Int63n(int64(span)))
}

func (n *Node) quorumSize() int {
	return (len(n.peers)+1)/2 + 1
}

func (n *Node) publishSnapshot() {
	n.snapMu.Lock()
	n.snap = snapshot{
		role:        n.role,
		term:        n.currentTerm,
		leaderID:    n.leaderID,
		commitIndex: n.commitIndex,
		lastApplied: n.reducer.LastApplied(),
	}
	n.snapMu.Unlock()
}

// Role reports the node's current role.
func (n *Node) Role() Role {
	n.snapMu.RLock()
	defer n.snapMu.RUnlock()
	return n.snap.role
}

// IsLeader reports whether the node currently believes itself leader.
func (n *Node) IsLeader() bool {
	return n.Role() == RoleLeader
}

// Term returns the node's current term.
func (n *Node) Term() uint64 {
	n.snapMu.RLock()
	defer n.snapMu.RUnlock()
	return n.snap.term
}

// LeaderID returns the node's last-known leader id, empty if unknown.
func (n *Node) LeaderID() string {
	n.snapMu.RLock()
	defer n.snapMu.RUnlock()
	return n.snap.leaderID
}

// CommitIndex returns the node's current commit index.
func (n *Node) CommitIndex() uint64 {
	n.snapMu.RLock()
	defer n.snapMu.RUnlock()
	return n.snap.commitIndex
}

// LastApplied returns the reducer's last-applied index.
func (n *Node) LastApplied() uint64 {
	n.snapMu.RLock()
	defer n.snapMu.RUnlock()
	return n.snap.lastApplied
}

// LogIndex returns the index of the last entry in the local log. Reads
// the logstore directly since it carries its own mutex; safe to call
// from any goroutine without hopping onto the loop.
func (n *Node) LogIndex() uint64 {
	return n.logStore.LastIndex()
}

// PeerCount returns the number of configured peers (excluding self).
func (n *Node) PeerCount() int {
	return len(n.peers)
}

// ID returns the node's own identifier.
func (n *Node) ID() string {
	return n.id
}
