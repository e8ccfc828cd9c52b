package metrics

import (
	"time"

	"github.com/distribd/distribd/pkg/consensus"
	"github.com/distribd/distribd/pkg/reducer"
)

// Collector polls the consensus node and state reducer on a fixed
// interval and publishes their state into the package's gauges. Raft
// and reducer state already live behind their own locks; this just
// samples them periodically rather than updating on every mutation.
type Collector struct {
	node   *consensus.Node
	red    *reducer.Reducer
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(node *consensus.Node, red *reducer.Reducer) *Collector {
	return &Collector{
		node:   node,
		red:    red,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRaftMetrics()
	c.collectReducerMetrics()
}

func (c *Collector) collectRaftMetrics() {
	if c.node.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	RaftPeers.Set(float64(c.node.PeerCount()))
	RaftTerm.Set(float64(c.node.Term()))
	RaftLogIndex.Set(float64(c.node.LogIndex()))
	RaftCommitIndex.Set(float64(c.node.CommitIndex()))
	RaftAppliedIndex.Set(float64(c.node.LastApplied()))
}

func (c *Collector) collectReducerMetrics() {
	blobs, manifests := c.red.Counts()
	BlobsTotal.Set(float64(blobs))
	ManifestsTotal.Set(float64(manifests))
}
