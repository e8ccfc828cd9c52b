package events

import (
	"sync"
	"time"
)

// Kind identifies the action tag that produced a Delta.
type Kind string

const (
	KindBlobStored       Kind = "blob-stored"
	KindBlobDeleted      Kind = "blob-deleted"
	KindBlobMounted      Kind = "blob-mounted"
	KindManifestStored   Kind = "manifest-stored"
	KindManifestDeleted  Kind = "manifest-deleted"
	KindManifestMounted  Kind = "manifest-mounted"
	KindHashTagged       Kind = "hash-tagged"
)

// Delta describes one committed log entry's effect on the reducer's
// indexes. The reducer is a pure mutator; Delta is the only thing it
// hands to the outside world, after the index update has already landed.
type Delta struct {
	Kind       Kind
	Digest     string
	Repository string
	Tag        string
	Locations  []string // full location set for Digest after this mutation; unset for KindHashTagged
	Available  bool     // is_blob_available/is_manifest_available after this mutation; unset for KindHashTagged
	Timestamp  time.Time
}

// Subscriber is a channel that receives deltas.
type Subscriber chan *Delta

// Broker distributes reducer deltas to registered observers, primarily the
// mirror engine. Publish never blocks on a slow or absent consumer: delivery
// to the broadcast loop is buffered, and a full subscriber channel drops the
// delta for that subscriber rather than stalling the reducer's apply loop.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	deltaCh     chan *Delta
	stopCh      chan struct{}
}

// NewBroker creates a new delta broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		deltaCh:     make(chan *Delta, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Subscribers are not notified; callers that need to
// observe shutdown should select on their own context.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel of deltas.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes a delta to all subscribers, in the order it was called.
func (b *Broker) Publish(delta *Delta) {
	if delta.Timestamp.IsZero() {
		delta.Timestamp = time.Now()
	}

	select {
	case b.deltaCh <- delta:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case delta := <-b.deltaCh:
			b.broadcast(delta)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(delta *Delta) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- delta:
		default:
			// subscriber buffer full, drop for this subscriber
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
