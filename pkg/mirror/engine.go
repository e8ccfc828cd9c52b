package mirror

import (
	"context"
	"math/rand"
	"sync"

	"github.com/distribd/distribd/pkg/events"
	"github.com/distribd/distribd/pkg/log"
	"github.com/distribd/distribd/pkg/reducer"
	"github.com/distribd/distribd/pkg/submitter"
	"github.com/distribd/distribd/pkg/transport"
)

// Config configures an Engine.
type Config struct {
	ImagesDirectory string
	Self            string // this node's location identifier (host:port)
	WorkerCount     int    // default 4
	RetryCapSeconds int    // default 30
}

func (c Config) workerCount() int {
	if c.WorkerCount <= 0 {
		return 4
	}
	return c.WorkerCount
}

func (c Config) retryCapSeconds() int {
	if c.RetryCapSeconds <= 0 {
		return 30
	}
	return c.RetryCapSeconds
}

type key struct {
	kind   reducer.Kind
	digest string
}

type downloadTask struct {
	kind       reducer.Kind
	digest     string
	retryCount int
}

type waitResult struct {
	path string
	err  error
}

// SelectPeer chooses one location to download from among candidates.
// Injected so tests can make source selection deterministic (the
// original's bare random.choice is not otherwise testable).
type SelectPeer func(candidates []string) string

// DefaultSelectPeer picks uniformly at random, the behavior described by
// the download predicate's source selection rule.
func DefaultSelectPeer(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.Intn(len(candidates))]
}

// Engine is the mirror engine for one node.
type Engine struct {
	cfg        Config
	reducer    *reducer.Reducer
	broker     *events.Broker
	submitter  *submitter.Submitter
	fetch      *transport.ContentFetchClient
	selectPeer SelectPeer

	tasks chan downloadTask

	inflightMu sync.Mutex
	inflight   map[key]bool

	waitersMu sync.Mutex
	waiters   map[key][]chan waitResult

	sub    events.Subscriber
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds an Engine. selectPeer may be nil, in which case
// DefaultSelectPeer is used.
func New(cfg Config, red *reducer.Reducer, broker *events.Broker, sub *submitter.Submitter, fetch *transport.ContentFetchClient, selectPeer SelectPeer) *Engine {
	if selectPeer == nil {
		selectPeer = DefaultSelectPeer
	}
	return &Engine{
		cfg:        cfg,
		reducer:    red,
		broker:     broker,
		submitter:  sub,
		fetch:      fetch,
		selectPeer: selectPeer,
		tasks:      make(chan downloadTask, 256),
		inflight:   make(map[key]bool),
		waiters:    make(map[key][]chan waitResult),
		stopCh:     make(chan struct{}),
	}
}

// Start subscribes to reducer deltas and launches the worker pool. The
// engine runs until Stop is called or ctx is canceled.
func (e *Engine) Start(ctx context.Context) {
	e.sub = e.broker.Subscribe()

	e.wg.Add(1)
	go e.consumeDeltas(ctx)

	for i := 0; i < e.cfg.workerCount(); i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
}

// Stop signals every engine goroutine to exit, blocks until they have,
// and then fails every outstanding waiter. It does not cancel the ctx
// given to Start: a transfer already streaming runs to its end unless that
// ctx is canceled, in which case its partially written temp file is left
// on disk for SweepUploads.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()

	e.waitersMu.Lock()
	for k, chans := range e.waiters {
		for _, ch := range chans {
			ch <- waitResult{err: context.Canceled}
		}
		delete(e.waiters, k)
	}
	e.waitersMu.Unlock()
}

func (e *Engine) consumeDeltas(ctx context.Context) {
	defer e.wg.Done()
	defer e.broker.Unsubscribe(e.sub)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case delta, ok := <-e.sub:
			if !ok {
				return
			}
			e.onDelta(delta)
		}
	}
}

func (e *Engine) onDelta(d *events.Delta) {
	var kind reducer.Kind
	switch d.Kind {
	case events.KindBlobStored, events.KindBlobMounted, events.KindBlobDeleted:
		kind = reducer.KindBlob
	case events.KindManifestStored, events.KindManifestMounted, events.KindManifestDeleted:
		kind = reducer.KindManifest
	default:
		return // hash-tagged never changes location/availability
	}
	if d.Digest == "" {
		return
	}
	e.maybeEnqueue(kind, d.Digest)
}

// shouldDownload implements the download predicate: some peer has the
// digest, self does not, and it is associated with at least one
// repository. It returns the chosen peer and a repository to address it
// by.
func (e *Engine) shouldDownload(kind reducer.Kind, digest string) (peer, repository string, ok bool) {
	locations := e.reducer.Locations(kind, digest)
	var candidates []string
	for _, loc := range locations {
		if loc == e.cfg.Self {
			return "", "", false
		}
		candidates = append(candidates, loc)
	}
	if len(candidates) == 0 {
		return "", "", false
	}

	repos := e.reducer.Repositories(kind, digest)
	if len(repos) == 0 {
		return "", "", false
	}

	return e.selectPeer(candidates), repos[0], true
}

func (e *Engine) maybeEnqueue(kind reducer.Kind, digest string) {
	k := key{kind, digest}

	e.inflightMu.Lock()
	if e.inflight[k] {
		e.inflightMu.Unlock()
		return
	}
	if _, _, ok := e.shouldDownload(kind, digest); !ok {
		e.inflightMu.Unlock()
		return
	}
	e.inflight[k] = true
	e.inflightMu.Unlock()

	select {
	case e.tasks <- downloadTask{kind: kind, digest: digest}:
	case <-e.stopCh:
		e.inflightMu.Lock()
		delete(e.inflight, k)
		e.inflightMu.Unlock()
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case task := <-e.tasks:
			e.handleTask(ctx, task)
		}
	}
}

func (e *Engine) handleTask(ctx context.Context, task downloadTask) {
	k := key{task.kind, task.digest}
	defer func() {
		e.inflightMu.Lock()
		delete(e.inflight, k)
		e.inflightMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		peer, repository, ok := e.shouldDownload(task.kind, task.digest)
		if !ok {
			return
		}

		path, err := e.transfer(ctx, task.kind, task.digest, peer, repository)
		if err == nil {
			e.resolveWaiters(k, path)
			return
		}

		task.retryCount++
		log.Logger.Debug().Err(err).Str("digest", task.digest).Int("retry", task.retryCount).Msg("mirror transfer failed, retrying")

		select {
		case <-retryTimer(e.retryDelay(task.retryCount)):
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		}
	}
}
