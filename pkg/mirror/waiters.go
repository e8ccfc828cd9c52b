package mirror

import (
	"context"
	"os"

	"github.com/distribd/distribd/pkg/distribdtypes"
	"github.com/distribd/distribd/pkg/reducer"
)

// WaitFor blocks until digest is locally available, returning its path,
// or until ctx is done or the engine stops. If the content is already on
// disk it returns immediately without registering a waiter.
func (e *Engine) WaitFor(ctx context.Context, kind reducer.Kind, digest string) (string, error) {
	path := e.contentPath(kind, digest)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	k := key{kind, digest}
	ch := make(chan waitResult, 1)

	e.waitersMu.Lock()
	e.waiters[k] = append(e.waiters[k], ch)
	e.waitersMu.Unlock()

	select {
	case res := <-ch:
		return res.path, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-e.stopCh:
		return "", distribdtypes.ErrPeerUnreachable
	}
}

func (e *Engine) resolveWaiters(k key, path string) {
	e.waitersMu.Lock()
	chans := e.waiters[k]
	delete(e.waiters, k)
	e.waitersMu.Unlock()

	for _, ch := range chans {
		ch <- waitResult{path: path}
	}
}
