package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/distribd/distribd/pkg/consensus"
	"github.com/distribd/distribd/pkg/distribdtypes"
	"github.com/distribd/distribd/pkg/events"
	"github.com/distribd/distribd/pkg/logstore"
	"github.com/distribd/distribd/pkg/reducer"
	"github.com/distribd/distribd/pkg/submitter"
	"github.com/distribd/distribd/pkg/transport"
)

const (
	sampleDigest = "bd2079738bf102a1b4e223346f69650f1dcbe685994da65bf92d5207eb44e1cc"
	sampleBody   = "9080"
)

func newSoloSubmitter(t *testing.T, id string) *submitter.Submitter {
	t.Helper()
	dir := t.TempDir()
	ls, err := logstore.Open(filepath.Join(dir, "node.log"))
	if err != nil {
		t.Fatalf("logstore.Open() error = %v", err)
	}
	t.Cleanup(func() { ls.Close() })

	node := consensus.New(consensus.Config{
		ID:                  id,
		ElectionTimeoutLow:  100 * time.Millisecond,
		ElectionTimeoutHigh: 200 * time.Millisecond,
	}, ls, reducer.New(nil))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	node.Start(ctx)
	t.Cleanup(node.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for !node.IsLeader() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return submitter.New(node, nil)
}

func applyEntries(t *testing.T, red *reducer.Reducer, actions []distribdtypes.ActionRecord) {
	t.Helper()
	for _, a := range actions {
		idx := red.LastApplied() + 1
		if _, err := red.Apply(idx, distribdtypes.Entry{Term: 1, Action: a}); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
}

func newTestEngine(t *testing.T, dir string, red *reducer.Reducer, broker *events.Broker) *Engine {
	t.Helper()
	sub := newSoloSubmitter(t, "self-node")
	engine := New(Config{ImagesDirectory: dir, Self: "self-node", WorkerCount: 2}, red, broker, sub, transport.NewContentFetchClient(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	engine.Start(ctx)
	t.Cleanup(engine.Stop)
	return engine
}

func TestEngineDownloadsAndVerifiesContent(t *testing.T) {
	peerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, sampleDigest) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(sampleBody))
	}))
	defer peerSrv.Close()
	peerAddr := strings.TrimPrefix(peerSrv.URL, "http://")

	dir := t.TempDir()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	red := reducer.New(broker)
	engine := newTestEngine(t, dir, red, broker)

	applyEntries(t, red, []distribdtypes.ActionRecord{
		{Type: distribdtypes.ActionBlobStored, Digest: sampleDigest, Location: peerAddr},
		{Type: distribdtypes.ActionBlobMounted, Digest: sampleDigest, Repository: "alpine"},
	})

	path, err := engine.WaitFor(context.Background(), reducer.KindBlob, sampleDigest)
	if err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != sampleBody {
		t.Errorf("downloaded content = %q, want %q", data, sampleBody)
	}
}

func TestEngineDigestMismatchIsRetried(t *testing.T) {
	var requests int32
	peerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte("wrong-bytes"))
	}))
	defer peerSrv.Close()
	peerAddr := strings.TrimPrefix(peerSrv.URL, "http://")

	dir := t.TempDir()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	red := reducer.New(broker)
	_ = newTestEngine(t, dir, red, broker)

	applyEntries(t, red, []distribdtypes.ActionRecord{
		{Type: distribdtypes.ActionBlobStored, Digest: sampleDigest, Location: peerAddr},
		{Type: distribdtypes.ActionBlobMounted, Digest: sampleDigest, Repository: "alpine"},
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&requests) < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&requests) < 2 {
		t.Fatalf("peer received %d requests, want >= 2 (retry after digest mismatch)", requests)
	}
}

func TestShouldDownloadPredicate(t *testing.T) {
	broker := events.NewBroker()
	red := reducer.New(broker)
	e := New(Config{Self: "self-node"}, red, broker, nil, nil, nil)

	applyEntries(t, red, []distribdtypes.ActionRecord{
		{Type: distribdtypes.ActionBlobStored, Digest: "aaaa", Location: "peer-1"},
	})
	if _, _, ok := e.shouldDownload(reducer.KindBlob, "aaaa"); ok {
		t.Error("shouldDownload() = true before any repository association, want false")
	}

	applyEntries(t, red, []distribdtypes.ActionRecord{
		{Type: distribdtypes.ActionBlobMounted, Digest: "aaaa", Repository: "alpine"},
	})
	peer, repo, ok := e.shouldDownload(reducer.KindBlob, "aaaa")
	if !ok || peer != "peer-1" || repo != "alpine" {
		t.Errorf("shouldDownload() = (%q, %q, %v), want (peer-1, alpine, true)", peer, repo, ok)
	}

	applyEntries(t, red, []distribdtypes.ActionRecord{
		{Type: distribdtypes.ActionBlobStored, Digest: "aaaa", Location: "self-node"},
	})
	if _, _, ok := e.shouldDownload(reducer.KindBlob, "aaaa"); ok {
		t.Error("shouldDownload() = true once self holds the digest, want false")
	}
}

func TestMaybeEnqueueCoalescesDuplicates(t *testing.T) {
	broker := events.NewBroker()
	red := reducer.New(broker)
	e := New(Config{Self: "self-node"}, red, broker, nil, nil, nil)

	applyEntries(t, red, []distribdtypes.ActionRecord{
		{Type: distribdtypes.ActionBlobStored, Digest: "aaaa", Location: "peer-1"},
		{Type: distribdtypes.ActionBlobMounted, Digest: "aaaa", Repository: "alpine"},
	})

	e.maybeEnqueue(reducer.KindBlob, "aaaa")
	e.maybeEnqueue(reducer.KindBlob, "aaaa")

	if len(e.tasks) != 1 {
		t.Errorf("tasks queued = %d, want 1 (duplicate spawn must coalesce)", len(e.tasks))
	}
}

func TestSweepUploadsRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	if err := os.MkdirAll(uploads, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	old := filepath.Join(uploads, "stale")
	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	oldTime := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, oldTime, oldTime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	fresh := filepath.Join(uploads, "fresh")
	if err := os.WriteFile(fresh, []byte("y"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := SweepUploads(dir, 10*time.Minute); err != nil {
		t.Fatalf("SweepUploads() error = %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale upload was not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh upload was incorrectly removed")
	}
}
