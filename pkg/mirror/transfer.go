package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/distribd/distribd/pkg/distribdtypes"
	"github.com/distribd/distribd/pkg/reducer"
)

const transferChunkSize = 1 << 20 // 1 MiB

// transfer implements the transfer protocol: skip if already present,
// stream into a temp file while hashing, verify, atomic rename, then
// submit the completion event.
func (e *Engine) transfer(ctx context.Context, kind reducer.Kind, digest, peer, repository string) (string, error) {
	destPath := e.contentPath(kind, digest)
	if _, err := os.Stat(destPath); err == nil {
		return destPath, nil
	}

	kindSeg := "blobs"
	if kind == reducer.KindManifest {
		kindSeg = "manifests"
	}

	body, err := e.fetch.Fetch(ctx, peer, repository, kindSeg, digest)
	if err != nil {
		return "", fmt.Errorf("fetch %s %s/%s from %s: %w", kindSeg, repository, digest, peer, err)
	}
	defer body.Close()

	uploadsDir := filepath.Join(e.cfg.ImagesDirectory, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads directory: %w", err)
	}

	tmp, err := os.CreateTemp(uploadsDir, "mirror-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	hasher := sha256.New()
	if _, err := io.CopyBuffer(io.MultiWriter(tmp, hasher), body, make([]byte, transferChunkSize)); err != nil {
		tmp.Close()
		if ctx.Err() == nil {
			os.Remove(tmpPath)
		}
		return "", fmt.Errorf("stream transfer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != digest {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: got %s want %s", distribdtypes.ErrDigestMismatch, got, digest)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("create content directory: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename into place: %w", err)
	}

	actionType := distribdtypes.ActionBlobStored
	if kind == reducer.KindManifest {
		actionType = distribdtypes.ActionManifestStored
	}
	if err := e.submitter.Submit(ctx, []distribdtypes.ActionRecord{
		{Type: actionType, Digest: digest, Location: e.cfg.Self},
	}); err != nil {
		return "", fmt.Errorf("submit stored event for %s: %w", digest, err)
	}

	return destPath, nil
}

// contentPath is the sharded on-disk location for a digest: the first
// two hex characters form a fan-out directory.
func (e *Engine) contentPath(kind reducer.Kind, digest string) string {
	sub := "blobs"
	if kind == reducer.KindManifest {
		sub = "manifests"
	}
	if len(digest) < 2 {
		return filepath.Join(e.cfg.ImagesDirectory, sub, digest)
	}
	return filepath.Join(e.cfg.ImagesDirectory, sub, digest[:2], digest)
}

// retryDelay implements the capped, jittered linear backoff: the intent
// of the original's unbounded retryCount-seconds delay, capped so a
// long-stuck transfer does not wait longer than retryCapSeconds between
// attempts, with jitter to avoid synchronized retry storms across
// digests.
func (e *Engine) retryDelay(retryCount int) time.Duration {
	seconds := retryCount
	if cap := e.cfg.retryCapSeconds(); seconds > cap {
		seconds = cap
	}
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return time.Duration(seconds)*time.Second + jitter
}

func retryTimer(d time.Duration) <-chan time.Time {
	return time.After(d)
}
