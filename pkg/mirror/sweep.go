package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/distribd/distribd/pkg/log"
)

// SweepUploads removes files under {imagesDirectory}/uploads older than
// grace. It is meant to run once at process start: a node killed
// mid-transfer (local upload or mirror pull) leaves its temp file
// behind by design, and this is what reclaims it on the next startup.
func SweepUploads(imagesDirectory string, grace time.Duration) error {
	dir := filepath.Join(imagesDirectory, "uploads")

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read uploads directory: %w", err)
	}

	cutoff := time.Now().Add(-grace)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Logger.Warn().Err(err).Str("path", path).Msg("failed to sweep orphaned upload")
		}
	}
	return nil
}
