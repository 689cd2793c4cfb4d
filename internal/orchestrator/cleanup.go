package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupArtifacts removes files below dir older than maxAge, then any
// directories left empty. It returns the number of removed files.
func CleanupArtifacts(dir string, maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	var dirs []string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if info.IsDir() {
			if path != dir {
				dirs = append(dirs, path)
			}
			return nil
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	// deepest first
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
	return removed
}

// StartJanitor runs CleanupArtifacts every interval until ctx is done.
func StartJanitor(ctx context.Context, dir string, maxAge, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := CleanupArtifacts(dir, maxAge); n > 0 {
					log.Info().Int("removed", n).Str("dir", dir).Msg("expired artifacts removed")
				}
			}
		}
	}()
}
