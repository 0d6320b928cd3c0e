package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// ReapOrphans removes job directories older than retention. It covers
// artifacts left behind by a previous process that died before purging;
// directories belonging to tracked jobs are younger than any sane
// retention window.
func (m *Manager) ReapOrphans(retention time.Duration) int {
	entries, err := os.ReadDir(m.workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("dir", m.workDir).Msg("orphan sweep failed")
		}
		return 0
	}

	cutoff := time.Now().Add(-retention)
	reaped := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		// Completed outputs awaiting download live here; they expire on
		// their own schedule, not the orphan one.
		if e.Name() == "downloads" {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(m.workDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("orphan removal failed")
			continue
		}
		reaped++
	}

	if reaped > 0 {
		log.Info().Int("dirs", reaped).Msg("orphaned job directories reaped")
	}
	return reaped
}

// RunReaper sweeps on startup and then on every interval tick until ctx is
// cancelled.
func (m *Manager) RunReaper(ctx context.Context, retention, interval time.Duration) {
	m.ReapOrphans(retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReapOrphans(retention)
		}
	}
}
