package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/core/event"
)

// Manager owns every filesystem artifact a job creates. Each artifact is
// registered at creation time; Purge removes all of them plus the job's
// directory, on every exit path, idempotently.
type Manager struct {
	mu        sync.Mutex
	workDir   string
	artifacts map[string][]Artifact
}

// Artifact is one registered path with the stage that created it.
type Artifact struct {
	Path  string
	Stage string
}

func NewManager(workDir string) *Manager {
	return &Manager{
		workDir:   workDir,
		artifacts: make(map[string][]Artifact),
	}
}

// JobDir creates and returns the private directory for a job. Directories
// are never reused across jobs.
func (m *Manager) JobDir(jobID string) (string, error) {
	dir := filepath.Join(m.workDir, jobID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}
	return dir, nil
}

// Path returns the job's directory without creating it.
func (m *Manager) Path(jobID string) string {
	return filepath.Join(m.workDir, jobID)
}

// Register records an artifact as owned by jobID.
func (m *Manager) Register(jobID, path, stage string) {
	m.mu.Lock()
	m.artifacts[jobID] = append(m.artifacts[jobID], Artifact{Path: path, Stage: stage})
	m.mu.Unlock()
}

// Purge deletes every artifact registered for jobID and the job directory
// itself. Idempotent: a second call, or a call for an unknown job, is a
// no-op. Returns how many entries were removed from the registry.
func (m *Manager) Purge(jobID string) int {
	m.mu.Lock()
	arts := m.artifacts[jobID]
	delete(m.artifacts, jobID)
	m.mu.Unlock()

	for _, a := range arts {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("job_id", jobID).Str("path", a.Path).Msg("artifact removal failed")
		}
	}
	if err := os.RemoveAll(filepath.Join(m.workDir, jobID)); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("job dir removal failed")
	}

	if len(arts) > 0 {
		log.Debug().Str("job_id", jobID).Int("artifacts", len(arts)).Msg("artifacts purged")
	}
	return len(arts)
}

// Count returns the number of registered artifacts for jobID.
func (m *Manager) Count(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.artifacts[jobID])
}

// SetupSubscribers wires purge-on-terminal: every job that reaches a
// terminal state gets exactly one automatic cleanup pass.
func (m *Manager) SetupSubscribers(bus event.Bus) {
	bus.Subscribe(event.EventJobTerminal, func(ctx context.Context, e event.Event) error {
		payload, ok := e.Payload.(event.JobEvent)
		if !ok {
			return nil
		}
		removed := m.Purge(payload.JobID)
		bus.Publish(ctx, event.Event{
			Type:    event.EventArtifactsPurged,
			Payload: event.PurgeEvent{JobID: payload.JobID, Removed: removed},
		})
		return nil
	})
}
