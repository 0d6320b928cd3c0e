package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/core/event"
	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// Registry is the only shared mutable state between jobs. All access runs
// in short critical sections under one mutex; nothing held while doing I/O.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	bus  event.Bus
}

func NewRegistry(bus event.Bus) *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
		bus:  bus,
	}
}

// Create registers a new job in Created state and returns its id.
func (r *Registry) Create(ctx context.Context, input InputDescriptor) string {
	id := uuid.New().String()
	j := &Job{
		ID:        id,
		Status:    StatusCreated,
		Input:     input,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()

	r.bus.Publish(ctx, event.Event{
		Type:    event.EventJobCreated,
		Payload: event.JobEvent{JobID: id, Status: string(StatusCreated)},
	})
	return id
}

// Get returns a snapshot copy of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, errs.New(errs.KindNotFound, fmt.Sprintf("job %s not found", id))
	}
	snap := *j
	snap.StageLog = append([]StageRecord(nil), j.StageLog...)
	return snap, nil
}

// Advance moves the job forward to next. Illegal transitions are rejected,
// which keeps the state machine monotonic even under racing callers.
func (r *Registry) Advance(id string, next Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return errs.New(errs.KindNotFound, fmt.Sprintf("job %s not found", id))
	}
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", j.Status, next, id)
	}
	j.Status = next
	return nil
}

// Terminal moves the job into a terminal state exactly once and publishes
// the terminal event. The second and later calls are no-ops, so every
// failure path can call it without coordination.
func (r *Registry) Terminal(ctx context.Context, id string, final Status, failure *Failure) bool {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.Status.Terminal() {
		r.mu.Unlock()
		return false
	}
	j.Status = final
	j.Failure = failure
	j.TerminalAt = time.Now()
	if final != StatusCompleted {
		j.OutputPath = ""
	}
	r.mu.Unlock()

	evt := event.JobEvent{JobID: id, Status: string(final)}
	if failure != nil {
		evt.Error = failure.Detail
	}
	r.bus.Publish(ctx, event.Event{Type: event.EventJobTerminal, Payload: evt})

	log.Info().Str("job_id", id).Str("status", string(final)).Msg("job reached terminal state")
	return true
}

// RecordStage appends a stage_log entry.
func (r *Registry) RecordStage(id string, rec StageRecord) {
	r.mu.Lock()
	if j, ok := r.jobs[id]; ok {
		j.StageLog = append(j.StageLog, rec)
	}
	r.mu.Unlock()
}

// SetPreScan stores the pre-scan verdict. Verdicts are write-once.
func (r *Registry) SetPreScan(id string, v ScanVerdict) {
	r.mu.Lock()
	if j, ok := r.jobs[id]; ok && j.PreScan == nil {
		j.PreScan = &v
	}
	r.mu.Unlock()
}

// SetPostScan stores the post-scan verdict. Verdicts are write-once.
func (r *Registry) SetPostScan(id string, v ScanVerdict) {
	r.mu.Lock()
	if j, ok := r.jobs[id]; ok && j.PostScan == nil {
		j.PostScan = &v
	}
	r.mu.Unlock()
}

// SetInputSize records the measured upload size once intake finishes.
func (r *Registry) SetInputSize(id string, size int64) {
	r.mu.Lock()
	if j, ok := r.jobs[id]; ok {
		j.Input.Size = size
	}
	r.mu.Unlock()
}

// SetOutput records the completed output artifact path.
func (r *Registry) SetOutput(id, path string) {
	r.mu.Lock()
	if j, ok := r.jobs[id]; ok {
		j.OutputPath = path
	}
	r.mu.Unlock()
}

// ClaimOutput atomically takes the output path of a Completed job,
// clearing it so the download is single-use.
func (r *Registry) ClaimOutput(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return "", errs.New(errs.KindNotFound, fmt.Sprintf("job %s not found", id))
	}
	if j.Status != StatusCompleted {
		return "", errs.New(errs.KindNotReady, fmt.Sprintf("job %s is %s", id, j.Status))
	}
	if j.OutputPath == "" {
		return "", errs.New(errs.KindNotFound, "output already consumed or expired")
	}
	path := j.OutputPath
	j.OutputPath = ""
	return path, nil
}

// Remove drops a job from the registry. Used after its artifacts are gone
// and its retention window has elapsed.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// List returns snapshots of all registered jobs.
func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		snap := *j
		snap.StageLog = append([]StageRecord(nil), j.StageLog...)
		out = append(out, snap)
	}
	return out
}
