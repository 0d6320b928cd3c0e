package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/core/event"
	"github.com/CyberBigfoot/CleanSheet/internal/core/job"
	"github.com/CyberBigfoot/CleanSheet/internal/core/pipeline"
	"github.com/CyberBigfoot/CleanSheet/internal/core/sandbox"
	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// stageStatus maps a finished pipeline stage to the status of the stage
// that follows it. The status for a stage is set just before the stage
// runs, so observers only need the hand-off edge.
var stageStatus = map[string]job.Status{
	pipeline.StageNormalize:   job.StatusDisarming,
	pipeline.StageDisarm:      job.StatusRasterizing,
	pipeline.StageRasterize:   job.StatusReconstructing,
	pipeline.StageReconstruct: job.StatusValidating,
}

// run owns the whole lifecycle of one accepted job. It is the only
// goroutine that ever drives the job to a terminal state, which is what
// keeps the terminal transition and the purge that follows it unique.
// Submit installed the job's cancel func before spawning this goroutine.
func (o *Orchestrator) run(ctx context.Context, id, ext string) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		if cancel := o.cancels[id]; cancel != nil {
			delete(o.cancels, id)
			cancel()
		}
		o.mu.Unlock()
	}()

	select {
	case o.slots <- struct{}{}:
		defer func() { <-o.slots }()
	case <-ctx.Done():
		o.fail(ctx, id, errs.New(errs.KindCancelled, "cancelled while queued"))
		return
	}

	jobDir := o.lifecycle.Path(id)
	inputName := "input." + ext
	inputPath := filepath.Join(jobDir, "input", inputName)

	// Advisory pre-scan: the verdict is recorded and surfaced, never gates.
	verdict := o.scanner.Scan(ctx, inputPath)
	o.registry.SetPreScan(id, verdict)
	if err := o.registry.Advance(id, job.StatusPreScanned); err != nil {
		o.fail(ctx, id, err)
		return
	}
	if verdict.Status == job.ScanFlagged {
		log.Warn().Str("job_id", id).Str("detail", verdict.Detail).Msg("pre-scan flagged input, continuing")
	}

	if err := o.attempts(ctx, id, jobDir, inputName); err != nil {
		o.fail(ctx, id, err)
		return
	}

	outputPath := filepath.Join(jobDir, "output", pipeline.OutputName)
	o.lifecycle.Register(id, outputPath, pipeline.StageReconstruct)

	post := o.scanner.Scan(ctx, outputPath)
	o.registry.SetPostScan(id, post)
	if err := o.registry.Advance(id, job.StatusPostScanned); err != nil {
		o.fail(ctx, id, err)
		return
	}
	if post.Status == job.ScanFlagged {
		log.Warn().Str("job_id", id).Str("detail", post.Detail).Msg("post-scan flagged output, rejecting")
		o.registry.Terminal(ctx, id, job.StatusRejected, nil)
		return
	}

	download := filepath.Join(o.downloadDir, id+".pdf")
	if err := os.Rename(outputPath, download); err != nil {
		o.fail(ctx, id, errs.Wrap(errs.KindConversionFailure, "stage output", err))
		return
	}
	o.registry.SetOutput(id, download)
	o.registry.Terminal(ctx, id, job.StatusCompleted, nil)
	o.scheduleExpiry(id, download)
	log.Info().Str("job_id", id).Msg("job completed")
}

// attempts drives the sandboxed pipeline with bounded retries. Every
// attempt gets a fresh sandbox; a sandbox is never reused across attempts
// even when the failure was the pipeline's, not the sandbox's.
func (o *Orchestrator) attempts(ctx context.Context, id, jobDir, inputName string) error {
	var lastErr error
	for attempt := 0; attempt <= o.retries; attempt++ {
		if ctx.Err() != nil {
			return errs.New(errs.KindCancelled, "cancelled")
		}
		if attempt > 0 {
			log.Warn().Str("job_id", id).Int("attempt", attempt).
				Str("kind", errs.KindOf(lastErr).String()).Msg("retrying with fresh sandbox")
		}

		err := o.attempt(ctx, id, jobDir, inputName, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.KindOf(err).Retryable() {
			return err
		}
	}
	return lastErr
}

func (o *Orchestrator) attempt(ctx context.Context, id, jobDir, inputName string, attempt int) error {
	handle, err := o.provider.Acquire(ctx, sandbox.Constraints{
		Image:       o.sandboxCfg.Image,
		Memory:      o.sandboxCfg.Memory,
		CPUs:        o.sandboxCfg.CPUs,
		ScratchSize: o.sandboxCfg.ScratchSize,
		InputDir:    filepath.Join(jobDir, "input"),
		OutputDir:   filepath.Join(jobDir, "output"),
	})
	if err != nil {
		o.registry.RecordStage(id, job.StageRecord{
			Stage:   "sandbox",
			Outcome: fmt.Sprintf("failed: %s", errs.KindOf(err)),
			Attempt: attempt,
		})
		return err
	}
	defer func() {
		if rerr := o.provider.Release(handle); rerr != nil {
			log.Warn().Err(rerr).Str("job_id", id).Msg("sandbox release failed")
		}
	}()

	// Advance errors after a retry are expected: status never rewinds.
	_ = o.registry.Advance(id, job.StatusSandboxed)
	_ = o.registry.Advance(id, job.StatusNormalizing)

	observe := func(stage string, res sandbox.Result, stageErr error) {
		rec := job.StageRecord{
			Stage:    stage,
			Outcome:  "ok",
			Attempt:  attempt,
			Duration: res.Duration,
		}
		evt := event.JobEvent{JobID: id, Stage: stage, Attempt: attempt, Duration: res.Duration}
		if stageErr != nil {
			rec.Outcome = fmt.Sprintf("failed: %s", errs.KindOf(stageErr))
			evt.Error = stageErr.Error()
		}
		o.registry.RecordStage(id, rec)
		o.bus.Publish(ctx, event.Event{Type: event.EventJobStage, Payload: evt})
		if stageErr == nil {
			if next, ok := stageStatus[stage]; ok {
				_ = o.registry.Advance(id, next)
			}
		}
	}

	return o.pipeline.Run(ctx, handle, inputName, observe)
}

// fail drives the job to Failed, translating a runtime cancellation into
// the cancelled kind so callers can tell the two apart.
func (o *Orchestrator) fail(ctx context.Context, id string, err error) {
	kind := errs.KindOf(err)
	if ctx.Err() != nil && kind != errs.KindCancelled {
		kind = errs.KindCancelled
		err = errs.Wrap(errs.KindCancelled, "cancelled", err)
	}
	log.Error().Err(err).Str("job_id", id).Str("kind", kind.String()).Msg("job failed")
	o.registry.Terminal(context.WithoutCancel(ctx), id, job.StatusFailed, &job.Failure{
		Kind:   kind,
		Detail: err.Error(),
	})
}

// scheduleExpiry removes an unclaimed download after the expiry window.
// Claiming through the registry makes expiry and a concurrent fetch
// mutually exclusive.
func (o *Orchestrator) scheduleExpiry(id, path string) {
	time.AfterFunc(o.downloadExpiry, func() {
		if _, err := o.registry.ClaimOutput(id); err != nil {
			return
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("job_id", id).Msg("expired download removal failed")
		} else {
			log.Info().Str("job_id", id).Msg("unclaimed download expired")
		}
	})
}
