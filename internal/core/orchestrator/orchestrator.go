// Package orchestrator drives a job from intake to terminal state: intake
// validation, advisory pre-scan, sandboxed pipeline attempts with bounded
// retries, gating post-scan, and the cleanup contract around all of it.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/config"
	"github.com/CyberBigfoot/CleanSheet/internal/core/event"
	"github.com/CyberBigfoot/CleanSheet/internal/core/job"
	"github.com/CyberBigfoot/CleanSheet/internal/core/lifecycle"
	"github.com/CyberBigfoot/CleanSheet/internal/core/pipeline"
	"github.com/CyberBigfoot/CleanSheet/internal/core/sandbox"
	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// Scanner is the verdict contract of the external scanning service.
type Scanner interface {
	Scan(ctx context.Context, path string) job.ScanVerdict
}

// Orchestrator coordinates every job. Concurrency is bounded by sandbox
// slots; submissions beyond capacity queue on the slot semaphore.
type Orchestrator struct {
	registry  *job.Registry
	lifecycle *lifecycle.Manager
	provider  sandbox.Provider
	pipeline  *pipeline.Pipeline
	scanner   Scanner
	bus       event.Bus

	intake          config.IntakeConfig
	sandboxCfg      config.SandboxConfig
	retries         int
	downloadExpiry  time.Duration
	recordRetention time.Duration
	downloadDir     string

	slots chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

type Deps struct {
	Registry  *job.Registry
	Lifecycle *lifecycle.Manager
	Provider  sandbox.Provider
	Pipeline  *pipeline.Pipeline
	Scanner   Scanner
	Bus       event.Bus
}

func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	downloadDir := filepath.Join(cfg.Storage.WorkDir, "downloads")
	if err := os.MkdirAll(downloadDir, 0o700); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry:        deps.Registry,
		lifecycle:       deps.Lifecycle,
		provider:        deps.Provider,
		pipeline:        deps.Pipeline,
		scanner:         deps.Scanner,
		bus:             deps.Bus,
		intake:          cfg.Intake,
		sandboxCfg:      cfg.Sandbox,
		retries:         cfg.Pipeline.Retries,
		downloadExpiry:  cfg.Pipeline.DownloadExpiry,
		recordRetention: cfg.Storage.OrphanRetention,
		downloadDir:     downloadDir,
		slots:           make(chan struct{}, cfg.Sandbox.Slots),
		cancels:         make(map[string]context.CancelFunc),
		rootCtx:         rootCtx,
		rootCancel:      rootCancel,
	}

	// Terminal job records stay queryable through the retention window,
	// then the registry forgets them entirely.
	deps.Bus.Subscribe(event.EventJobTerminal, func(ctx context.Context, e event.Event) error {
		payload, ok := e.Payload.(event.JobEvent)
		if !ok {
			return nil
		}
		time.AfterFunc(o.recordRetention, func() {
			o.registry.Remove(payload.JobID)
		})
		return nil
	})

	return o, nil
}

// Submit validates the intake and registers a new job. Extension failures
// reject before a single byte is accepted; size failures surface as an
// immediate Failed(ValidationError) terminal. Neither path ever creates a
// sandbox or touches the scanner.
func (o *Orchestrator) Submit(ctx context.Context, input io.Reader, declaredName string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(declaredName), "."))
	if !o.intake.AllowsExtension(ext) {
		return "", errs.New(errs.KindValidation,
			fmt.Sprintf("file type %q not allowed", ext))
	}

	id := o.registry.Create(ctx, job.InputDescriptor{
		Filename: filepath.Base(declaredName),
		Ext:      ext,
	})

	size, err := o.saveInput(id, ext, input)
	if err != nil {
		o.registry.Terminal(ctx, id, job.StatusFailed, &job.Failure{
			Kind:   errs.KindOf(err),
			Detail: err.Error(),
		})
		return "", err
	}

	o.registry.SetInputSize(id, size)
	if err := o.registry.Advance(id, job.StatusValidated); err != nil {
		return "", err
	}
	log.Info().Str("job_id", id).Str("file", declaredName).Int64("size", size).Msg("job accepted")

	// The cancel func is installed before the run goroutine spawns, so a
	// Cancel issued the instant Submit returns already has a target.
	runCtx, cancel := context.WithCancel(o.rootCtx)
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(runCtx, id, ext)
	return id, nil
}

// saveInput streams the upload into the job's private input directory,
// enforcing the size ceiling while copying. Host I/O failures are
// classified internal, not validation: nothing was wrong with the upload.
func (o *Orchestrator) saveInput(id, ext string, input io.Reader) (int64, error) {
	jobDir, err := o.lifecycle.JobDir(id)
	if err != nil {
		return 0, errs.Wrap(errs.KindInternal, "prepare job dir", err)
	}
	for _, sub := range []string{"input", "output"} {
		if err := os.MkdirAll(filepath.Join(jobDir, sub), 0o700); err != nil {
			return 0, errs.Wrap(errs.KindInternal, "prepare job dir", err)
		}
	}

	path := filepath.Join(jobDir, "input", "input."+ext)
	f, err := os.Create(path)
	if err != nil {
		return 0, errs.Wrap(errs.KindInternal, "store upload", err)
	}
	o.lifecycle.Register(id, path, "intake")

	written, err := io.Copy(f, io.LimitReader(input, o.intake.MaxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return written, errs.Wrap(errs.KindInternal, "store upload", err)
	}
	if written > o.intake.MaxFileSize {
		return written, errs.New(errs.KindValidation,
			fmt.Sprintf("file exceeds %d byte limit", o.intake.MaxFileSize))
	}
	return written, nil
}

// Status returns a non-blocking snapshot of the job.
func (o *Orchestrator) Status(id string) (job.Job, error) {
	return o.registry.Get(id)
}

// List returns snapshots of every known job.
func (o *Orchestrator) List() []job.Job {
	return o.registry.List()
}

// Cancel aborts a running or queued job, best-effort. The run loop
// observes the cancellation, tears down any active sandbox, and drives the
// job to Failed(Cancelled) with a full purge.
func (o *Orchestrator) Cancel(id string) error {
	snap, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	if snap.Status.Terminal() {
		return errs.New(errs.KindNotReady, fmt.Sprintf("job %s already %s", id, snap.Status))
	}

	o.mu.Lock()
	cancel := o.cancels[id]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// FetchOutput claims the single-use download. Closing the returned reader
// deletes the output artifact; the claim itself already makes a second
// fetch impossible.
func (o *Orchestrator) FetchOutput(id string) (io.ReadCloser, job.Job, error) {
	snap, err := o.registry.Get(id)
	if err != nil {
		return nil, job.Job{}, err
	}

	path, err := o.registry.ClaimOutput(id)
	if err != nil {
		return nil, job.Job{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, job.Job{}, errs.Wrap(errs.KindNotFound, "output vanished", err)
	}
	log.Info().Str("job_id", id).Msg("output claimed for download")
	return &consumingReader{f: f, path: path}, snap, nil
}

// consumingReader deletes the underlying file once the caller is done
// with it.
type consumingReader struct {
	f    *os.File
	path string
}

func (r *consumingReader) Read(p []byte) (int, error) { return r.f.Read(p) }

func (r *consumingReader) Close() error {
	err := r.f.Close()
	if rmErr := os.Remove(r.path); rmErr != nil && !os.IsNotExist(rmErr) {
		log.Warn().Err(rmErr).Str("path", r.path).Msg("download removal failed")
	}
	return err
}

// Shutdown cancels all in-flight jobs and waits for their cleanup passes.
func (o *Orchestrator) Shutdown() {
	o.rootCancel()
	o.wg.Wait()
}
