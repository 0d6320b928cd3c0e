package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// StageFunc runs one stage in-process. The worker package supplies the
// real implementations; tests can inject their own.
type StageFunc func(ctx context.Context, spec CommandSpec) error

// LocalProvider runs stages in-process instead of in a container. It
// honors the same contract — private scratch per handle, per-stage
// timeouts, one release per acquire — without real isolation, so it is
// only suitable for development and tests.
type LocalProvider struct {
	stages map[string]StageFunc
}

func NewLocalProvider(stages map[string]StageFunc) *LocalProvider {
	return &LocalProvider{stages: stages}
}

type localHandle struct {
	id      string
	input   string
	output  string
	scratch string
}

func (h *localHandle) ID() string         { return h.id }
func (h *localHandle) InputDir() string   { return h.input }
func (h *localHandle) OutputDir() string  { return h.output }
func (h *localHandle) ScratchDir() string { return h.scratch }

func (p *LocalProvider) Acquire(_ context.Context, c Constraints) (Handle, error) {
	id := uuid.New().String()
	scratch := filepath.Join(os.TempDir(), "cleansheet-scratch-"+id)
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return nil, errs.Wrap(errs.KindIsolationFailure, "create scratch dir", err)
	}
	return &localHandle{id: id, input: c.InputDir, output: c.OutputDir, scratch: scratch}, nil
}

func (p *LocalProvider) Execute(ctx context.Context, h Handle, spec CommandSpec) (Result, error) {
	fn, ok := p.stages[spec.Stage]
	if !ok {
		return Result{}, errs.New(errs.KindConversionFailure,
			fmt.Sprintf("unknown stage %q", spec.Stage))
	}

	execCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- fn(execCtx, spec) }()

	select {
	case <-execCtx.Done():
		return Result{ExitCode: -1, Duration: time.Since(start)},
			errs.New(errs.KindPipelineTimeout,
				fmt.Sprintf("stage %s exceeded %s", spec.Stage, spec.Timeout))
	case err := <-done:
		res := Result{Duration: time.Since(start)}
		if err != nil {
			res.ExitCode = ExitFailure
			if errs.Is(err, errs.KindReconstructionInvalid) {
				res.ExitCode = ExitInvalid
			}
			res.Output = err.Error()
			return res, err
		}
		return res, nil
	}
}

func (p *LocalProvider) Release(h Handle) error {
	lh, ok := h.(*localHandle)
	if !ok {
		return errs.New(errs.KindIsolationFailure, "foreign sandbox handle")
	}
	if err := os.RemoveAll(lh.scratch); err != nil {
		return errs.Wrap(errs.KindIsolationFailure, "remove scratch dir", err)
	}
	return nil
}
