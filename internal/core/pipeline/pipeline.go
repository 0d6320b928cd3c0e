// Package pipeline defines the fixed five-stage sanitization sequence run
// inside one sandbox per attempt. Stages communicate only through the
// artifact chain; any stage failure aborts the remaining stages.
package pipeline

import (
	"context"
	"path"
	"time"

	"github.com/CyberBigfoot/CleanSheet/internal/core/sandbox"
)

const (
	StageNormalize   = "normalize"
	StageDisarm      = "disarm"
	StageRasterize   = "rasterize"
	StageReconstruct = "reconstruct"
	StageValidate    = "validate"
)

// StageNames lists the stages in execution order.
var StageNames = []string{
	StageNormalize, StageDisarm, StageRasterize, StageReconstruct, StageValidate,
}

// OutputName is the reconstructed document's filename inside the job's
// output directory.
const OutputName = "sanitized.pdf"

// Observer is called after every stage attempt, success or failure.
// Observability only; it cannot alter control flow.
type Observer func(stage string, res sandbox.Result, err error)

// Pipeline executes the stage sequence through a sandbox provider.
type Pipeline struct {
	provider     sandbox.Provider
	stageTimeout time.Duration
	dpi          int
}

func New(provider sandbox.Provider, stageTimeout time.Duration, dpi int) *Pipeline {
	return &Pipeline{provider: provider, stageTimeout: stageTimeout, dpi: dpi}
}

// specs builds the command chain for one attempt. All paths are as seen
// from inside the sandbox; path.Join is deliberate, sandbox paths are
// always slash-separated.
func (p *Pipeline) specs(h sandbox.Handle, inputName string) []sandbox.CommandSpec {
	scratch := h.ScratchDir()
	normalized := path.Join(scratch, "normalized.pdf")
	disarmed := path.Join(scratch, "disarmed.pdf")
	pages := path.Join(scratch, "pages")
	output := path.Join(h.OutputDir(), OutputName)

	return []sandbox.CommandSpec{
		{Stage: StageNormalize, Input: path.Join(h.InputDir(), inputName), Output: normalized},
		{Stage: StageDisarm, Input: normalized, Output: disarmed},
		{Stage: StageRasterize, Input: disarmed, Output: pages, DPI: p.dpi},
		{Stage: StageReconstruct, Input: pages, Output: output},
		{Stage: StageValidate, Input: output, Pages: pages},
	}
}

// Run executes all five stages inside the given sandbox. The first stage
// failure aborts the attempt and is returned as-is, carrying its failure
// kind for the retry policy.
func (p *Pipeline) Run(ctx context.Context, h sandbox.Handle, inputName string, observe Observer) error {
	for _, spec := range p.specs(h, inputName) {
		spec.Timeout = p.stageTimeout
		res, err := p.provider.Execute(ctx, h, spec)
		if observe != nil {
			observe(spec.Stage, res, err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
