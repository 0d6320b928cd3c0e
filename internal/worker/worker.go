// Package worker implements the five sanitization stages. The same code
// runs two ways: as the `cleansheet worker` subcommand inside a sandbox
// container, and in-process behind the local sandbox provider.
package worker

import (
	"context"
	"fmt"

	"github.com/CyberBigfoot/CleanSheet/internal/core/pipeline"
	"github.com/CyberBigfoot/CleanSheet/internal/core/sandbox"
	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// RunStage dispatches one stage by name. Used by the worker subcommand.
func RunStage(ctx context.Context, stage, input, output, pages string, dpi int) error {
	switch stage {
	case pipeline.StageNormalize:
		return Normalize(ctx, input, output)
	case pipeline.StageDisarm:
		return Disarm(ctx, input, output)
	case pipeline.StageRasterize:
		return Rasterize(ctx, input, output, dpi)
	case pipeline.StageReconstruct:
		return Reconstruct(ctx, input, output)
	case pipeline.StageValidate:
		return Validate(ctx, input, pages)
	default:
		return errs.New(errs.KindConversionFailure, fmt.Sprintf("unknown stage %q", stage))
	}
}

// Funcs adapts the stages for the local sandbox provider.
func Funcs() map[string]sandbox.StageFunc {
	run := func(ctx context.Context, spec sandbox.CommandSpec) error {
		return RunStage(ctx, spec.Stage, spec.Input, spec.Output, spec.Pages, spec.DPI)
	}
	funcs := make(map[string]sandbox.StageFunc, len(pipeline.StageNames))
	for _, name := range pipeline.StageNames {
		funcs[name] = run
	}
	return funcs
}
