package worker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// Validate asserts that the reconstructed document is releasable: it is a
// well-formed non-empty PDF, its page count matches the rasterized page
// set, and it carries zero active-content constructs. Every assertion
// failure is structural and deterministic, so it is never retried.
func Validate(ctx context.Context, output, pagesDir string) error {
	_ = ctx

	info, err := os.Stat(output)
	if err != nil {
		return errs.Wrap(errs.KindReconstructionInvalid, "output missing", err)
	}
	if info.Size() == 0 {
		return errs.New(errs.KindReconstructionInvalid, "output is empty")
	}

	if err := api.ValidateFile(output, nil); err != nil {
		return errs.Wrap(errs.KindReconstructionInvalid, "output is not a well-formed pdf", err)
	}

	pages, err := PageImages(pagesDir)
	if err != nil {
		return err
	}
	pageCount, err := api.PageCountFile(output)
	if err != nil {
		return errs.Wrap(errs.KindReconstructionInvalid, "count output pages", err)
	}
	if pageCount != len(pages) {
		return errs.New(errs.KindReconstructionInvalid,
			fmt.Sprintf("page count mismatch: output has %d, rasterized %d", pageCount, len(pages)))
	}

	pdf, err := api.ReadContextFile(output)
	if err != nil {
		return errs.Wrap(errs.KindReconstructionInvalid, "reopen output", err)
	}
	threats, err := findActiveContent(pdf)
	if err != nil {
		return errs.Wrap(errs.KindReconstructionInvalid, "scan output", err)
	}
	if len(threats) > 0 {
		return errs.New(errs.KindReconstructionInvalid,
			fmt.Sprintf("active content in output: %s", strings.Join(threats, ", ")))
	}

	log.Debug().Int("pages", pageCount).Int64("bytes", info.Size()).Msg("output validated")
	return nil
}
