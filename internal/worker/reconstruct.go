package worker

import (
	"context"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// Reconstruct builds a brand-new PDF purely from the rasterized page
// images. Nothing from the source document — no metadata, no structure —
// feeds into this file; its only inputs are pixels.
func Reconstruct(ctx context.Context, pagesDir, output string) error {
	_ = ctx

	pages, err := PageImages(pagesDir)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return errs.New(errs.KindConversionFailure, "no page images to reconstruct from")
	}

	if err := api.ImportImagesFile(pages, output, nil, nil); err != nil {
		return errs.Wrap(errs.KindConversionFailure, "rebuild pdf from pages", err)
	}

	log.Debug().Int("pages", len(pages)).Msg("document reconstructed from pixels")
	return nil
}
