package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// Rasterize renders every page of the disarmed PDF into a fixed-resolution
// PNG under the pages directory. This is the irreversible step: vector
// data, text, and any structure a payload could hide in do not survive it.
func Rasterize(ctx context.Context, input, pagesDir string, dpi int) error {
	if err := os.MkdirAll(pagesDir, 0o700); err != nil {
		return errs.Wrap(errs.KindConversionFailure, "create pages dir", err)
	}

	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-r", fmt.Sprintf("%d", dpi), "-png", input, filepath.Join(pagesDir, "page"))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errs.Wrap(errs.KindConversionFailure,
			fmt.Sprintf("pdftoppm: %s", strings.TrimSpace(string(out))), err)
	}

	pages, err := PageImages(pagesDir)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return errs.New(errs.KindConversionFailure, "rasterization yielded no pages")
	}

	log.Debug().Int("pages", len(pages)).Int("dpi", dpi).Msg("document rasterized")
	return nil
}

// PageImages lists the rasterized page PNGs in page order. pdftoppm pads
// page numbers to uniform width, so lexicographic order is page order.
func PageImages(pagesDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(pagesDir, "page-*.png"))
	if err != nil {
		return nil, errs.Wrap(errs.KindConversionFailure, "list page images", err)
	}
	sort.Strings(matches)
	return matches, nil
}
