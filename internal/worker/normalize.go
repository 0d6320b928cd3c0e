package worker

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	_ "image/jpeg"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

var officeExts = map[string]bool{
	"doc": true, "docx": true, "xls": true, "xlsx": true,
	"ppt": true, "pptx": true, "rtf": true, "odt": true,
}

var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true,
}

// Normalize converts the input into a page-oriented PDF. Office formats go
// through LibreOffice, which drops macro containers as a side effect of
// conversion; images are re-encoded pixel-by-pixel, which drops EXIF and
// any other metadata; PDFs pass through untouched for the disarm stage.
func Normalize(ctx context.Context, input, output string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(input), "."))

	switch {
	case ext == "pdf":
		return copyFile(input, output)
	case imageExts[ext]:
		return imageToPDF(input, output)
	case officeExts[ext]:
		return officeToPDF(ctx, input, output)
	default:
		return errs.New(errs.KindConversionFailure,
			fmt.Sprintf("unsupported input format %q", ext))
	}
}

func officeToPDF(ctx context.Context, input, output string) error {
	outDir := filepath.Dir(output)
	cmd := exec.CommandContext(ctx, "libreoffice",
		"--headless", "--convert-to", "pdf", "--outdir", outDir, input)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errs.Wrap(errs.KindConversionFailure,
			fmt.Sprintf("libreoffice: %s", strings.TrimSpace(string(out))), err)
	}

	// LibreOffice names the result after the input basename.
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	converted := filepath.Join(outDir, base+".pdf")
	if err := os.Rename(converted, output); err != nil {
		return errs.Wrap(errs.KindConversionFailure, "converted document missing", err)
	}

	log.Debug().Str("input", filepath.Base(input)).Msg("office document converted, macros stripped")
	return nil
}

// imageToPDF re-encodes the image into a fresh pixel buffer and builds a
// single-page PDF from it. Decoding and re-drawing discards every metadata
// segment the original carried.
func imageToPDF(input, output string) error {
	f, err := os.Open(input)
	if err != nil {
		return errs.Wrap(errs.KindConversionFailure, "open image", err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return errs.Wrap(errs.KindConversionFailure, "decode image", err)
	}

	clean := image.NewRGBA(src.Bounds())
	draw.Draw(clean, clean.Bounds(), src, src.Bounds().Min, draw.Src)

	cleanPath := output + ".page.png"
	out, err := os.Create(cleanPath)
	if err != nil {
		return errs.Wrap(errs.KindConversionFailure, "create clean image", err)
	}
	if err := png.Encode(out, clean); err != nil {
		out.Close()
		return errs.Wrap(errs.KindConversionFailure, "encode clean image", err)
	}
	if err := out.Close(); err != nil {
		return errs.Wrap(errs.KindConversionFailure, "write clean image", err)
	}
	defer os.Remove(cleanPath)

	if err := api.ImportImagesFile([]string{cleanPath}, output, nil, nil); err != nil {
		return errs.Wrap(errs.KindConversionFailure, "image to pdf", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.Wrap(errs.KindConversionFailure, "open input", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errs.Wrap(errs.KindConversionFailure, "create output", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errs.Wrap(errs.KindConversionFailure, "copy input", err)
	}
	if err := out.Close(); err != nil {
		return errs.Wrap(errs.KindConversionFailure, "flush output", err)
	}
	return nil
}
