package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// rasterSet fills pagesDir with n page images the way the rasterize
// stage names them.
func rasterSet(t *testing.T, pagesDir string, n int) {
	t.Helper()
	if err := os.MkdirAll(pagesDir, 0o700); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= n; i++ {
		writePageImage(t, filepath.Join(pagesDir, fmt.Sprintf("page-%02d.png", i)))
	}
}

func TestReconstructPreservesPageCount(t *testing.T) {
	dir := t.TempDir()
	pagesDir := filepath.Join(dir, "pages")
	rasterSet(t, pagesDir, 3)

	output := filepath.Join(dir, "sanitized.pdf")
	if err := Reconstruct(context.Background(), pagesDir, output); err != nil {
		t.Fatal(err)
	}

	count, err := api.PageCountFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("page count = %d, want 3", count)
	}
}

func TestValidateAcceptsCleanOutput(t *testing.T) {
	dir := t.TempDir()
	pagesDir := filepath.Join(dir, "pages")
	rasterSet(t, pagesDir, 2)

	output := filepath.Join(dir, "sanitized.pdf")
	if err := Reconstruct(context.Background(), pagesDir, output); err != nil {
		t.Fatal(err)
	}

	if err := Validate(context.Background(), output, pagesDir); err != nil {
		t.Fatalf("clean output rejected: %v", err)
	}
}

func TestValidateRejectsPageCountMismatch(t *testing.T) {
	dir := t.TempDir()
	pagesDir := filepath.Join(dir, "pages")
	rasterSet(t, pagesDir, 1)

	output := filepath.Join(dir, "sanitized.pdf")
	if err := Reconstruct(context.Background(), pagesDir, output); err != nil {
		t.Fatal(err)
	}

	// A page image the output does not account for fails the count check.
	writePageImage(t, filepath.Join(pagesDir, "page-02.png"))

	err := Validate(context.Background(), output, pagesDir)
	if !errs.Is(err, errs.KindReconstructionInvalid) {
		t.Fatalf("err = %v, want reconstruction invalid", err)
	}
}

func TestValidateRejectsActiveContent(t *testing.T) {
	dir := t.TempDir()
	pagesDir := filepath.Join(dir, "pages")
	rasterSet(t, pagesDir, 1)

	output := filepath.Join(dir, "sanitized.pdf")
	if err := Reconstruct(context.Background(), pagesDir, output); err != nil {
		t.Fatal(err)
	}
	injectActiveContent(t, output)

	err := Validate(context.Background(), output, pagesDir)
	if !errs.Is(err, errs.KindReconstructionInvalid) {
		t.Fatalf("err = %v, want reconstruction invalid", err)
	}
}

func TestValidateRejectsEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "sanitized.pdf")
	if err := os.WriteFile(output, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	err := Validate(context.Background(), output, dir)
	if !errs.Is(err, errs.KindReconstructionInvalid) {
		t.Fatalf("err = %v, want reconstruction invalid", err)
	}
}
