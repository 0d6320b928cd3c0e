package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

func TestRunStageUnknown(t *testing.T) {
	err := RunStage(context.Background(), "teleport", "in", "out", "", 200)
	if !errs.Is(err, errs.KindConversionFailure) {
		t.Fatalf("err = %v, want conversion failure", err)
	}
}

func TestFuncsCoverAllStages(t *testing.T) {
	funcs := Funcs()
	for _, name := range []string{"normalize", "disarm", "rasterize", "reconstruct", "validate"} {
		if _, ok := funcs[name]; !ok {
			t.Errorf("stage %q missing", name)
		}
	}
}

func TestNormalizeRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "payload.exe")
	if err := os.WriteFile(input, []byte("MZ"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := Normalize(context.Background(), input, filepath.Join(dir, "out.pdf"))
	if !errs.Is(err, errs.KindConversionFailure) {
		t.Fatalf("err = %v, want conversion failure", err)
	}
}

func TestNormalizePassesThroughPDF(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "doc.pdf")
	content := []byte("%PDF-1.7\n%%EOF\n")
	if err := os.WriteFile(input, content, 0o600); err != nil {
		t.Fatal(err)
	}

	output := filepath.Join(dir, "normalized.pdf")
	if err := Normalize(context.Background(), input, output); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatal("pdf passthrough must be byte-identical")
	}
}

func TestNormalizeRejectsCorruptImage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(input, []byte("not a png"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := Normalize(context.Background(), input, filepath.Join(dir, "out.pdf"))
	if !errs.Is(err, errs.KindConversionFailure) {
		t.Fatalf("err = %v, want conversion failure", err)
	}
}

func TestPageImagesOrdering(t *testing.T) {
	dir := t.TempDir()
	// pdftoppm pads page numbers, so lexicographic order is page order.
	for _, name := range []string{"page-03.png", "page-01.png", "page-02.png", "page-10.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated files are ignored.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600)

	pages, err := PageImages(dir)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"page-01.png", "page-02.png", "page-03.png", "page-10.png"}
	if len(pages) != len(want) {
		t.Fatalf("got %d pages, want %d", len(pages), len(want))
	}
	for i, w := range want {
		if filepath.Base(pages[i]) != w {
			t.Fatalf("page %d = %s, want %s", i, filepath.Base(pages[i]), w)
		}
	}
}

func TestPageImagesEmptyDir(t *testing.T) {
	pages, err := PageImages(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 0 {
		t.Fatalf("got %d pages from empty dir", len(pages))
	}
}
