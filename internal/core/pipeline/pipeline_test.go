package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/CyberBigfoot/CleanSheet/internal/core/sandbox"
	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

type fakeHandle struct{}

func (fakeHandle) ID() string         { return "fake" }
func (fakeHandle) InputDir() string   { return "/work/in" }
func (fakeHandle) OutputDir() string  { return "/work/out" }
func (fakeHandle) ScratchDir() string { return "/scratch" }

type fakeProvider struct {
	specs   []sandbox.CommandSpec
	failOn  string
	failErr error
}

func (p *fakeProvider) Acquire(ctx context.Context, c sandbox.Constraints) (sandbox.Handle, error) {
	return fakeHandle{}, nil
}

func (p *fakeProvider) Execute(ctx context.Context, h sandbox.Handle, spec sandbox.CommandSpec) (sandbox.Result, error) {
	p.specs = append(p.specs, spec)
	if spec.Stage == p.failOn {
		return sandbox.Result{ExitCode: sandbox.ExitFailure}, p.failErr
	}
	return sandbox.Result{}, nil
}

func (p *fakeProvider) Release(h sandbox.Handle) error { return nil }

func TestRunExecutesStagesInOrder(t *testing.T) {
	fp := &fakeProvider{}
	p := New(fp, 30*time.Second, 200)

	var observed []string
	err := p.Run(context.Background(), fakeHandle{}, "input.pdf", func(stage string, res sandbox.Result, err error) {
		observed = append(observed, stage)
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(fp.specs) != len(StageNames) {
		t.Fatalf("executed %d stages, want %d", len(fp.specs), len(StageNames))
	}
	for i, name := range StageNames {
		if fp.specs[i].Stage != name {
			t.Fatalf("stage %d = %s, want %s", i, fp.specs[i].Stage, name)
		}
		if observed[i] != name {
			t.Fatalf("observer saw %s at %d, want %s", observed[i], i, name)
		}
		if fp.specs[i].Timeout != 30*time.Second {
			t.Fatalf("stage %s timeout = %s", name, fp.specs[i].Timeout)
		}
	}
}

func TestRunChainsArtifacts(t *testing.T) {
	fp := &fakeProvider{}
	p := New(fp, time.Minute, 150)

	if err := p.Run(context.Background(), fakeHandle{}, "input.docx", nil); err != nil {
		t.Fatal(err)
	}

	normalize := fp.specs[0]
	if normalize.Input != "/work/in/input.docx" {
		t.Fatalf("normalize input = %s", normalize.Input)
	}

	// Each stage consumes its predecessor's output.
	for i := 1; i < 4; i++ {
		if fp.specs[i].Input != fp.specs[i-1].Output {
			t.Fatalf("stage %s input %s != previous output %s",
				fp.specs[i].Stage, fp.specs[i].Input, fp.specs[i-1].Output)
		}
	}

	rasterize := fp.specs[2]
	if rasterize.DPI != 150 {
		t.Fatalf("rasterize dpi = %d, want 150", rasterize.DPI)
	}

	reconstruct := fp.specs[3]
	if reconstruct.Output != "/work/out/"+OutputName {
		t.Fatalf("reconstruct output = %s", reconstruct.Output)
	}

	validate := fp.specs[4]
	if validate.Input != reconstruct.Output {
		t.Fatalf("validate input = %s", validate.Input)
	}
	if validate.Pages != rasterize.Output {
		t.Fatalf("validate pages = %s, want %s", validate.Pages, rasterize.Output)
	}
}

func TestRunAbortsOnFirstFailure(t *testing.T) {
	fp := &fakeProvider{
		failOn:  StageDisarm,
		failErr: errs.New(errs.KindConversionFailure, "unparseable"),
	}
	p := New(fp, time.Minute, 200)

	err := p.Run(context.Background(), fakeHandle{}, "input.pdf", nil)
	if !errs.Is(err, errs.KindConversionFailure) {
		t.Fatalf("err = %v", err)
	}
	if len(fp.specs) != 2 {
		t.Fatalf("executed %d stages after failure, want 2", len(fp.specs))
	}
}
