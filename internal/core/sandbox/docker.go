package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// Container-side mount points. The image is read-only apart from the
// output mount and the tmpfs scratch area.
const (
	containerInputDir   = "/work/in"
	containerOutputDir  = "/work/out"
	containerScratchDir = "/scratch"
	workerBinary        = "/usr/local/bin/cleansheet"
)

// DockerProvider backs sandboxes with throwaway Docker containers driven
// through the docker CLI.
type DockerProvider struct{}

func NewDockerProvider() *DockerProvider {
	return &DockerProvider{}
}

type dockerHandle struct {
	id   string
	name string
}

func (h *dockerHandle) ID() string         { return h.id }
func (h *dockerHandle) InputDir() string   { return containerInputDir }
func (h *dockerHandle) OutputDir() string  { return containerOutputDir }
func (h *dockerHandle) ScratchDir() string { return containerScratchDir }

func (p *DockerProvider) Acquire(ctx context.Context, c Constraints) (Handle, error) {
	id := uuid.New().String()
	name := "cleansheet-worker-" + id

	args := []string{
		"run", "-d",
		"--name", name,
		"--network", "none",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges:true",
		"--memory", c.Memory,
		"--cpus", c.CPUs,
		"--read-only",
		"--tmpfs", fmt.Sprintf("%s:rw,size=%s,mode=1777", containerScratchDir, c.ScratchSize),
		"-v", fmt.Sprintf("%s:%s:ro", c.InputDir, containerInputDir),
		"-v", fmt.Sprintf("%s:%s:rw", c.OutputDir, containerOutputDir),
		c.Image, "sleep", "infinity",
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errs.Wrap(errs.KindIsolationFailure,
			fmt.Sprintf("docker run: %s", strings.TrimSpace(string(out))), err)
	}

	log.Debug().Str("sandbox", name).Msg("sandbox container started")
	return &dockerHandle{id: id, name: name}, nil
}

func (p *DockerProvider) Execute(ctx context.Context, h Handle, spec CommandSpec) (Result, error) {
	dh, ok := h.(*dockerHandle)
	if !ok {
		return Result{}, errs.New(errs.KindIsolationFailure, "foreign sandbox handle")
	}

	args := []string{"exec", dh.name, workerBinary, "worker",
		"--stage", spec.Stage,
		"--input", spec.Input,
	}
	if spec.Output != "" {
		args = append(args, "--output", spec.Output)
	}
	if spec.Pages != "" {
		args = append(args, "--pages", spec.Pages)
	}
	if spec.DPI > 0 {
		args = append(args, "--dpi", fmt.Sprintf("%d", spec.DPI))
	}

	execCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(execCtx, "docker", args...)
	out, err := cmd.CombinedOutput()
	res := Result{
		ExitCode: -1,
		Output:   strings.TrimSpace(string(out)),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if execCtx.Err() == context.DeadlineExceeded {
		// The container itself is torn down by Release, which kills
		// whatever the timed-out exec left behind.
		return res, errs.New(errs.KindPipelineTimeout,
			fmt.Sprintf("stage %s exceeded %s", spec.Stage, spec.Timeout))
	}
	if err != nil {
		kind := errs.KindConversionFailure
		if res.ExitCode == ExitInvalid {
			kind = errs.KindReconstructionInvalid
		}
		return res, errs.Wrap(kind,
			fmt.Sprintf("stage %s failed: %s", spec.Stage, res.Output), err)
	}
	return res, nil
}

func (p *DockerProvider) Release(h Handle) error {
	dh, ok := h.(*dockerHandle)
	if !ok {
		return errs.New(errs.KindIsolationFailure, "foreign sandbox handle")
	}

	cmd := exec.Command("docker", "rm", "-f", dh.name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errs.Wrap(errs.KindIsolationFailure,
			fmt.Sprintf("docker rm: %s", strings.TrimSpace(string(out))), err)
	}
	log.Debug().Str("sandbox", dh.name).Msg("sandbox container destroyed")
	return nil
}
