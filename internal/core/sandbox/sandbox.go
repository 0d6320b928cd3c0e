// Package sandbox provides ephemeral isolated execution environments for
// sanitization attempts. One handle serves exactly one attempt: acquire,
// execute stages, release. Release must run exactly once per acquire, on
// every path.
package sandbox

import (
	"context"
	"time"
)

// Constraints is the immutable resource envelope for one sandbox. Network
// and capabilities are always off; these fields bound what remains.
type Constraints struct {
	Image       string
	Memory      string
	CPUs        string
	ScratchSize string

	// InputDir is mounted read-only, OutputDir read-write. Both are
	// host paths private to one job.
	InputDir  string
	OutputDir string
}

// Handle represents one live sandbox. The Dir accessors return paths as
// seen by commands executed inside the sandbox.
type Handle interface {
	ID() string
	InputDir() string
	OutputDir() string
	ScratchDir() string
}

// CommandSpec describes one pipeline stage invocation. Pages is only set
// for the validate stage, which checks the reconstructed document against
// the rasterized page set.
type CommandSpec struct {
	Stage   string
	Input   string
	Output  string
	Pages   string
	DPI     int
	Timeout time.Duration
}

// Result captures one stage execution.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Provider creates and destroys sandboxes and runs stage commands inside
// them.
type Provider interface {
	Acquire(ctx context.Context, c Constraints) (Handle, error)
	Execute(ctx context.Context, h Handle, spec CommandSpec) (Result, error)
	Release(h Handle) error
}

// Exit codes the in-sandbox worker uses to classify stage outcomes.
// Providers map them back onto the failure taxonomy.
const (
	ExitOK      = 0
	ExitFailure = 2
	ExitInvalid = 3
)
