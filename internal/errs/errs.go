package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and for the retry policy.
type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindIsolationFailure      Kind = "isolation_failure"
	KindConversionFailure     Kind = "conversion_failure"
	KindPipelineTimeout       Kind = "pipeline_timeout"
	KindReconstructionInvalid Kind = "reconstruction_invalid"
	KindScanUnavailable       Kind = "scan_unavailable"
	KindInternal              Kind = "internal_error"
	KindCancelled             Kind = "cancelled"
	KindNotFound              Kind = "not_found"
	KindNotReady              Kind = "not_ready"
)

func (k Kind) String() string { return string(k) }

// Retryable reports whether a failure of this kind may be retried with a
// fresh sandbox. Structural validation failures are deterministic, so
// re-running them cannot change the outcome.
func (k Kind) Retryable() bool {
	switch k {
	case KindIsolationFailure, KindConversionFailure, KindPipelineTimeout:
		return true
	}
	return false
}

// Failure is a classified error. Detail is safe to surface to callers.
type Failure struct {
	Kind   Kind
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error { return f.Err }

// New creates a Failure of the given kind.
func New(kind Kind, detail string) *Failure {
	return &Failure{Kind: kind, Detail: detail}
}

// Wrap creates a Failure of the given kind around an underlying error.
func Wrap(kind Kind, detail string, err error) *Failure {
	return &Failure{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the Kind from err, or KindConversionFailure when err
// carries no classification.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindConversionFailure
}

// Is reports whether err is a Failure of the given kind.
func Is(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
