package job

import (
	"time"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// Status is one state of the job state machine. Transitions are
// forward-only; Rejected and Failed are reachable from any non-terminal
// state.
type Status string

const (
	StatusCreated        Status = "created"
	StatusValidated      Status = "validated"
	StatusPreScanned     Status = "prescanned"
	StatusSandboxed      Status = "sandboxed"
	StatusNormalizing    Status = "normalizing"
	StatusDisarming      Status = "disarming"
	StatusRasterizing    Status = "rasterizing"
	StatusReconstructing Status = "reconstructing"
	StatusValidating     Status = "validating"
	StatusPostScanned    Status = "postscanned"
	StatusCompleted      Status = "completed"
	StatusRejected       Status = "rejected"
	StatusFailed         Status = "failed"
)

// rank orders the forward path. Terminals sort above everything so a
// terminal state can never be left.
var rank = map[Status]int{
	StatusCreated:        0,
	StatusValidated:      1,
	StatusPreScanned:     2,
	StatusSandboxed:      3,
	StatusNormalizing:    4,
	StatusDisarming:      5,
	StatusRasterizing:    6,
	StatusReconstructing: 7,
	StatusValidating:     8,
	StatusPostScanned:    9,
	StatusCompleted:      10,
	StatusRejected:       10,
	StatusFailed:         10,
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusFailed
}

// CanTransition reports whether moving from s to next is legal: strictly
// forward, or sideways into a terminal from any non-terminal state.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusRejected || next == StatusFailed {
		return true
	}
	return rank[next] > rank[s]
}

// ScanStatus is the outcome of one external scan.
type ScanStatus string

const (
	ScanClean       ScanStatus = "clean"
	ScanFlagged     ScanStatus = "flagged"
	ScanUnavailable ScanStatus = "unavailable"
)

// ScanVerdict is immutable once produced. A job holds at most two: pre and
// post.
type ScanVerdict struct {
	Status ScanStatus
	Detail string
}

// InputDescriptor captures what the caller declared at intake.
type InputDescriptor struct {
	Filename string
	Size     int64
	Ext      string
}

// StageRecord is one stage_log entry. Observability only, never control.
type StageRecord struct {
	Stage    string
	Outcome  string
	Attempt  int
	Duration time.Duration
}

// Failure describes why a job ended in Failed or Rejected.
type Failure struct {
	Kind   errs.Kind
	Detail string
}

// Job is the unit of work. All fields are owned by the registry; callers
// only ever see copies taken under the registry lock.
type Job struct {
	ID         string
	Status     Status
	Input      InputDescriptor
	PreScan    *ScanVerdict
	PostScan   *ScanVerdict
	StageLog   []StageRecord
	Failure    *Failure
	OutputPath string
	CreatedAt  time.Time
	TerminalAt time.Time
}

// DownloadReady reports whether the job has a completed, not yet consumed
// output.
func (j *Job) DownloadReady() bool {
	return j.Status == StatusCompleted && j.OutputPath != ""
}
