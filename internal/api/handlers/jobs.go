package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/CyberBigfoot/CleanSheet/internal/core/job"
	"github.com/CyberBigfoot/CleanSheet/internal/core/orchestrator"
	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

type JobsHandler struct {
	orch *orchestrator.Orchestrator
}

func NewJobsHandler(orch *orchestrator.Orchestrator) *JobsHandler {
	return &JobsHandler{orch: orch}
}

// Shared types

type JobIDInput struct {
	ID string `path:"id" doc:"Job ID"`
}

type ScanBody struct {
	Status string `json:"status" enum:"clean,flagged,unavailable" doc:"Scan verdict"`
	Detail string `json:"detail,omitempty" doc:"Scanner detail"`
}

type StageEntry struct {
	Stage    string `json:"stage" doc:"Pipeline stage name"`
	Outcome  string `json:"outcome" doc:"Stage outcome"`
	Attempt  int    `json:"attempt" doc:"Zero-based attempt number"`
	Duration int64  `json:"duration_ms" doc:"Stage duration in milliseconds"`
}

type FailureBody struct {
	Kind   string `json:"kind" doc:"Failure classification"`
	Detail string `json:"detail" doc:"Human-readable failure detail"`
}

type JobStatusBody struct {
	JobID         string       `json:"job_id" doc:"Job ID"`
	Status        string       `json:"status" doc:"Current job state"`
	Filename      string       `json:"filename" doc:"Original filename"`
	Size          int64        `json:"size" doc:"Input size in bytes"`
	PreScan       *ScanBody    `json:"pre_scan,omitempty" doc:"Advisory input scan verdict"`
	PostScan      *ScanBody    `json:"post_scan,omitempty" doc:"Gating output scan verdict"`
	StageLog      []StageEntry `json:"stage_log" doc:"Per-stage execution history"`
	Failure       *FailureBody `json:"failure,omitempty" doc:"Terminal failure, if any"`
	DownloadReady bool         `json:"download_ready" doc:"Whether the sanitized output can be fetched"`
	CreatedAt     time.Time    `json:"created_at" doc:"Submission time"`
	TerminalAt    *time.Time   `json:"terminal_at,omitempty" doc:"Time the job reached its final state"`
}

func newJobStatusBody(j job.Job) JobStatusBody {
	body := JobStatusBody{
		JobID:         j.ID,
		Status:        string(j.Status),
		Filename:      j.Input.Filename,
		Size:          j.Input.Size,
		StageLog:      make([]StageEntry, 0, len(j.StageLog)),
		DownloadReady: j.DownloadReady(),
		CreatedAt:     j.CreatedAt,
	}
	if j.PreScan != nil {
		body.PreScan = &ScanBody{Status: string(j.PreScan.Status), Detail: j.PreScan.Detail}
	}
	if j.PostScan != nil {
		body.PostScan = &ScanBody{Status: string(j.PostScan.Status), Detail: j.PostScan.Detail}
	}
	for _, rec := range j.StageLog {
		body.StageLog = append(body.StageLog, StageEntry{
			Stage:    rec.Stage,
			Outcome:  rec.Outcome,
			Attempt:  rec.Attempt,
			Duration: rec.Duration.Milliseconds(),
		})
	}
	if j.Failure != nil {
		body.Failure = &FailureBody{Kind: string(j.Failure.Kind), Detail: j.Failure.Detail}
	}
	if !j.TerminalAt.IsZero() {
		t := j.TerminalAt
		body.TerminalAt = &t
	}
	return body
}

type JobStatusOutput struct {
	Body JobStatusBody
}

type ListJobsOutput struct {
	Body []JobStatusBody
}

type StatusBody struct {
	Status string `json:"status" doc:"Operation result"`
}

type StatusOutput struct {
	Body StatusBody
}

// Handlers

func (h *JobsHandler) Get(ctx context.Context, input *JobIDInput) (*JobStatusOutput, error) {
	j, err := h.orch.Status(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &JobStatusOutput{Body: newJobStatusBody(j)}, nil
}

func (h *JobsHandler) List(ctx context.Context, input *struct{}) (*ListJobsOutput, error) {
	jobs := h.orch.List()
	out := make([]JobStatusBody, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newJobStatusBody(j))
	}
	return &ListJobsOutput{Body: out}, nil
}

func (h *JobsHandler) Cancel(ctx context.Context, input *JobIDInput) (*StatusOutput, error) {
	if err := h.orch.Cancel(input.ID); err != nil {
		switch errs.KindOf(err) {
		case errs.KindNotFound:
			return nil, huma.Error404NotFound(err.Error())
		case errs.KindNotReady:
			return nil, huma.Error409Conflict(err.Error())
		default:
			return nil, huma.Error500InternalServerError(err.Error())
		}
	}
	return &StatusOutput{Body: StatusBody{Status: "cancelling"}}, nil
}
