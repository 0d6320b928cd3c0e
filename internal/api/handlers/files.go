package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/CyberBigfoot/CleanSheet/internal/core/job"
	"github.com/CyberBigfoot/CleanSheet/internal/core/orchestrator"
	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// FilesHandler serves the two byte-streaming endpoints that bypass the
// typed API layer: multipart upload in, sanitized document out.
type FilesHandler struct {
	orch *orchestrator.Orchestrator
}

func NewFilesHandler(orch *orchestrator.Orchestrator) *FilesHandler {
	return &FilesHandler{orch: orch}
}

// Upload accepts a multipart form with a single "file" field and queues a
// sanitization job. The response is 202: the work is asynchronous from
// here on.
func (h *FilesHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}

	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer src.Close()

	id, err := h.orch.Submit(c.Request().Context(), src, fh.Filename)
	if err != nil {
		if errs.Is(err, errs.KindValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"job_id": id,
		"status": string(job.StatusValidated),
	})
}

// Download streams the sanitized document exactly once. A repeat request,
// or a request after the expiry window, gets 404; a request before the
// job completes gets 409.
func (h *FilesHandler) Download(c echo.Context) error {
	id := c.Param("id")

	rc, snap, err := h.orch.FetchOutput(id)
	if err != nil {
		switch errs.KindOf(err) {
		case errs.KindNotFound:
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errs.KindNotReady:
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	defer rc.Close()

	// The original input was flagged but sanitized anyway; the caller
	// decides what to do with that knowledge.
	if snap.PreScan != nil && snap.PreScan.Status == job.ScanFlagged {
		c.Response().Header().Set("X-Threat-Warning", "input file was flagged by the malware scanner")
		c.Response().Header().Set("X-Threat-Details", snap.PreScan.Detail)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="sanitized_%s.pdf"`, id))
	return c.Stream(http.StatusOK, "application/pdf", rc)
}
