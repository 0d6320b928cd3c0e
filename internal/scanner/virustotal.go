// Package scanner queries the VirusTotal multi-engine service for a
// verdict on a file. Scanning is advisory infrastructure: every transport
// or API problem collapses into the unavailable verdict, never into an
// error the caller could mistake for a job failure.
package scanner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/core/job"
)

// suspiciousTolerance allows a few engines to cry wolf before a file is
// treated as flagged; single-engine false positives are routine.
const suspiciousTolerance = 3

// Client talks to the VirusTotal v3 API. Zero-valued credential means
// scanning is disabled and Scan returns unavailable without network I/O.
// The client holds no per-job state and is safe for concurrent use.
type Client struct {
	apiKey      string
	baseURL     string
	http        *http.Client
	pollTimeout time.Duration
}

func New(apiKey, baseURL string, timeout, pollTimeout time.Duration) *Client {
	return &Client{
		apiKey:      apiKey,
		baseURL:     baseURL,
		http:        &http.Client{Timeout: timeout},
		pollTimeout: pollTimeout,
	}
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Scan produces a verdict for the file at path. The flow mirrors the
// VirusTotal v3 contract: look the hash up first; if unknown, upload and
// poll the analysis until it completes or the poll window closes.
func (c *Client) Scan(ctx context.Context, path string) job.ScanVerdict {
	if !c.Configured() {
		return job.ScanVerdict{Status: job.ScanUnavailable, Detail: "no API key configured"}
	}

	hash, err := fileSHA256(path)
	if err != nil {
		return unavailable("hash input", err)
	}

	verdict, found, err := c.lookupHash(ctx, hash)
	if err != nil {
		return unavailable("hash lookup", err)
	}
	if found {
		return verdict
	}

	analysisID, err := c.upload(ctx, path)
	if err != nil {
		return unavailable("upload", err)
	}

	return c.pollAnalysis(ctx, analysisID)
}

type analysisStats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
	Undetected int `json:"undetected"`
}

func (s analysisStats) verdict() job.ScanVerdict {
	switch {
	case s.Malicious > 0:
		return job.ScanVerdict{
			Status: job.ScanFlagged,
			Detail: fmt.Sprintf("%d engines flagged as malicious", s.Malicious),
		}
	case s.Suspicious > suspiciousTolerance:
		return job.ScanVerdict{
			Status: job.ScanFlagged,
			Detail: fmt.Sprintf("%d engines flagged as suspicious", s.Suspicious),
		}
	default:
		return job.ScanVerdict{
			Status: job.ScanClean,
			Detail: fmt.Sprintf("clean (0/%d engines)", s.Harmless+s.Undetected),
		}
	}
}

func (c *Client) lookupHash(ctx context.Context, hash string) (job.ScanVerdict, bool, error) {
	var resp struct {
		Data struct {
			Attributes struct {
				LastAnalysisStats analysisStats `json:"last_analysis_stats"`
			} `json:"attributes"`
		} `json:"data"`
	}

	status, err := c.get(ctx, "/files/"+hash, &resp)
	if err != nil {
		return job.ScanVerdict{}, false, err
	}
	switch status {
	case http.StatusOK:
		return resp.Data.Attributes.LastAnalysisStats.verdict(), true, nil
	case http.StatusNotFound:
		return job.ScanVerdict{}, false, nil
	default:
		return job.ScanVerdict{}, false, fmt.Errorf("unexpected status %d", status)
	}
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload status %d", res.StatusCode)
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

func (c *Client) pollAnalysis(ctx context.Context, analysisID string) job.ScanVerdict {
	deadline := time.Now().Add(c.pollTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return unavailable("analysis poll", ctx.Err())
		case <-time.After(5 * time.Second):
		}

		var resp struct {
			Data struct {
				Attributes struct {
					Status string        `json:"status"`
					Stats  analysisStats `json:"stats"`
				} `json:"attributes"`
			} `json:"data"`
		}
		status, err := c.get(ctx, "/analyses/"+analysisID, &resp)
		if err != nil || status != http.StatusOK {
			continue
		}
		if resp.Data.Attributes.Status == "completed" {
			return resp.Data.Attributes.Stats.verdict()
		}
	}
	return job.ScanVerdict{Status: job.ScanUnavailable, Detail: "analysis timed out"}
}

func (c *Client) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("x-apikey", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return res.StatusCode, err
		}
	}
	return res.StatusCode, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func unavailable(op string, err error) job.ScanVerdict {
	log.Warn().Err(err).Str("op", op).Msg("scan unavailable")
	return job.ScanVerdict{Status: job.ScanUnavailable, Detail: fmt.Sprintf("%s failed", op)}
}
