package scanner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CyberBigfoot/CleanSheet/internal/core/job"
)

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7 test"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVerdictThresholds(t *testing.T) {
	cases := []struct {
		stats analysisStats
		want  job.ScanStatus
	}{
		{analysisStats{Malicious: 1}, job.ScanFlagged},
		{analysisStats{Malicious: 40, Suspicious: 10}, job.ScanFlagged},
		{analysisStats{Suspicious: suspiciousTolerance}, job.ScanClean},
		{analysisStats{Suspicious: suspiciousTolerance + 1}, job.ScanFlagged},
		{analysisStats{Harmless: 60, Undetected: 10}, job.ScanClean},
		{analysisStats{}, job.ScanClean},
	}
	for _, tc := range cases {
		if got := tc.stats.verdict().Status; got != tc.want {
			t.Errorf("verdict(%+v) = %s, want %s", tc.stats, got, tc.want)
		}
	}
}

func TestScanUnconfigured(t *testing.T) {
	c := New("", "http://example.invalid", time.Second, time.Second)
	v := c.Scan(context.Background(), writeInput(t))
	if v.Status != job.ScanUnavailable {
		t.Fatalf("status = %s, want unavailable", v.Status)
	}
}

func TestScanKnownHash(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-apikey")
		fmt.Fprint(w, `{"data":{"attributes":{"last_analysis_stats":{"malicious":7,"harmless":60}}}}`)
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, time.Second, time.Second)
	v := c.Scan(context.Background(), writeInput(t))

	if v.Status != job.ScanFlagged {
		t.Fatalf("status = %s, want flagged", v.Status)
	}
	if v.Detail != "7 engines flagged as malicious" {
		t.Fatalf("detail = %q", v.Detail)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
}

func TestScanCleanHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"attributes":{"last_analysis_stats":{"harmless":65,"undetected":5}}}}`)
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, time.Second, time.Second)
	v := c.Scan(context.Background(), writeInput(t))
	if v.Status != job.ScanClean {
		t.Fatalf("status = %s, want clean", v.Status)
	}
}

func TestScanUnknownHashUploads(t *testing.T) {
	var uploaded bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost:
			uploaded = true
			fmt.Fprint(w, `{"data":{"id":"analysis-1"}}`)
		}
	}))
	defer srv.Close()

	// Zero poll window: the upload happens, the analysis never resolves.
	c := New("test-key", srv.URL, time.Second, 0)
	v := c.Scan(context.Background(), writeInput(t))

	if !uploaded {
		t.Fatal("unknown hash should trigger an upload")
	}
	if v.Status != job.ScanUnavailable {
		t.Fatalf("status = %s, want unavailable", v.Status)
	}
}

func TestScanTransportErrorUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New("test-key", srv.URL, time.Second, time.Second)
	v := c.Scan(context.Background(), writeInput(t))
	if v.Status != job.ScanUnavailable {
		t.Fatalf("status = %s, want unavailable", v.Status)
	}
}

func TestScanServerErrorUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, time.Second, time.Second)
	v := c.Scan(context.Background(), writeInput(t))
	if v.Status != job.ScanUnavailable {
		t.Fatalf("status = %s, want unavailable", v.Status)
	}
}

func TestScanMissingFileUnavailable(t *testing.T) {
	c := New("test-key", "http://example.invalid", time.Second, time.Second)
	v := c.Scan(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	if v.Status != job.ScanUnavailable {
		t.Fatalf("status = %s, want unavailable", v.Status)
	}
}
