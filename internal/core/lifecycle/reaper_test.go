package lifecycle

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReapOrphansRespectsRetention(t *testing.T) {
	work := t.TempDir()
	m := NewManager(work)

	stale := filepath.Join(work, "stale-job")
	fresh := filepath.Join(work, "fresh-job")
	downloads := filepath.Join(work, "downloads")
	for _, d := range []string{stale, fresh, downloads} {
		if err := os.Mkdir(d, 0o700); err != nil {
			t.Fatal(err)
		}
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(downloads, old, old); err != nil {
		t.Fatal(err)
	}

	if got := m.ReapOrphans(time.Hour); got != 1 {
		t.Fatalf("reaped %d dirs, want 1", got)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale dir should be reaped")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh dir should survive")
	}
	if _, err := os.Stat(downloads); err != nil {
		t.Fatal("downloads dir is never reaped")
	}
}

func TestReapOrphansMissingWorkDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "does-not-exist"))
	if got := m.ReapOrphans(time.Hour); got != 0 {
		t.Fatalf("reaped %d dirs, want 0", got)
	}
}
