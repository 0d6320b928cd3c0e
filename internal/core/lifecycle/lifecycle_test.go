package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/CyberBigfoot/CleanSheet/internal/core/event"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestPurgeRemovesEverything(t *testing.T) {
	m := NewManager(t.TempDir())

	dir, err := m.JobDir("job-1")
	if err != nil {
		t.Fatal(err)
	}
	a := filepath.Join(dir, "input.pdf")
	b := filepath.Join(dir, "sanitized.pdf")
	writeFile(t, a)
	writeFile(t, b)
	m.Register("job-1", a, "intake")
	m.Register("job-1", b, "reconstruct")

	if got := m.Purge("job-1"); got != 2 {
		t.Fatalf("Purge removed %d entries, want 2", got)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("job dir should be gone")
	}
	if m.Count("job-1") != 0 {
		t.Fatal("registry should be empty after purge")
	}
}

func TestPurgeIdempotent(t *testing.T) {
	m := NewManager(t.TempDir())
	dir, _ := m.JobDir("job-1")
	p := filepath.Join(dir, "input.pdf")
	writeFile(t, p)
	m.Register("job-1", p, "intake")

	m.Purge("job-1")
	if got := m.Purge("job-1"); got != 0 {
		t.Fatalf("second purge removed %d entries, want 0", got)
	}
	if got := m.Purge("never-existed"); got != 0 {
		t.Fatalf("purge of unknown job removed %d entries, want 0", got)
	}
}

func TestPurgeOnTerminalEvent(t *testing.T) {
	m := NewManager(t.TempDir())
	bus := event.NewBus()
	m.SetupSubscribers(bus)

	var purged []event.PurgeEvent
	bus.Subscribe(event.EventArtifactsPurged, func(ctx context.Context, e event.Event) error {
		purged = append(purged, e.Payload.(event.PurgeEvent))
		return nil
	})

	dir, _ := m.JobDir("job-1")
	p := filepath.Join(dir, "input.pdf")
	writeFile(t, p)
	m.Register("job-1", p, "intake")

	bus.Publish(context.Background(), event.Event{
		Type:    event.EventJobTerminal,
		Payload: event.JobEvent{JobID: "job-1", Status: "failed"},
	})

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("terminal event should purge the job dir")
	}
	if len(purged) != 1 || purged[0].JobID != "job-1" || purged[0].Removed != 1 {
		t.Fatalf("unexpected purge events: %+v", purged)
	}
}
