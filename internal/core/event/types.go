package event

import "time"

type EventType string

const (
	// Job lifecycle
	EventJobCreated  EventType = "job.created"
	EventJobStage    EventType = "job.stage"
	EventJobTerminal EventType = "job.terminal"

	// Housekeeping
	EventArtifactsPurged EventType = "artifacts.purged"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// JobEvent accompanies every job lifecycle event.
type JobEvent struct {
	JobID    string
	Status   string
	Stage    string
	Attempt  int
	Error    string
	Duration time.Duration
}

// PurgeEvent reports an artifact cleanup pass.
type PurgeEvent struct {
	JobID   string
	Removed int
}
