package indexer

import "time"

// EventType identifies a unit of work for the background worker.
type EventType int

const (
	// EventFullScan rebuilds the index under the event path.
	EventFullScan EventType = iota
	// EventIncrementalScan reconciles the index under the event path.
	EventIncrementalScan
	// EventFileCreated indexes a newly created file.
	EventFileCreated
	// EventFileModified re-indexes a modified file.
	EventFileModified
	// EventFileDeleted removes a file from the index.
	EventFileDeleted
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventFullScan:
		return "full_scan"
	case EventIncrementalScan:
		return "incremental_scan"
	case EventFileCreated:
		return "file_created"
	case EventFileModified:
		return "file_modified"
	case EventFileDeleted:
		return "file_deleted"
	default:
		return "unknown"
	}
}

// Event is a transient unit of work. Events live only in the queue; they are
// never persisted.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}
