// Package store provides the persistent file index: a single-file SQLite
// database holding indexed entries, an FTS5 text index over entry names kept
// in sync by triggers, and an append-only scan history log.
package store

// Entry is one indexed file's searchable metadata row.
type Entry struct {
	Path           string  `json:"path"`
	ParentPath     string  `json:"parent_path"`
	Name           string  `json:"name"`
	LastModifiedAt int64   `json:"last_modified_at"`
	Size           int64   `json:"size"`
	FileType       string  `json:"file_type"`
	RelevancyScore float64 `json:"relevancy_score"`
}

// ScoredEntry is an Entry with its combined query-time score.
type ScoredEntry struct {
	Entry
	Score float64 `json:"score"`
}

// ScanStatus is the lifecycle state of a scan attempt.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusSucceeded ScanStatus = "succeeded"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanType identifies what kind of scan produced a record.
type ScanType string

const (
	ScanTypeFull        ScanType = "full"
	ScanTypeIncremental ScanType = "incremental"
	ScanTypeWatcher     ScanType = "watcher"
)

// ScanRecord is one row of the append-only scan history log.
type ScanRecord struct {
	ID               int64      `json:"id"`
	Status           ScanStatus `json:"status"`
	Type             ScanType   `json:"type"`
	Entrypoint       string     `json:"entrypoint"`
	CreatedAt        int64      `json:"created_at"`
	IndexedFileCount int        `json:"indexed_file_count"`
	DurationMS       int64      `json:"duration_ms"`
	Error            string     `json:"error"`
}
