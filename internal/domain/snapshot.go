package domain

import "time"

// Snapshot describes one point-in-time export stored in the object store.
// A snapshot is written once under a time-ordered key and never mutated.
type Snapshot struct {
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
	Tables    []string  `json:"tables"`
	CreatedAt time.Time `json:"created_at"`
}

// TableRows is one exported table: an ordered sequence of rows, each a
// mapping from column name to a JSON-safe scalar.
type TableRows []map[string]any

// SnapshotDocument is the decoded payload of a snapshot object. Top-level
// keys are table names.
type SnapshotDocument map[string]TableRows

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	Key            string `json:"key"`
	SizeBytes      int64  `json:"size_bytes"`
	TablesRestored int    `json:"tables_restored"`
	RowsRestored   int    `json:"rows_restored"`
	RowsDeleted    int    `json:"rows_deleted"`
}
