package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionKind enumerates the operations recorded in the ledger.
type ExecutionKind string

const (
	ExecutionKindInitial ExecutionKind = "initial"
	ExecutionKindReset   ExecutionKind = "reset"
	ExecutionKindRestore ExecutionKind = "restore"
)

// ExecutionStatus captures lifecycle state for a seed run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further status transitions are permitted.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// StepStats counts the rows a single seed step touched.
type StepStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Add accumulates another stats value into the receiver.
func (s *StepStats) Add(other StepStats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Deleted += other.Deleted
}

// SeedExecution mirrors one persisted ledger row. Terminal fields are set
// exactly once; the row is immutable afterwards.
type SeedExecution struct {
	ID              uuid.UUID            `json:"id"`
	Kind            ExecutionKind        `json:"kind"`
	Status          ExecutionStatus      `json:"status"`
	StepStats       map[string]StepStats `json:"step_stats"`
	BackupKey       *string              `json:"backup_key,omitempty"`
	BackupSizeBytes *int64               `json:"backup_size_bytes,omitempty"`
	ErrorMessage    *string              `json:"error_message,omitempty"`
	ErrorDetail     *string              `json:"error_detail,omitempty"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	FinishedAt      *time.Time           `json:"finished_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// Totals sums the per-step stats of the execution.
func (e SeedExecution) Totals() StepStats {
	var total StepStats
	for _, stats := range e.StepStats {
		total.Add(stats)
	}
	return total
}
