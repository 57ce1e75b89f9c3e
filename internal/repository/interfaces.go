package repository

import (
	"context"
	"time"

	"github.com/foodfleet/seedkit/internal/domain"

	"github.com/google/uuid"
)

// ExecutionLedger defines the durable audit trail of seed runs.
//
// Lifecycle: Start inserts a pending entry and promotes it to running.
// Complete and Fail each set the terminal fields exactly once; a second
// terminal transition is a programming error surfaced as ErrStatusConflict.
type ExecutionLedger interface {
	Start(ctx context.Context, kind domain.ExecutionKind) (domain.SeedExecution, error)
	Complete(ctx context.Context, id uuid.UUID, stats map[string]domain.StepStats) error
	Fail(ctx context.Context, id uuid.UUID, message string, detail string) error

	// AttachBackup records the snapshot created just before the run mutated
	// anything. Valid only while the execution is still running.
	AttachBackup(ctx context.Context, id uuid.UUID, key string, sizeBytes int64) error

	Get(ctx context.Context, id uuid.UUID) (domain.SeedExecution, error)
	List(ctx context.Context, skip int, limit int) ([]domain.SeedExecution, error)

	// FailStale marks executions stuck in running since before the cutoff as
	// failed. Reconciles entries left behind by a process crash.
	FailStale(ctx context.Context, olderThan time.Time) (int, error)
}
