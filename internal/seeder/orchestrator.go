// Package seeder runs the ordered seed steps inside one transaction, with
// optional pre-run backup and a durable execution ledger.
package seeder

import (
	"context"
	"errors"
	"fmt"

	"github.com/foodfleet/seedkit/internal/backup"
	"github.com/foodfleet/seedkit/internal/domain"
	"github.com/foodfleet/seedkit/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrStepExecution indicates a seed step raised during a run. The whole run
// was rolled back; no partial writes survive.
var ErrStepExecution = errors.New("seed step execution failed")

// ErrInvalidRestoreRequest indicates both a key and an execution id were
// given; at most one may be set.
var ErrInvalidRestoreRequest = errors.New("specify at most one of snapshot key and execution id")

// BackupStore is the snapshot surface the orchestrator depends on.
// *backup.Store satisfies it.
type BackupStore interface {
	Create(ctx context.Context, tables []string, executionID uuid.UUID) (domain.Snapshot, error)
	Restore(ctx context.Context, key string) (domain.RestoreResult, error)
	LatestKey(ctx context.Context) (string, error)
}

// TxRunner executes a function inside one database transaction.
// *db.Connection satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// RunLocker serializes runs across processes. A nil locker disables locking.
type RunLocker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Orchestrator coordinates seed runs: ledger bookkeeping, optional backup,
// sequential step execution under a single transaction, and restore.
type Orchestrator struct {
	steps   []SeedStep
	ledger  repository.ExecutionLedger
	backups BackupStore
	runner  TxRunner
	locker  RunLocker
	logger  *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRunLocker serializes Execute, Reset and Restore across processes.
func WithRunLocker(locker RunLocker) Option {
	return func(o *Orchestrator) {
		o.locker = locker
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator wires an orchestrator with an explicit, statically ordered
// step list. There is no runtime registration; misordering steps is a
// configuration error.
func NewOrchestrator(steps []SeedStep, ledger repository.ExecutionLedger, backups BackupStore, runner TxRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		steps:   steps,
		ledger:  ledger,
		backups: backups,
		runner:  runner,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs every seed step in declared order inside one transaction.
// When createBackup is set, a snapshot is written first; backup failure is
// logged and the run continues without a backup reference.
func (o *Orchestrator) Execute(ctx context.Context, createBackup bool) (domain.SeedExecution, error) {
	release, err := o.lock(ctx)
	if err != nil {
		return domain.SeedExecution{}, err
	}
	defer release()

	return o.run(ctx, domain.ExecutionKindInitial, createBackup, false)
}

// Reset deletes every row the registered steps manage (reverse dependency
// order) and reseeds, all inside the run's single transaction. A snapshot of
// the pre-reset data is always taken first and, unlike a plain Execute,
// a backup failure aborts the reset: wiping data without a safety copy is
// not acceptable. Privilege checks are the caller's responsibility.
func (o *Orchestrator) Reset(ctx context.Context) (domain.SeedExecution, error) {
	release, err := o.lock(ctx)
	if err != nil {
		return domain.SeedExecution{}, err
	}
	defer release()

	return o.run(ctx, domain.ExecutionKindReset, true, true)
}

// RestoreRequest selects the snapshot to restore. At most one selector may
// be set; with neither, the most recent snapshot by key ordering is used.
type RestoreRequest struct {
	Key         string
	ExecutionID *uuid.UUID
}

// Restore replaces the seed-managed tables with the contents of a snapshot
// and records the operation in the ledger.
func (o *Orchestrator) Restore(ctx context.Context, req RestoreRequest) (domain.RestoreResult, error) {
	if req.Key != "" && req.ExecutionID != nil {
		return domain.RestoreResult{}, ErrInvalidRestoreRequest
	}

	release, err := o.lock(ctx)
	if err != nil {
		return domain.RestoreResult{}, err
	}
	defer release()

	key := req.Key
	switch {
	case req.ExecutionID != nil:
		execution, getErr := o.ledger.Get(ctx, *req.ExecutionID)
		if getErr != nil {
			return domain.RestoreResult{}, getErr
		}
		if execution.BackupKey == nil {
			return domain.RestoreResult{}, fmt.Errorf("execution %s has no backup reference: %w", execution.ID, backup.ErrSnapshotNotFound)
		}
		key = *execution.BackupKey
	case key == "":
		latest, latestErr := o.backups.LatestKey(ctx)
		if latestErr != nil {
			return domain.RestoreResult{}, latestErr
		}
		key = latest
	}

	execution, err := o.ledger.Start(ctx, domain.ExecutionKindRestore)
	if err != nil {
		return domain.RestoreResult{}, fmt.Errorf("start ledger entry: %w", err)
	}

	o.logger.Info("restore started",
		zap.String("execution_id", execution.ID.String()),
		zap.String("key", key),
	)

	result, err := o.backups.Restore(ctx, key)
	if err != nil {
		o.failLedger(ctx, execution.ID, err)
		return domain.RestoreResult{}, err
	}

	if attachErr := o.ledger.AttachBackup(ctx, execution.ID, key, result.SizeBytes); attachErr != nil {
		o.logger.Warn("failed to record restored snapshot on ledger entry", zap.Error(attachErr))
	}

	stats := map[string]domain.StepStats{
		"Restore": {Created: result.RowsRestored, Deleted: result.RowsDeleted},
	}
	if err := o.ledger.Complete(ctx, execution.ID, stats); err != nil {
		return domain.RestoreResult{}, fmt.Errorf("complete ledger entry: %w", err)
	}

	return result, nil
}

// run is the shared Execute/Reset path. The ledger entry lives outside the
// seeding transaction, so a rolled-back run still leaves its failed entry
// behind.
func (o *Orchestrator) run(ctx context.Context, kind domain.ExecutionKind, createBackup bool, wipe bool) (domain.SeedExecution, error) {
	execution, err := o.ledger.Start(ctx, kind)
	if err != nil {
		return domain.SeedExecution{}, fmt.Errorf("start ledger entry: %w", err)
	}

	o.logger.Info("seed run started",
		zap.String("execution_id", execution.ID.String()),
		zap.String("kind", string(kind)),
		zap.Bool("backup", createBackup),
	)

	if createBackup {
		snapshot, backupErr := o.backups.Create(ctx, o.managedTables(), execution.ID)
		switch {
		case backupErr != nil && wipe:
			// Refuse to destroy data without a safety copy.
			err := fmt.Errorf("pre-reset backup: %w", backupErr)
			o.failLedger(ctx, execution.ID, err)
			return domain.SeedExecution{}, err
		case backupErr != nil:
			o.logger.Warn("pre-seed backup failed, continuing without a backup reference",
				zap.String("execution_id", execution.ID.String()),
				zap.Error(backupErr),
			)
		default:
			if attachErr := o.ledger.AttachBackup(ctx, execution.ID, snapshot.Key, snapshot.SizeBytes); attachErr != nil {
				o.logger.Warn("failed to record backup on ledger entry", zap.Error(attachErr))
			}
		}
	}

	stats := map[string]domain.StepStats{}
	err = o.runner.WithTx(ctx, func(tx pgx.Tx) error {
		if wipe {
			if wipeErr := o.wipe(ctx, tx, stats); wipeErr != nil {
				return wipeErr
			}
		}

		for _, step := range o.steps {
			stepStats, stepErr := step.Run(ctx, tx)
			if stepErr != nil {
				return fmt.Errorf("step %s: %w", step.Name(), stepErr)
			}

			merged := stats[step.Name()]
			merged.Add(stepStats)
			stats[step.Name()] = merged

			o.logger.Info("seed step completed",
				zap.String("step", step.Name()),
				zap.Int("created", stepStats.Created),
				zap.Int("updated", stepStats.Updated),
				zap.Int("deleted", stepStats.Deleted),
			)
		}
		return nil
	})
	if err != nil {
		// The transaction has already rolled back; persist the failure after.
		o.failLedger(ctx, execution.ID, err)
		o.logger.Error("seed run failed",
			zap.String("execution_id", execution.ID.String()),
			zap.Error(err),
		)
		return domain.SeedExecution{}, fmt.Errorf("%w: %w", ErrStepExecution, err)
	}

	if err := o.ledger.Complete(ctx, execution.ID, stats); err != nil {
		return domain.SeedExecution{}, fmt.Errorf("complete ledger entry: %w", err)
	}

	completed, err := o.ledger.Get(ctx, execution.ID)
	if err != nil {
		return domain.SeedExecution{}, err
	}

	o.logger.Info("seed run completed",
		zap.String("execution_id", completed.ID.String()),
		zap.Int("created", completed.Totals().Created),
		zap.Int("updated", completed.Totals().Updated),
		zap.Int("deleted", completed.Totals().Deleted),
	)

	return completed, nil
}

// wipe deletes every managed row in reverse dependency order and records the
// counts against the owning steps.
func (o *Orchestrator) wipe(ctx context.Context, tx pgx.Tx, stats map[string]domain.StepStats) error {
	type owned struct {
		table string
		step  string
	}

	ordered := []owned{}
	seen := map[string]bool{}
	for _, step := range o.steps {
		for _, table := range step.Tables() {
			if !seen[table] {
				ordered = append(ordered, owned{table: table, step: step.Name()})
				seen[table] = true
			}
		}
	}

	for i := len(ordered) - 1; i >= 0; i-- {
		tag, err := tx.Exec(ctx, "DELETE FROM "+ordered[i].table)
		if err != nil {
			return fmt.Errorf("clear table %s: %w", ordered[i].table, err)
		}
		merged := stats[ordered[i].step]
		merged.Deleted += int(tag.RowsAffected())
		stats[ordered[i].step] = merged
	}

	return nil
}

func (o *Orchestrator) managedTables() []string {
	return ManagedTables(o.steps)
}

func (o *Orchestrator) lock(ctx context.Context) (func(), error) {
	if o.locker == nil {
		return func() {}, nil
	}
	return o.locker.Acquire(ctx)
}

func (o *Orchestrator) failLedger(ctx context.Context, id uuid.UUID, cause error) {
	if failErr := o.ledger.Fail(ctx, id, cause.Error(), fmt.Sprintf("%+v", cause)); failErr != nil {
		o.logger.Error("failed to persist ledger failure",
			zap.String("execution_id", id.String()),
			zap.Error(failErr),
		)
	}
}
