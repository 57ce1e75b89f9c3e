package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/foodfleet/seedkit/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrExecutionNotFound indicates a ledger lookup on an unknown execution id.
var ErrExecutionNotFound = errors.New("seed execution not found")

// ErrStatusConflict indicates an execution cannot transition to the requested
// state, e.g. Complete or Fail called twice on the same entry.
var ErrStatusConflict = errors.New("seed execution status conflict")

const defaultMaxListLimit = 100

type executionLedger struct {
	pool         *pgxpool.Pool
	maxListLimit int
}

// NewExecutionLedger wires a ledger backed by pgxpool. maxListLimit caps the
// page size of List; values <= 0 fall back to the default.
func NewExecutionLedger(pool *pgxpool.Pool, maxListLimit int) ExecutionLedger {
	if maxListLimit <= 0 {
		maxListLimit = defaultMaxListLimit
	}
	return &executionLedger{pool: pool, maxListLimit: maxListLimit}
}

func (r *executionLedger) Start(ctx context.Context, kind domain.ExecutionKind) (domain.SeedExecution, error) {
	id := uuid.New()

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO seed_executions (id, kind, status) VALUES ($1, $2, 'pending')`,
		id, string(kind),
	)
	if err != nil {
		return domain.SeedExecution{}, fmt.Errorf("insert seed execution: %w", err)
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE seed_executions SET status = 'running', started_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return domain.SeedExecution{}, fmt.Errorf("mark seed execution running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.SeedExecution{}, ErrStatusConflict
	}

	return r.Get(ctx, id)
}

func (r *executionLedger) Complete(ctx context.Context, id uuid.UUID, stats map[string]domain.StepStats) error {
	if stats == nil {
		stats = map[string]domain.StepStats{}
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal step stats: %w", err)
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE seed_executions
		 SET status = 'completed', step_stats = $2, finished_at = now()
		 WHERE id = $1 AND status = 'running'`,
		id, statsJSON,
	)
	if err != nil {
		return fmt.Errorf("mark seed execution completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *executionLedger) Fail(ctx context.Context, id uuid.UUID, message string, detail string) error {
	msg := pgtype.Text{}
	if message != "" {
		msg = pgtype.Text{String: message, Valid: true}
	}
	det := pgtype.Text{}
	if detail != "" {
		det = pgtype.Text{String: detail, Valid: true}
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE seed_executions
		 SET status = 'failed', error_message = $2, error_detail = $3, finished_at = now()
		 WHERE id = $1 AND status = 'running'`,
		id, msg, det,
	)
	if err != nil {
		return fmt.Errorf("mark seed execution failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *executionLedger) AttachBackup(ctx context.Context, id uuid.UUID, key string, sizeBytes int64) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE seed_executions SET backup_key = $2, backup_size_bytes = $3
		 WHERE id = $1 AND status = 'running'`,
		id, key, sizeBytes,
	)
	if err != nil {
		return fmt.Errorf("attach backup to seed execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

const executionColumns = `id, kind, status, step_stats, backup_key, backup_size_bytes,
	error_message, error_detail, started_at, finished_at, created_at`

func (r *executionLedger) Get(ctx context.Context, id uuid.UUID) (domain.SeedExecution, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+executionColumns+` FROM seed_executions WHERE id = $1`,
		id,
	)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SeedExecution{}, fmt.Errorf("execution %s: %w", id, ErrExecutionNotFound)
		}
		return domain.SeedExecution{}, fmt.Errorf("get seed execution: %w", err)
	}
	return execution, nil
}

// List returns executions most-recent-first. limit is capped at the
// configured maximum; skip < 0 is treated as 0.
func (r *executionLedger) List(ctx context.Context, skip int, limit int) ([]domain.SeedExecution, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > r.maxListLimit {
		limit = r.maxListLimit
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+executionColumns+` FROM seed_executions
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list seed executions: %w", err)
	}
	defer rows.Close()

	executions := []domain.SeedExecution{}
	for rows.Next() {
		execution, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan seed execution: %w", scanErr)
		}
		executions = append(executions, execution)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate seed executions: %w", rowsErr)
	}

	return executions, nil
}

func (r *executionLedger) FailStale(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE seed_executions
		 SET status = 'failed',
		     error_message = 'interrupted: process exited mid-run',
		     finished_at = now()
		 WHERE status = 'running' AND started_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("fail stale seed executions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanExecution(row pgx.Row) (domain.SeedExecution, error) {
	var (
		execution  domain.SeedExecution
		kind       string
		status     string
		statsJSON  []byte
		backupKey  pgtype.Text
		backupSize pgtype.Int8
		errMessage pgtype.Text
		errDetail  pgtype.Text
		startedAt  pgtype.Timestamptz
		finishedAt pgtype.Timestamptz
		createdAt  pgtype.Timestamptz
	)

	if err := row.Scan(
		&execution.ID,
		&kind,
		&status,
		&statsJSON,
		&backupKey,
		&backupSize,
		&errMessage,
		&errDetail,
		&startedAt,
		&finishedAt,
		&createdAt,
	); err != nil {
		return domain.SeedExecution{}, err
	}

	execution.Kind = domain.ExecutionKind(kind)
	execution.Status = domain.ExecutionStatus(status)

	execution.StepStats = map[string]domain.StepStats{}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &execution.StepStats); err != nil {
			return domain.SeedExecution{}, fmt.Errorf("unmarshal step stats: %w", err)
		}
	}

	if backupKey.Valid {
		value := backupKey.String
		execution.BackupKey = &value
	}
	if backupSize.Valid {
		value := backupSize.Int64
		execution.BackupSizeBytes = &value
	}
	if errMessage.Valid {
		value := errMessage.String
		execution.ErrorMessage = &value
	}
	if errDetail.Valid {
		value := errDetail.String
		execution.ErrorDetail = &value
	}
	if startedAt.Valid {
		value := startedAt.Time
		execution.StartedAt = &value
	}
	if finishedAt.Valid {
		value := finishedAt.Time
		execution.FinishedAt = &value
	}
	if createdAt.Valid {
		execution.CreatedAt = createdAt.Time
	}

	return execution, nil
}
