package db

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunInProgress indicates another seed run currently holds the advisory lock.
var ErrRunInProgress = errors.New("another seed run is already in progress")

// runLockKey is the advisory lock namespace shared by every seedkit process
// targeting the same database.
const runLockKey = "seedkit:run"

// RunLock holds a session-level Postgres advisory lock on a dedicated pooled
// connection. At most one run (execute, reset or restore) proceeds at a time;
// concurrent get-or-create against the same natural keys would otherwise race.
type RunLock struct {
	conn *pgxpool.Conn
	id   int64
}

// AcquireRunLock attempts to take the run lock without blocking. It fails
// with ErrRunInProgress when another process already holds it.
func AcquireRunLock(ctx context.Context, pool *pgxpool.Pool) (*RunLock, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for run lock: %w", err)
	}

	id := advisoryLockID(runLockKey)

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrRunInProgress
	}

	return &RunLock{conn: conn, id: id}, nil
}

// Release unlocks and returns the connection to the pool. Safe to call once.
func (l *RunLock) Release(ctx context.Context) {
	if l == nil || l.conn == nil {
		return
	}
	// Session locks are also released when the connection closes, so a failed
	// unlock is not fatal.
	_, _ = l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.id)
	l.conn.Release()
	l.conn = nil
}

// PoolRunLocker adapts AcquireRunLock to a closure-based locking surface.
type PoolRunLocker struct {
	Pool *pgxpool.Pool
}

// Acquire takes the run lock and returns its release function.
func (l PoolRunLocker) Acquire(ctx context.Context) (func(), error) {
	lock, err := AcquireRunLock(ctx, l.Pool)
	if err != nil {
		return nil, err
	}
	// Release against a fresh context so an aborted run still unlocks.
	return func() { lock.Release(context.Background()) }, nil
}

// advisoryLockID maps a lock name onto the signed 64-bit keyspace Postgres
// advisory locks use.
func advisoryLockID(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
