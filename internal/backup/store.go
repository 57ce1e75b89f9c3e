// Package backup produces and restores point-in-time snapshots of the
// seed-managed tables. Snapshots live in an object store as gzip-compressed
// JSON documents keyed so that lexical order matches creation order.
package backup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/foodfleet/seedkit/internal/domain"
	"github.com/foodfleet/seedkit/internal/objectstore"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Querier is the read surface Create exports tables through.
// *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TxRunner executes a function inside one database transaction.
// *db.Connection satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Store reads and writes snapshots.
type Store struct {
	db      Querier
	runner  TxRunner
	objects objectstore.ObjectStore

	prefix string
	// tableOrder is the dependency order of the seed-managed tables.
	// Restore deletes in reverse of this order and inserts in this order.
	tableOrder []string

	logger *zap.Logger
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wires a backup store.
func NewStore(db Querier, runner TxRunner, objects objectstore.ObjectStore, prefix string, tableOrder []string, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &Store{
		db:         db,
		runner:     runner,
		objects:    objects,
		prefix:     strings.Trim(prefix, "/"),
		tableOrder: tableOrder,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Create exports every named table, compresses the document and writes it
// under a fresh time-ordered key. Fails with ErrBackupIO when the object
// store write fails; the caller decides whether that is fatal.
func (s *Store) Create(ctx context.Context, tables []string, executionID uuid.UUID) (domain.Snapshot, error) {
	doc := domain.SnapshotDocument{}
	for _, table := range tables {
		rows, err := s.exportTable(ctx, table)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("export table %s: %w", table, err)
		}
		doc[table] = rows
	}

	payload, err := encodeSnapshot(doc)
	if err != nil {
		return domain.Snapshot{}, err
	}

	createdAt := s.now().UTC()
	key := snapshotKey(s.prefix, createdAt, executionID)

	if err := s.objects.Put(ctx, key, payload); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", ErrBackupIO, err)
	}

	s.logger.Info("backup created",
		zap.String("key", key),
		zap.Int("size_bytes", len(payload)),
		zap.Int("tables", len(tables)),
	)

	return domain.Snapshot{
		Key:       key,
		SizeBytes: int64(len(payload)),
		Tables:    append([]string(nil), tables...),
		CreatedAt: createdAt,
	}, nil
}

// Restore replaces the contents of every table present in the snapshot
// inside one transaction: deletes in reverse dependency order, inserts in
// dependency order. Any mid-restore failure rolls back with the original
// data intact.
func (s *Store) Restore(ctx context.Context, key string) (domain.RestoreResult, error) {
	data, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrKeyNotFound) {
			return domain.RestoreResult{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
		}
		return domain.RestoreResult{}, fmt.Errorf("%w: %v", ErrRestore, err)
	}

	doc, err := decodeSnapshot(data)
	if err != nil {
		return domain.RestoreResult{}, fmt.Errorf("%w: %v", ErrRestore, err)
	}

	tables := s.orderTables(doc)
	result := domain.RestoreResult{Key: key, SizeBytes: int64(len(data))}

	err = s.runner.WithTx(ctx, func(tx pgx.Tx) error {
		for i := len(tables) - 1; i >= 0; i-- {
			tag, execErr := tx.Exec(ctx, "DELETE FROM "+tables[i])
			if execErr != nil {
				return fmt.Errorf("clear table %s: %w", tables[i], execErr)
			}
			result.RowsDeleted += int(tag.RowsAffected())
		}

		for _, table := range tables {
			inserted, insErr := insertRows(ctx, tx, table, doc[table])
			if insErr != nil {
				return insErr
			}
			result.RowsRestored += inserted
			result.TablesRestored++
		}
		return nil
	})
	if err != nil {
		return domain.RestoreResult{}, fmt.Errorf("%w: %v", ErrRestore, err)
	}

	s.logger.Info("restore completed",
		zap.String("key", key),
		zap.Int("tables", result.TablesRestored),
		zap.Int("rows", result.RowsRestored),
	)

	return result, nil
}

// LatestKey resolves the most recent snapshot by lexical key ordering.
func (s *Store) LatestKey(ctx context.Context) (string, error) {
	keys, err := s.objects.List(ctx, s.prefix+"/")
	if err != nil {
		return "", fmt.Errorf("list snapshots: %w", err)
	}
	if len(keys) == 0 {
		return "", ErrSnapshotNotFound
	}
	return keys[len(keys)-1], nil
}

// Fetch reads and decodes a snapshot without touching the database.
func (s *Store) Fetch(ctx context.Context, key string) (domain.SnapshotDocument, error) {
	data, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
		}
		return nil, fmt.Errorf("fetch snapshot %s: %w", key, err)
	}
	return decodeSnapshot(data)
}

func (s *Store) exportTable(ctx context.Context, table string) (domain.TableRows, error) {
	// Table names come from the static step definitions, never from input.
	rows, err := s.db.Query(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make([]string, len(rows.FieldDescriptions()))
	for i, fd := range rows.FieldDescriptions() {
		columns[i] = fd.Name
	}

	exported := domain.TableRows{}
	for rows.Next() {
		values, valErr := rows.Values()
		if valErr != nil {
			return nil, valErr
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		exported = append(exported, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return exported, nil
}

// orderTables returns the snapshot's tables in restore order: configured
// dependency order first, unknown tables appended alphabetically.
func (s *Store) orderTables(doc domain.SnapshotDocument) []string {
	seen := map[string]bool{}
	ordered := []string{}
	for _, table := range s.tableOrder {
		if _, ok := doc[table]; ok {
			ordered = append(ordered, table)
			seen[table] = true
		}
	}

	rest := []string{}
	for table := range doc {
		if !seen[table] {
			rest = append(rest, table)
		}
	}
	sort.Strings(rest)

	return append(ordered, rest...)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRows(ctx context.Context, tx execer, table string, rows domain.TableRows) (int, error) {
	inserted := 0
	for _, row := range rows {
		columns := make([]string, 0, len(row))
		for column := range row {
			columns = append(columns, column)
		}
		sort.Strings(columns)

		placeholders := make([]string, len(columns))
		args := make([]any, len(columns))
		for i, column := range columns {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = row[column]
		}

		sql := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			table,
			strings.Join(columns, ", "),
			strings.Join(placeholders, ", "),
		)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return inserted, fmt.Errorf("restore row into %s: %w", table, err)
		}
		inserted++
	}
	return inserted, nil
}
