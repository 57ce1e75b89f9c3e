package seeder

import (
	"context"
	"fmt"
	"strings"

	"github.com/foodfleet/seedkit/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal query surface a seed step needs. pgx.Tx satisfies it,
// so every step of a run shares the one transaction the orchestrator opened;
// no step may open its own.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SeedStep is one idempotent unit of initial-data population. Steps execute
// in the exact order they are passed to the orchestrator; a step that reads
// another step's output must be declared strictly after it.
type SeedStep interface {
	Name() string

	// Tables returns the tables this step owns, in dependency order.
	// Reset and restore delete in the reverse of this order.
	Tables() []string

	Run(ctx context.Context, tx DBTX) (domain.StepStats, error)
}

// ManagedTables returns every table the steps own, deduplicated, in
// declared dependency order.
func ManagedTables(steps []SeedStep) []string {
	tables := []string{}
	seen := map[string]bool{}
	for _, step := range steps {
		for _, table := range step.Tables() {
			if !seen[table] {
				tables = append(tables, table)
				seen[table] = true
			}
		}
	}
	return tables
}

// upsertSpec is a pure data description of an idempotent insert: rows keyed
// by a natural unique key, applied uniformly with ON CONFLICT DO NOTHING.
type upsertSpec struct {
	Table      string
	Columns    []string
	KeyColumns []string
	Rows       [][]any
}

// buildUpsertSQL renders the single-row upsert statement for a spec.
func buildUpsertSQL(table string, columns []string, keyColumns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(keyColumns, ", "),
	)
}

// applyUpsert runs the spec row by row and reports how many rows were
// actually created. Re-running against already-seeded data creates nothing.
func applyUpsert(ctx context.Context, tx DBTX, spec upsertSpec) (int, error) {
	sql := buildUpsertSQL(spec.Table, spec.Columns, spec.KeyColumns)

	created := 0
	for _, row := range spec.Rows {
		if len(row) != len(spec.Columns) {
			return created, fmt.Errorf("row has %d values, expected %d columns for %s", len(row), len(spec.Columns), spec.Table)
		}
		tag, err := tx.Exec(ctx, sql, row...)
		if err != nil {
			return created, fmt.Errorf("upsert into %s: %w", spec.Table, err)
		}
		created += int(tag.RowsAffected())
	}

	return created, nil
}
