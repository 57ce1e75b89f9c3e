// seedctl drives database seeding from the command line.
//
//	seedctl                          run all seed steps (with backup)
//	seedctl --reset                  wipe seed-managed tables and reseed
//	seedctl --restore [--key KEY]    restore from a snapshot (latest by default)
//	seedctl executions               list recent seed runs
//	seedctl inspect --key KEY        render a snapshot to an Excel workbook
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foodfleet/seedkit/internal/backup"
	"github.com/foodfleet/seedkit/internal/config"
	"github.com/foodfleet/seedkit/internal/db"
	"github.com/foodfleet/seedkit/internal/domain"
	"github.com/foodfleet/seedkit/internal/objectstore"
	"github.com/foodfleet/seedkit/internal/repository"
	"github.com/foodfleet/seedkit/internal/seeder"
)

const staleRunCutoff = time.Hour

type app struct {
	ledger       repository.ExecutionLedger
	backups      *backup.Store
	orchestrator *seeder.Orchestrator
}

func newApp(ctx context.Context) (*app, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(".")
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}

	if err := db.RunMigrations(cfg.Database); err != nil {
		logger.Sync()
		return nil, nil, err
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}

	ledger := repository.NewExecutionLedger(conn.Pool, cfg.Seeder.MaxListLimit)
	if _, err := ledger.FailStale(ctx, time.Now().Add(-staleRunCutoff)); err != nil {
		logger.Warn("failed to reconcile stale executions", zap.Error(err))
	}

	steps := seeder.DefaultSteps()
	objects := objectstore.NewFSStore(afero.NewOsFs(), cfg.Backup.Dir)
	backups := backup.NewStore(conn.Pool, conn, objects, cfg.Backup.Prefix, seeder.ManagedTables(steps), logger)

	orchestrator := seeder.NewOrchestrator(
		steps,
		ledger,
		backups,
		conn,
		seeder.WithLogger(logger),
		seeder.WithRunLocker(db.PoolRunLocker{Pool: conn.Pool}),
	)

	cleanup := func() {
		conn.Close()
		logger.Sync()
	}

	return &app{
		ledger:       ledger,
		backups:      backups,
		orchestrator: orchestrator,
	}, cleanup, nil
}

func main() {
	var (
		resetFlag   bool
		restoreFlag bool
		keyFlag     string
		executionID string
		yesFlag     bool
	)

	root := &cobra.Command{
		Use:          "seedctl",
		Short:        "Seed, reset and restore the Food Fleet database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, cleanup, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			switch {
			case resetFlag:
				return runReset(ctx, application, yesFlag)
			case restoreFlag:
				return runRestore(ctx, application, keyFlag, executionID, yesFlag)
			default:
				return runSeed(ctx, application)
			}
		},
	}

	root.Flags().BoolVar(&resetFlag, "reset", false, "delete all seed-managed data and reseed")
	root.Flags().BoolVar(&restoreFlag, "restore", false, "restore from a snapshot")
	root.Flags().StringVar(&keyFlag, "key", "", "snapshot key to restore (with --restore)")
	root.Flags().StringVar(&executionID, "execution", "", "execution id whose backup to restore (with --restore)")
	root.Flags().BoolVar(&yesFlag, "yes", false, "skip confirmation prompts")

	root.AddCommand(newExecutionsCmd(), newInspectCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runSeed(ctx context.Context, application *app) error {
	fmt.Println("Starting database seeding...")

	execution, err := application.orchestrator.Execute(ctx, true)
	if err != nil {
		return err
	}

	fmt.Println("Seeding completed.")
	printExecution(execution)
	return nil
}

func runReset(ctx context.Context, application *app, yes bool) error {
	if !yes && !confirm("This will DELETE all seed-managed data and reseed. Type 'RESET' to confirm: ", "RESET") {
		fmt.Println("Reset cancelled.")
		return nil
	}

	fmt.Println("Starting database reset...")

	execution, err := application.orchestrator.Reset(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Reset completed.")
	printExecution(execution)
	return nil
}

func runRestore(ctx context.Context, application *app, key string, executionID string, yes bool) error {
	req := seeder.RestoreRequest{Key: strings.TrimSpace(key)}
	if raw := strings.TrimSpace(executionID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid --execution value: %w", err)
		}
		req.ExecutionID = &id
	}

	if !yes && !confirm("This will REPLACE current data with the snapshot. Type 'RESTORE' to confirm: ", "RESTORE") {
		fmt.Println("Restore cancelled.")
		return nil
	}

	fmt.Println("Starting database restore...")

	result, err := application.orchestrator.Restore(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Restore completed from %s\n", result.Key)
	fmt.Printf("  tables restored: %d\n", result.TablesRestored)
	fmt.Printf("  rows restored:   %d\n", result.RowsRestored)
	return nil
}

func newExecutionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List recent seed executions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, cleanup, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			executions, err := application.ledger.List(ctx, 0, limit)
			if err != nil {
				return err
			}

			for _, execution := range executions {
				totals := execution.Totals()
				backupKey := "-"
				if execution.BackupKey != nil {
					backupKey = *execution.BackupKey
				}
				fmt.Printf("%s  %-8s %-9s created=%-4d updated=%-4d deleted=%-4d backup=%s\n",
					execution.ID, execution.Kind, execution.Status,
					totals.Created, totals.Updated, totals.Deleted, backupKey)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of executions to show")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var (
		key string
		out string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Render a snapshot to an Excel workbook for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, cleanup, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			resolved := strings.TrimSpace(key)
			if resolved == "" {
				resolved, err = application.backups.LatestKey(ctx)
				if err != nil {
					return err
				}
			}

			doc, err := application.backups.Fetch(ctx, resolved)
			if err != nil {
				return err
			}

			workbook, err := backup.RenderWorkbook(doc)
			if err != nil {
				return err
			}
			if err := workbook.SaveAs(out); err != nil {
				return fmt.Errorf("save workbook: %w", err)
			}

			fmt.Printf("Wrote %s from snapshot %s\n", out, resolved)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "snapshot key (latest when omitted)")
	cmd.Flags().StringVar(&out, "out", "snapshot.xlsx", "output workbook path")
	return cmd
}

func printExecution(execution domain.SeedExecution) {
	if execution.BackupKey != nil {
		fmt.Printf("Backup created: %s\n", *execution.BackupKey)
	}
	fmt.Println("Results:")
	for _, step := range seeder.DefaultSteps() {
		stats, ok := execution.StepStats[step.Name()]
		if !ok {
			continue
		}
		fmt.Printf("  %-13s created=%-4d updated=%-4d deleted=%-4d\n",
			step.Name(), stats.Created, stats.Updated, stats.Deleted)
	}
	totals := execution.Totals()
	fmt.Printf("Total: created=%d updated=%d deleted=%d\n",
		totals.Created, totals.Updated, totals.Deleted)
}

func confirm(prompt string, expected string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == expected
}
