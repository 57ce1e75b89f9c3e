package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/foodfleet/seedkit/internal/backup"
	"github.com/foodfleet/seedkit/internal/config"
	"github.com/foodfleet/seedkit/internal/db"
	"github.com/foodfleet/seedkit/internal/objectstore"
	"github.com/foodfleet/seedkit/internal/repository"
	"github.com/foodfleet/seedkit/internal/seeder"
)

// Runs started before this long ago and still marked running are assumed to
// belong to a crashed process.
const staleRunCutoff = time.Hour

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// Run migrations before opening the pool the service uses.
	if err := db.RunMigrations(cfg.Database); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	ledger := repository.NewExecutionLedger(conn.Pool, cfg.Seeder.MaxListLimit)

	// Reconcile ledger entries left behind by a crashed run.
	if swept, err := ledger.FailStale(ctx, time.Now().Add(-staleRunCutoff)); err != nil {
		logger.Warn("failed to reconcile stale executions", zap.Error(err))
	} else if swept > 0 {
		logger.Info("marked stale executions as failed", zap.Int("count", swept))
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

	mux := http.NewServeMux()
	mux.Handle("/api/seeder/", seeder.NewHTTPHandler(orchestrator, ledger))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  15 * time.Second,
		// Seed and restore runs hold the request open until they finish.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting seeder API", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
