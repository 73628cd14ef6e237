package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dodgybits/shuffle/internal/api"
	"github.com/dodgybits/shuffle/internal/config"
	"github.com/dodgybits/shuffle/internal/snapshot"
	"github.com/dodgybits/shuffle/internal/store"
	shufflesync "github.com/dodgybits/shuffle/internal/sync"
	"github.com/dodgybits/shuffle/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var (
	dbPathOverride string
	jsonOutput     bool
)

var rootCmd = &cobra.Command{
	Use:          "shuffle",
	Short:        "Shuffle - task list sync service",
	Long:         "Runs the sync API server. Subcommands apply deltas and inspect the local store without running the server.",
	Version:      Version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and SHUFFLE_DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(backupCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	// 3. Initialize logger
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("configuration loaded")
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Initialize backup storage
	uploader, err := snapshot.NewUploader(cfg.Backup)
	if err != nil {
		db.Close()
		return err
	}
	var publisher *snapshot.Publisher
	if cfg.Backup.Enabled() {
		publisher = snapshot.NewPublisher(db, uploader)
		slog.Info("backup storage initialized", "bucket", cfg.Backup.Bucket, "after_sync", cfg.Backup.AfterSync)
	}

	// 6. Initialize sync processor and HTTP router
	processor := newProcessor(cfg, db, publisher)
	handler := api.NewHandler(db, processor, cfg.Auth.APIKey, Version,
		api.WithUploader(uploader),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)
	router := api.NewRouter(handler)
	slog.Info("router initialized", "resolve_mode", cfg.Sync.ResolveMode)

	// 7. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 8. Background workers
	var wg sync.WaitGroup
	if publisher != nil && cfg.Backup.Interval > 0 {
		backups := worker.NewBackupWorker(publisher, time.Duration(cfg.Backup.Interval))
		startWorker(ctx, &wg, "backup", backups.Run)
	}

	// 9. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 11a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 11b. Wait for workers to complete
	wg.Wait()

	// 11c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// loadConfig loads configuration and applies the --db override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPathOverride != "" {
		cfg.Database.Path = dbPathOverride
	}
	return cfg, nil
}

// newProcessor builds the sync processor for db. When publisher is non-nil
// and after-sync backups are enabled, each successful cycle is published.
func newProcessor(cfg *config.Config, db *store.SQLiteStore, publisher *snapshot.Publisher) *shufflesync.Processor {
	opts := []shufflesync.ProcessorOption{
		shufflesync.WithResolveMode(shufflesync.ResolveMode(cfg.Sync.ResolveMode)),
		shufflesync.WithRecorder(db),
	}
	if publisher != nil && cfg.Backup.AfterSync {
		opts = append(opts, shufflesync.WithAfterSync(func(ctx context.Context, _ *shufflesync.Result) error {
			return publisher.Publish(ctx)
		}))
	}

	return shufflesync.NewProcessor(shufflesync.Gateways{
		Contexts: db.Contexts(),
		Projects: db.Projects(),
		Tasks:    db.Tasks(),
	}, opts...)
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
