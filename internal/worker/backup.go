// Package worker runs background jobs for the server.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// BackupPublisher takes and uploads a database backup.
type BackupPublisher interface {
	Publish(ctx context.Context) error
}

// BackupWorker publishes database backups on a fixed interval.
type BackupWorker struct {
	publisher BackupPublisher
	interval  time.Duration
}

// NewBackupWorker creates a worker with the given publisher and interval.
func NewBackupWorker(publisher BackupPublisher, interval time.Duration) *BackupWorker {
	return &BackupWorker{
		publisher: publisher,
		interval:  interval,
	}
}

// Run starts the worker loop. Publishes once on start, then on each
// interval, until ctx is cancelled. A publish already in progress runs
// to completion.
func (w *BackupWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "backup",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.publish(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "backup",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.publish(ctx)
		}
	}
}

func (w *BackupWorker) publish(ctx context.Context) {
	slog.Debug("backup started",
		"component", "worker",
		"action", "backup_start",
	)

	if err := w.publisher.Publish(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("backup failed",
			"component", "worker",
			"action", "backup_failed",
			"error", err,
		)
	}
}
