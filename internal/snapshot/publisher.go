package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// archiveLayout names timestamped backup objects.
const archiveLayout = "20060102T150405Z"

// BackupStore writes a consistent copy of the database to a file.
type BackupStore interface {
	Backup(ctx context.Context, path string) error
}

// Publisher backs up the store and uploads the copy twice: once as
// CurrentName and once under a timestamped archive name.
type Publisher struct {
	store    BackupStore
	uploader Uploader
	now      func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(store BackupStore, uploader Uploader) *Publisher {
	return &Publisher{store: store, uploader: uploader, now: time.Now}
}

// ArchiveName returns the object name of a backup taken at t.
func ArchiveName(t time.Time) string {
	return "archive/" + t.UTC().Format(archiveLayout) + ".db"
}

// Publish takes a backup and uploads it.
func (p *Publisher) Publish(ctx context.Context) error {
	start := p.now()

	dir, err := os.MkdirTemp("", "shuffle-backup-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, CurrentName)
	if err := p.store.Backup(ctx, file); err != nil {
		return fmt.Errorf("backup store: %w", err)
	}

	archive := ArchiveName(start)
	for _, name := range []string{archive, CurrentName} {
		if err := p.uploader.Upload(ctx, name, file); err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
	}

	slog.Info("backup published",
		"component", "snapshot",
		"action", "backup_published",
		"object", archive,
		"duration_ms", p.now().Sub(start).Milliseconds(),
	)
	return nil
}
