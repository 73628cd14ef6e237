package store

import (
	"context"

	"github.com/dodgybits/shuffle/internal/types"
)

// Store defines the interface contract for the local task store.
type Store interface {
	Contexts() *Table[types.Context]
	Projects() *Table[types.Project]
	Tasks() *Table[types.Task]
	GetStats(ctx context.Context) (*types.StoreStats, error)
	RecordSyncRun(ctx context.Context, run types.SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]types.SyncRun, error)
	GetSyncMeta(ctx context.Context, key string) (string, error)
	SetSyncMeta(ctx context.Context, key, value string) error
	Backup(ctx context.Context, path string) error
	Close() error
}
