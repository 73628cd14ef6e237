package sync

import (
	"time"

	"github.com/dodgybits/shuffle/internal/types"
)

// ContextMessage is the wire form of a context.
type ContextMessage struct {
	// DeviceID is the local id the remote system knows for this entity, if any.
	DeviceID    types.ID `json:"device_id,omitempty"`
	RemoteID    types.ID `json:"remote_id"`
	Name        string   `json:"name"`
	ColourIndex int      `json:"colour_index"`
	Icon        string   `json:"icon,omitempty"`
	Active      bool     `json:"active"`
	Deleted     bool     `json:"deleted"`
	Modified    int64    `json:"modified"` // unix millis
}

// ProjectMessage is the wire form of a project.
// DefaultContextID references a context by its remote id.
type ProjectMessage struct {
	DeviceID         types.ID `json:"device_id,omitempty"`
	RemoteID         types.ID `json:"remote_id"`
	Name             string   `json:"name"`
	DefaultContextID types.ID `json:"default_context_id,omitempty"`
	Parallel         bool     `json:"parallel"`
	Archived         bool     `json:"archived"`
	Active           bool     `json:"active"`
	Deleted          bool     `json:"deleted"`
	Modified         int64    `json:"modified"`
}

// TaskMessage is the wire form of a task.
// ProjectID and ContextID reference other entities by remote id.
type TaskMessage struct {
	DeviceID    types.ID `json:"device_id,omitempty"`
	RemoteID    types.ID `json:"remote_id"`
	Description string   `json:"description"`
	Details     string   `json:"details,omitempty"`
	ProjectID   types.ID `json:"project_id,omitempty"`
	ContextID   types.ID `json:"context_id,omitempty"`
	Order       int      `json:"order"`
	Complete    bool     `json:"complete"`
	Active      bool     `json:"active"`
	Deleted     bool     `json:"deleted"`
	Due         int64    `json:"due,omitempty"`
	Modified    int64    `json:"modified"`
}

// IDPair acknowledges a locally created entity with its new remote id.
type IDPair struct {
	DeviceID types.ID `json:"device_id"`
	RemoteID types.ID `json:"remote_id"`
}

// SyncResponse is the delta the remote system returns for one sync cycle.
type SyncResponse struct {
	SyncToken string `json:"sync_token,omitempty"`

	NewContexts             []ContextMessage `json:"new_contexts,omitempty"`
	ModifiedContexts        []ContextMessage `json:"modified_contexts,omitempty"`
	AddedContextIDPairs     []IDPair         `json:"added_context_id_pairs,omitempty"`
	DeletedContextRemoteIDs []types.ID       `json:"deleted_context_remote_ids,omitempty"`

	NewProjects             []ProjectMessage `json:"new_projects,omitempty"`
	ModifiedProjects        []ProjectMessage `json:"modified_projects,omitempty"`
	AddedProjectIDPairs     []IDPair         `json:"added_project_id_pairs,omitempty"`
	DeletedProjectRemoteIDs []types.ID       `json:"deleted_project_remote_ids,omitempty"`

	NewTasks             []TaskMessage `json:"new_tasks,omitempty"`
	ModifiedTasks        []TaskMessage `json:"modified_tasks,omitempty"`
	AddedTaskIDPairs     []IDPair      `json:"added_task_id_pairs,omitempty"`
	DeletedTaskRemoteIDs []types.ID    `json:"deleted_task_remote_ids,omitempty"`
}

// Delta is the four-way diff for a single entity type.
type Delta[W any] struct {
	New              []W
	Modified         []W
	AddedIDPairs     []IDPair
	DeletedRemoteIDs []types.ID
}

// Empty reports whether the delta carries no changes.
func (d Delta[W]) Empty() bool {
	return len(d.New) == 0 && len(d.Modified) == 0 &&
		len(d.AddedIDPairs) == 0 && len(d.DeletedRemoteIDs) == 0
}

// ContextDelta extracts the context changes.
func (r *SyncResponse) ContextDelta() Delta[ContextMessage] {
	return Delta[ContextMessage]{
		New:              r.NewContexts,
		Modified:         r.ModifiedContexts,
		AddedIDPairs:     r.AddedContextIDPairs,
		DeletedRemoteIDs: r.DeletedContextRemoteIDs,
	}
}

// ProjectDelta extracts the project changes.
func (r *SyncResponse) ProjectDelta() Delta[ProjectMessage] {
	return Delta[ProjectMessage]{
		New:              r.NewProjects,
		Modified:         r.ModifiedProjects,
		AddedIDPairs:     r.AddedProjectIDPairs,
		DeletedRemoteIDs: r.DeletedProjectRemoteIDs,
	}
}

// TaskDelta extracts the task changes.
func (r *SyncResponse) TaskDelta() Delta[TaskMessage] {
	return Delta[TaskMessage]{
		New:              r.NewTasks,
		Modified:         r.ModifiedTasks,
		AddedIDPairs:     r.AddedTaskIDPairs,
		DeletedRemoteIDs: r.DeletedTaskRemoteIDs,
	}
}

// fromMillis converts a unix millisecond timestamp; zero maps to the zero time.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Sync meta keys
const (
	SyncMetaLastSyncToken = "last_sync_token"
	SyncMetaLastSyncAt    = "last_sync_at"
)
