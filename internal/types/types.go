package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// ID identifies an entity either in the local store or in the remote system.
// The zero value means the identifier has not been assigned.
type ID int64

// NoID is the absent identifier.
const NoID ID = 0

// IsSet reports whether the identifier has been assigned.
func (id ID) IsSet() bool {
	return id > 0
}

// String returns the decimal form of the identifier.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Identity carries the two identifiers every synced entity has.
type Identity struct {
	LocalID  ID `json:"local_id"`
	RemoteID ID `json:"remote_id,omitempty"`
}

// Local returns the identifier assigned by the local store.
func (i Identity) Local() ID { return i.LocalID }

// Remote returns the identifier assigned by the remote system.
func (i Identity) Remote() ID { return i.RemoteID }

// Entity is a synced domain record.
// Label is the human-readable name used as a secondary matching key.
type Entity interface {
	Local() ID
	Remote() ID
	Label() string
}

// Context is a place or mode in which tasks get done (e.g. "Home", "Phone").
type Context struct {
	Identity
	Name        string    `json:"name"`
	ColourIndex int       `json:"colour_index"`
	Icon        string    `json:"icon,omitempty"`
	Active      bool      `json:"active"`
	Deleted     bool      `json:"deleted"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// Label returns the context name.
func (c Context) Label() string { return c.Name }

// Project groups related tasks.
type Project struct {
	Identity
	Name string `json:"name"`
	// DefaultContextID is the local ID of the context new tasks inherit.
	DefaultContextID ID        `json:"default_context_id,omitempty"`
	Parallel         bool      `json:"parallel"`
	Archived         bool      `json:"archived"`
	Active           bool      `json:"active"`
	Deleted          bool      `json:"deleted"`
	ModifiedAt       time.Time `json:"modified_at"`
}

// Label returns the project name.
func (p Project) Label() string { return p.Name }

// Task is a single actionable item.
type Task struct {
	Identity
	Description string     `json:"description"`
	Details     string     `json:"details,omitempty"`
	ProjectID   ID         `json:"project_id,omitempty"`
	ContextID   ID         `json:"context_id,omitempty"`
	Order       int        `json:"order"`
	Complete    bool       `json:"complete"`
	Active      bool       `json:"active"`
	Deleted     bool       `json:"deleted"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	ModifiedAt  time.Time  `json:"modified_at"`
}

// Label returns the task description.
func (t Task) Label() string { return t.Description }

// SyncRun status values.
const (
	SyncStatusSucceeded = "succeeded"
	SyncStatusFailed    = "failed"
)

// SyncRun records the outcome of one sync cycle.
type SyncRun struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Added      int       `json:"added"`
	Updated    int       `json:"updated"`
	Reassigned int       `json:"reassigned"`
	Deleted    int       `json:"deleted"`
	Error      string    `json:"error,omitempty"`
}

// StoreStats holds aggregate store statistics.
type StoreStats struct {
	ContextCount int64      `json:"context_count"`
	ProjectCount int64      `json:"project_count"`
	TaskCount    int64      `json:"task_count"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string     `json:"status"`
	Version      string     `json:"version"`
	ContextCount int64      `json:"context_count"`
	ProjectCount int64      `json:"project_count"`
	TaskCount    int64      `json:"task_count"`
	LastSync     *time.Time `json:"last_sync"`
}

// ListResponse wraps a list of entities for API and CLI output.
type ListResponse[E any] struct {
	Items []E `json:"items"`
	Total int `json:"total"`
}

// MarshalJSON ensures a nil item slice marshals as [] not null.
func (l ListResponse[E]) MarshalJSON() ([]byte, error) {
	if l.Items == nil {
		l.Items = []E{}
	}
	type Alias ListResponse[E]
	return json.Marshal(Alias(l))
}
