package sync

import (
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/dodgybits/shuffle/internal/types"
	"github.com/dodgybits/shuffle/internal/validation"
)

const (
	maxNameLength        = 255
	maxDescriptionLength = 1024
	maxDetailsLength     = 16384
	maxIconLength        = 255
	maxColourIndex       = 63
)

// Translator converts wire records into domain entities.
type Translator[W any, E types.Entity] interface {
	FromMessage(msg W) (E, error)
}

// unresolvedCounter is implemented by translators that resolve references.
type unresolvedCounter interface {
	Unresolved() int
}

// cleanLabel trims and NFC-normalizes a label so the same name always
// matches itself in the store and in directories.
func cleanLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// resolveRef maps a remote reference to the local id of the referenced entity.
// Returns NoID when the reference is absent or cannot be resolved.
func resolveRef[E types.Entity](loc Locator[E], ref types.ID, field string, unresolved *int) types.ID {
	if !ref.IsSet() {
		return types.NoID
	}
	if loc != nil {
		if e, ok := loc.FindByID(ref); ok && e.Local().IsSet() {
			return e.Local()
		}
	}
	*unresolved++
	slog.Debug("unresolved reference",
		"component", "sync",
		"field", field,
		"remote_id", ref,
	)
	return types.NoID
}

// ContextTranslator translates context messages.
type ContextTranslator struct{}

// NewContextTranslator creates a ContextTranslator.
func NewContextTranslator() *ContextTranslator {
	return &ContextTranslator{}
}

// FromMessage validates and converts a ContextMessage.
func (t *ContextTranslator) FromMessage(msg ContextMessage) (types.Context, error) {
	var c validation.Collector
	c.Add(validation.ValidatePositiveID("remote_id", int64(msg.RemoteID)))
	c.Add(validation.ValidateNonNegativeID("device_id", int64(msg.DeviceID)))
	c.Add(validation.ValidateRequired("name", msg.Name))
	validation.ValidateText(&c, "name", msg.Name, maxNameLength)
	validation.ValidateText(&c, "icon", msg.Icon, maxIconLength)
	c.Add(validation.ValidateIntRange("colour_index", msg.ColourIndex, 0, maxColourIndex))
	if c.HasErrors() {
		return types.Context{}, &TranslationError{Kind: "context", RemoteID: msg.RemoteID, Errors: c.Errors()}
	}

	return types.Context{
		Identity:    types.Identity{LocalID: msg.DeviceID, RemoteID: msg.RemoteID},
		Name:        cleanLabel(msg.Name),
		ColourIndex: msg.ColourIndex,
		Icon:        msg.Icon,
		Active:      msg.Active,
		Deleted:     msg.Deleted,
		ModifiedAt:  fromMillis(msg.Modified),
	}, nil
}

// ProjectTranslator translates project messages, resolving the default
// context through the context locator.
type ProjectTranslator struct {
	contexts   Locator[types.Context]
	unresolved int
}

// NewProjectTranslator creates a ProjectTranslator.
// contexts may be nil, in which case every context reference is unresolved.
func NewProjectTranslator(contexts Locator[types.Context]) *ProjectTranslator {
	return &ProjectTranslator{contexts: contexts}
}

// FromMessage validates and converts a ProjectMessage.
func (t *ProjectTranslator) FromMessage(msg ProjectMessage) (types.Project, error) {
	var c validation.Collector
	c.Add(validation.ValidatePositiveID("remote_id", int64(msg.RemoteID)))
	c.Add(validation.ValidateNonNegativeID("device_id", int64(msg.DeviceID)))
	c.Add(validation.ValidateNonNegativeID("default_context_id", int64(msg.DefaultContextID)))
	c.Add(validation.ValidateRequired("name", msg.Name))
	validation.ValidateText(&c, "name", msg.Name, maxNameLength)
	if c.HasErrors() {
		return types.Project{}, &TranslationError{Kind: "project", RemoteID: msg.RemoteID, Errors: c.Errors()}
	}

	return types.Project{
		Identity:         types.Identity{LocalID: msg.DeviceID, RemoteID: msg.RemoteID},
		Name:             cleanLabel(msg.Name),
		DefaultContextID: resolveRef(t.contexts, msg.DefaultContextID, "default_context_id", &t.unresolved),
		Parallel:         msg.Parallel,
		Archived:         msg.Archived,
		Active:           msg.Active,
		Deleted:          msg.Deleted,
		ModifiedAt:       fromMillis(msg.Modified),
	}, nil
}

// Unresolved returns how many context references could not be resolved.
func (t *ProjectTranslator) Unresolved() int {
	return t.unresolved
}

// TaskTranslator translates task messages, resolving project and context
// references.
type TaskTranslator struct {
	projects   Locator[types.Project]
	contexts   Locator[types.Context]
	unresolved int
}

// NewTaskTranslator creates a TaskTranslator.
func NewTaskTranslator(projects Locator[types.Project], contexts Locator[types.Context]) *TaskTranslator {
	return &TaskTranslator{projects: projects, contexts: contexts}
}

// FromMessage validates and converts a TaskMessage.
func (t *TaskTranslator) FromMessage(msg TaskMessage) (types.Task, error) {
	var c validation.Collector
	c.Add(validation.ValidatePositiveID("remote_id", int64(msg.RemoteID)))
	c.Add(validation.ValidateNonNegativeID("device_id", int64(msg.DeviceID)))
	c.Add(validation.ValidateNonNegativeID("project_id", int64(msg.ProjectID)))
	c.Add(validation.ValidateNonNegativeID("context_id", int64(msg.ContextID)))
	c.Add(validation.ValidateRequired("description", msg.Description))
	validation.ValidateText(&c, "description", msg.Description, maxDescriptionLength)
	validation.ValidateText(&c, "details", msg.Details, maxDetailsLength)
	if c.HasErrors() {
		return types.Task{}, &TranslationError{Kind: "task", RemoteID: msg.RemoteID, Errors: c.Errors()}
	}

	task := types.Task{
		Identity:    types.Identity{LocalID: msg.DeviceID, RemoteID: msg.RemoteID},
		Description: cleanLabel(msg.Description),
		Details:     msg.Details,
		ProjectID:   resolveRef(t.projects, msg.ProjectID, "project_id", &t.unresolved),
		ContextID:   resolveRef(t.contexts, msg.ContextID, "context_id", &t.unresolved),
		Order:       msg.Order,
		Complete:    msg.Complete,
		Active:      msg.Active,
		Deleted:     msg.Deleted,
		ModifiedAt:  fromMillis(msg.Modified),
	}
	if msg.Due != 0 {
		due := fromMillis(msg.Due)
		task.DueAt = &due
	}
	return task, nil
}

// Unresolved returns how many references could not be resolved.
func (t *TaskTranslator) Unresolved() int {
	return t.unresolved
}
