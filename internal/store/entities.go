package store

import (
	"database/sql"

	"github.com/dodgybits/shuffle/internal/types"
)

var contextSchema = tableSchema[types.Context]{
	name:        "contexts",
	labelColumn: "name",
	columns:     []string{"name", "colour_index", "icon", "active", "deleted", "modified_at"},
	values: func(c types.Context) []any {
		return []any{c.Name, c.ColourIndex, c.Icon, c.Active, c.Deleted, formatTime(c.ModifiedAt)}
	},
	scan: func(s rowScanner) (types.Context, error) {
		var c types.Context
		var remoteID sql.NullInt64
		var modifiedAt string
		err := s.Scan(&c.LocalID, &remoteID, &c.Name, &c.ColourIndex, &c.Icon,
			&c.Active, &c.Deleted, &modifiedAt)
		if err != nil {
			return types.Context{}, err
		}
		c.RemoteID = scanID(remoteID)
		c.ModifiedAt = parseTime(modifiedAt)
		return c, nil
	},
	withLocalID: func(c types.Context, id types.ID) types.Context {
		c.LocalID = id
		return c
	},
}

var projectSchema = tableSchema[types.Project]{
	name:        "projects",
	labelColumn: "name",
	columns: []string{"name", "default_context_id", "parallel", "archived",
		"active", "deleted", "modified_at"},
	values: func(p types.Project) []any {
		return []any{p.Name, nullableID(p.DefaultContextID), p.Parallel, p.Archived,
			p.Active, p.Deleted, formatTime(p.ModifiedAt)}
	},
	scan: func(s rowScanner) (types.Project, error) {
		var p types.Project
		var remoteID, defaultContextID sql.NullInt64
		var modifiedAt string
		err := s.Scan(&p.LocalID, &remoteID, &p.Name, &defaultContextID,
			&p.Parallel, &p.Archived, &p.Active, &p.Deleted, &modifiedAt)
		if err != nil {
			return types.Project{}, err
		}
		p.RemoteID = scanID(remoteID)
		p.DefaultContextID = scanID(defaultContextID)
		p.ModifiedAt = parseTime(modifiedAt)
		return p, nil
	},
	withLocalID: func(p types.Project, id types.ID) types.Project {
		p.LocalID = id
		return p
	},
}

var taskSchema = tableSchema[types.Task]{
	name:        "tasks",
	labelColumn: "description",
	columns: []string{"description", "details", "project_id", "context_id", "display_order",
		"complete", "active", "deleted", "due_at", "modified_at"},
	values: func(t types.Task) []any {
		var dueAt any
		if t.DueAt != nil {
			dueAt = formatTime(*t.DueAt)
		}
		return []any{t.Description, t.Details, nullableID(t.ProjectID), nullableID(t.ContextID),
			t.Order, t.Complete, t.Active, t.Deleted, dueAt, formatTime(t.ModifiedAt)}
	},
	scan: func(s rowScanner) (types.Task, error) {
		var t types.Task
		var remoteID, projectID, contextID sql.NullInt64
		var dueAt sql.NullString
		var modifiedAt string
		err := s.Scan(&t.LocalID, &remoteID, &t.Description, &t.Details, &projectID, &contextID,
			&t.Order, &t.Complete, &t.Active, &t.Deleted, &dueAt, &modifiedAt)
		if err != nil {
			return types.Task{}, err
		}
		t.RemoteID = scanID(remoteID)
		t.ProjectID = scanID(projectID)
		t.ContextID = scanID(contextID)
		if dueAt.Valid && dueAt.String != "" {
			due := parseTime(dueAt.String)
			t.DueAt = &due
		}
		t.ModifiedAt = parseTime(modifiedAt)
		return t, nil
	},
	withLocalID: func(t types.Task, id types.ID) types.Task {
		t.LocalID = id
		return t
	},
}
