package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dodgybits/shuffle/internal/store"
	"github.com/dodgybits/shuffle/internal/types"
	"github.com/dodgybits/shuffle/internal/validation"
)

// ResolveMode selects how newly inserted entities are matched back to
// their persisted rows.
type ResolveMode string

const (
	// ResolveReturned uses the rows BulkInsert returns, in input order.
	ResolveReturned ResolveMode = "returned"

	// ResolveByName re-fetches inserted rows by name. Entities sharing a
	// name within one batch resolve to the last one processed.
	ResolveByName ResolveMode = "name"
)

// Stats counts what a reconciliation pass changed.
type Stats struct {
	Added         int `json:"added"`
	Updated       int `json:"updated"`
	Reassigned    int `json:"reassigned"`
	Deleted       int `json:"deleted"`
	DeleteMissing int `json:"delete_missing"`
	Unresolved    int `json:"unresolved_references"`
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Added:         s.Added + o.Added,
		Updated:       s.Updated + o.Updated,
		Reassigned:    s.Reassigned + o.Reassigned,
		Deleted:       s.Deleted + o.Deleted,
		DeleteMissing: s.DeleteMissing + o.DeleteMissing,
		Unresolved:    s.Unresolved + o.Unresolved,
	}
}

// Reconciler applies a Delta for one entity type to a Gateway.
//
// A pass runs four phases in order: add new, apply modifications, stamp
// remote ids onto locally created entities, delete. Any translation or
// storage failure aborts the pass, as does a non-positive id in an
// identifier pair or the deleted list. During the delete phase a row that is
// already gone is counted and skipped.
//
// Passes over the same store must not run concurrently.
type Reconciler[W any, E types.Entity] struct {
	kind    string
	gateway Gateway[E]
	mode    ResolveMode
}

// NewReconciler creates a Reconciler for the named entity kind.
// An empty mode selects ResolveReturned.
func NewReconciler[W any, E types.Entity](kind string, gateway Gateway[E], mode ResolveMode) *Reconciler[W, E] {
	if mode == "" {
		mode = ResolveReturned
	}
	return &Reconciler[W, E]{kind: kind, gateway: gateway, mode: mode}
}

// Reconcile runs one pass and returns the directory of new and modified
// entities so passes for dependent entity types can resolve references.
func (r *Reconciler[W, E]) Reconcile(ctx context.Context, delta Delta[W], tr Translator[W, E]) (Locator[E], Stats, error) {
	dir := NewDirectory[E]()
	var stats Stats

	if err := r.addNew(ctx, delta.New, tr, dir, &stats); err != nil {
		return nil, stats, fmt.Errorf("add new %s: %w", r.kind, err)
	}
	if err := r.applyModified(ctx, delta.Modified, tr, dir, &stats); err != nil {
		return nil, stats, fmt.Errorf("update modified %s: %w", r.kind, err)
	}
	if err := r.assignRemoteIDs(ctx, delta.AddedIDPairs, &stats); err != nil {
		return nil, stats, fmt.Errorf("assign remote ids to %s: %w", r.kind, err)
	}
	if err := r.deleteMissing(ctx, delta.DeletedRemoteIDs, &stats); err != nil {
		return nil, stats, fmt.Errorf("delete missing %s: %w", r.kind, err)
	}

	if c, ok := tr.(unresolvedCounter); ok {
		stats.Unresolved = c.Unresolved()
	}
	return dir, stats, nil
}

func (r *Reconciler[W, E]) addNew(ctx context.Context, msgs []W, tr Translator[W, E], dir *Directory[E], stats *Stats) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := make([]E, 0, len(msgs))
	for i, msg := range msgs {
		e, err := tr.FromMessage(msg)
		if err != nil {
			return fmt.Errorf("translate item %d: %w", i, err)
		}
		batch = append(batch, e)
	}

	var err error
	if r.mode == ResolveByName {
		err = r.insertAndRefetch(ctx, batch, dir)
	} else {
		err = r.insertReturning(ctx, batch, dir)
	}
	if err != nil {
		return err
	}

	stats.Added = len(batch)
	slog.Debug("added new entities",
		"component", "sync",
		"kind", r.kind,
		"count", len(batch),
		"resolve_mode", string(r.mode),
	)
	return nil
}

func (r *Reconciler[W, E]) insertReturning(ctx context.Context, batch []E, dir *Directory[E]) error {
	persisted, err := r.gateway.BulkInsert(ctx, batch)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}
	if len(persisted) != len(batch) {
		return fmt.Errorf("%w: sent %d, got %d", ErrInsertCountMismatch, len(batch), len(persisted))
	}
	for i, saved := range persisted {
		dir.Add(batch[i].Remote(), saved.Label(), saved)
	}
	return nil
}

// insertAndRefetch registers the translated entities, inserts them, then
// looks the rows up by name to learn their local ids.
func (r *Reconciler[W, E]) insertAndRefetch(ctx context.Context, batch []E, dir *Directory[E]) error {
	names := make([]string, 0, len(batch))
	seen := make(map[string]bool, len(batch))
	for _, e := range batch {
		dir.Add(e.Remote(), e.Label(), e)
		if !seen[e.Label()] {
			seen[e.Label()] = true
			names = append(names, e.Label())
		}
	}

	if _, err := r.gateway.BulkInsert(ctx, batch); err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}

	saved, err := r.gateway.FindByName(ctx, names)
	if err != nil {
		return fmt.Errorf("find by name: %w", err)
	}
	for _, name := range names {
		s, ok := saved[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnresolvedInsert, name)
		}
		restored, _ := dir.FindByName(name)
		dir.Add(restored.Remote(), name, s)
	}
	return nil
}

func (r *Reconciler[W, E]) applyModified(ctx context.Context, msgs []W, tr Translator[W, E], dir *Directory[E], stats *Stats) error {
	for i, msg := range msgs {
		e, err := tr.FromMessage(msg)
		if err != nil {
			return fmt.Errorf("translate item %d: %w", i, err)
		}
		dir.Add(e.Remote(), e.Label(), e)

		stored, err := r.gateway.Update(ctx, e)
		if err != nil {
			return fmt.Errorf("update remote id %s: %w", e.Remote(), err)
		}
		dir.Add(e.Remote(), stored.Label(), stored)
		stats.Updated++
	}
	if len(msgs) > 0 {
		slog.Debug("updated modified entities", "component", "sync", "kind", r.kind, "count", len(msgs))
	}
	return nil
}

func (r *Reconciler[W, E]) assignRemoteIDs(ctx context.Context, pairs []IDPair, stats *Stats) error {
	for _, pair := range pairs {
		var c validation.Collector
		c.Add(validation.ValidatePositiveID("device_id", int64(pair.DeviceID)))
		c.Add(validation.ValidatePositiveID("remote_id", int64(pair.RemoteID)))
		if c.HasErrors() {
			return &TranslationError{Kind: "id_pair", RemoteID: pair.RemoteID, Errors: c.Errors()}
		}
	}

	for _, pair := range pairs {
		if err := r.gateway.UpdateRemoteID(ctx, pair.DeviceID, pair.RemoteID); err != nil {
			return fmt.Errorf("local id %s: %w", pair.DeviceID, err)
		}
		stats.Reassigned++
	}
	if len(pairs) > 0 {
		slog.Debug("assigned remote ids", "component", "sync", "kind", r.kind, "count", len(pairs))
	}
	return nil
}

func (r *Reconciler[W, E]) deleteMissing(ctx context.Context, ids []types.ID, stats *Stats) error {
	for _, id := range ids {
		if err := validation.ValidatePositiveID("remote_id", int64(id)); err != nil {
			return &TranslationError{Kind: "deleted_id", RemoteID: id, Errors: []validation.ValidationError{*err}}
		}
	}

	for _, id := range ids {
		err := r.gateway.DeletePermanently(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("entity already absent",
				"component", "sync",
				"action", "delete_missing",
				"kind", r.kind,
				"remote_id", id,
			)
			stats.DeleteMissing++
			continue
		}
		if err != nil {
			return fmt.Errorf("remote id %s: %w", id, err)
		}
		stats.Deleted++
	}
	if len(ids) > 0 {
		slog.Info("permanently deleted entities",
			"component", "sync",
			"kind", r.kind,
			"deleted", stats.Deleted,
			"already_absent", stats.DeleteMissing,
		)
	}
	return nil
}
