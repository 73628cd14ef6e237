package sync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dodgybits/shuffle/internal/store"
	"github.com/dodgybits/shuffle/internal/types"
)

// Gateway is the durable store a Reconciler writes to.
//
// Implementations return store.ErrNotFound when a targeted row does not exist.
type Gateway[E types.Entity] interface {
	// BulkInsert persists entities in one call and returns them, in input
	// order, carrying their store-assigned local ids.
	BulkInsert(ctx context.Context, entities []E) ([]E, error)

	// Update overwrites the row identified by the entity's local id (or its
	// remote id when no local id is known) and returns the stored row.
	Update(ctx context.Context, entity E) (E, error)

	// UpdateRemoteID stamps remoteID onto the row with localID.
	UpdateRemoteID(ctx context.Context, localID, remoteID types.ID) error

	// DeletePermanently hard-deletes the row with remoteID.
	DeletePermanently(ctx context.Context, remoteID types.ID) error

	// FindByName returns the rows matching names, keyed by name.
	// Names without a match are absent from the result.
	FindByName(ctx context.Context, names []string) (map[string]E, error)

	// GetByRemoteID returns the row with remoteID.
	GetByRemoteID(ctx context.Context, remoteID types.ID) (E, error)
}

// gatewayLocator resolves references to entities that were synced in an
// earlier cycle and are therefore absent from this cycle's directories.
type gatewayLocator[E types.Entity] struct {
	ctx     context.Context
	gateway Gateway[E]
	kind    string
}

func (l gatewayLocator[E]) FindByID(id types.ID) (E, bool) {
	e, err := l.gateway.GetByRemoteID(l.ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("reference lookup failed",
				"component", "sync",
				"kind", l.kind,
				"remote_id", id,
				"error", err,
			)
		}
		var zero E
		return zero, false
	}
	return e, true
}

func (l gatewayLocator[E]) FindByName(name string) (E, bool) {
	found, err := l.gateway.FindByName(l.ctx, []string{name})
	if err != nil {
		slog.Warn("name lookup failed",
			"component", "sync",
			"kind", l.kind,
			"name", name,
			"error", err,
		)
		var zero E
		return zero, false
	}
	e, ok := found[name]
	return e, ok
}
