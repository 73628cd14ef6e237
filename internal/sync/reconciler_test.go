package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodgybits/shuffle/internal/store"
	"github.com/dodgybits/shuffle/internal/types"
)

// fakeGateway keeps contexts in memory and records the calls it receives.
type fakeGateway struct {
	rows   []types.Context
	nextID types.ID

	shortInsert bool
	hideNames   bool
	deleteErr   error
	findErr     error
	getErr      error
	calls       []string
}

func newFakeGateway(existing ...types.Context) *fakeGateway {
	g := &fakeGateway{nextID: 100}
	for _, c := range existing {
		g.nextID++
		c.LocalID = g.nextID
		g.rows = append(g.rows, c)
	}
	return g
}

func (g *fakeGateway) BulkInsert(_ context.Context, entities []types.Context) ([]types.Context, error) {
	g.calls = append(g.calls, "insert")
	out := make([]types.Context, 0, len(entities))
	for _, e := range entities {
		g.nextID++
		e.LocalID = g.nextID
		g.rows = append(g.rows, e)
		out = append(out, e)
	}
	if g.shortInsert {
		return out[:len(out)-1], nil
	}
	return out, nil
}

func (g *fakeGateway) Update(_ context.Context, e types.Context) (types.Context, error) {
	g.calls = append(g.calls, "update")
	for i, row := range g.rows {
		if (e.LocalID.IsSet() && row.LocalID == e.LocalID) || (!e.LocalID.IsSet() && row.RemoteID == e.RemoteID) {
			e.LocalID = row.LocalID
			g.rows[i] = e
			return e, nil
		}
	}
	return types.Context{}, store.ErrNotFound
}

func (g *fakeGateway) UpdateRemoteID(_ context.Context, localID, remoteID types.ID) error {
	g.calls = append(g.calls, "reassign")
	for i, row := range g.rows {
		if row.LocalID == localID {
			g.rows[i].RemoteID = remoteID
			return nil
		}
	}
	return store.ErrNotFound
}

func (g *fakeGateway) DeletePermanently(_ context.Context, remoteID types.ID) error {
	g.calls = append(g.calls, "delete")
	if g.deleteErr != nil {
		return g.deleteErr
	}
	for i, row := range g.rows {
		if row.RemoteID == remoteID {
			g.rows = append(g.rows[:i], g.rows[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (g *fakeGateway) FindByName(_ context.Context, names []string) (map[string]types.Context, error) {
	g.calls = append(g.calls, "find")
	if g.findErr != nil {
		return nil, g.findErr
	}
	found := make(map[string]types.Context)
	if g.hideNames {
		return found, nil
	}
	for _, row := range g.rows {
		for _, n := range names {
			if row.Name == n {
				found[n] = row
			}
		}
	}
	return found, nil
}

func (g *fakeGateway) GetByRemoteID(_ context.Context, remoteID types.ID) (types.Context, error) {
	if g.getErr != nil {
		return types.Context{}, g.getErr
	}
	for _, row := range g.rows {
		if row.RemoteID == remoteID {
			return row, nil
		}
	}
	return types.Context{}, store.ErrNotFound
}

func (g *fakeGateway) byRemote(id types.ID) (types.Context, bool) {
	c, err := g.GetByRemoteID(context.Background(), id)
	return c, err == nil
}

func newContextReconciler(g *fakeGateway, mode ResolveMode) *Reconciler[ContextMessage, types.Context] {
	return NewReconciler[ContextMessage, types.Context]("contexts", g, mode)
}

func TestReconcile_AddNew_ResolvesLocalIDs(t *testing.T) {
	// Given: two new contexts from the remote system
	g := newFakeGateway()
	delta := Delta[ContextMessage]{New: []ContextMessage{
		{RemoteID: 11, Name: "Home"},
		{RemoteID: 12, Name: "Work"},
	}}

	// When: the delta is reconciled
	dir, stats, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())

	// Then: both are stored and resolvable by remote id with their local ids
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Added)
	assert.Equal(t, []string{"insert"}, g.calls)

	home, ok := dir.FindByID(11)
	require.True(t, ok)
	stored, _ := g.byRemote(11)
	assert.Equal(t, stored.LocalID, home.LocalID)

	work, ok := dir.FindByName("Work")
	require.True(t, ok)
	assert.Equal(t, types.ID(12), work.RemoteID)
	assert.True(t, work.LocalID.IsSet())
}

func TestReconcile_AddNew_DuplicateNamesStayDistinct(t *testing.T) {
	g := newFakeGateway()
	delta := Delta[ContextMessage]{New: []ContextMessage{
		{RemoteID: 11, Name: "Home"},
		{RemoteID: 12, Name: "Home"},
	}}

	dir, _, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())
	require.NoError(t, err)

	first, ok := dir.FindByID(11)
	require.True(t, ok)
	second, ok := dir.FindByID(12)
	require.True(t, ok)
	assert.NotEqual(t, first.LocalID, second.LocalID)
	assert.True(t, first.LocalID.IsSet())
	assert.True(t, second.LocalID.IsSet())

	// the name key holds the later of the two
	byName, ok := dir.FindByName("Home")
	require.True(t, ok)
	assert.Equal(t, types.ID(12), byName.RemoteID)
	assert.Equal(t, second.LocalID, byName.LocalID)
}

func TestReconcile_AddNew_ByName_CollisionResolvesToLast(t *testing.T) {
	g := newFakeGateway()
	delta := Delta[ContextMessage]{New: []ContextMessage{
		{RemoteID: 11, Name: "Home"},
		{RemoteID: 12, Name: "Home"},
	}}

	dir, stats, err := newContextReconciler(g, ResolveByName).Reconcile(context.Background(), delta, NewContextTranslator())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Added)
	assert.Equal(t, []string{"insert", "find"}, g.calls)

	last, ok := dir.FindByID(12)
	require.True(t, ok)
	stored, _ := g.byRemote(12)
	assert.Equal(t, stored.LocalID, last.LocalID)

	byName, ok := dir.FindByName("Home")
	require.True(t, ok)
	assert.Equal(t, types.ID(12), byName.RemoteID)
	assert.Equal(t, stored.LocalID, byName.LocalID)

	// the first entity keeps its translated form without a local id
	first, ok := dir.FindByID(11)
	require.True(t, ok)
	assert.False(t, first.LocalID.IsSet())
}

func TestReconcile_AddNew_ByName_MissingRow(t *testing.T) {
	g := newFakeGateway()
	g.hideNames = true
	delta := Delta[ContextMessage]{New: []ContextMessage{{RemoteID: 11, Name: "Home"}}}

	_, _, err := newContextReconciler(g, ResolveByName).Reconcile(context.Background(), delta, NewContextTranslator())
	require.ErrorIs(t, err, ErrUnresolvedInsert)
	assert.Contains(t, err.Error(), "add new contexts")
}

func TestReconcile_AddNew_CountMismatch(t *testing.T) {
	g := newFakeGateway()
	g.shortInsert = true
	delta := Delta[ContextMessage]{New: []ContextMessage{{RemoteID: 11, Name: "Home"}, {RemoteID: 12, Name: "Work"}}}

	_, _, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())
	require.ErrorIs(t, err, ErrInsertCountMismatch)
}

func TestReconcile_TranslationFailureAborts(t *testing.T) {
	// Given: a batch with one invalid record followed by deletions
	g := newFakeGateway(types.Context{Identity: types.Identity{RemoteID: 55}, Name: "Old"})
	delta := Delta[ContextMessage]{
		New:              []ContextMessage{{RemoteID: 11, Name: "Home"}, {RemoteID: 12, Name: ""}},
		DeletedRemoteIDs: []types.ID{55},
	}

	// When: the delta is reconciled
	dir, _, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())

	// Then: nothing is written and later phases do not run
	require.ErrorIs(t, err, ErrTranslation)
	assert.Nil(t, dir)
	assert.Empty(t, g.calls)
	_, ok := g.byRemote(55)
	assert.True(t, ok)
}

func TestReconcile_ApplyModified(t *testing.T) {
	g := newFakeGateway(types.Context{Identity: types.Identity{RemoteID: 11}, Name: "Home"})
	existing, _ := g.byRemote(11)
	delta := Delta[ContextMessage]{Modified: []ContextMessage{{RemoteID: 11, Name: "House", ColourIndex: 3}}}

	dir, stats, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)

	stored, _ := g.byRemote(11)
	assert.Equal(t, "House", stored.Name)
	assert.Equal(t, 3, stored.ColourIndex)
	assert.Equal(t, existing.LocalID, stored.LocalID)

	// the directory carries the stored row, local id included
	got, ok := dir.FindByID(11)
	require.True(t, ok)
	assert.Equal(t, existing.LocalID, got.LocalID)
	got, ok = dir.FindByName("House")
	require.True(t, ok)
	assert.Equal(t, types.ID(11), got.RemoteID)
}

func TestReconcile_ApplyModified_MissingRowAborts(t *testing.T) {
	g := newFakeGateway()
	delta := Delta[ContextMessage]{
		Modified:         []ContextMessage{{RemoteID: 99, Name: "Ghost"}},
		DeletedRemoteIDs: []types.ID{1},
	}

	_, _, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "update modified contexts")
	assert.Equal(t, []string{"update"}, g.calls)
}

func TestReconcile_AssignRemoteIDs_OnlyStampsRemoteID(t *testing.T) {
	// Given: a locally created context unknown to the remote system
	g := newFakeGateway(types.Context{Name: "Errands", ColourIndex: 7, Icon: "cart"})
	local := g.rows[0]

	// When: the remote system acknowledges it
	delta := Delta[ContextMessage]{AddedIDPairs: []IDPair{{DeviceID: local.LocalID, RemoteID: 77}}}
	_, stats, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())

	// Then: only the remote id changes
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reassigned)
	want := local
	want.RemoteID = 77
	assert.Equal(t, want, g.rows[0])
}

func TestReconcile_AssignRemoteIDs_UnknownLocalIDAborts(t *testing.T) {
	g := newFakeGateway()
	delta := Delta[ContextMessage]{AddedIDPairs: []IDPair{{DeviceID: 5, RemoteID: 77}}}

	_, _, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "assign remote ids to contexts")
}

func TestReconcile_AssignRemoteIDs_RejectsNonPositiveIDs(t *testing.T) {
	tests := []struct {
		name  string
		pair  IDPair
		field string
	}{
		{"zero remote id", IDPair{DeviceID: 101, RemoteID: 0}, "remote_id"},
		{"negative remote id", IDPair{DeviceID: 101, RemoteID: -3}, "remote_id"},
		{"zero device id", IDPair{DeviceID: 0, RemoteID: 77}, "device_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newFakeGateway(types.Context{Identity: types.Identity{RemoteID: 7}, Name: "Errands"})
			delta := Delta[ContextMessage]{AddedIDPairs: []IDPair{
				{DeviceID: 101, RemoteID: 70},
				tt.pair,
			}}

			_, stats, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())

			var te *TranslationError
			require.ErrorAs(t, err, &te)
			assert.ErrorIs(t, err, ErrTranslation)
			assert.Equal(t, "id_pair", te.Kind)
			require.Len(t, te.Errors, 1)
			assert.Equal(t, tt.field, te.Errors[0].Field)

			// nothing is stamped, not even the valid pair before it
			assert.Equal(t, 0, stats.Reassigned)
			assert.Empty(t, g.calls)
			assert.Equal(t, types.ID(7), g.rows[0].RemoteID)
		})
	}
}

func TestReconcile_DeleteMissing_RejectsNonPositiveIDs(t *testing.T) {
	g := newFakeGateway(types.Context{Identity: types.Identity{RemoteID: 55}, Name: "a"})
	delta := Delta[ContextMessage]{DeletedRemoteIDs: []types.ID{55, 0}}

	_, stats, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())

	var te *TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "deleted_id", te.Kind)
	assert.Contains(t, err.Error(), "delete missing contexts")
	assert.Equal(t, 0, stats.Deleted)
	assert.Empty(t, g.calls)
	assert.Len(t, g.rows, 1)
}

func TestReconcile_DeleteMissing_ContinuesPastAbsentRows(t *testing.T) {
	// Given: remote id 55 is stored and 56 is not
	g := newFakeGateway(
		types.Context{Identity: types.Identity{RemoteID: 55}, Name: "a"},
		types.Context{Identity: types.Identity{RemoteID: 57}, Name: "c"},
	)
	delta := Delta[ContextMessage]{DeletedRemoteIDs: []types.ID{55, 56, 57}}

	// When: all three are deleted
	_, stats, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())

	// Then: the absent row is counted and the rest are removed
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Deleted)
	assert.Equal(t, 1, stats.DeleteMissing)
	assert.Empty(t, g.rows)
}

func TestReconcile_DeleteMissing_StorageErrorAborts(t *testing.T) {
	g := newFakeGateway()
	g.deleteErr = errors.New("disk I/O error")
	delta := Delta[ContextMessage]{DeletedRemoteIDs: []types.ID{55, 56}}

	_, stats, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete missing contexts")
	assert.Equal(t, 0, stats.Deleted)
	assert.Equal(t, []string{"delete"}, g.calls)
}

func TestReconcile_PhaseOrder(t *testing.T) {
	g := newFakeGateway(
		types.Context{Identity: types.Identity{RemoteID: 11}, Name: "Home"},
		types.Context{Name: "Local"},
		types.Context{Identity: types.Identity{RemoteID: 55}, Name: "Gone"},
	)
	delta := Delta[ContextMessage]{
		New:              []ContextMessage{{RemoteID: 12, Name: "Work"}},
		Modified:         []ContextMessage{{RemoteID: 11, Name: "House"}},
		AddedIDPairs:     []IDPair{{DeviceID: g.rows[1].LocalID, RemoteID: 13}},
		DeletedRemoteIDs: []types.ID{55},
	}

	_, stats, err := newContextReconciler(g, ResolveReturned).Reconcile(context.Background(), delta, NewContextTranslator())
	require.NoError(t, err)
	assert.Equal(t, []string{"insert", "update", "reassign", "delete"}, g.calls)
	assert.Equal(t, Stats{Added: 1, Updated: 1, Reassigned: 1, Deleted: 1}, stats)
}

func TestReconcile_EmptyDelta(t *testing.T) {
	g := newFakeGateway()

	dir, stats, err := newContextReconciler(g, "").Reconcile(context.Background(), Delta[ContextMessage]{}, NewContextTranslator())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, g.calls)
	_, ok := dir.FindByID(1)
	assert.False(t, ok)
}

func TestStats_Add(t *testing.T) {
	a := Stats{Added: 1, Updated: 2, Reassigned: 3, Deleted: 4, DeleteMissing: 5, Unresolved: 6}
	assert.Equal(t, Stats{Added: 2, Updated: 4, Reassigned: 6, Deleted: 8, DeleteMissing: 10, Unresolved: 12}, a.Add(a))
}
