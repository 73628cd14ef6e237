package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodgybits/shuffle/internal/types"
)

func TestDirectory_AddAndFind(t *testing.T) {
	dir := NewDirectory[types.Context]()
	home := types.Context{Identity: types.Identity{LocalID: 1, RemoteID: 11}, Name: "Home"}
	dir.Add(11, "Home", home)

	got, ok := dir.FindByID(11)
	require.True(t, ok)
	assert.Equal(t, home, got)

	got, ok = dir.FindByName("Home")
	require.True(t, ok)
	assert.Equal(t, home, got)

	_, ok = dir.FindByID(12)
	assert.False(t, ok)
	_, ok = dir.FindByName("Work")
	assert.False(t, ok)
	assert.Equal(t, 1, dir.Len())
}

func TestDirectory_LastWriteWins(t *testing.T) {
	dir := NewDirectory[types.Context]()
	first := types.Context{Identity: types.Identity{LocalID: 1, RemoteID: 11}, Name: "Home"}
	second := types.Context{Identity: types.Identity{LocalID: 2, RemoteID: 12}, Name: "Home"}
	dir.Add(11, "Home", first)
	dir.Add(12, "Home", second)

	byName, ok := dir.FindByName("Home")
	require.True(t, ok)
	assert.Equal(t, types.ID(2), byName.LocalID)

	byID, ok := dir.FindByID(11)
	require.True(t, ok)
	assert.Equal(t, types.ID(1), byID.LocalID, "id keys are independent of name collisions")
	assert.Equal(t, 2, dir.Len())
}

func TestDirectory_EmptyNameNotIndexed(t *testing.T) {
	dir := NewDirectory[types.Task]()
	dir.Add(5, "", types.Task{Identity: types.Identity{RemoteID: 5}})

	_, ok := dir.FindByName("")
	assert.False(t, ok)
	_, ok = dir.FindByID(5)
	assert.True(t, ok)
}

func TestChain_ConsultsInOrder(t *testing.T) {
	first := NewDirectory[types.Project]()
	first.Add(1, "A", types.Project{Identity: types.Identity{LocalID: 10, RemoteID: 1}, Name: "A"})
	second := NewDirectory[types.Project]()
	second.Add(1, "A", types.Project{Identity: types.Identity{LocalID: 20, RemoteID: 1}, Name: "A"})
	second.Add(2, "B", types.Project{Identity: types.Identity{LocalID: 30, RemoteID: 2}, Name: "B"})

	loc := Chain[types.Project](first, nil, second)

	p, ok := loc.FindByID(1)
	require.True(t, ok)
	assert.Equal(t, types.ID(10), p.LocalID)

	p, ok = loc.FindByName("B")
	require.True(t, ok)
	assert.Equal(t, types.ID(30), p.LocalID)

	_, ok = loc.FindByID(3)
	assert.False(t, ok)
}
