package sync

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodgybits/shuffle/internal/types"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func contextLocator(g *fakeGateway) gatewayLocator[types.Context] {
	return gatewayLocator[types.Context]{ctx: context.Background(), gateway: g, kind: "contexts"}
}

func TestGatewayLocator_FindsStoredEntities(t *testing.T) {
	g := newFakeGateway(types.Context{Identity: types.Identity{RemoteID: 11}, Name: "Home"})
	loc := contextLocator(g)

	byID, ok := loc.FindByID(11)
	require.True(t, ok)
	assert.Equal(t, "Home", byID.Name)

	byName, ok := loc.FindByName("Home")
	require.True(t, ok)
	assert.Equal(t, types.ID(11), byName.RemoteID)

	_, ok = loc.FindByName("Work")
	assert.False(t, ok)
}

func TestGatewayLocator_NotFoundIsQuiet(t *testing.T) {
	logs := captureLogs(t)

	_, ok := contextLocator(newFakeGateway()).FindByID(99)

	assert.False(t, ok)
	assert.Empty(t, logs.String())
}

func TestGatewayLocator_LogsStoreErrors(t *testing.T) {
	logs := captureLogs(t)
	g := newFakeGateway()
	g.findErr = errors.New("disk I/O error")
	g.getErr = errors.New("database is locked")
	loc := contextLocator(g)

	_, ok := loc.FindByName("Home")
	assert.False(t, ok)
	_, ok = loc.FindByID(11)
	assert.False(t, ok)

	out := logs.String()
	assert.Contains(t, out, `"msg":"name lookup failed"`)
	assert.Contains(t, out, `"name":"Home"`)
	assert.Contains(t, out, "disk I/O error")
	assert.Contains(t, out, `"msg":"reference lookup failed"`)
	assert.Contains(t, out, "database is locked")
	assert.Contains(t, out, `"level":"WARN"`)
}
