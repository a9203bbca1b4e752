package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distline/internal/config"
	"distline/internal/sequence"
)

func TestOpenSeedsDefaultConfig(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, Options{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 12, a.Config.Board.Zones)
	assert.IsType(t, sequence.SQLAllocator{}, a.Engine.Allocator)
	stored, err := a.Engine.Repo.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.Config.Board.Zones, stored.Board.Zones)
}

func TestOpenSeedsFromWorkspaceFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("board:\n  zones: 4\n"), 0o644))

	a, err := Open(ctx, Options{Workspace: dir})
	require.NoError(t, err)
	assert.Equal(t, 4, a.Config.Board.Zones)
	require.NoError(t, a.Close())

	// The stored config wins once seeded.
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("board:\n  zones: 9\n"), 0o644))
	a, err = Open(ctx, Options{Workspace: dir})
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 4, a.Config.Board.Zones)
}
