package txn

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discernus/framestore/pkg/assets"
	"github.com/discernus/framestore/pkg/authority"
)

// TestLifecycle_SQLiteBacked runs the full import / revalidate / drift /
// rollback cycle against the embedded SQLite gateway and a filesystem
// asset store, the offline research profile.
func TestLifecycle_SQLiteBacked(t *testing.T) {
	ctx := context.Background()

	gw, err := authority.OpenSQLiteGateway(ctx, filepath.Join(t.TempDir(), "authority.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	auth := authority.NewAuthority(gw)
	store, err := assets.NewFileStore(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	newCoord := func() *Coordinator {
		c, err := NewCoordinator(Options{Authority: auth, Assets: store, Logger: logger})
		require.NoError(t, err)
		return c
	}

	dir := t.TempDir()
	write := func(name string, payload map[string]any) string {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0644))
		return path
	}

	doc := map[string]any{"name": "civic_virtue", "version": "v1.0", "weight": 0.5}
	path := write("civic_virtue.json", doc)

	// First transaction: wholesale import.
	c1 := newCoord()
	st := c1.ValidateForUse(ctx, "civic_virtue", path, "v1.0")
	require.Equal(t, ResultValid, st.Result)
	require.True(t, st.NewVersionCreated)
	valid, _ := c1.IsValid()
	assert.True(t, valid)

	// Second transaction: identical content revalidates clean.
	c2 := newCoord()
	st = c2.ValidateForUse(ctx, "civic_virtue", path, "v1.0")
	assert.Equal(t, ResultValid, st.Result)
	assert.False(t, st.NewVersionCreated)

	// Third transaction: drift promotes, then rollback undoes it.
	doc["weight"] = 0.8
	path = write("civic_virtue.json", doc)
	c3 := newCoord()
	st = c3.ValidateForUse(ctx, "civic_virtue", path, "v1.0")
	require.Equal(t, ResultContentChanged, st.Result)
	minted := st.ResolvedVersion
	assert.Equal(t, "v1.0.1", minted)

	require.True(t, c3.Rollback(ctx))
	_, err = auth.Get(ctx, "civic_virtue", minted)
	assert.ErrorIs(t, err, authority.ErrVersionNotFound)

	// The original import is untouched and the drifted blob survives.
	_, err = auth.Get(ctx, "civic_virtue", "v1.0")
	assert.NoError(t, err)
}
