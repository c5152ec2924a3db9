package authority

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestGateway(t *testing.T) *SQLiteGateway {
	t.Helper()
	gw, err := OpenSQLiteGateway(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func TestSQLiteGateway_RoundTrip(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	v := Version{
		ArtifactName:  "civic_virtue",
		VersionString: "v1.0",
		ContentHash:   "sha256:aa",
		Payload:       json.RawMessage(`{"name":"civic_virtue"}`),
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, gw.Insert(ctx, v))

	got, err := gw.GetVersion(ctx, "civic_virtue", "v1.0")
	require.NoError(t, err)
	assert.Equal(t, v.ArtifactName, got.ArtifactName)
	assert.Equal(t, v.VersionString, got.VersionString)
	assert.Equal(t, v.ContentHash, got.ContentHash)
	assert.JSONEq(t, string(v.Payload), string(got.Payload))
}

func TestSQLiteGateway_InsertUnlessExists(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	v := Version{ArtifactName: "civic_virtue", VersionString: "v1.0", ContentHash: "sha256:aa", Payload: json.RawMessage(`{}`), CreatedAt: time.Now().UTC()}
	require.NoError(t, gw.Insert(ctx, v))
	assert.ErrorIs(t, gw.Insert(ctx, v), ErrVersionExists)

	// Same version string under a different artifact is fine.
	other := v
	other.ArtifactName = "populism"
	assert.NoError(t, gw.Insert(ctx, other))
}

func TestSQLiteGateway_DeleteAndMiss(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	v := Version{ArtifactName: "civic_virtue", VersionString: "v1.0", ContentHash: "sha256:aa", Payload: json.RawMessage(`{}`), CreatedAt: time.Now().UTC()}
	require.NoError(t, gw.Insert(ctx, v))

	require.NoError(t, gw.Delete(ctx, "civic_virtue", "v1.0"))
	assert.ErrorIs(t, gw.Delete(ctx, "civic_virtue", "v1.0"), ErrVersionNotFound)

	_, err := gw.GetVersion(ctx, "civic_virtue", "v1.0")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestSQLiteGateway_GetVersionsOrdering(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	for _, ver := range []string{"v1.0.2", "v1.0.10", "v2026.01.15.0930"} {
		require.NoError(t, gw.Insert(ctx, Version{
			ArtifactName:  "civic_virtue",
			VersionString: ver,
			ContentHash:   "sha256:" + ver,
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     time.Now().UTC(),
		}))
	}

	versions, err := gw.GetVersions(ctx, "civic_virtue")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "v1.0.10", versions[0].VersionString)
	assert.Equal(t, "v2026.01.15.0930", versions[2].VersionString)
}
