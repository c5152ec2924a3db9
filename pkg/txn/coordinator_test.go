package txn

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discernus/framestore/pkg/assets"
	"github.com/discernus/framestore/pkg/authority"
)

type fixture struct {
	gw    *authority.MemoryGateway
	auth  *authority.Authority
	store *assets.FileStore
	coord *Coordinator
	dir   string
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()

	gw := authority.NewMemoryGateway()
	auth := authority.NewAuthority(gw)
	store, err := assets.NewFileStore(t.TempDir())
	require.NoError(t, err)

	dir := t.TempDir()
	o := Options{
		Authority:     auth,
		Assets:        store,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		FrameworksDir: dir,
	}
	for _, opt := range opts {
		opt(&o)
	}

	coord, err := NewCoordinator(o)
	require.NoError(t, err)
	return &fixture{gw: gw, auth: auth, store: store, coord: coord, dir: dir}
}

func (f *fixture) writeFile(t *testing.T, name string, payload map[string]any) string {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func (f *fixture) register(t *testing.T, name, version string, payload map[string]any) authority.Version {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	hash, err := authority.NewChangeDetector().HashOf(payload)
	require.NoError(t, err)
	v := authority.Version{
		ArtifactName:  name,
		VersionString: version,
		ContentHash:   hash,
		Payload:       raw,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.auth.Register(context.Background(), v))
	return v
}

func civicVirtue() map[string]any {
	return map[string]any{
		"name":       "civic_virtue",
		"version":    "v1.0",
		"dimensions": []any{"dignity", "tribalism"},
		"weight":     0.5,
	}
}

func TestValidateForUse_AuthorityHitNoFile(t *testing.T) {
	f := newFixture(t)
	f.register(t, "civic_virtue", "v1.0", civicVirtue())

	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", "", "v1.0")

	assert.Equal(t, ResultValid, st.Result)
	assert.Equal(t, "v1.0", st.ResolvedVersion)
	assert.False(t, st.NewVersionCreated)

	valid, failures := f.coord.IsValid()
	assert.True(t, valid)
	assert.Empty(t, failures)
}

func TestValidateForUse_IdenticalContentIsValidTwice(t *testing.T) {
	f := newFixture(t)
	f.register(t, "civic_virtue", "v1.0", civicVirtue())
	path := f.writeFile(t, "civic_virtue.json", civicVirtue())

	for i := 0; i < 2; i++ {
		st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "v1.0")
		assert.Equal(t, ResultValid, st.Result, "pass %d", i)
		assert.False(t, st.NewVersionCreated, "pass %d", i)
	}
}

func TestValidateForUse_ContentDriftMintsNewVersion(t *testing.T) {
	f := newFixture(t)
	f.register(t, "civic_virtue", "v1.0", civicVirtue())

	drifted := civicVirtue()
	drifted["weight"] = 0.9
	path := f.writeFile(t, "civic_virtue_drift.json", drifted)

	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "v1.0")

	assert.Equal(t, ResultContentChanged, st.Result)
	assert.Equal(t, "v1.0.1", st.ResolvedVersion)
	assert.True(t, st.NewVersionCreated)

	// Both versions are independently queryable afterward.
	ctx := context.Background()
	old, err := f.auth.Get(ctx, "civic_virtue", "v1.0")
	require.NoError(t, err)
	minted, err := f.auth.Get(ctx, "civic_virtue", "v1.0.1")
	require.NoError(t, err)
	assert.NotEqual(t, old.ContentHash, minted.ContentHash)
	assert.Equal(t, st.ContentHash, minted.ContentHash)

	// The drifted content landed in the asset store.
	ok, err := f.store.Exists(ctx, blobHash(t, drifted), AssetKind)
	require.NoError(t, err)
	assert.True(t, ok)
}

// blobHash mirrors what the store computes for a payload.
func blobHash(t *testing.T, payload map[string]any) string {
	t.Helper()
	store, err := assets.NewFileStore(t.TempDir())
	require.NoError(t, err)
	blob, err := store.Put(context.Background(), assets.PutRequest{Content: payload, Kind: AssetKind})
	require.NoError(t, err)
	return blob.ContentHash
}

func TestValidateForUse_IncidentalDriftIsNotDrift(t *testing.T) {
	f := newFixture(t)
	f.register(t, "civic_virtue", "v1.0", civicVirtue())

	touched := civicVirtue()
	touched["last_modified"] = "2026-08-26T09:00:00Z"
	path := f.writeFile(t, "civic_virtue.json", touched)

	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "v1.0")
	assert.Equal(t, ResultValid, st.Result)
	assert.False(t, st.NewVersionCreated)
}

func TestValidateForUse_ImportUnknownArtifact(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "civic_virtue.json", civicVirtue())

	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "v1.0")

	assert.Equal(t, ResultValid, st.Result)
	assert.True(t, st.NewVersionCreated)
	assert.Equal(t, "v1.0", st.ResolvedVersion)

	registered, err := f.auth.Get(context.Background(), "civic_virtue", "v1.0")
	require.NoError(t, err)
	assert.Equal(t, st.ContentHash, registered.ContentHash)
}

func TestValidateForUse_ImportUsesPayloadVersionWhenNoHint(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "civic_virtue.json", civicVirtue())

	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "")

	assert.Equal(t, ResultValid, st.Result)
	assert.Equal(t, "v1.0", st.ResolvedVersion) // from the payload's version field
	assert.True(t, st.NewVersionCreated)
}

func TestValidateForUse_NotFound(t *testing.T) {
	f := newFixture(t)

	st := f.coord.ValidateForUse(context.Background(), "ghost_framework", "", "")

	assert.Equal(t, ResultNotFound, st.Result)
	assert.False(t, st.NewVersionCreated)

	valid, failures := f.coord.IsValid()
	assert.False(t, valid)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "ghost_framework")

	g := f.coord.Guidance()
	assert.False(t, g.Valid)
	require.Len(t, g.Items, 1)
	assert.Equal(t, ResultNotFound, g.Items[0].Result)
	assert.Contains(t, g.Items[0].Recommendation, "import")
}

func TestValidateForUse_ResolverFindsLocalFile(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "civic_virtue.json", civicVirtue())

	// No explicit path: the declarative pattern list locates the file.
	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", "", "")

	assert.Equal(t, ResultValid, st.Result)
	assert.True(t, st.NewVersionCreated)
}

func TestValidateForUse_MalformedFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "")

	assert.Equal(t, ResultValidationError, st.Result)
	assert.NotEmpty(t, st.Errors)
}

type rejectingValidator struct{}

func (rejectingValidator) Validate(payload map[string]any) ValidationResult {
	return ValidationResult{IsValid: false, Issues: []string{"missing required dimension block"}}
}

func TestValidateForUse_ValidatorRejectsNewContent(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Validator = rejectingValidator{} })
	path := f.writeFile(t, "civic_virtue.json", civicVirtue())

	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "v1.0")

	assert.Equal(t, ResultValidationError, st.Result)
	assert.Contains(t, st.Errors, "missing required dimension block")

	// Nothing was registered.
	_, err := f.auth.Get(context.Background(), "civic_virtue", "v1.0")
	assert.ErrorIs(t, err, authority.ErrVersionNotFound)
}

func TestValidateForUse_ValidatorNotConsultedForRegisteredContent(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Validator = rejectingValidator{} })
	f.register(t, "civic_virtue", "v1.0", civicVirtue())

	// Authority hit without drift never reaches the validator.
	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", "", "v1.0")
	assert.Equal(t, ResultValid, st.Result)
}

// faultyGateway fails writes after a configurable number of successes.
type faultyGateway struct {
	authority.Gateway
	insertErr error
}

func (g *faultyGateway) Insert(ctx context.Context, v authority.Version) error {
	if g.insertErr != nil {
		return g.insertErr
	}
	return g.Gateway.Insert(ctx, v)
}

func TestValidateForUse_AuthorityWriteFailure(t *testing.T) {
	gw := &faultyGateway{Gateway: authority.NewMemoryGateway(), insertErr: errors.New("connection reset")}
	auth := authority.NewAuthority(gw)
	store, err := assets.NewFileStore(t.TempDir())
	require.NoError(t, err)
	coord, err := NewCoordinator(Options{
		Authority: auth,
		Assets:    store,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	dir := t.TempDir()
	data, _ := json.Marshal(civicVirtue())
	path := filepath.Join(dir, "civic_virtue.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	st := coord.ValidateForUse(context.Background(), "civic_virtue", path, "v1.0")

	assert.Equal(t, ResultTransactionFailure, st.Result)
	assert.False(t, st.NewVersionCreated)

	valid, _ := coord.IsValid()
	assert.False(t, valid)

	g := coord.Guidance()
	require.Len(t, g.Items, 1)
	assert.Contains(t, g.Items[0].Recommendation, "roll back")
}

type erroringGateway struct {
	authority.Gateway
}

func (g *erroringGateway) GetVersions(ctx context.Context, name string) ([]authority.Version, error) {
	return nil, errors.New("authority unreachable")
}

func TestValidateForUse_AuthorityOutageIsValidationError(t *testing.T) {
	auth := authority.NewAuthority(&erroringGateway{Gateway: authority.NewMemoryGateway()})
	store, err := assets.NewFileStore(t.TempDir())
	require.NoError(t, err)
	coord, err := NewCoordinator(Options{
		Authority: auth,
		Assets:    store,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	st := coord.ValidateForUse(context.Background(), "civic_virtue", "", "v1.0")
	assert.Equal(t, ResultValidationError, st.Result)
}

func TestIsValid_VerdictTable(t *testing.T) {
	f := newFixture(t)

	// One clean artifact, one import, one miss.
	f.register(t, "civic_virtue", "v1.0", civicVirtue())
	f.coord.ValidateForUse(context.Background(), "civic_virtue", "", "v1.0")

	populism := map[string]any{"name": "populism", "version": "v2.0"}
	path := f.writeFile(t, "populism.json", populism)
	f.coord.ValidateForUse(context.Background(), "populism", path, "v2.0")

	f.coord.ValidateForUse(context.Background(), "ghost_framework", "", "")

	valid, failures := f.coord.IsValid()
	assert.False(t, valid)
	assert.Len(t, failures, 1)

	tx := f.coord.Transaction()
	assert.Len(t, tx.States, 3)
	assert.NotEmpty(t, tx.ID)
}

func TestRollback_DeletesProvisionalVersionsKeepsBlobs(t *testing.T) {
	f := newFixture(t)
	f.register(t, "civic_virtue", "v1.0", civicVirtue())

	drifted := civicVirtue()
	drifted["weight"] = 0.9
	path := f.writeFile(t, "civic_virtue_drift.json", drifted)

	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "v1.0")
	require.Equal(t, ResultContentChanged, st.Result)
	require.True(t, st.NewVersionCreated)

	ctx := context.Background()
	require.True(t, f.coord.Rollback(ctx))

	// The provisional registration is gone; the original survives.
	_, err := f.auth.Get(ctx, "civic_virtue", st.ResolvedVersion)
	assert.ErrorIs(t, err, authority.ErrVersionNotFound)
	_, err = f.auth.Get(ctx, "civic_virtue", "v1.0")
	assert.NoError(t, err)

	// Blobs outlive the transaction.
	ok, err := f.store.Exists(ctx, blobHash(t, drifted), AssetKind)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRollback_AtMostOnce(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "civic_virtue.json", civicVirtue())
	f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "v1.0")

	assert.True(t, f.coord.Rollback(context.Background()))
	assert.False(t, f.coord.Rollback(context.Background()))
}

func TestRollback_ReportsFailedDeletions(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "civic_virtue.json", civicVirtue())
	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "v1.0")
	require.True(t, st.NewVersionCreated)

	// Simulate an operator racing the rollback: the record is already gone.
	require.NoError(t, f.auth.Remove(context.Background(), "civic_virtue", st.ResolvedVersion))

	assert.False(t, f.coord.Rollback(context.Background()))
}

func TestRollback_SkipsArtifactsWithoutNewVersions(t *testing.T) {
	f := newFixture(t)
	f.register(t, "civic_virtue", "v1.0", civicVirtue())
	f.coord.ValidateForUse(context.Background(), "civic_virtue", "", "v1.0")

	// Nothing was created, so there is nothing to undo.
	assert.True(t, f.coord.Rollback(context.Background()))

	_, err := f.auth.Get(context.Background(), "civic_virtue", "v1.0")
	assert.NoError(t, err)
}

func TestPartialSuccess_IsANormalOutcome(t *testing.T) {
	f := newFixture(t)

	// populism imports cleanly, ghost_framework is missing; the caller
	// gets a per-artifact breakdown, not a blanket failure.
	path := f.writeFile(t, "populism.json", map[string]any{"name": "populism", "version": "v1.0"})
	ok := f.coord.ValidateForUse(context.Background(), "populism", path, "v1.0")
	missing := f.coord.ValidateForUse(context.Background(), "ghost_framework", "", "")

	assert.Equal(t, ResultValid, ok.Result)
	assert.Equal(t, ResultNotFound, missing.Result)

	g := f.coord.Guidance()
	require.Len(t, g.Items, 1)
	assert.Equal(t, "ghost_framework", g.Items[0].Artifact)
}
