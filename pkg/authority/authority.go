package authority

import (
	"context"
	"strings"
)

// Authority answers "which versions of this artifact exist" with a
// read-through cache in front of the Gateway. The cache is an explicit
// member invalidated on every write, never a process-wide global.
type Authority struct {
	gw    Gateway
	cache VersionCache
}

func NewAuthority(gw Gateway) *Authority {
	return &Authority{gw: gw, cache: NewMemoryCache()}
}

// NewAuthorityWithCache uses the given cache, typically a RedisCache
// when several processes share one authority store.
func NewAuthorityWithCache(gw Gateway, cache VersionCache) *Authority {
	return &Authority{gw: gw, cache: cache}
}

// Versions returns all registered versions of an artifact, newest first.
func (a *Authority) Versions(ctx context.Context, name string) ([]Version, error) {
	if cached, ok := a.cache.Get(ctx, name); ok {
		return cached, nil
	}

	versions, err := a.gw.GetVersions(ctx, name)
	if err != nil {
		return nil, err
	}

	a.cache.Set(ctx, name, versions)
	return versions, nil
}

// Get resolves an artifact version. The hint is matched tolerantly:
// exact spelling first, then "v"-prefixed, then "v"-stripped — the
// corpus records versions in all three spellings. An empty hint resolves
// to the newest version.
func (a *Authority) Get(ctx context.Context, name, hint string) (*Version, error) {
	versions, err := a.Versions(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrVersionNotFound
	}

	if hint == "" {
		v := versions[0]
		return &v, nil
	}

	for _, candidate := range spellings(hint) {
		for _, v := range versions {
			if v.VersionString == candidate {
				return &v, nil
			}
		}
	}
	return nil, ErrVersionNotFound
}

// Exists reports whether the exact version string is registered for the
// artifact. Used by the allocator; checks are scoped per artifact name.
func (a *Authority) Exists(ctx context.Context, name, version string) (bool, error) {
	versions, err := a.Versions(ctx, name)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v.VersionString == version {
			return true, nil
		}
	}
	return false, nil
}

// Register inserts a new version row and invalidates the cache entry.
// A uniqueness conflict surfaces as ErrVersionExists.
func (a *Authority) Register(ctx context.Context, v Version) error {
	if err := a.gw.Insert(ctx, v); err != nil {
		return err
	}
	a.cache.Invalidate(ctx, v.ArtifactName)
	return nil
}

// Remove deletes a version row and invalidates the cache entry.
func (a *Authority) Remove(ctx context.Context, name, version string) error {
	if err := a.gw.Delete(ctx, name, version); err != nil {
		return err
	}
	a.cache.Invalidate(ctx, name)
	return nil
}

// spellings returns the lookup candidates for a version hint, most
// specific first, without duplicates.
func spellings(hint string) []string {
	candidates := []string{hint}
	if strings.HasPrefix(hint, "v") {
		candidates = append(candidates, strings.TrimPrefix(hint, "v"))
	} else {
		candidates = append(candidates, "v"+hint)
	}
	return candidates
}
