// Package authority resolves and records framework versions against the
// backing store that acts as the source of truth. Persistence sits behind
// the Gateway capability interface so the real SQL stores and the
// in-memory store used in tests are selected by dependency injection,
// never by import-time fallback.
package authority

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrVersionNotFound indicates no row exists for the requested
	// (artifact, version) pair.
	ErrVersionNotFound = errors.New("version not found")
	// ErrVersionExists indicates an insert hit the (artifact_name,
	// version) uniqueness constraint. Distinguished from other failures
	// so callers can treat it as a collision, not an outage.
	ErrVersionExists = errors.New("version already registered")
)

// Version is one immutable registered version of an artifact.
type Version struct {
	ArtifactName  string          `json:"artifact_name"`
	VersionString string          `json:"version_string"`
	ContentHash   string          `json:"content_hash"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Gateway is the capability interface over the backing store's version
// rows. Insert has insert-unless-exists semantics: a uniqueness conflict
// surfaces as ErrVersionExists, anything else as the underlying failure.
type Gateway interface {
	Init(ctx context.Context) error
	GetVersions(ctx context.Context, name string) ([]Version, error)
	GetVersion(ctx context.Context, name, version string) (*Version, error)
	Insert(ctx context.Context, v Version) error
	Delete(ctx context.Context, name, version string) error
}

// MemoryGateway is a thread-safe in-memory Gateway for tests and offline
// runs.
type MemoryGateway struct {
	mu   sync.RWMutex
	rows map[string]map[string]Version // artifact -> version string -> row
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{rows: make(map[string]map[string]Version)}
}

func (g *MemoryGateway) Init(ctx context.Context) error { return nil }

func (g *MemoryGateway) GetVersions(ctx context.Context, name string) ([]Version, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	byVersion := g.rows[name]
	out := make([]Version, 0, len(byVersion))
	for _, v := range byVersion {
		out = append(out, v)
	}
	sortVersions(out)
	return out, nil
}

func (g *MemoryGateway) GetVersion(ctx context.Context, name, version string) (*Version, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if v, ok := g.rows[name][version]; ok {
		return &v, nil
	}
	return nil, ErrVersionNotFound
}

func (g *MemoryGateway) Insert(ctx context.Context, v Version) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	byVersion, ok := g.rows[v.ArtifactName]
	if !ok {
		byVersion = make(map[string]Version)
		g.rows[v.ArtifactName] = byVersion
	}
	if _, exists := byVersion[v.VersionString]; exists {
		return ErrVersionExists
	}
	byVersion[v.VersionString] = v
	return nil
}

func (g *MemoryGateway) Delete(ctx context.Context, name, version string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	byVersion, ok := g.rows[name]
	if !ok {
		return ErrVersionNotFound
	}
	if _, exists := byVersion[version]; !exists {
		return ErrVersionNotFound
	}
	delete(byVersion, version)
	return nil
}

// sortVersions orders newest-first: semver-parseable versions by
// precedence (plain date stamps like v2026.08.26 parse as semver and
// sort above ordinary releases by their large major, which is the
// intended recency), then unparseable strings by creation time.
func sortVersions(versions []Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i].VersionString)
		vj, errj := semver.NewVersion(versions[j].VersionString)
		switch {
		case erri == nil && errj == nil:
			return vi.GreaterThan(vj)
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return versions[i].CreatedAt.After(versions[j].CreatedAt)
		}
	})
}
