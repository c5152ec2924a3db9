// Package allocate mints new, collision-free version strings for
// artifacts. Strategies are tried in order of readability; the last
// resort trades readability for a hard uniqueness guarantee, because a
// transaction must never block on version-naming aesthetics.
package allocate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// Lookup answers whether a version string is already taken for an
// artifact. Checks are always scoped to one artifact name: two artifacts
// may independently use the same version string.
type Lookup interface {
	Exists(ctx context.Context, name, version string) (bool, error)
}

// Allocator produces unique version strings for one backing authority.
type Allocator struct {
	authority Lookup
	now       func() time.Time
}

func NewAllocator(authority Lookup) *Allocator {
	return &Allocator{authority: authority, now: time.Now}
}

// Next returns a version string guaranteed not to exist for the artifact.
// The ladder, most readable first:
//
//  1. patch increment of the current version (vMAJOR.MINOR.PATCH+1)
//  2. date stamp (vYYYY.MM.DD)
//  3. date + hour, + hour-minute, + hour-minute-second
//  4. date + time + microsecond
//  5. the microsecond candidate with a transaction-id fragment appended,
//     returned without an existence check
//
// A lookup failure during checking is treated as a collision: the ladder
// falls through to a finer candidate rather than failing the allocation.
func (a *Allocator) Next(ctx context.Context, name, current, txnID string) string {
	if candidate, ok := a.patchIncrement(ctx, name, current); ok {
		return candidate
	}

	ts := a.now().UTC()
	candidates := []string{
		ts.Format("v2006.01.02"),
		ts.Format("v2006.01.02.15"),
		ts.Format("v2006.01.02.1504"),
		ts.Format("v2006.01.02.150405"),
		fmt.Sprintf("%s.%06d", ts.Format("v2006.01.02.150405"), ts.Nanosecond()/1000),
	}
	for _, candidate := range candidates {
		if a.isFree(ctx, name, candidate) {
			return candidate
		}
	}

	// Absolute fallback: unique by construction, never checked.
	return fmt.Sprintf("%s.%06d.%s", ts.Format("v2006.01.02.150405"), ts.Nanosecond()/1000, txnFragment(txnID))
}

// patchIncrement parses the current version as semver and bumps the
// patch component, preserving the original "v" spelling. Returns false
// on parse failure or collision.
func (a *Allocator) patchIncrement(ctx context.Context, name, current string) (string, bool) {
	if current == "" {
		return "", false
	}
	v, err := semver.NewVersion(current)
	if err != nil {
		return "", false
	}
	next := v.IncPatch()
	candidate := next.String()
	if strings.HasPrefix(current, "v") {
		candidate = "v" + candidate
	}
	if !a.isFree(ctx, name, candidate) {
		return "", false
	}
	return candidate, true
}

func (a *Allocator) isFree(ctx context.Context, name, candidate string) bool {
	exists, err := a.authority.Exists(ctx, name, candidate)
	if err != nil {
		// Can't prove uniqueness; treat as taken and fall through.
		return false
	}
	return !exists
}

// txnFragment derives a short suffix from the transaction id, minting a
// fresh one when the caller has none.
func txnFragment(txnID string) string {
	id := strings.ReplaceAll(txnID, "-", "")
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}
