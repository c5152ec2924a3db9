package authority

import (
	"encoding/json"
	"fmt"

	"github.com/discernus/framestore/pkg/canonical"
)

// DefaultIncidentalKeys are top-level payload fields the research
// pipeline rewrites on every export. They carry no analytical meaning,
// so they are excluded from change detection.
var DefaultIncidentalKeys = []string{"last_modified", "exported_at", "export_tool"}

// ChangeDetector decides whether a local framework file has drifted from
// its registered version by comparing canonical hashes of the logically
// meaningful payload subset.
type ChangeDetector struct {
	// IncidentalKeys lists top-level fields excluded from hashing.
	IncidentalKeys []string
}

func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{IncidentalKeys: DefaultIncidentalKeys}
}

// HashOf computes the canonical content hash of a payload, ignoring
// incidental metadata. Uses the same canonicalization and digest as the
// asset store, so detector hashes and blob hashes are comparable.
func (d *ChangeDetector) HashOf(payload map[string]any) (string, error) {
	return canonical.Hash(canonical.StripIncidental(payload, d.IncidentalKeys...))
}

// HashVersion computes the content hash of a registered version from its
// stored payload. Falls back to the recorded hash when the row carries no
// payload (older rows registered before payloads were persisted inline).
func (d *ChangeDetector) HashVersion(v *Version) (string, error) {
	if len(v.Payload) == 0 {
		if v.ContentHash == "" {
			return "", fmt.Errorf("version %s@%s has neither payload nor recorded hash", v.ArtifactName, v.VersionString)
		}
		return v.ContentHash, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(v.Payload, &payload); err != nil {
		return "", fmt.Errorf("stored payload for %s@%s is not an object: %w", v.ArtifactName, v.VersionString, err)
	}
	return d.HashOf(payload)
}

// IsConsistent reports whether a local file payload matches the
// registered version, byte-for-byte at the canonical level.
func (d *ChangeDetector) IsConsistent(filePayload map[string]any, v *Version) (bool, error) {
	fileHash, err := d.HashOf(filePayload)
	if err != nil {
		return false, err
	}
	versionHash, err := d.HashVersion(v)
	if err != nil {
		return false, err
	}
	return fileHash == versionHash, nil
}
