// Package canonical provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and content hashing for framework artifacts. Identical
// logical content always produces identical bytes and therefore an
// identical digest, independent of map key insertion order.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

// HashPrefix identifies the digest algorithm in prefixed hash strings.
const HashPrefix = "sha256:"

// Canonicalize returns the RFC 8785 canonical JSON representation of v.
// Map keys are sorted lexicographically by UTF-8 bytes and HTML escaping
// is disabled, unlike standard json.Marshal output.
func Canonicalize(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// Hash returns the SHA-256 digest of the canonical JSON representation
// of v, prefixed with the algorithm identifier ("sha256:...").
func Hash(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the prefixed SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// RawHex strips the algorithm prefix and validates that the remainder is
// a full-length hex digest. The raw form is what storage paths are
// derived from; the prefixed form is what gets recorded and compared.
func RawHex(hash string) (string, error) {
	raw := strings.TrimPrefix(hash, HashPrefix)
	if len(raw) != sha256.Size*2 {
		return "", fmt.Errorf("canonical: digest %q has wrong length", hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("canonical: digest %q is not hex: %w", hash, err)
	}
	return raw, nil
}

// Short truncates a hash for display. Storage and comparison always use
// the full digest.
func Short(hash string) string {
	raw := strings.TrimPrefix(hash, HashPrefix)
	if len(raw) <= 12 {
		return raw
	}
	return raw[:12]
}

// StripIncidental returns a copy of payload without the named top-level
// keys. Change detection hashes only the logically meaningful subset of
// a framework document; bookkeeping fields the pipeline rewrites on every
// touch must not register as content drift.
func StripIncidental(payload map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
