// Package assets implements content-addressed storage (CAS) for framework
// artifacts. A blob's location is a pure function of its content hash and
// asset kind, so identical payloads deduplicate automatically and a write
// racing an identical write can at worst duplicate work, never corrupt.
package assets

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the store contract.
var (
	// ErrNotFound indicates no blob exists for the requested hash.
	ErrNotFound = errors.New("asset not found")
	// ErrIntegrity indicates a stored blob no longer matches its recorded
	// hash. This is fatal: the blob is never auto-repaired.
	ErrIntegrity = errors.New("asset integrity violation")
)

// Metadata is the descriptive sidecar persisted next to every blob.
type Metadata struct {
	AssetType   string    `json:"asset_type"`
	AssetID     string    `json:"asset_id"`
	Version     string    `json:"version"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Provenance records where a blob came from and how it was ingested.
type Provenance struct {
	SourcePath      string    `json:"source_path"`
	IngestionMethod string    `json:"ingestion_method"`
	Timestamp       time.Time `json:"timestamp"`
}

// PutRequest describes a payload to persist.
type PutRequest struct {
	// Content is the structured payload; it is canonicalized (RFC 8785)
	// before hashing and storage.
	Content any
	// Kind partitions the blob namespace (e.g. "framework").
	Kind string

	AssetID         string
	Version         string
	SourcePath      string
	IngestionMethod string
}

// StoredBlob is the outcome of a Put.
type StoredBlob struct {
	ContentHash    string     `json:"content_hash"`
	StoragePath    string     `json:"storage_path"`
	AlreadyExisted bool       `json:"already_existed"`
	Metadata       Metadata   `json:"metadata"`
	Provenance     Provenance `json:"provenance"`
}

// Store defines the contract for content-addressed persistence of
// framework artifacts.
type Store interface {
	// Put persists the canonical form of the payload. Identical content
	// is a no-op after the first successful write: the second caller gets
	// the same hash with AlreadyExisted=true and no bytes are rewritten.
	Put(ctx context.Context, req PutRequest) (*StoredBlob, error)
	// Get retrieves the canonical payload bytes by content hash.
	Get(ctx context.Context, hash, kind string) ([]byte, error)
	// Exists reports whether a blob is present for the hash.
	Exists(ctx context.Context, hash, kind string) (bool, error)
	// Verify reloads the blob, recomputes its digest and compares it to
	// the requested hash. A mismatch returns false with ErrIntegrity.
	Verify(ctx context.Context, hash, kind string) (bool, error)
	// PathFor returns the storage location derived from (hash, kind).
	PathFor(hash, kind string) (string, error)
}

// Blob file names inside a content-addressed directory.
const (
	payloadFile    = "content.json"
	metadataFile   = "content.metadata"
	provenanceFile = "content.provenance"
)
