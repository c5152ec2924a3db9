package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/discernus/framestore/pkg/canonical"
)

// FileStore is a filesystem-backed implementation of Store.
//
// Layout: root/<kind>/<hex[0:2]>/<hex[2:4]>/<hex>/ containing the
// canonical payload plus .metadata and .provenance sidecars. The two
// shard levels keep directory fan-out bounded for large corpora.
type FileStore struct {
	root string
	mu   sync.RWMutex
	now  func() time.Time
}

// NewFileStore creates a CAS store rooted at the given directory.
func NewFileStore(root string) (*FileStore, error) {
	//nolint:gosec // G301: 0755 is intentional for shared asset directory
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure asset root: %w", err)
	}
	return &FileStore{root: root, now: time.Now}, nil
}

// PathFor derives the blob directory from (hash, kind). The mapping is a
// pure function: identical content always lands in the same place.
func (s *FileStore) PathFor(hash, kind string) (string, error) {
	raw, err := canonical.RawHex(hash)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, kind, raw[0:2], raw[2:4], raw), nil
}

func (s *FileStore) Put(ctx context.Context, req PutRequest) (*StoredBlob, error) {
	payload, err := canonical.Canonicalize(req.Content)
	if err != nil {
		return nil, err
	}
	hash := canonical.HashBytes(payload)

	dir, err := s.PathFor(hash, req.Kind)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		AssetType:   req.Kind,
		AssetID:     req.AssetID,
		Version:     req.Version,
		ContentHash: hash,
		SizeBytes:   int64(len(payload)),
		CreatedAt:   s.now().UTC(),
	}
	prov := Provenance{
		SourcePath:      req.SourcePath,
		IngestionMethod: req.IngestionMethod,
		Timestamp:       s.now().UTC(),
	}
	blob := &StoredBlob{
		ContentHash: hash,
		StoragePath: dir,
		Metadata:    meta,
		Provenance:  prov,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotence: existence check precedes write.
	if _, err := os.Stat(filepath.Join(dir, payloadFile)); err == nil {
		blob.AlreadyExisted = true
		return blob, nil
	}

	// Stage the full directory, then rename into place. A racing writer
	// of identical content either wins the rename or observes the winner's
	// directory; both end in the same final state.
	parent := filepath.Dir(dir)
	//nolint:gosec // G301: shared asset tree
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("failed to create shard directory: %w", err)
	}
	staging, err := os.MkdirTemp(parent, ".staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := writeBlobFiles(staging, payload, meta, prov); err != nil {
		return nil, err
	}

	if err := os.Rename(staging, dir); err != nil {
		if _, statErr := os.Stat(filepath.Join(dir, payloadFile)); statErr == nil {
			// Lost the race to an identical writer.
			blob.AlreadyExisted = true
			return blob, nil
		}
		return nil, fmt.Errorf("failed to commit blob directory: %w", err)
	}
	return blob, nil
}

func writeBlobFiles(dir string, payload []byte, meta Metadata, prov Provenance) error {
	//nolint:gosec // G306: blobs are world-readable by design
	if err := os.WriteFile(filepath.Join(dir, payloadFile), payload, 0644); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata sidecar: %w", err)
	}
	//nolint:gosec // G306
	if err := os.WriteFile(filepath.Join(dir, metadataFile), metaJSON, 0644); err != nil {
		return fmt.Errorf("failed to write metadata sidecar: %w", err)
	}
	provJSON, err := json.MarshalIndent(prov, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal provenance sidecar: %w", err)
	}
	//nolint:gosec // G306
	if err := os.WriteFile(filepath.Join(dir, provenanceFile), provJSON, 0644); err != nil {
		return fmt.Errorf("failed to write provenance sidecar: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, hash, kind string) ([]byte, error) {
	dir, err := s.PathFor(hash, kind)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(dir, payloadFile)) //nolint:gosec // path derived from validated hex
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, canonical.Short(hash))
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(ctx context.Context, hash, kind string) (bool, error) {
	dir, err := s.PathFor(hash, kind)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(filepath.Join(dir, payloadFile)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	return true, nil
}

// Verify reloads the payload and recomputes its digest. A mismatch means
// on-disk corruption; it is reported via ErrIntegrity and never repaired
// in place.
func (s *FileStore) Verify(ctx context.Context, hash, kind string) (bool, error) {
	data, err := s.Get(ctx, hash, kind)
	if err != nil {
		return false, err
	}
	if canonical.HashBytes(data) != hash {
		return false, fmt.Errorf("%w: blob %s fails digest check", ErrIntegrity, canonical.Short(hash))
	}
	return true, nil
}

// BlobMetadata loads the .metadata sidecar for a stored blob.
func (s *FileStore) BlobMetadata(ctx context.Context, hash, kind string) (*Metadata, error) {
	dir, err := s.PathFor(hash, kind)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(dir, metadataFile)) //nolint:gosec // path derived from validated hex
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, canonical.Short(hash))
		}
		return nil, fmt.Errorf("failed to read metadata sidecar: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata sidecar: %w", err)
	}
	return &meta, nil
}
