//go:build gcp

package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"

	"github.com/discernus/framestore/pkg/canonical"
)

// GCSStore implements Store on Google Cloud Storage. Object keys mirror
// the filesystem layout under an optional prefix. The client uses ADC.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string // Optional key prefix
}

// NewGCSStore creates a GCS-backed asset store.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}

// PathFor derives the blob key prefix from (hash, kind); same sharding
// scheme as FileStore so backends stay interchangeable.
func (s *GCSStore) PathFor(hash, kind string) (string, error) {
	raw, err := canonical.RawHex(hash)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, kind, raw[0:2], raw[2:4], raw), nil
}

func (s *GCSStore) Put(ctx context.Context, req PutRequest) (*StoredBlob, error) {
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

	// Idempotence: an Attrs hit short-circuits the upload.
	payloadKey := path.Join(dir, payloadFile)
	_, err = s.client.Bucket(s.bucket).Object(payloadKey).Attrs(ctx)
	if err == nil {
		blob.AlreadyExisted = true
		return blob, nil
	}

	if err := s.putObject(ctx, payloadKey, payload); err != nil {
		return nil, err
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata sidecar: %w", err)
	}
	if err := s.putObject(ctx, path.Join(dir, metadataFile), metaJSON); err != nil {
		return nil, err
	}
	provJSON, err := json.MarshalIndent(prov, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provenance sidecar: %w", err)
	}
	if err := s.putObject(ctx, path.Join(dir, provenanceFile), provJSON); err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *GCSStore) putObject(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed for %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed for %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, hash, kind string) ([]byte, error) {
	dir, err := s.PathFor(hash, kind)
	if err != nil {
		return nil, err
	}

	reader, err := s.client.Bucket(s.bucket).Object(path.Join(dir, payloadFile)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gcs get for %s: %v", ErrNotFound, canonical.Short(hash), err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gcs object body: %w", err)
	}
	return data, nil
}

func (s *GCSStore) Exists(ctx context.Context, hash, kind string) (bool, error) {
	dir, err := s.PathFor(hash, kind)
	if err != nil {
		return false, err
	}

	_, err = s.client.Bucket(s.bucket).Object(path.Join(dir, payloadFile)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

func (s *GCSStore) Verify(ctx context.Context, hash, kind string) (bool, error) {
	data, err := s.Get(ctx, hash, kind)
	if err != nil {
		return false, err
	}
	if canonical.HashBytes(data) != hash {
		return false, fmt.Errorf("%w: blob %s fails digest check", ErrIntegrity, canonical.Short(hash))
	}
	return true, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
