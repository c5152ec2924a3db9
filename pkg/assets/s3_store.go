package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/discernus/framestore/pkg/canonical"
)

// S3Store implements Store on AWS S3 (or any S3-compatible endpoint such
// as MinIO). Keys mirror the filesystem layout under an optional prefix.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (MinIO, LocalStack)
	Prefix   string // Optional key prefix
}

// NewS3Store creates an S3-backed asset store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}

// PathFor derives the blob key prefix from (hash, kind); same sharding
// scheme as FileStore so backends stay interchangeable.
func (s *S3Store) PathFor(hash, kind string) (string, error) {
	raw, err := canonical.RawHex(hash)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, kind, raw[0:2], raw[2:4], raw), nil
}

func (s *S3Store) Put(ctx context.Context, req PutRequest) (*StoredBlob, error) {
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

	// Idempotence: a HeadObject hit short-circuits the upload.
	payloadKey := path.Join(dir, payloadFile)
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(payloadKey),
	})
	if err == nil {
		blob.AlreadyExisted = true
		return blob, nil
	}

	if err := s.putObject(ctx, payloadKey, payload, "application/json"); err != nil {
		return nil, err
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata sidecar: %w", err)
	}
	if err := s.putObject(ctx, path.Join(dir, metadataFile), metaJSON, "application/json"); err != nil {
		return nil, err
	}
	provJSON, err := json.MarshalIndent(prov, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provenance sidecar: %w", err)
	}
	if err := s.putObject(ctx, path.Join(dir, provenanceFile), provJSON, "application/json"); err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *S3Store) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed for %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, hash, kind string) ([]byte, error) {
	dir, err := s.PathFor(hash, kind)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path.Join(dir, payloadFile)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: s3 get for %s: %v", ErrNotFound, canonical.Short(hash), err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3 object body: %w", err)
	}
	return data, nil
}

func (s *S3Store) Exists(ctx context.Context, hash, kind string) (bool, error) {
	dir, err := s.PathFor(hash, kind)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path.Join(dir, payloadFile)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *S3Store) Verify(ctx context.Context, hash, kind string) (bool, error) {
	data, err := s.Get(ctx, hash, kind)
	if err != nil {
		return false, err
	}
	if canonical.HashBytes(data) != hash {
		return false, fmt.Errorf("%w: blob %s fails digest check", ErrIntegrity, canonical.Short(hash))
	}
	return true, nil
}
