package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// BackendType selects the asset storage backend.
type BackendType string

const (
	BackendFS  BackendType = "fs"
	BackendS3  BackendType = "s3"
	BackendGCS BackendType = "gcs"
)

// NewStoreFromEnv creates an asset store based on environment variables.
//
// Environment variables:
//   - ASSET_STORAGE_TYPE: "fs" (default), "s3", or "gcs"
//   - DATA_DIR: base directory for the filesystem store (default: "data")
//
// For S3:
//   - ASSET_S3_BUCKET (required)
//   - ASSET_S3_REGION or AWS_REGION
//   - ASSET_S3_ENDPOINT (optional, for MinIO/LocalStack)
//   - ASSET_S3_PREFIX (optional)
//
// For GCS (requires the gcp build tag):
//   - ASSET_GCS_BUCKET (required)
//   - ASSET_GCS_PREFIX (optional)
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	backend := BackendType(os.Getenv("ASSET_STORAGE_TYPE"))
	if backend == "" {
		backend = BackendFS
	}

	switch backend {
	case BackendFS:
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileStore(filepath.Join(dataDir, "assets"))
	case BackendS3:
		bucket := os.Getenv("ASSET_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("ASSET_S3_BUCKET is required for S3 storage")
		}
		region := os.Getenv("ASSET_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("ASSET_S3_ENDPOINT"),
			Prefix:   os.Getenv("ASSET_S3_PREFIX"),
		})
	case BackendGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unsupported asset storage type: %s", backend)
	}
}
