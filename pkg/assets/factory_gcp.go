//go:build gcp

package assets

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("ASSET_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("ASSET_GCS_BUCKET is required for GCS storage")
	}

	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("ASSET_GCS_PREFIX"),
	})
}
