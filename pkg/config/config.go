// Package config holds runtime configuration for the framework store.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config selects the storage backends and ambient settings.
type Config struct {
	// AssetBackend is "fs" (default), "s3", or "gcs".
	AssetBackend string `yaml:"asset_backend"`
	// DataDir roots the filesystem asset store.
	DataDir string `yaml:"data_dir"`
	// DatabaseURL selects the authority gateway: a postgres:// DSN, or a
	// local file path for the embedded SQLite profile.
	DatabaseURL string `yaml:"database_url"`
	// FrameworksDir is where local framework files are resolved from.
	FrameworksDir string `yaml:"frameworks_dir"`

	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`

	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`

	// RedisAddr enables the shared version-listing cache when set.
	RedisAddr string `yaml:"redis_addr"`

	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		AssetBackend:  envOr("ASSET_STORAGE_TYPE", "fs"),
		DataDir:       envOr("DATA_DIR", "data"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		FrameworksDir: envOr("FRAMEWORKS_DIR", "frameworks"),
		S3Bucket:      os.Getenv("ASSET_S3_BUCKET"),
		S3Region:      os.Getenv("ASSET_S3_REGION"),
		S3Endpoint:    os.Getenv("ASSET_S3_ENDPOINT"),
		S3Prefix:      os.Getenv("ASSET_S3_PREFIX"),
		GCSBucket:     os.Getenv("ASSET_GCS_BUCKET"),
		GCSPrefix:     os.Getenv("ASSET_GCS_PREFIX"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		LogLevel:      envOr("LOG_LEVEL", "INFO"),
	}
}

// LoadProfile overlays a YAML profile file on top of the environment
// config. Profile values win only where they are set.
func LoadProfile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}

	merge(cfg, &overlay)
	return cfg, nil
}

func merge(dst, src *Config) {
	for _, pair := range []struct {
		dst *string
		src string
	}{
		{&dst.AssetBackend, src.AssetBackend},
		{&dst.DataDir, src.DataDir},
		{&dst.DatabaseURL, src.DatabaseURL},
		{&dst.FrameworksDir, src.FrameworksDir},
		{&dst.S3Bucket, src.S3Bucket},
		{&dst.S3Region, src.S3Region},
		{&dst.S3Endpoint, src.S3Endpoint},
		{&dst.S3Prefix, src.S3Prefix},
		{&dst.GCSBucket, src.GCSBucket},
		{&dst.GCSPrefix, src.GCSPrefix},
		{&dst.RedisAddr, src.RedisAddr},
		{&dst.LogLevel, src.LogLevel},
	} {
		if pair.src != "" {
			*pair.dst = pair.src
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
