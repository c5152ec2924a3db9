package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discernus/framestore/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ASSET_STORAGE_TYPE", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("FRAMEWORKS_DIR", "")
	t.Setenv("LOG_LEVEL", "")

	cfg := config.Load()

	assert.Equal(t, "fs", cfg.AssetBackend)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "frameworks", cfg.FrameworksDir)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ASSET_STORAGE_TYPE", "s3")
	t.Setenv("ASSET_S3_BUCKET", "research-assets")
	t.Setenv("DATABASE_URL", "postgres://authority:5432/frameworks")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := config.Load()

	assert.Equal(t, "s3", cfg.AssetBackend)
	assert.Equal(t, "research-assets", cfg.S3Bucket)
	assert.Equal(t, "postgres://authority:5432/frameworks", cfg.DatabaseURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestLoadProfile_OverlaysOnlySetValues(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/framestore")
	t.Setenv("LOG_LEVEL", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"database_url: framestore.db\nlog_level: DEBUG\n"), 0644))

	cfg, err := config.LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "framestore.db", cfg.DatabaseURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	// Untouched by the profile: environment value survives.
	assert.Equal(t, "/var/lib/framestore", cfg.DataDir)
}

func TestLoadProfile_MissingFile(t *testing.T) {
	_, err := config.LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadProfile_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_url: [unclosed"), 0644))

	_, err := config.LoadProfile(path)
	assert.Error(t, err)
}
