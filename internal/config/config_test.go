package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWhenFilesAbsent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default().HTTP.Port, cfg.HTTP.Port)
	assert.Equal(t, 10, cfg.Pipeline.BatchWorkers)
}

func TestLoadOverlaysYAMLAndDurationAccessorsConvert(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  host: 0.0.0.0
  port: 9090
  read_timeout_seconds: 3
pipeline:
  batch_workers: 4
  coordinator_pacing_millis: 50
`), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 4, cfg.Pipeline.BatchWorkers)
	assert.Equal(t, 3_000_000_000, int(cfg.HTTP.ReadTimeout()))
	assert.Equal(t, 50_000_000, int(cfg.Pipeline.CoordinatorPacing()))
}

func TestLoadEnvOverridesDSNAndHost(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://env-wins")
	t.Setenv("HTTP_HOST", "10.0.0.1")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-wins", cfg.Database.DSN)
	assert.Equal(t, "10.0.0.1", cfg.HTTP.Host)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.BatchWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.HTTP.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Pipeline.CoordinatorPacingMillis = -1
	assert.Error(t, cfg.Validate())
}
