package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 20, cfg.Pipeline.InitialBatchSize)
	assert.Equal(t, 100, cfg.Pipeline.MaxBatchSize)
	assert.InDelta(t, 1.1, cfg.Pipeline.GrowthFactor, 1e-9)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.Throttle)
	assert.Equal(t, time.Second, cfg.Pipeline.Cooldown)
	assert.Equal(t, 60, cfg.Pipeline.HotWindowDays)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("database:\n  host: db.internal\n  dbname: shop\npipeline:\n  max_batch_size: 50\n  cooldown: 3s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("OPSDASH_DATABASE_HOST", "db.override")
	t.Setenv("OPSDASH_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "db.override", cfg.Database.Host)
	assert.Equal(t, "shop", cfg.Database.DBName)
	assert.Equal(t, 50, cfg.Pipeline.MaxBatchSize)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.Cooldown)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadRejectsInvalidPipeline(t *testing.T) {
	t.Setenv("OPSDASH_PIPELINE_MAX_BATCH_SIZE", "5")
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_batch_size")
}
