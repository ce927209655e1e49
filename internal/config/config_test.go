package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8443", cfg.Server.ListenAddr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Security.AuthRateLimit)
	assert.Equal(t, 5, cfg.Security.FailedLoginThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Security.BlockTTL.Std())
	assert.Equal(t, 10, cfg.Security.ScorePenalty)
}

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_addr: ":9000"
database:
  driver: postgres
  dsn: "host=localhost dbname=sentinel sslmode=disable"
security:
  failed_login_threshold: 3
  block_ttl: 1h
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Security.FailedLoginThreshold)
	assert.Equal(t, time.Hour, cfg.Security.BlockTTL.Std())
	// Untouched fields keep their defaults.
	assert.Equal(t, 100, cfg.Security.DefaultRateLimit)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: mongodb
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	cfg := Default()
	cfg.Security.AuthRateLimit = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Security.FailedLoginThreshold = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Security.ScorePenalty = -5
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsUnparseableYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
