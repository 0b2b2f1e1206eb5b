package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(previous)
	})
}

func TestLoadDefaultsWithMemoryDriver(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "fangov", cfg.ServiceName)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DriverMemory, cfg.DatabaseDriver)
	assert.Equal(t, "governance", cfg.StreamPrefix)
	assert.Equal(t, 30*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 100, cfg.SchedulerBatchSize)
	assert.True(t, cfg.EnableLifecycleScheduler)
	assert.False(t, cfg.EnableAutoFinalize)
	assert.Equal(t, 24*time.Hour, cfg.AutoFinalizeAfter)
	assert.Empty(t, cfg.CORSAllowedOrigins)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_DRIVER", "MySQL")
	t.Setenv("DATABASE_DSN", "user:pass@tcp(localhost:3306)/gov?parseTime=true")
	t.Setenv("SCHEDULER_INTERVAL", "5s")
	t.Setenv("SCHEDULER_BATCH_SIZE", "25")
	t.Setenv("ENABLE_AUTO_FINALIZE", "true")
	t.Setenv("AUTO_FINALIZE_AFTER", "2h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, cfg.DatabaseDriver)
	assert.Equal(t, 5*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 25, cfg.SchedulerBatchSize)
	assert.True(t, cfg.EnableAutoFinalize)
	assert.Equal(t, 2*time.Hour, cfg.AutoFinalizeAfter)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfigFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "governance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"database:\n  driver: postgres\n  dsn: postgres://file\nstream:\n  prefix: fan\n",
	), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP_PORT=9090\n"), 0o600))
	t.Setenv("HTTP_PORT", "")
	require.NoError(t, os.Unsetenv("HTTP_PORT"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file", cfg.DatabaseDSN)
	assert.Equal(t, "fan", cfg.StreamPrefix)
	assert.Equal(t, "9090", cfg.HTTPPort)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "")
	_, err := Load("")
	assert.ErrorContains(t, err, "DATABASE_DSN is required")

	t.Setenv("DATABASE_DRIVER", "sqlite")
	_, err = Load("")
	assert.ErrorContains(t, err, "unsupported DATABASE_DRIVER")

	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("SCHEDULER_INTERVAL", "0s")
	_, err = Load("")
	assert.ErrorContains(t, err, "SCHEDULER_INTERVAL")
}
