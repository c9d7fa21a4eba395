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
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, DriverFile, cfg.Persistence.Driver)
	assert.Equal(t, "data/moods.csv", cfg.Persistence.Path)
	assert.Equal(t, "keyed", cfg.Persistence.Format)
	assert.Equal(t, 5*time.Second, cfg.Persistence.FlushTimeout)
	assert.Equal(t, "UTC", cfg.Streak.Timezone)
	assert.Equal(t, time.Hour, cfg.Backup.Interval)
	assert.Equal(t, 24, cfg.Backup.Retain)
	assert.Empty(t, cfg.Backup.Bucket)
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MOOD_PERSISTENCE_DRIVER", "sqlite")
	t.Setenv("MOOD_PERSISTENCE_FLUSHTIMEOUT", "250ms")
	t.Setenv("MOOD_STREAK_TIMEZONE", "Europe/Berlin")
	t.Setenv("MOOD_BACKUP_RETAIN", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Persistence.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Persistence.FlushTimeout)
	assert.Equal(t, 3, cfg.Backup.Retain)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"# comment\nexport MOOD_SERVER_ADDR=\"127.0.0.1:9000\"\nMOOD_LOG_LEVEL=debug\nbroken line\n"), 0o600))
	t.Setenv("MOOD_LOG_LEVEL", "warn")
	t.Cleanup(func() { _ = os.Unsetenv("MOOD_SERVER_ADDR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "driver", key: "MOOD_PERSISTENCE_DRIVER", val: "redis"},
		{name: "format", key: "MOOD_PERSISTENCE_FORMAT", val: "json"},
		{name: "timeout", key: "MOOD_PERSISTENCE_FLUSHTIMEOUT", val: "0s"},
		{name: "timezone", key: "MOOD_STREAK_TIMEZONE", val: "Mars/Olympus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
