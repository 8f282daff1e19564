package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://localhost/study")
	t.Setenv("PORT", "9000")
	t.Setenv("LOCK_WAIT", "250ms")
	t.Setenv("REQUIRE_APPROVAL", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, "postgres://localhost/study", cfg.DatabaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.LockWait)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.False(t, cfg.RequireApproval)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadFromFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studytracker.yaml")
	content := []byte("storage_driver: sqlite\nsqlite_path: /tmp/x.db\njwt_secret: from-file\nlog_format: text\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"DATABASE_URL": "postgres://x"}},
		{name: "postgres without url", env: map[string]string{"JWT_SECRET": "s"}},
		{name: "unknown driver", env: map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "mysql"}},
		{name: "bad duration", env: map[string]string{"JWT_SECRET": "s", "DATABASE_URL": "postgres://x", "LOCK_TTL": "soon"}},
		{name: "bad log format", env: map[string]string{"JWT_SECRET": "s", "DATABASE_URL": "postgres://x", "LOG_FORMAT": "xml"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			t.Setenv("DATABASE_URL", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("DATABASE_URL", "postgres://x")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
