package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func Test_LoadConfig_AppliesDefaultsAndEnv(t *testing.T) {
	p := writeConfig(t, `
version: "1"
mode: dev
database:
  driver: sqlite3
  path: ./data/booknet.db
auth:
  jwt_secret: from-yaml
`)
	t.Setenv("BOOKNET_JWT_SECRET", "from-env")
	t.Setenv("BOOKNET_DB_DSN_PATH", "/tmp/other.db")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.DB.Driver)
	assert.Equal(t, "/tmp/other.db", cfg.DB.Path)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, ":8443", cfg.Server.Addr)
	assert.Equal(t, "24h", cfg.Auth.TokenTTL)
	assert.Equal(t, "./uploads", cfg.Storage.CoverDir)
}

func Test_LoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad_mode", body: "mode: staging\nauth:\n  jwt_secret: s\n"},
		{name: "missing_secret", body: "mode: dev\n"},
		{name: "broken_yaml", body: "mode: [dev\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BOOKNET_JWT_SECRET", "")
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func Test_Migrate_IsIdempotent(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(context.Background(), conn, SQLite))
	require.NoError(t, Migrate(context.Background(), conn, SQLite))

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}
