package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "fs", cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Sessions.Lifetime)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FileWithEnv(t *testing.T) {
	t.Setenv("TEST_STATE_KEY", "from-env")
	path := writeConfig(t, `
server:
  addr: ":9090"
store:
  driver: sqlite
  dsn: "file:test.db"
sessions:
  lifetime: 2h
auth:
  state_key: ${TEST_STATE_KEY}
  min_password_length: 8
  github:
    client_id: gh-id
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.Lifetime)
	assert.Equal(t, "from-env", cfg.Auth.StateKey)
	assert.Equal(t, 8, cfg.Auth.MinPasswordLength)
	assert.Equal(t, "gh-id", cfg.Auth.Github.ClientID)
	assert.Equal(t, "text", cfg.Logging.Format)
	// untouched sections keep their defaults
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: mongo\n"},
		{"sqlite without dsn", "store:\n  driver: sqlite\n"},
		{"datastore without project", "store:\n  driver: datastore\n"},
		{"bad yaml", "store: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
