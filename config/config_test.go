package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen: ":9090"
database_url: "postgres://localhost/taskd"
log_level: debug
digest_cron: "0 7 * * *"
tokens:
  - token: secret-1
    user_id: alice
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "postgres://localhost/taskd", cfg.DatabaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0 7 * * *", cfg.DigestCron)
	require.Len(t, cfg.Tokens, 1)
	assert.Equal(t, "alice", cfg.Tokens[0].UserID)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{LogLevel: "loud"}
	cfg.Normalize()

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotNil(t, cfg.Tokens)
}

func TestValidateRejectsIncompleteToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
tokens:
  - token: secret-1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &Config{
		Listen:      ":7070",
		DatabaseURL: "postgres://db/taskd",
		Tokens:      []TokenConfig{{Token: "tk", UserID: "bob"}},
	}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Listen, loaded.Listen)
	assert.Equal(t, cfg.DatabaseURL, loaded.DatabaseURL)
	assert.Equal(t, cfg.Tokens, loaded.Tokens)
}
