package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PLUGIN_STORE_AUTH_SUBMIT_KEY", "secret")

	cfg := &AppConfig{}
	require.NoError(t, Load(cfg, "", Defaults...))

	assert.Equal(t, 5566, cfg.Port)
	assert.Equal(t, "secret", cfg.Auth.SubmitKey)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "https://steamloopback.host", cfg.CORS.Origin)
	assert.Equal(t, 2, cfg.RateLimit.IncrementsPerWindow)
	assert.Equal(t, 24*time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, 5*time.Second, cfg.Persistence.Retry.InitialInterval)
	assert.Equal(t, 60*time.Second, cfg.Persistence.S3.Timeout)
}

func TestLoadRequiresSubmitKey(t *testing.T) {
	cfg := &AppConfig{}
	err := Load(cfg, "", Defaults...)
	assert.Error(t, err)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
port: 8080
auth:
  submit_key: from-file
database:
  driver: sqlite
  path: /tmp/store.db
rate_limit:
  increments_per_window: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("PLUGIN_STORE_PORT", "9090")

	cfg := &AppConfig{}
	require.NoError(t, Load(cfg, path, Defaults...))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "from-file", cfg.Auth.SubmitKey)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/store.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.RateLimit.IncrementsPerWindow)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("PLUGIN_STORE_AUTH_SUBMIT_KEY", "secret")

	cfg := &AppConfig{}
	path := filepath.Join(t.TempDir(), "absent.yaml")

	err := Load(cfg, path, Defaults...)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "absent.yaml")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "unknown persistence type",
			env:  map[string]string{"PLUGIN_STORE_PERSISTENCE_TYPE": "ftp"},
		},
		{
			name: "cdn url without trailing slash",
			env:  map[string]string{"PLUGIN_STORE_CDN_URL": "https://cdn.example.com"},
		},
		{
			name: "port out of range",
			env:  map[string]string{"PLUGIN_STORE_PORT": "70000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PLUGIN_STORE_AUTH_SUBMIT_KEY", "secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := &AppConfig{}
			assert.Error(t, Load(cfg, "", Defaults...))
		})
	}
}
