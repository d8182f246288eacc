package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 8380, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.Auth.Timeout)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, "https://gitlab.com", cfg.GitLab.BaseURL)
	assert.Equal(t, 25, cfg.Postgres.MaxOpenConns)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Log.File)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SERCHA_MARKS_STORE_BACKEND", "redis")
	t.Setenv("SERCHA_MARKS_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SERCHA_MARKS_HTTP_PORT", "9000")
	t.Setenv("SERCHA_MARKS_AUTH_TIMEOUT", "90s")
	t.Setenv("SERCHA_MARKS_GITHUB_CLIENT_ID", "gh-client")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 90*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, "gh-client", cfg.GitHub.ClientID)
}

func TestLoad_ConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "marks.yaml")
	content := `
store:
  backend: postgres
postgres:
  url: postgres://marks@localhost/marks?sslmode=disable
  max_open_conns: 4
gitlab:
  base_url: https://gitlab.example.com
log:
  format: json
  file: /tmp/marks.log
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// env still wins over the file
	t.Setenv("SERCHA_MARKS_LOG_FORMAT", "text")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, 4, cfg.Postgres.MaxOpenConns)
	assert.Equal(t, 5, cfg.Postgres.MaxIdleConns)
	assert.Equal(t, "https://gitlab.example.com", cfg.GitLab.BaseURL)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/tmp/marks.log", cfg.Log.File)
}

func TestLoad_DataDirConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dataDir := filepath.Join(home, ".sercha-marks")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.yaml"), []byte("http:\n  port: 8999\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8999, cfg.HTTP.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store: StoreConfig{Backend: BackendMemory},
			HTTP:  HTTPConfig{Port: 8380},
			Log:   LogConfig{Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"memory", func(*Config) {}, ""},
		{"redis without url", func(c *Config) { c.Store.Backend = BackendRedis }, "redis.url"},
		{"redis with url", func(c *Config) {
			c.Store.Backend = BackendRedis
			c.Redis.URL = "redis://localhost"
		}, ""},
		{"postgres without url", func(c *Config) { c.Store.Backend = BackendPostgres }, "postgres.url"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "unknown store backend"},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
